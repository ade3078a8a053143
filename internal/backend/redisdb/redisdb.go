// Package redisdb implements the storage backend on a Redis server. Keys are
// namespaced by database name; the backlog is a list consumed by the node's
// processing pipeline. Standalone Redis exposes no replica-set admin surface,
// so topology operations are rejected.
package redisdb

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/cuulee/bigchaindb/internal/backend"
	"github.com/cuulee/bigchaindb/internal/config"
	"github.com/cuulee/bigchaindb/internal/transaction"
)

func init() {
	backend.Register(config.BackendRedis, func(cfg config.DatabaseConfig) (backend.Backend, error) {
		return Open(cfg.Addr, cfg.Password, cfg.Name)
	})
}

// RedisBackend implements backend.Backend over a Redis connection.
type RedisBackend struct {
	rdb  *redis.Client
	name string
}

// Open connects to Redis and verifies the connection with a ping.
func Open(addr, password, name string) (*RedisBackend, error) {
	if addr == "" {
		return nil, fmt.Errorf("redis backend requires an address")
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to reach redis at %s: %w", addr, err)
	}
	return &RedisBackend{rdb: rdb, name: name}, nil
}

func (r *RedisBackend) key(suffix string) string {
	return r.name + ":" + suffix
}

// InitDatabase claims the init marker with SETNX. The first caller wins;
// everyone else sees backend.ErrDatabaseExists.
func (r *RedisBackend) InitDatabase(ctx context.Context) error {
	ok, err := r.rdb.SetNX(ctx, r.key("meta:initialized"), "1", 0).Result()
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	if !ok {
		return backend.ErrDatabaseExists
	}
	return nil
}

// DropDatabase deletes every key in the database namespace.
func (r *RedisBackend) DropDatabase(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := r.rdb.Scan(ctx, cursor, r.name+":*", 500).Result()
		if err != nil {
			return fmt.Errorf("failed to scan database keys: %w", err)
		}
		if len(keys) > 0 {
			if err := r.rdb.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("failed to drop database: %w", err)
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

// CreateGenesis stores the genesis record with SETNX; losing the write race
// to a concurrent initializer is not an error.
func (r *RedisBackend) CreateGenesis(ctx context.Context, tx *transaction.Transaction) error {
	raw, err := tx.Encode()
	if err != nil {
		return err
	}
	if err := r.rdb.SetNX(ctx, r.key("genesis"), raw, 0).Err(); err != nil {
		return fmt.Errorf("failed to create genesis record: %w", err)
	}
	return nil
}

// GenesisExists reports whether the genesis record is present.
func (r *RedisBackend) GenesisExists(ctx context.Context) (bool, error) {
	n, err := r.rdb.Exists(ctx, r.key("genesis")).Result()
	if err != nil {
		return false, fmt.Errorf("failed to query genesis: %w", err)
	}
	return n > 0, nil
}

// WriteTransaction pushes a signed transaction onto the backlog list.
func (r *RedisBackend) WriteTransaction(ctx context.Context, tx *transaction.Transaction) error {
	raw, err := tx.Encode()
	if err != nil {
		return err
	}
	if err := r.rdb.LPush(ctx, r.key("backlog"), raw).Err(); err != nil {
		return fmt.Errorf("failed to write transaction: %w", err)
	}
	return nil
}

// CountBacklog returns the backlog list length.
func (r *RedisBackend) CountBacklog(ctx context.Context) (int64, error) {
	n, err := r.rdb.LLen(ctx, r.key("backlog")).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count backlog: %w", err)
	}
	return n, nil
}

// SetShards rejects sharding configuration for standalone Redis.
func (r *RedisBackend) SetShards(ctx context.Context, n int) error {
	return &backend.OperationError{Op: "set-shards", Reason: "redis backend does not support sharding"}
}

// SetReplicas rejects replication configuration for standalone Redis.
func (r *RedisBackend) SetReplicas(ctx context.Context, n int) error {
	return &backend.OperationError{Op: "set-replicas", Reason: "redis backend does not support replication"}
}

// AddReplicas reports the missing replica-set capability.
func (r *RedisBackend) AddReplicas(ctx context.Context, hosts []string) error {
	return backend.ErrReplicaSetsUnsupported
}

// RemoveReplicas reports the missing replica-set capability.
func (r *RedisBackend) RemoveReplicas(ctx context.Context, hosts []string) error {
	return backend.ErrReplicaSetsUnsupported
}

// Close closes the Redis connection.
func (r *RedisBackend) Close() error {
	return r.rdb.Close()
}
