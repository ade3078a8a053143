// Package sqlitedb implements the storage backend on an embedded SQLite
// database. It is a single-node backend: topology operations are rejected.
package sqlitedb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/cuulee/bigchaindb/internal/backend"
	"github.com/cuulee/bigchaindb/internal/config"
	"github.com/cuulee/bigchaindb/internal/transaction"
)

func init() {
	backend.Register(config.BackendSQLite, func(cfg config.DatabaseConfig) (backend.Backend, error) {
		return Open(cfg.Path)
	})
}

// SQLiteBackend implements backend.Backend over a local database file.
type SQLiteBackend struct {
	db   *sql.DB
	path string
}

// Open connects to the database file, creating parent directories as needed.
// The schema is not created here; that is InitDatabase's job.
func Open(path string) (*SQLiteBackend, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite backend requires a database path")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// WAL mode so backlog writers do not block snapshot readers.
	dsn := fmt.Sprintf("%s?_journal=WAL&_sync=NORMAL&_busy_timeout=5000&_foreign_keys=ON", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &SQLiteBackend{db: db, path: path}, nil
}

// InitDatabase creates the ledger schema. A schema that is already present
// yields backend.ErrDatabaseExists. Concurrent initializers race on the
// CREATE TABLE statements; the loser maps onto the same sentinel.
func (s *SQLiteBackend) InitDatabase(ctx context.Context) error {
	var name string
	err := s.db.QueryRowContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'genesis'`).Scan(&name)
	if err == nil {
		return backend.ErrDatabaseExists
	}
	if err != sql.ErrNoRows {
		return fmt.Errorf("failed to probe schema: %w", err)
	}

	schema := `
	CREATE TABLE genesis (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		tx TEXT NOT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE backlog (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		tx_id TEXT NOT NULL UNIQUE,
		owner TEXT NOT NULL,
		payload TEXT NOT NULL,
		enqueued_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX idx_backlog_owner ON backlog(owner);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		if strings.Contains(err.Error(), "already exists") {
			return backend.ErrDatabaseExists
		}
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// DropDatabase removes the ledger schema and its records.
func (s *SQLiteBackend) DropDatabase(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
	DROP TABLE IF EXISTS backlog;
	DROP TABLE IF EXISTS genesis;
	`)
	if err != nil {
		return fmt.Errorf("failed to drop database: %w", err)
	}
	return nil
}

// CreateGenesis stores the genesis record. The fixed-id constraint makes the
// insert first-writer-wins; a lost race is treated as success.
func (s *SQLiteBackend) CreateGenesis(ctx context.Context, tx *transaction.Transaction) error {
	raw, err := tx.Encode()
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO genesis (id, tx) VALUES (1, ?)`, string(raw))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") ||
			strings.Contains(err.Error(), "constraint failed") {
			return nil
		}
		return fmt.Errorf("failed to create genesis record: %w", err)
	}
	return nil
}

// GenesisExists reports whether the genesis record is present.
func (s *SQLiteBackend) GenesisExists(ctx context.Context) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM genesis`).Scan(&n)
	if err != nil {
		if strings.Contains(err.Error(), "no such table") {
			return false, nil
		}
		return false, fmt.Errorf("failed to query genesis: %w", err)
	}
	return n > 0, nil
}

// WriteTransaction enqueues a signed transaction into the backlog.
func (s *SQLiteBackend) WriteTransaction(ctx context.Context, tx *transaction.Transaction) error {
	raw, err := tx.Encode()
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO backlog (tx_id, owner, payload) VALUES (?, ?, ?)`,
		tx.ID, tx.Owner, string(raw))
	if err != nil {
		return fmt.Errorf("failed to write transaction: %w", err)
	}
	return nil
}

// CountBacklog returns the number of queued transactions.
func (s *SQLiteBackend) CountBacklog(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM backlog`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count backlog: %w", err)
	}
	return n, nil
}

// SetShards rejects sharding: an embedded database has a single shard.
func (s *SQLiteBackend) SetShards(ctx context.Context, n int) error {
	return &backend.OperationError{Op: "set-shards", Reason: "sqlite backend does not support sharding"}
}

// SetReplicas rejects replication configuration.
func (s *SQLiteBackend) SetReplicas(ctx context.Context, n int) error {
	return &backend.OperationError{Op: "set-replicas", Reason: "sqlite backend does not support replication"}
}

// AddReplicas reports the missing replica-set capability.
func (s *SQLiteBackend) AddReplicas(ctx context.Context, hosts []string) error {
	return backend.ErrReplicaSetsUnsupported
}

// RemoveReplicas reports the missing replica-set capability.
func (s *SQLiteBackend) RemoveReplicas(ctx context.Context, hosts []string) error {
	return backend.ErrReplicaSetsUnsupported
}

// Close closes the database handle.
func (s *SQLiteBackend) Close() error {
	return s.db.Close()
}
