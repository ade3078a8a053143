// Package backend defines the storage backend contract shared by all
// backend implementations. Implementations register themselves by name,
// database/sql style, and are selected through the node configuration.
package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/cuulee/bigchaindb/internal/transaction"
)

// ErrDatabaseExists signals that InitDatabase found an already-initialized
// database. Callers treat this as an idempotent no-op, not a failure.
var ErrDatabaseExists = errors.New("database already exists")

// ErrReplicaSetsUnsupported is returned by replica-set membership operations
// on backends without replica-set support.
var ErrReplicaSetsUnsupported = errors.New("backend does not support replica sets")

// OperationError is a backend-side rejection of an administrative operation.
// It is reported to the operator and never terminates the process.
type OperationError struct {
	Op     string
	Reason string
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

// Backend is the handle to a node's storage backend.
//
// InitDatabase must be safe under concurrent invocation against the same
// backend: the first caller wins and later callers get ErrDatabaseExists.
type Backend interface {
	// InitDatabase creates the database structures for a fresh node.
	InitDatabase(ctx context.Context) error

	// DropDatabase removes the database and all its records.
	DropDatabase(ctx context.Context) error

	// CreateGenesis stores the genesis record. Called only after a fresh
	// InitDatabase; a concurrent writer winning the race is not an error.
	CreateGenesis(ctx context.Context, tx *transaction.Transaction) error

	// GenesisExists reports whether a genesis record is present.
	GenesisExists(ctx context.Context) (bool, error)

	// WriteTransaction enqueues a signed transaction into the backlog for
	// asynchronous processing. It does not wait for commitment.
	WriteTransaction(ctx context.Context, tx *transaction.Transaction) error

	// CountBacklog returns the number of transactions waiting in the backlog.
	CountBacklog(ctx context.Context) (int64, error)

	// SetShards asks the backend to redistribute data across n shards.
	SetShards(ctx context.Context, n int) error

	// SetReplicas sets the backend replication factor to n.
	SetReplicas(ctx context.Context, n int) error

	// AddReplicas adds host:port members to the replica set.
	AddReplicas(ctx context.Context, hosts []string) error

	// RemoveReplicas removes host:port members from the replica set.
	RemoveReplicas(ctx context.Context, hosts []string) error

	Close() error
}
