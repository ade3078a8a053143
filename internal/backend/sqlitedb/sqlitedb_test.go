package sqlitedb

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/cuulee/bigchaindb/internal/backend"
	"github.com/cuulee/bigchaindb/internal/identity"
	"github.com/cuulee/bigchaindb/internal/transaction"
)

func openTestBackend(t *testing.T) *SQLiteBackend {
	t.Helper()
	be, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { be.Close() })
	return be
}

func signedTx(t *testing.T) *transaction.Transaction {
	t.Helper()
	id, err := identity.Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	tx := transaction.NewSelfTransfer(id.PublicKey())
	if err := tx.Sign(id); err != nil {
		t.Fatalf("Sign: %v", err)
	}
	return tx
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open(""); err == nil {
		t.Fatal("empty path must be rejected")
	}
}

func TestInitDatabaseIdempotence(t *testing.T) {
	be := openTestBackend(t)
	ctx := context.Background()

	if err := be.InitDatabase(ctx); err != nil {
		t.Fatalf("first init: %v", err)
	}
	if err := be.InitDatabase(ctx); !errors.Is(err, backend.ErrDatabaseExists) {
		t.Fatalf("second init = %v, want ErrDatabaseExists", err)
	}
}

func TestGenesisLifecycle(t *testing.T) {
	be := openTestBackend(t)
	ctx := context.Background()

	exists, err := be.GenesisExists(ctx)
	if err != nil {
		t.Fatalf("GenesisExists before init: %v", err)
	}
	if exists {
		t.Fatal("no genesis expected before init")
	}

	if err := be.InitDatabase(ctx); err != nil {
		t.Fatalf("InitDatabase: %v", err)
	}

	tx := signedTx(t)
	if err := be.CreateGenesis(ctx, tx); err != nil {
		t.Fatalf("CreateGenesis: %v", err)
	}

	exists, err = be.GenesisExists(ctx)
	if err != nil {
		t.Fatalf("GenesisExists: %v", err)
	}
	if !exists {
		t.Fatal("genesis record missing after creation")
	}

	// A lost creation race maps to success and keeps the first record.
	if err := be.CreateGenesis(ctx, signedTx(t)); err != nil {
		t.Fatalf("second CreateGenesis: %v", err)
	}
}

func TestBacklog(t *testing.T) {
	be := openTestBackend(t)
	ctx := context.Background()

	if err := be.InitDatabase(ctx); err != nil {
		t.Fatalf("InitDatabase: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := be.WriteTransaction(ctx, signedTx(t)); err != nil {
			t.Fatalf("WriteTransaction %d: %v", i, err)
		}
	}

	n, err := be.CountBacklog(ctx)
	if err != nil {
		t.Fatalf("CountBacklog: %v", err)
	}
	if n != 3 {
		t.Fatalf("backlog = %d, want 3", n)
	}
}

func TestDropDatabase(t *testing.T) {
	be := openTestBackend(t)
	ctx := context.Background()

	if err := be.InitDatabase(ctx); err != nil {
		t.Fatalf("InitDatabase: %v", err)
	}
	if err := be.CreateGenesis(ctx, signedTx(t)); err != nil {
		t.Fatalf("CreateGenesis: %v", err)
	}

	if err := be.DropDatabase(ctx); err != nil {
		t.Fatalf("DropDatabase: %v", err)
	}

	exists, err := be.GenesisExists(ctx)
	if err != nil {
		t.Fatalf("GenesisExists after drop: %v", err)
	}
	if exists {
		t.Fatal("genesis must be gone after drop")
	}

	// A dropped database can be initialized again.
	if err := be.InitDatabase(ctx); err != nil {
		t.Fatalf("re-init after drop: %v", err)
	}
}

func TestTopologyUnsupported(t *testing.T) {
	be := openTestBackend(t)
	ctx := context.Background()

	var opErr *backend.OperationError
	if err := be.SetShards(ctx, 3); !errors.As(err, &opErr) {
		t.Fatalf("SetShards = %v, want OperationError", err)
	}
	if err := be.SetReplicas(ctx, 3); !errors.As(err, &opErr) {
		t.Fatalf("SetReplicas = %v, want OperationError", err)
	}
	if err := be.AddReplicas(ctx, []string{"node:9985"}); !errors.Is(err, backend.ErrReplicaSetsUnsupported) {
		t.Fatalf("AddReplicas = %v, want ErrReplicaSetsUnsupported", err)
	}
	if err := be.RemoveReplicas(ctx, []string{"node:9985"}); !errors.Is(err, backend.ErrReplicaSetsUnsupported) {
		t.Fatalf("RemoveReplicas = %v, want ErrReplicaSetsUnsupported", err)
	}
}
