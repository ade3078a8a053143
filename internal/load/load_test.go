package load

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cuulee/bigchaindb/internal/identity"
	"github.com/cuulee/bigchaindb/internal/stats"
	"github.com/cuulee/bigchaindb/internal/transaction"
)

// mockBackend counts backlog writes and can be told to fail.
type mockBackend struct {
	writes    int64 // atomic
	shouldErr bool
}

func (m *mockBackend) InitDatabase(context.Context) error                            { return nil }
func (m *mockBackend) DropDatabase(context.Context) error                            { return nil }
func (m *mockBackend) CreateGenesis(context.Context, *transaction.Transaction) error { return nil }
func (m *mockBackend) GenesisExists(context.Context) (bool, error)                   { return true, nil }
func (m *mockBackend) CountBacklog(context.Context) (int64, error) {
	return atomic.LoadInt64(&m.writes), nil
}
func (m *mockBackend) SetShards(context.Context, int) error       { return nil }
func (m *mockBackend) SetReplicas(context.Context, int) error     { return nil }
func (m *mockBackend) AddReplicas(context.Context, []string) error  { return nil }
func (m *mockBackend) RemoveReplicas(context.Context, []string) error { return nil }
func (m *mockBackend) Close() error                               { return nil }

func (m *mockBackend) WriteTransaction(ctx context.Context, tx *transaction.Transaction) error {
	if m.shouldErr {
		return errors.New("backend down")
	}
	atomic.AddInt64(&m.writes, 1)
	return nil
}

func TestSplitCount(t *testing.T) {
	tests := []struct {
		total   int64
		workers int
		want    []int64
	}{
		{10, 4, []int64{3, 3, 2, 2}},
		{10, 1, []int64{10}},
		{3, 5, []int64{1, 1, 1, 0, 0}},
		{0, 3, []int64{0, 0, 0}},
		{7, 7, []int64{1, 1, 1, 1, 1, 1, 1}},
	}
	for _, tt := range tests {
		got := SplitCount(tt.total, tt.workers)
		if len(got) != len(tt.want) {
			t.Fatalf("SplitCount(%d,%d) len = %d", tt.total, tt.workers, len(got))
		}
		var sum int64
		for i := range got {
			if got[i] != tt.want[i] {
				t.Fatalf("SplitCount(%d,%d) = %v, want %v", tt.total, tt.workers, got, tt.want)
			}
			if got[i] < 0 {
				t.Fatalf("negative quota in %v", got)
			}
			sum += got[i]
		}
		if tt.total > 0 && sum != tt.total {
			t.Fatalf("SplitCount(%d,%d) sums to %d", tt.total, tt.workers, sum)
		}
	}
}

func TestNewRequiresPrivateKey(t *testing.T) {
	full, _ := identity.Generate()
	publicOnly, err := identity.FromKeys(full.PublicKey(), "")
	if err != nil {
		t.Fatalf("FromKeys: %v", err)
	}

	if _, err := New(&mockBackend{}, publicOnly, stats.New(), nil); err == nil {
		t.Fatal("public-only identity must be rejected")
	}
}

func TestBoundedRunSubmitsExactCount(t *testing.T) {
	id, _ := identity.Generate()
	be := &mockBackend{}
	st := stats.New()

	gen, err := New(be, id, st, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := gen.Run(context.Background(), Config{Workers: 4, Count: 25}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := atomic.LoadInt64(&be.writes); got != 25 {
		t.Fatalf("writes = %d, want 25", got)
	}
	if got := st.Transactions(); got != 25 {
		t.Fatalf("stats transactions = %d, want 25", got)
	}
}

func TestFailureStopsWorkers(t *testing.T) {
	id, _ := identity.Generate()
	be := &mockBackend{shouldErr: true}
	st := stats.New()

	gen, err := New(be, id, st, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// Every submission fails; each worker logs one failure and stops, so
	// an unbounded run still terminates.
	done := make(chan error, 1)
	go func() { done <- gen.Run(context.Background(), Config{Workers: 3, Count: 0}) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run did not terminate after worker failures")
	}

	snap := st.Snapshot()
	if snap.Transactions != 0 {
		t.Fatalf("transactions = %d, want 0", snap.Transactions)
	}
	if snap.Failures != 3 {
		t.Fatalf("failures = %d, want one per worker", snap.Failures)
	}
}

func TestUnboundedRunStopsOnCancel(t *testing.T) {
	id, _ := identity.Generate()
	be := &mockBackend{}
	st := stats.New()

	gen, err := New(be, id, st, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- gen.Run(ctx, Config{Workers: 2, Count: 0}) }()

	// Let the workers produce something, then pull the plug.
	deadline := time.After(5 * time.Second)
	for st.Transactions() == 0 {
		select {
		case <-deadline:
			t.Fatal("workers produced nothing")
		case <-time.After(time.Millisecond):
		}
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run after cancel: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop on cancellation")
	}
}

func TestZeroWorkersDefaultsToCPUs(t *testing.T) {
	id, _ := identity.Generate()
	be := &mockBackend{}
	gen, err := New(be, id, stats.New(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := gen.Run(context.Background(), Config{Workers: 0, Count: 10}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := atomic.LoadInt64(&be.writes); got != 10 {
		t.Fatalf("writes = %d, want 10", got)
	}
}

func TestNegativeCountRejected(t *testing.T) {
	id, _ := identity.Generate()
	gen, err := New(&mockBackend{}, id, stats.New(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := gen.Run(context.Background(), Config{Workers: 1, Count: -1}); err == nil {
		t.Fatal("negative count must be rejected")
	}
}
