package topology

import (
	"context"
	"errors"
	"testing"

	"github.com/cuulee/bigchaindb/internal/backend"
	"github.com/cuulee/bigchaindb/internal/transaction"
)

// mockBackend records topology calls.
type mockBackend struct {
	shards   int
	replicas int
	added    []string
	removed  []string
	err      error
}

func (m *mockBackend) InitDatabase(context.Context) error                            { return nil }
func (m *mockBackend) DropDatabase(context.Context) error                            { return nil }
func (m *mockBackend) CreateGenesis(context.Context, *transaction.Transaction) error { return nil }
func (m *mockBackend) GenesisExists(context.Context) (bool, error)                   { return false, nil }
func (m *mockBackend) WriteTransaction(context.Context, *transaction.Transaction) error {
	return nil
}
func (m *mockBackend) CountBacklog(context.Context) (int64, error) { return 0, nil }
func (m *mockBackend) SetShards(_ context.Context, n int) error {
	if m.err != nil {
		return m.err
	}
	m.shards = n
	return nil
}
func (m *mockBackend) SetReplicas(_ context.Context, n int) error {
	if m.err != nil {
		return m.err
	}
	m.replicas = n
	return nil
}
func (m *mockBackend) AddReplicas(_ context.Context, hosts []string) error {
	if m.err != nil {
		return m.err
	}
	m.added = hosts
	return nil
}
func (m *mockBackend) RemoveReplicas(_ context.Context, hosts []string) error {
	if m.err != nil {
		return m.err
	}
	m.removed = hosts
	return nil
}
func (m *mockBackend) Close() error { return nil }

func TestParseMember(t *testing.T) {
	tests := []struct {
		in   string
		want Member
		ok   bool
	}{
		{"node1:9985", Member{"node1", 9985}, true},
		{"10.0.0.5:27017", Member{"10.0.0.5", 27017}, true},
		{"[::1]:9985", Member{"::1", 9985}, true},
		{"node1", Member{}, false},
		{"node1:abc", Member{}, false},
		{":9985", Member{}, false},
		{"node1:0", Member{}, false},
		{"node1:70000", Member{}, false},
		{"node1:-1", Member{}, false},
		{"", Member{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMember(tt.in)
			if tt.ok {
				if err != nil {
					t.Fatalf("ParseMember(%q): %v", tt.in, err)
				}
				if got != tt.want {
					t.Fatalf("ParseMember(%q) = %+v, want %+v", tt.in, got, tt.want)
				}
			} else if err == nil {
				t.Fatalf("ParseMember(%q) should fail", tt.in)
			}
		})
	}
}

func TestMemberString(t *testing.T) {
	tests := []struct {
		member Member
		want   string
	}{
		{Member{"node1", 9985}, "node1:9985"},
		{Member{"::1", 9985}, "[::1]:9985"},
	}
	for _, tt := range tests {
		if got := tt.member.String(); got != tt.want {
			t.Errorf("String() = %s, want %s", got, tt.want)
		}
	}
}

func TestParseMembers(t *testing.T) {
	members, err := ParseMembers([]string{"a:1", "b:2"})
	if err != nil {
		t.Fatalf("ParseMembers: %v", err)
	}
	if len(members) != 2 || members[1].Host != "b" {
		t.Fatalf("members = %+v", members)
	}

	if _, err := ParseMembers([]string{"a:1", "bad"}); err == nil {
		t.Fatal("one bad member must fail the whole list")
	}
	if _, err := ParseMembers(nil); err == nil {
		t.Fatal("empty list must be rejected")
	}
}

func TestSetShardsValidation(t *testing.T) {
	be := &mockBackend{}
	admin := NewAdmin(be, nil)

	for _, n := range []int{0, -1, -100} {
		if err := admin.SetShards(context.Background(), n); err == nil {
			t.Fatalf("SetShards(%d) should fail", n)
		}
	}
	if be.shards != 0 {
		t.Fatal("backend must not be called for invalid counts")
	}

	if err := admin.SetShards(context.Background(), 4); err != nil {
		t.Fatalf("SetShards(4): %v", err)
	}
	if be.shards != 4 {
		t.Fatalf("shards = %d, want 4", be.shards)
	}
}

func TestSetReplicasValidation(t *testing.T) {
	be := &mockBackend{}
	admin := NewAdmin(be, nil)

	if err := admin.SetReplicas(context.Background(), -1); err == nil {
		t.Fatal("SetReplicas(-1) should fail")
	}
	if be.replicas != 0 {
		t.Fatal("backend must not be called for invalid counts")
	}

	if err := admin.SetReplicas(context.Background(), 3); err != nil {
		t.Fatalf("SetReplicas(3): %v", err)
	}
	if be.replicas != 3 {
		t.Fatalf("replicas = %d, want 3", be.replicas)
	}
}

func TestReplicaMembership(t *testing.T) {
	be := &mockBackend{}
	admin := NewAdmin(be, nil)

	members := []Member{{"node1", 9985}, {"node2", 9985}}
	if err := admin.AddReplicas(context.Background(), members); err != nil {
		t.Fatalf("AddReplicas: %v", err)
	}
	if len(be.added) != 2 || be.added[0] != "node1:9985" {
		t.Fatalf("added = %v", be.added)
	}

	if err := admin.RemoveReplicas(context.Background(), members[:1]); err != nil {
		t.Fatalf("RemoveReplicas: %v", err)
	}
	if len(be.removed) != 1 || be.removed[0] != "node1:9985" {
		t.Fatalf("removed = %v", be.removed)
	}
}

func TestUnsupportedBackendErrorPassesThrough(t *testing.T) {
	be := &mockBackend{err: backend.ErrReplicaSetsUnsupported}
	admin := NewAdmin(be, nil)

	err := admin.AddReplicas(context.Background(), []Member{{"node1", 9985}})
	if !errors.Is(err, backend.ErrReplicaSetsUnsupported) {
		t.Fatalf("AddReplicas = %v, want wrapped ErrReplicaSetsUnsupported", err)
	}
}

func TestOperationErrorPassesThrough(t *testing.T) {
	be := &mockBackend{err: &backend.OperationError{Op: "set-shards", Reason: "rebalance running"}}
	admin := NewAdmin(be, nil)

	err := admin.SetShards(context.Background(), 2)
	var opErr *backend.OperationError
	if !errors.As(err, &opErr) {
		t.Fatalf("SetShards = %v, want wrapped OperationError", err)
	}
}
