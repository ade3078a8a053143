// Package topology applies cluster topology changes: shard counts,
// replication factors and replica-set membership.
package topology

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"

	"github.com/cuulee/bigchaindb/internal/backend"
)

// Member is one replica-set member address.
type Member struct {
	Host string
	Port int
}

// String formats the member as host:port.
func (m Member) String() string {
	return net.JoinHostPort(m.Host, strconv.Itoa(m.Port))
}

// ParseMember parses a host:port pair. The host must be non-empty and the
// port numeric in 1..65535.
func ParseMember(s string) (Member, error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return Member{}, fmt.Errorf("invalid host:port %q: %w", s, err)
	}
	if host == "" {
		return Member{}, fmt.Errorf("invalid host:port %q: empty host", s)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return Member{}, fmt.Errorf("invalid host:port %q: port is not a number", s)
	}
	if port < 1 || port > 65535 {
		return Member{}, fmt.Errorf("invalid host:port %q: port out of range", s)
	}
	return Member{Host: host, Port: port}, nil
}

// ParseMembers parses a list of host:port pairs, failing on the first
// invalid entry. No backend call happens until the whole list parses.
func ParseMembers(args []string) ([]Member, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("at least one host:port is required")
	}
	members := make([]Member, 0, len(args))
	for _, arg := range args {
		m, err := ParseMember(arg)
		if err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, nil
}

// Admin validates and forwards topology operations to a backend.
type Admin struct {
	be     backend.Backend
	logger *slog.Logger
}

// NewAdmin creates a topology administrator.
func NewAdmin(be backend.Backend, logger *slog.Logger) *Admin {
	if logger == nil {
		logger = slog.Default()
	}
	return &Admin{be: be, logger: logger}
}

// SetShards redistributes data across n shards.
func (a *Admin) SetShards(ctx context.Context, n int) error {
	if n <= 0 {
		return fmt.Errorf("shard count must be positive, got %d", n)
	}
	a.logger.Info("setting shard count", "shards", n)
	if err := a.be.SetShards(ctx, n); err != nil {
		return fmt.Errorf("failed to set shards: %w", err)
	}
	return nil
}

// SetReplicas sets the replication factor to n.
func (a *Admin) SetReplicas(ctx context.Context, n int) error {
	if n <= 0 {
		return fmt.Errorf("replica count must be positive, got %d", n)
	}
	a.logger.Info("setting replication factor", "replicas", n)
	if err := a.be.SetReplicas(ctx, n); err != nil {
		return fmt.Errorf("failed to set replicas: %w", err)
	}
	return nil
}

// AddReplicas adds members to the replica set.
func (a *Admin) AddReplicas(ctx context.Context, members []Member) error {
	hosts := hostStrings(members)
	a.logger.Info("adding replicas", "hosts", hosts)
	if err := a.be.AddReplicas(ctx, hosts); err != nil {
		return fmt.Errorf("failed to add replicas: %w", err)
	}
	return nil
}

// RemoveReplicas removes members from the replica set.
func (a *Admin) RemoveReplicas(ctx context.Context, members []Member) error {
	hosts := hostStrings(members)
	a.logger.Info("removing replicas", "hosts", hosts)
	if err := a.be.RemoveReplicas(ctx, hosts); err != nil {
		return fmt.Errorf("failed to remove replicas: %w", err)
	}
	return nil
}

func hostStrings(members []Member) []string {
	out := make([]string, len(members))
	for i, m := range members {
		out[i] = m.String()
	}
	return out
}
