package process

import (
	"context"
	"log/slog"
	"time"

	"github.com/cuulee/bigchaindb/internal/backend"
	"github.com/cuulee/bigchaindb/internal/identity"
)

// Node is the long-running service a bootstrapped node hands off to. It
// watches the backlog until shut down.
type Node struct {
	interval time.Duration
	logger   *slog.Logger
}

// NewNode creates the node service. interval is the backlog poll period,
// typically the backlog reassign delay from configuration.
func NewNode(interval time.Duration, logger *slog.Logger) *Node {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Node{interval: interval, logger: logger}
}

// Run blocks until the context is cancelled, reporting backlog depth on
// every poll interval.
func (n *Node) Run(ctx context.Context, id *identity.Identity, be backend.Backend) error {
	n.logger.Info("node running", "public_key", id.PublicKey(), "backlog_poll", n.interval)

	ticker := time.NewTicker(n.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			n.logger.Info("node shutting down")
			return nil
		case <-ticker.C:
			count, err := be.CountBacklog(ctx)
			if err != nil {
				n.logger.Error("failed to count backlog", "error", err)
				continue
			}
			n.logger.Info("backlog status", "pending", count)
		}
	}
}
