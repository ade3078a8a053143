// Package load drives a synthetic signed-transaction load against a node's
// storage backend using a fixed pool of workers.
package load

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"github.com/cuulee/bigchaindb/internal/backend"
	"github.com/cuulee/bigchaindb/internal/identity"
	"github.com/cuulee/bigchaindb/internal/stats"
	"github.com/cuulee/bigchaindb/internal/transaction"
)

// Config parameterizes one load run.
type Config struct {
	// Workers is the pool size; 0 means one worker per CPU.
	Workers int
	// Count is the total number of transactions to submit across all
	// workers; 0 means every worker runs unbounded until cancellation.
	Count int64
}

// Generator owns the worker pool for one load run. Workers share nothing
// but the stats aggregator.
type Generator struct {
	be     backend.Backend
	id     *identity.Identity
	stats  *stats.Stats
	logger *slog.Logger
}

// New creates a load generator. The identity must be able to sign.
func New(be backend.Backend, id *identity.Identity, st *stats.Stats, logger *slog.Logger) (*Generator, error) {
	if !id.CanSign() {
		return nil, errors.New("load generation requires a private key")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{be: be, id: id, stats: st, logger: logger}, nil
}

// SplitCount distributes total across workers as evenly as possible. The
// first total%workers workers receive one extra transaction, so the quotas
// always sum to exactly total.
func SplitCount(total int64, workers int) []int64 {
	quotas := make([]int64, workers)
	if workers <= 0 || total <= 0 {
		return quotas
	}
	base := total / int64(workers)
	extra := total % int64(workers)
	for i := range quotas {
		quotas[i] = base
		if int64(i) < extra {
			quotas[i]++
		}
	}
	return quotas
}

// Run executes the load and blocks until every worker has stopped. With a
// bounded count it returns once all quotas are exhausted; unbounded runs
// stop only through context cancellation.
func (g *Generator) Run(ctx context.Context, cfg Config) error {
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if cfg.Count < 0 {
		return fmt.Errorf("transaction count cannot be negative: %d", cfg.Count)
	}

	bounded := cfg.Count > 0
	quotas := SplitCount(cfg.Count, workers)

	g.logger.Info("starting load workers",
		"workers", workers,
		"count", cfg.Count,
		"bounded", bounded,
	)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		tsk := &task{stats: g.stats}
		if bounded {
			tsk.remaining = quotas[i]
			tsk.bounded = true
		}

		wg.Add(1)
		go func(worker int, t *task) {
			defer wg.Done()
			g.runWorker(ctx, worker, t)
		}(i, tsk)
	}
	wg.Wait()

	if ctx.Err() != nil && !bounded {
		return nil // external termination is the normal exit for unbounded runs
	}
	return ctx.Err()
}

// task is the per-worker quota. It is owned exclusively by one worker.
type task struct {
	remaining int64
	bounded   bool
	stats     *stats.Stats
}

// runWorker builds, signs and submits self-transfers until its quota is
// exhausted or the context is cancelled. A submission failure stops this
// worker only: retrying would hide backend failure from the benchmark, and
// the other workers keep their own loops.
func (g *Generator) runWorker(ctx context.Context, worker int, t *task) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if t.bounded && t.remaining == 0 {
			return
		}

		tx := transaction.NewSelfTransfer(g.id.PublicKey())
		if err := tx.Sign(g.id); err != nil {
			t.stats.IncFailures()
			g.logger.Error("worker failed to sign transaction", "worker", worker, "error", err)
			return
		}

		if err := g.be.WriteTransaction(ctx, tx); err != nil {
			t.stats.IncFailures()
			g.logger.Error("worker failed to submit transaction", "worker", worker, "error", err)
			return
		}

		t.stats.IncTransactions()

		if t.bounded {
			t.remaining--
		}
	}
}
