// Package stats aggregates live throughput counters across load workers.
package stats

import (
	"context"
	"log/slog"
	"time"
)

// Snapshot is a point-in-time view of a load run. Counter values are
// non-decreasing between snapshots.
type Snapshot struct {
	Transactions uint64
	Failures     uint64
	Committed    uint64
	Elapsed      time.Duration
}

// Stats is the counter set shared by all workers of one load run. All
// mutators are safe for concurrent use; readers never block writers.
type Stats struct {
	transactions Counter
	failures     Counter
	committed    Counter
	started      time.Time
}

// New creates a stats aggregator for a load run starting now.
func New() *Stats {
	return &Stats{started: time.Now()}
}

// IncTransactions records one submitted transaction.
func (s *Stats) IncTransactions() uint64 {
	return s.transactions.Inc()
}

// IncFailures records one failed submission.
func (s *Stats) IncFailures() uint64 {
	return s.failures.Inc()
}

// IncCommitted records one commit event observed on the event stream.
func (s *Stats) IncCommitted() uint64 {
	return s.committed.Inc()
}

// Transactions returns the submitted-transaction count.
func (s *Stats) Transactions() uint64 {
	return s.transactions.Load()
}

// Snapshot returns the current counter values.
func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		Transactions: s.transactions.Load(),
		Failures:     s.failures.Load(),
		Committed:    s.committed.Load(),
		Elapsed:      time.Since(s.started),
	}
}

// Reporter logs periodic throughput snapshots for a Stats instance.
type Reporter struct {
	stats    *Stats
	interval time.Duration
	logger   *slog.Logger
}

// NewReporter creates a reporter; interval defaults to one second.
func NewReporter(s *Stats, interval time.Duration, logger *slog.Logger) *Reporter {
	if interval <= 0 {
		interval = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reporter{stats: s, interval: interval, logger: logger}
}

// Run reports until the context is cancelled, then emits a final snapshot.
func (r *Reporter) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	var last uint64
	lastAt := time.Now()

	for {
		select {
		case <-ctx.Done():
			snap := r.stats.Snapshot()
			r.logger.Info("load run finished",
				"transactions", snap.Transactions,
				"failures", snap.Failures,
				"committed", snap.Committed,
				"elapsed", snap.Elapsed.Round(time.Millisecond),
			)
			return
		case now := <-ticker.C:
			snap := r.stats.Snapshot()
			window := now.Sub(lastAt).Seconds()
			var rate float64
			if window > 0 {
				rate = float64(snap.Transactions-last) / window
			}
			r.logger.Info("load stats",
				"transactions", snap.Transactions,
				"failures", snap.Failures,
				"committed", snap.Committed,
				"rate", rate,
			)
			last = snap.Transactions
			lastAt = now
		}
	}
}
