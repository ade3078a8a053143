package stats

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterPrometheus exposes a Stats instance on a Prometheus registerer.
// Counter functions read the atomic counters directly, so scrapes never
// contend with workers.
func RegisterPrometheus(reg prometheus.Registerer, s *Stats) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	collectors := []prometheus.Collector{
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "bigchaindb_load_transactions_total",
			Help: "Transactions submitted to the backlog",
		}, func() float64 { return float64(s.transactions.Load()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "bigchaindb_load_failures_total",
			Help: "Failed transaction submissions",
		}, func() float64 { return float64(s.failures.Load()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "bigchaindb_load_committed_total",
			Help: "Commit events observed on the cluster event stream",
		}, func() float64 { return float64(s.committed.Load()) }),
	}

	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// ServeMetrics runs a /metrics endpoint for the duration of a load run.
func ServeMetrics(ctx context.Context, addr string, reg *prometheus.Registry, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics server failed", "error", err)
	}
}
