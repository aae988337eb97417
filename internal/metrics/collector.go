// Package metrics exposes store-depth gauges and the optional
// Prometheus HTTP listener.
package metrics

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sweepq/internal/store"
)

const (
	defaultInterval = 2 * time.Second
	queryTimeout    = 2 * time.Second
)

var (
	tasksPendingGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sweepq_tasks_pending",
		Help: "Number of tasks waiting to be claimed.",
	})
	tasksRunningGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sweepq_tasks_running",
		Help: "Number of claimed, unfinished tasks.",
	})
	tasksDoneGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sweepq_tasks_done",
		Help: "Number of successfully completed tasks.",
	})
	tasksFailedGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sweepq_tasks_failed",
		Help: "Number of permanently failed tasks.",
	})
)

// StartCollector polls the task store and keeps the depth gauges
// current until ctx is cancelled.
func StartCollector(ctx context.Context, st *store.Store, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		interval = defaultInterval
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			if err := collect(ctx, st); err != nil {
				logWarn(logger, "Store metrics collection failed", err)
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

func collect(ctx context.Context, st *store.Store) error {
	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	counts, err := st.Counts(queryCtx)
	if err != nil {
		return err
	}

	tasksPendingGauge.Set(float64(counts[store.StatusPending]))
	tasksRunningGauge.Set(float64(counts[store.StatusRunning]))
	tasksDoneGauge.Set(float64(counts[store.StatusDone]))
	tasksFailedGauge.Set(float64(counts[store.StatusFailed]))
	return nil
}

// Serve exposes /metrics on addr in a background goroutine. The server
// is best effort; a bind failure is logged and the run continues.
func Serve(addr string, logger *slog.Logger) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			logWarn(logger, "Metrics listener stopped", err)
		}
	}()
}

func logWarn(logger *slog.Logger, message string, err error) {
	if logger == nil || err == nil {
		return
	}
	logger.Warn(message, "error", err)
}
