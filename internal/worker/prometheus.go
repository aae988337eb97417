package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tasksClaimed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sweepq_tasks_claimed_total",
		Help: "Total number of tasks claimed by this process",
	})

	tasksCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sweepq_tasks_completed_total",
		Help: "Total number of tasks finished, by final status",
	}, []string{"status"})

	claimDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sweepq_claim_duration_seconds",
		Help:    "Time taken to claim a task from the store",
		Buckets: prometheus.DefBuckets,
	})

	execDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sweepq_exec_duration_seconds",
		Help:    "Time taken to execute a task function",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
	})
)
