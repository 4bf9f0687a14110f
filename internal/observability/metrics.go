package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes the worker's Prometheus instruments
type Metrics struct {
	JobsSubmitted  prometheus.Counter
	JobsCompleted  *prometheus.CounterVec
	BusyRejections prometheus.Counter
	JobDuration    prometheus.Histogram
	LockHeld       prometheus.Gauge
}

// NewMetrics registers the worker metrics on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		JobsSubmitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "worker_jobs_submitted_total",
			Help: "Test jobs accepted for execution.",
		}),
		JobsCompleted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Finished test jobs by terminal status.",
		}, []string{"status"}),
		BusyRejections: factory.NewCounter(prometheus.CounterOpts{
			Name: "worker_busy_rejections_total",
			Help: "Submissions rejected because the execution lock was held.",
		}),
		JobDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "worker_job_duration_seconds",
			Help:    "End-to-end duration of test jobs.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),
		LockHeld: factory.NewGauge(prometheus.GaugeOpts{
			Name: "worker_lock_held",
			Help: "Whether the execution lock is currently held.",
		}),
	}
}
