package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all dispatch pipeline metrics
type Metrics struct {
	JobsEnqueued    *prometheus.CounterVec
	JobsSent        *prometheus.CounterVec
	JobsFailed      *prometheus.CounterVec
	JobsCancelled   prometheus.Counter
	RetriesTotal    *prometheus.CounterVec
	StaleReclaimed  prometheus.Counter
	ClaimBatchSize  prometheus.Histogram
	SendDuration    *prometheus.HistogramVec
	DeliveryEvents  *prometheus.CounterVec
	WorkersInFlight prometheus.Gauge
}

// New creates and registers all dispatch metrics under a namespace.
func New(namespace string) *Metrics {
	return &Metrics{
		JobsEnqueued: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_enqueued_total",
			Help:      "Total number of notification jobs enqueued",
		}, []string{"channel"}),
		JobsSent: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_sent_total",
			Help:      "Total number of jobs sent successfully",
		}, []string{"channel"}),
		JobsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_failed_total",
			Help:      "Total number of jobs that exhausted retries or failed permanently",
		}, []string{"channel", "reason"}),
		JobsCancelled: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_cancelled_total",
			Help:      "Total number of jobs cancelled while pending",
		}),
		RetriesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retry_attempts_total",
			Help:      "Total number of send retries scheduled",
		}, []string{"channel"}),
		StaleReclaimed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_claims_reclaimed_total",
			Help:      "Total number of stale processing claims returned to pending",
		}),
		ClaimBatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "claim_batch_size",
			Help:      "Number of jobs claimed per dispatcher poll",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100},
		}),
		SendDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "send_duration_seconds",
			Help:      "Duration of provider send calls",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"channel"}),
		DeliveryEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_events_total",
			Help:      "Total number of delivery webhook events applied",
		}, []string{"status"}),
		WorkersInFlight: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workers_in_flight",
			Help:      "Dispatcher workers currently processing a job",
		}),
	}
}
