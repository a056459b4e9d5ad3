// Package metrics exposes Hive's Prometheus series: worker population,
// pool sizes, placement/dispatch latency, and scale events.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	WorkersTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hive_workers_total",
			Help: "Total number of registered workers by health state",
		},
		[]string{"health"},
	)

	ActivePoolSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hive_active_pool_size",
			Help: "Current size of the active worker pool",
		},
	)

	BackupPoolSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hive_backup_pool_size",
			Help: "Current size of the backup worker pool",
		},
	)

	PlacementDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hive_placement_duration_seconds",
			Help:    "Time taken to select a worker for a task",
			Buckets: prometheus.DefBuckets,
		},
	)

	PlacementFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hive_placement_failures_total",
			Help: "Total number of tasks rejected because placement found no eligible worker or the ingress queue was full",
		},
	)

	DispatchLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hive_dispatch_latency_seconds",
			Help:    "End-to-end task dispatch latency",
			Buckets: prometheus.DefBuckets,
		},
	)

	DispatchSlowTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hive_dispatch_slow_total",
			Help: "Total number of dispatches exceeding the dispatch-slow threshold",
		},
	)

	ScaleOutTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hive_scale_out_total",
			Help: "Total number of completed scale-out migrations",
		},
	)

	ScaleInTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hive_scale_in_total",
			Help: "Total number of scale-in operations",
		},
	)

	CircuitBreakerTripsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hive_circuit_breaker_trips_total",
			Help: "Total number of workers that tripped their circuit breaker",
		},
	)

	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hive_queue_depth",
			Help: "Current depth of the task engine's ingress queue",
		},
	)
)

func init() {
	prometheus.MustRegister(
		WorkersTotal,
		ActivePoolSize,
		BackupPoolSize,
		PlacementDuration,
		PlacementFailuresTotal,
		DispatchLatency,
		DispatchSlowTotal,
		ScaleOutTotal,
		ScaleInTotal,
		CircuitBreakerTripsTotal,
		QueueDepth,
	)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
