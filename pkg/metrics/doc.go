/*
Package metrics provides Prometheus metrics collection and exposition for
the Hive coordinator.

# Series

	hive_workers_total{health}             gauge, population by health state
	hive_active_pool_size                  gauge
	hive_backup_pool_size                  gauge
	hive_placement_duration_seconds        histogram
	hive_placement_failures_total          counter
	hive_dispatch_latency_seconds          histogram
	hive_dispatch_slow_total               counter
	hive_scale_out_total                   counter
	hive_scale_in_total                    counter
	hive_circuit_breaker_trips_total       counter
	hive_queue_depth                       gauge

# Usage

	http.Handle("/metrics", metrics.Handler())

	timer := metrics.NewTimer()
	// ... run placement ...
	timer.ObserveDuration(metrics.PlacementDuration)

Collector polls a registry.Registry on a fixed tick and keeps the pool-size
gauges current; health.go exposes /health, /ready and /live endpoints in
the same shape the rest of the corpus uses for process liveness checks.
*/
package metrics
