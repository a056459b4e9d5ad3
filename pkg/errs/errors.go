// Package errs defines the sentinel error taxonomy surfaced at the
// Hive/Drone system boundary, so callers can distinguish failure classes
// with errors.Is instead of matching message strings.
package errs

import "errors"

var (
	// ErrNoNodesAvailable is returned by the placement engine when no
	// worker passes the load-threshold filter.
	ErrNoNodesAvailable = errors.New("placement: no nodes available")

	// ErrNoBackupNodes is returned by scale-out when the backup pool is empty.
	ErrNoBackupNodes = errors.New("scaler: no backup nodes")

	// ErrMigrationTimeout is returned when a graduated scale-out migration
	// is cancelled before completing its warm-up ramp.
	ErrMigrationTimeout = errors.New("scaler: migration timeout")

	// ErrInvalidLoad is returned when telemetry falls outside its valid range.
	ErrInvalidLoad = errors.New("weight: invalid load value")

	// ErrDecode is returned by the wire codec when no schema matches a frame.
	ErrDecode = errors.New("wire: decode error")

	// ErrEncode is returned by the wire codec when a field is too large to encode.
	ErrEncode = errors.New("wire: encode error")

	// ErrPoolFull is returned by the task engine in fail-fast mode when the
	// ingress queue is at capacity.
	ErrPoolFull = errors.New("engine: pool full")

	// ErrHeartbeatTimeout is returned by the Drone's heartbeat agent after
	// MAX_MISS consecutive unacknowledged heartbeats.
	ErrHeartbeatTimeout = errors.New("drone: heartbeat timeout")

	// ErrCircuitBreakerTripped names the failure of a worker that tripped
	// its circuit breaker. No code in this module returns it: a task
	// outstanding on such a worker stays pending until a response arrives
	// or engine shutdown aborts it.
	ErrCircuitBreakerTripped = errors.New("registry: circuit breaker tripped")

	// ErrShutdown is returned to submitters whose tasks were aborted by a
	// graceful engine shutdown rather than completed.
	ErrShutdown = errors.New("engine: shutdown")
)
