// Package registry holds the live map of Drone workers the Hive
// coordinator knows about: their capabilities, telemetry, health state,
// and membership in the active or backup pool.
//
// A single mutex protects the map; read operations take the lock briefly
// and copy out the data they need, write operations are serialized — the
// pattern is the same bounded-critical-section discipline the teacher's
// scheduler uses around its own node/service maps.
package registry

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hiveswarm/hive/pkg/errs"
	"github.com/hiveswarm/hive/pkg/metrics"
	"github.com/hiveswarm/hive/pkg/placement"
	"github.com/hiveswarm/hive/pkg/types"
	"github.com/hiveswarm/hive/pkg/weight"
)

// Config bounds the registry's behavior. Callers (pkg/config) translate
// viper-sourced settings into this struct when constructing a Registry.
type Config struct {
	MaxActive    int
	MissDeadline time.Duration
	MaxMisses    int
	EMAAlpha     float64
	LockTimeout  time.Duration
}

// DefaultConfig returns the spec's documented defaults.
func DefaultConfig() Config {
	return Config{
		MaxActive:    10,
		MissDeadline: 9 * time.Second,
		MaxMisses:    3,
		EMAAlpha:     0.5,
		LockTimeout:  100 * time.Millisecond,
	}
}

type record struct {
	worker    types.Worker
	calc      *weight.Calculator
	lastScore float64
}

// Registry is the single shared mutable structure in the coordinator.
type Registry struct {
	cfg    Config
	log    zerolog.Logger
	mu     sync.Mutex
	byID   map[string]*record
	active []string
	backup []string
}

// New constructs an empty Registry.
func New(cfg Config, logger zerolog.Logger) *Registry {
	return &Registry{
		cfg:  cfg,
		log:  logger,
		byID: make(map[string]*record),
	}
}

// Register admits a worker record, directly to backup. Registering the
// same id twice replaces its capabilities and metrics but preserves the
// original registration timestamp (testable property 7).
func (r *Registry) Register(id string, maxTasks uint32, capabilities []string) types.Worker {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if rec, exists := r.byID[id]; exists {
		if !sameCapabilities(rec.worker.Capabilities, capabilities) {
			r.log.Warn().Str("worker_id", id).
				Strs("old_capabilities", rec.worker.Capabilities).
				Strs("new_capabilities", capabilities).
				Msg("capability drift on re-registration")
		}
		rec.worker.Capabilities = capabilities
		rec.worker.MaxTasks = maxTasks
		rec.worker.Health = types.Healthy
		rec.worker.MissCount = 0
		rec.worker.LastBeat = now
		return rec.worker
	}

	rec := &record{
		worker: types.Worker{
			ID:           id,
			Capabilities: capabilities,
			MaxTasks:     maxTasks,
			Health:       types.Healthy,
			RegisteredAt: now,
			LastBeat:     now,
		},
		calc: weight.NewCalculator(r.cfg.EMAAlpha),
	}
	r.byID[id] = rec
	r.backup = append(r.backup, id)
	return rec.worker
}

// Deregister removes a worker entirely, from whichever pool holds it.
func (r *Registry) Deregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, id)
	r.active = removeID(r.active, id)
	r.backup = removeID(r.backup, id)
}

// EvictCircuitBroken force-removes a worker that has tripped its circuit
// breaker, distinct from a cooperative Deregister.
func (r *Registry) EvictCircuitBroken(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byID[id]
	if !ok {
		return fmt.Errorf("registry: unknown worker %q", id)
	}
	if rec.worker.Health != types.CircuitBreaker {
		return fmt.Errorf("registry: worker %q is not circuit-broken", id)
	}
	delete(r.byID, id)
	r.active = removeID(r.active, id)
	r.backup = removeID(r.backup, id)
	return nil
}

// UpdateHeartbeat applies a received heartbeat's telemetry: resets the
// miss counter, feeds the weight calculator, and transitions health per
// §4.4 (Unhealthy iff overloaded). Rejects cpu/mem readings outside
// [0, 1] with errs.ErrInvalidLoad rather than feeding the EMA garbage.
func (r *Registry) UpdateHeartbeat(id string, cpu, mem float32, latencyMs, currentTasks uint32) error {
	if cpu < 0 || cpu > 1 || mem < 0 || mem > 1 {
		return fmt.Errorf("registry: worker %q reported cpu=%.3f mem=%.3f: %w", id, cpu, mem, errs.ErrInvalidLoad)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byID[id]
	if !ok {
		return fmt.Errorf("registry: unknown worker %q", id)
	}
	rec.worker.CPUUsage = cpu
	rec.worker.MemUsage = mem
	rec.worker.LatencyMs = latencyMs
	rec.worker.CurrentTasks = currentTasks
	rec.worker.MissCount = 0
	rec.worker.LastBeat = time.Now()

	if rec.worker.Health != types.CircuitBreaker {
		if rec.worker.Overloaded() {
			rec.worker.Health = types.Unhealthy
		} else {
			rec.worker.Health = types.Healthy
		}
	}

	rec.lastScore = rec.calc.Observe(float64(cpu), float64(mem), float64(latencyMs))
	return nil
}

// ReconcileDeadlines runs the deadline-tick half of the health state
// machine against every registered worker, driven by a ~1s ticker.
func (r *Registry) ReconcileDeadlines(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.byID {
		if rec.worker.Health == types.CircuitBreaker {
			continue // absorbing
		}
		if now.Sub(rec.worker.LastBeat) <= r.cfg.MissDeadline {
			continue
		}
		rec.worker.MissCount++
		if rec.worker.MissCount >= r.cfg.MaxMisses {
			rec.worker.Health = types.CircuitBreaker
			metrics.CircuitBreakerTripsTotal.Inc()
			r.log.Warn().Str("worker_id", rec.worker.ID).Msg("worker tripped circuit breaker")
		} else {
			rec.worker.Health = types.Unhealthy
		}
	}
}

// Get returns a copy of one worker's record.
func (r *Registry) Get(id string) (types.Worker, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byID[id]
	if !ok {
		return types.Worker{}, false
	}
	return rec.worker, true
}

// ListActive returns copies of all workers currently in the active pool.
func (r *Registry) ListActive() []types.Worker {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.Worker, 0, len(r.active))
	for _, id := range r.active {
		out = append(out, r.byID[id].worker)
	}
	return out
}

// ListBackup returns copies of all workers currently held in reserve.
func (r *Registry) ListBackup() []types.Worker {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.Worker, 0, len(r.backup))
	for _, id := range r.backup {
		out = append(out, r.byID[id].worker)
	}
	return out
}

// ListUnhealthy returns copies of every worker currently Unhealthy or
// CircuitBreaker.
func (r *Registry) ListUnhealthy() []types.Worker {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []types.Worker
	for _, rec := range r.byID {
		if rec.worker.Health != types.Healthy {
			out = append(out, rec.worker)
		}
	}
	return out
}

// Candidates returns placement candidates drawn from the active pool,
// restricted to Healthy workers per §4.6 ("the current set of healthy
// workers") — Unhealthy and CircuitBreaker workers are both excluded,
// matching the filter OptimalWorker already applies.
func (r *Registry) Candidates() []placement.Candidate {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]placement.Candidate, 0, len(r.active))
	for _, id := range r.active {
		rec := r.byID[id]
		if rec.worker.Health != types.Healthy {
			continue
		}
		out = append(out, placement.Candidate{ID: id, Score: rec.lastScore})
	}
	return out
}

// OptimalWorker returns the least-loaded healthy active worker by the
// unsmoothed instantaneous scorer, honoring the registry-mutex dispatch
// timeout of §5: if the lock can't be acquired within cfg.LockTimeout the
// query is dropped rather than blocking the caller.
func (r *Registry) OptimalWorker() (string, bool) {
	done := make(chan struct{})
	var id string
	var found bool
	go func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		defer close(done)
		best := -1.0
		for _, workerID := range r.active {
			rec := r.byID[workerID]
			if rec.worker.Health != types.Healthy {
				continue
			}
			score := weight.Instantaneous(
				float64(rec.worker.CPUUsage), float64(rec.worker.MemUsage),
				float64(rec.worker.LatencyMs), rec.worker.CurrentTasks, rec.worker.MaxTasks,
			)
			if !found || score < best {
				best = score
				id = workerID
				found = true
			}
		}
	}()
	select {
	case <-done:
		return id, found
	case <-time.After(r.cfg.LockTimeout):
		return "", false
	}
}

// PopBackup removes and returns one backup worker id for scale-out, or
// errs.ErrNoBackupNodes if the backup pool is empty.
func (r *Registry) PopBackup() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.backup) == 0 {
		return "", errs.ErrNoBackupNodes
	}
	id := r.backup[0]
	r.backup = r.backup[1:]
	return id, nil
}

// AdmitActive moves a worker into the active pool, enforcing MAX_ACTIVE.
func (r *Registry) AdmitActive(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.active) >= r.cfg.MaxActive {
		return fmt.Errorf("registry: active pool at capacity (%d)", r.cfg.MaxActive)
	}
	r.active = append(r.active, id)
	return nil
}

// ScaleIn removes the most recently admitted active worker and returns it
// to the backup pool, or errs.ErrNoNodesAvailable if active is empty.
func (r *Registry) ScaleIn() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.active) == 0 {
		return "", errs.ErrNoNodesAvailable
	}
	id := r.active[len(r.active)-1]
	r.active = r.active[:len(r.active)-1]
	r.backup = append(r.backup, id)
	return id, nil
}

func removeID(ids []string, target string) []string {
	out := ids[:0]
	for _, id := range ids {
		if id != target {
			out = append(out, id)
		}
	}
	return out
}

func sameCapabilities(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	sa, sb := append([]string(nil), a...), append([]string(nil), b...)
	sort.Strings(sa)
	sort.Strings(sb)
	for i := range sa {
		if sa[i] != sb[i] {
			return false
		}
	}
	return true
}
