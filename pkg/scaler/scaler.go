// Package scaler implements the elastic scaler: scale-out with a
// graduated weight warm-up, and scale-in back to the backup pool.
// Scaling is manually triggered by control logic — the scaler has no
// policy of its own for when to invoke either operation.
package scaler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/hiveswarm/hive/pkg/errs"
	"github.com/hiveswarm/hive/pkg/metrics"
)

const warmupSteps = 10

// Registry is the minimal view of pkg/registry.Registry the scaler needs.
type Registry interface {
	PopBackup() (string, error)
	AdmitActive(id string) error
	ScaleIn() (string, error)
}

// Scaler drives scale-out/scale-in against a Registry.
type Scaler struct {
	reg    Registry
	log    zerolog.Logger
	warmup time.Duration
}

// New constructs a Scaler with the given warm-up duration D (default 5s).
func New(reg Registry, warmup time.Duration, logger zerolog.Logger) *Scaler {
	return &Scaler{reg: reg, warmup: warmup, log: logger}
}

// ScaleOut pops one backup worker and performs the ten-step linear weight
// ramp before admitting it to the active pool. Cooperatively cancellable
// via ctx; cancellation mid-ramp leaves the worker out of both pools,
// mirroring the source's unresolved migration state rather than
// pretending the operation completed.
func (s *Scaler) ScaleOut(ctx context.Context) (string, error) {
	id, err := s.reg.PopBackup()
	if err != nil {
		return "", err
	}

	// D/10 as integer division would floor to 0 for D < 10 units and spin
	// the loop; floor the per-step sleep at 1ms instead (open question (a)).
	step := s.warmup / warmupSteps
	if step <= 0 {
		step = time.Millisecond
	}

	for i := 1; i <= warmupSteps; i++ {
		effectiveWeight := float64(i) / warmupSteps
		select {
		case <-ctx.Done():
			s.log.Warn().Str("worker_id", id).Int("step", i).Msg("scale-out migration cancelled")
			return "", fmt.Errorf("scaler: migration for %s cancelled at step %d/%d: %w: %w", id, i, warmupSteps, ctx.Err(), errs.ErrMigrationTimeout)
		case <-time.After(step):
		}
		s.log.Debug().Str("worker_id", id).Float64("effective_weight", effectiveWeight).Msg("scale-out ramp step")
	}

	if err := s.reg.AdmitActive(id); err != nil {
		return "", err
	}
	metrics.ScaleOutTotal.Inc()
	s.log.Info().Str("worker_id", id).Msg("worker admitted to active pool")
	return id, nil
}

// ScaleIn removes the most recently admitted active worker and returns it
// to backup.
func (s *Scaler) ScaleIn() (string, error) {
	id, err := s.reg.ScaleIn()
	if err != nil {
		return "", err
	}
	metrics.ScaleInTotal.Inc()
	s.log.Info().Str("worker_id", id).Msg("worker returned to backup pool")
	return id, nil
}
