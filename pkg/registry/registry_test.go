package registry

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hiveswarm/hive/pkg/errs"
	"github.com/hiveswarm/hive/pkg/types"
)

func newTestRegistry() *Registry {
	return New(DefaultConfig(), zerolog.Nop())
}

func TestRegisterThenAdmitToActive(t *testing.T) {
	r := newTestRegistry()
	r.Register("w1", 10, []string{"gpu"})

	_, err := r.PopBackup()
	require.NoError(t, err)
	require.NoError(t, r.AdmitActive("w1"))

	active := r.ListActive()
	require.Len(t, active, 1)
	assert.Equal(t, "w1", active[0].ID)
}

func TestReRegistrationPreservesTimestampReplacesCapabilities(t *testing.T) {
	r := newTestRegistry()
	first := r.Register("w1", 10, []string{"gpu"})
	time.Sleep(time.Millisecond)
	second := r.Register("w1", 20, []string{"ffmpeg"})

	assert.Equal(t, first.RegisteredAt, second.RegisteredAt)
	assert.Equal(t, []string{"ffmpeg"}, second.Capabilities)
	assert.Equal(t, uint32(20), second.MaxTasks)

	assert.Len(t, r.ListBackup(), 1) // still exactly one registry entry
}

func TestHeartbeatMarksOverloadedUnhealthy(t *testing.T) {
	r := newTestRegistry()
	r.Register("w1", 10, nil)
	require.NoError(t, r.UpdateHeartbeat("w1", 0.95, 0.1, 10, 0))

	w, ok := r.Get("w1")
	require.True(t, ok)
	assert.Equal(t, types.Unhealthy, w.Health)
	assert.Zero(t, w.MissCount)
}

func TestHeartbeatRecoversToHealthy(t *testing.T) {
	r := newTestRegistry()
	r.Register("w1", 10, nil)
	require.NoError(t, r.UpdateHeartbeat("w1", 0.95, 0.1, 10, 0))
	require.NoError(t, r.UpdateHeartbeat("w1", 0.1, 0.1, 10, 0))

	w, ok := r.Get("w1")
	require.True(t, ok)
	assert.Equal(t, types.Healthy, w.Health)
}

func TestDeadlineTickTripsCircuitBreakerAfterThreeMisses(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MissDeadline = 9 * time.Second
	r := New(cfg, zerolog.Nop())
	r.Register("w1", 10, nil)

	base := time.Now()
	r.ReconcileDeadlines(base.Add(10 * time.Second))
	r.ReconcileDeadlines(base.Add(20 * time.Second))
	r.ReconcileDeadlines(base.Add(30 * time.Second))

	w, ok := r.Get("w1")
	require.True(t, ok)
	assert.Equal(t, types.CircuitBreaker, w.Health)

	_, err := r.PopBackup()
	require.NoError(t, err)
	require.NoError(t, r.AdmitActive("w1"))
	assert.Empty(t, r.Candidates()) // circuit-broken workers are never placement candidates
}

func TestCandidatesExcludesUnhealthyWorkers(t *testing.T) {
	r := newTestRegistry()
	r.Register("w1", 10, nil)
	_, err := r.PopBackup()
	require.NoError(t, err)
	require.NoError(t, r.AdmitActive("w1"))

	require.NoError(t, r.UpdateHeartbeat("w1", 0.95, 0.1, 10, 0))
	w, ok := r.Get("w1")
	require.True(t, ok)
	require.Equal(t, types.Unhealthy, w.Health)

	assert.Empty(t, r.Candidates(), "an overloaded (Unhealthy) worker must not be placement-selectable per S3")
}

func TestUpdateHeartbeatRejectsOutOfRangeLoad(t *testing.T) {
	r := newTestRegistry()
	r.Register("w1", 10, nil)

	err := r.UpdateHeartbeat("w1", 1.2, 0.1, 10, 0)
	assert.ErrorIs(t, err, errs.ErrInvalidLoad)

	err = r.UpdateHeartbeat("w1", 0.1, -0.01, 10, 0)
	assert.ErrorIs(t, err, errs.ErrInvalidLoad)
}

func TestAdmitActiveEnforcesMaxActive(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxActive = 1
	r := New(cfg, zerolog.Nop())
	r.Register("w1", 10, nil)
	r.Register("w2", 10, nil)

	require.NoError(t, r.AdmitActive("w1"))
	err := r.AdmitActive("w2")
	assert.Error(t, err)
}

func TestScaleInReturnsNoNodesAvailableWhenEmpty(t *testing.T) {
	r := newTestRegistry()
	_, err := r.ScaleIn()
	assert.Error(t, err)
}

func TestOptimalWorkerPicksLeastLoaded(t *testing.T) {
	r := newTestRegistry()
	r.Register("busy", 10, nil)
	r.Register("idle", 10, nil)
	require.NoError(t, r.AdmitActive("busy"))
	require.NoError(t, r.AdmitActive("idle"))
	require.NoError(t, r.UpdateHeartbeat("busy", 0.8, 0.8, 100, 8))
	require.NoError(t, r.UpdateHeartbeat("idle", 0.1, 0.1, 10, 0))

	id, ok := r.OptimalWorker()
	require.True(t, ok)
	assert.Equal(t, "idle", id)
}

func TestEvictCircuitBrokenRejectsHealthyWorker(t *testing.T) {
	r := newTestRegistry()
	r.Register("w1", 10, nil)
	err := r.EvictCircuitBroken("w1")
	assert.Error(t, err)
}
