// Package placement implements the Zerg Rush placement engine: given a
// set of candidate workers and their current load scores, pick one
// worker id for task dispatch.
package placement

import (
	"math/rand"
	"runtime"
	"sort"
	"time"

	"github.com/hiveswarm/hive/pkg/errs"
)

// Candidate is one worker's current load score as seen by the registry.
// Lower Score is better.
type Candidate struct {
	ID    string
	Score float64
}

// Options configures a single Select call.
type Options struct {
	// MaxLoadThreshold filters out any candidate whose score exceeds it.
	MaxLoadThreshold float64
	// Cores overrides runtime.NumCPU() for deterministic tests; 0 means
	// "ask the runtime".
	Cores int
}

// DefaultOptions returns the spec's documented defaults.
func DefaultOptions() Options {
	return Options{MaxLoadThreshold: 0.8}
}

// Engine runs the Zerg Rush algorithm with its own process-local PRNG, so
// callers don't share rand state across concurrent placement queries.
type Engine struct {
	rng *rand.Rand
}

// New constructs a placement Engine seeded from the current time.
func New() *Engine {
	return &Engine{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func topK(cores int) int {
	if cores <= 0 {
		cores = runtime.NumCPU()
	}
	k := cores / 2
	if k < 1 {
		k = 1
	}
	return k
}

// Select filters candidates by load threshold, sorts ascending by score
// (stable, so ties keep registry insertion order), truncates to the
// top-K, and uniformly picks one. Fails with errs.ErrNoNodesAvailable when
// filtering leaves nothing.
func (e *Engine) Select(candidates []Candidate, opts Options) (string, error) {
	filtered := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Score <= opts.MaxLoadThreshold {
			filtered = append(filtered, c)
		}
	}
	if len(filtered) == 0 {
		return "", errs.ErrNoNodesAvailable
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].Score < filtered[j].Score
	})

	k := topK(opts.Cores)
	if k > len(filtered) {
		k = len(filtered)
	}
	top := filtered[:k]

	return top[e.rng.Intn(len(top))].ID, nil
}

// SelectWeighted is a second placement strategy, recovered from the
// original zerg_pool balancer alongside Zerg Rush: rather than a hard
// top-K cutoff, each post-filter candidate survives into the draw pool
// with probability proportional to (1 − score), then one survivor is
// picked uniformly. It is a separate method: the task engine calls Select,
// and no configuration switches it to SelectWeighted.
func (e *Engine) SelectWeighted(candidates []Candidate, opts Options) (string, error) {
	filtered := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Score <= opts.MaxLoadThreshold {
			filtered = append(filtered, c)
		}
	}
	if len(filtered) == 0 {
		return "", errs.ErrNoNodesAvailable
	}

	var survivors []Candidate
	for _, c := range filtered {
		weight := 1 - c.Score
		if weight < 0 {
			weight = 0
		}
		if e.rng.Float64() < weight {
			survivors = append(survivors, c)
		}
	}
	if len(survivors) == 0 {
		// Every draw failed its weighted coin flip; fall back to the
		// single best-scoring candidate rather than failing placement.
		sort.SliceStable(filtered, func(i, j int) bool {
			return filtered[i].Score < filtered[j].Score
		})
		return filtered[0].ID, nil
	}

	return survivors[e.rng.Intn(len(survivors))].ID, nil
}
