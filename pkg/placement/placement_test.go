package placement

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hiveswarm/hive/pkg/errs"
)

func TestSelectFailsOnEmptyCandidates(t *testing.T) {
	e := New()
	_, err := e.Select(nil, DefaultOptions())
	assert.ErrorIs(t, err, errs.ErrNoNodesAvailable)
}

func TestSelectFiltersByThreshold(t *testing.T) {
	e := New()
	candidates := []Candidate{
		{ID: "overloaded", Score: 0.95},
		{ID: "w2", Score: 0.2},
	}
	opts := Options{MaxLoadThreshold: 0.8, Cores: 4}
	for i := 0; i < 50; i++ {
		id, err := e.Select(candidates, opts)
		require.NoError(t, err)
		assert.Equal(t, "w2", id)
	}
}

func TestSelectUniformOverTopK(t *testing.T) {
	e := New()
	candidates := []Candidate{
		{ID: "a", Score: 0.1},
		{ID: "b", Score: 0.2},
		{ID: "c", Score: 0.3},
		{ID: "d", Score: 0.9}, // filtered out
	}
	opts := Options{MaxLoadThreshold: 0.8, Cores: 4} // K = 2
	seen := map[string]int{}
	for i := 0; i < 2000; i++ {
		id, err := e.Select(candidates, opts)
		require.NoError(t, err)
		seen[id]++
	}
	assert.Greater(t, seen["a"], 0)
	assert.Greater(t, seen["b"], 0)
	assert.Zero(t, seen["c"]) // outside top-2
	assert.Zero(t, seen["d"]) // filtered by threshold
}

func TestTopKFloorsAtOne(t *testing.T) {
	assert.Equal(t, 1, topK(1))
	assert.Equal(t, max(1, runtime.NumCPU()/2), topK(0)) // 0 asks the runtime
	assert.Equal(t, 2, topK(4))
}

func TestSelectWeightedFiltersByThreshold(t *testing.T) {
	e := New()
	candidates := []Candidate{
		{ID: "overloaded", Score: 0.95},
		{ID: "w2", Score: 0.1},
	}
	for i := 0; i < 50; i++ {
		id, err := e.SelectWeighted(candidates, DefaultOptions())
		require.NoError(t, err)
		assert.Equal(t, "w2", id)
	}
}
