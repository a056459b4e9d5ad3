package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hiveswarm/hive/pkg/placement"
	"github.com/hiveswarm/hive/pkg/types"
	"github.com/hiveswarm/hive/pkg/wire"
)

type fakeRegistry struct {
	candidates []placement.Candidate
}

func (f *fakeRegistry) Candidates() []placement.Candidate { return f.candidates }
func (f *fakeRegistry) Get(id string) (types.Worker, bool) { return types.Worker{ID: id}, true }

type fakePlacer struct {
	pick string
	err  error
}

func (f *fakePlacer) Select(candidates []placement.Candidate, opts placement.Options) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.pick, nil
}

type fakeRouter struct {
	mu  sync.Mutex
	out [][]byte
}

func (f *fakeRouter) Send(identity string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.out = append(f.out, payload)
	return nil
}

func newTestEngine(t *testing.T, cfg Config, pick string) (*Engine, *fakeRouter) {
	t.Helper()
	reg := &fakeRegistry{candidates: []placement.Candidate{{ID: pick, Score: 0.1}}}
	rtr := &fakeRouter{}
	placer := &fakePlacer{pick: pick}
	e := New(cfg, reg, rtr, placer, placement.DefaultOptions(), zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	e.Start(ctx)
	return e, rtr
}

func TestSubmitDispatchesAndAwaitsResponse(t *testing.T) {
	cfg := DefaultConfig()
	e, rtr := newTestEngine(t, cfg, "worker-a")

	resultCh, err := e.Submit(context.Background(), types.Task{ID: "task-1", Payload: []byte("x")})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		rtr.mu.Lock()
		defer rtr.mu.Unlock()
		return len(rtr.out) == 1
	}, time.Second, time.Millisecond)

	e.HandleResponse(wire.ResponseMsg{WorkerID: "worker-a", Output: []byte("done")})

	select {
	case res := <-resultCh:
		assert.NoError(t, res.Err)
		assert.Equal(t, []byte("done"), res.Output)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for result")
	}
}

func TestSubmitFailFastWhenQueueFull(t *testing.T) {
	cfg := DefaultConfig()
	cfg.QueueCapacity = 1
	cfg.Dispatchers = 0 // nothing drains the queue
	e, _ := newTestEngine(t, cfg, "worker-a")

	_, err := e.Submit(context.Background(), types.Task{ID: "t1"})
	require.NoError(t, err)
	_, err = e.Submit(context.Background(), types.Task{ID: "t2"})
	assert.Error(t, err)
}

func TestHandleResponseWithErrorResolvesErr(t *testing.T) {
	cfg := DefaultConfig()
	e, rtr := newTestEngine(t, cfg, "worker-a")

	resultCh, err := e.Submit(context.Background(), types.Task{ID: "task-err"})
	require.NoError(t, err)

	// Wait for the dispatch so the task has a target worker to match on.
	require.Eventually(t, func() bool {
		rtr.mu.Lock()
		defer rtr.mu.Unlock()
		return len(rtr.out) == 1
	}, time.Second, time.Millisecond)

	e.HandleResponse(wire.ResponseMsg{WorkerID: "worker-a", Err: "boom"})

	select {
	case res := <-resultCh:
		assert.Error(t, res.Err)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for result")
	}
}

func TestShutdownAbortsOutstandingTasks(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GraceOnShutdown = 20 * time.Millisecond
	e, _ := newTestEngine(t, cfg, "worker-a")

	resultCh, err := e.Submit(context.Background(), types.Task{ID: "task-abort"})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return e.outstandingCount() > 0 }, time.Second, time.Millisecond)

	abortErr := e.Shutdown(context.Background())
	assert.Error(t, abortErr)

	select {
	case res := <-resultCh:
		assert.Error(t, res.Err)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for abort result")
	}
}
