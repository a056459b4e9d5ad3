// Package engine implements the task dispatch engine: a bounded queue
// feeding a fixed pool of dispatcher goroutines, each placing, encoding,
// and routing one task at a time and tracking it until a Response frame
// resolves it or shutdown aborts it.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"

	"github.com/hiveswarm/hive/pkg/errs"
	"github.com/hiveswarm/hive/pkg/metrics"
	"github.com/hiveswarm/hive/pkg/placement"
	"github.com/hiveswarm/hive/pkg/types"
	"github.com/hiveswarm/hive/pkg/wire"
)

// Config tunes queue capacity, dispatcher count and slow-dispatch logging.
type Config struct {
	QueueCapacity   int
	Dispatchers     int
	BackPressure    bool // true: Submit blocks on ctx when full; false: fail-fast
	SlowDispatch    time.Duration
	GraceOnShutdown time.Duration
}

// DefaultConfig mirrors the source defaults: 1024-deep queue, 8
// dispatchers, fail-fast admission, 50ms slow-dispatch threshold, 5s
// shutdown grace.
func DefaultConfig() Config {
	return Config{
		QueueCapacity:   1024,
		Dispatchers:     8,
		BackPressure:    false,
		SlowDispatch:    50 * time.Millisecond,
		GraceOnShutdown: 5 * time.Second,
	}
}

// Placer selects a worker for a task; satisfied by *placement.Engine.
type Placer interface {
	Select(candidates []placement.Candidate, opts placement.Options) (string, error)
}

// Registry is the minimal view of pkg/registry.Registry the engine needs.
type Registry interface {
	Candidates() []placement.Candidate
	Get(id string) (types.Worker, bool)
}

// Router is the minimal view of pkg/router.Endpoint the engine needs.
type Router interface {
	Send(identity string, payload []byte) error
}

type outstanding struct {
	task       types.Task
	targetID   string
	dispatchTS time.Time
	resultCh   chan Result
}

// Result is delivered to the Submit caller once a Response frame resolves
// the task, or once shutdown aborts it.
type Result struct {
	WorkerID string
	Output   []byte
	Err      error
}

// Engine owns the queue, dispatcher pool and outstanding-task table.
type Engine struct {
	cfg      Config
	log      zerolog.Logger
	reg      Registry
	router   Router
	placer   Placer
	placeOpt placement.Options

	queue  chan types.Task
	pool   *pool.Pool
	cancel context.CancelFunc

	shards []shard
}

type shard struct {
	mu      sync.Mutex
	pending map[string]*outstanding
}

// New constructs an Engine. Start must be called before Submit.
func New(cfg Config, reg Registry, rtr Router, placer Placer, placeOpt placement.Options, logger zerolog.Logger) *Engine {
	// At least one shard, so an engine configured with zero dispatchers can
	// still track submissions.
	nShards := cfg.Dispatchers
	if nShards < 1 {
		nShards = 1
	}
	shards := make([]shard, nShards)
	for i := range shards {
		shards[i].pending = make(map[string]*outstanding)
	}
	return &Engine{
		cfg:      cfg,
		log:      logger,
		reg:      reg,
		router:   rtr,
		placer:   placer,
		placeOpt: placeOpt,
		queue:    make(chan types.Task, cfg.QueueCapacity),
		shards:   shards,
	}
}

// Start launches the dispatcher pool.
func (e *Engine) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	if e.cfg.Dispatchers < 1 {
		return // no dispatchers: submitted tasks stay queued
	}
	e.pool = pool.New().WithMaxGoroutines(e.cfg.Dispatchers)
	for i := 0; i < e.cfg.Dispatchers; i++ {
		e.pool.Go(func() { e.dispatchLoop(ctx) })
	}
}

// Submit enqueues a task and returns a channel that receives its Result.
// In fail-fast mode (the default) a full queue returns errs.ErrPoolFull
// immediately; in back-pressure mode it blocks until room frees or ctx is
// cancelled.
func (e *Engine) Submit(ctx context.Context, task types.Task) (chan Result, error) {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if task.Timestamp.IsZero() {
		task.Timestamp = time.Now()
	}
	resultCh := make(chan Result, 1)

	// Track before enqueueing: once the task is on the queue a dispatcher
	// may dequeue it immediately, and it must find its outstanding entry.
	e.trackSubmission(task, resultCh)

	if e.cfg.BackPressure {
		select {
		case e.queue <- task:
		case <-ctx.Done():
			e.untrack(task.ID)
			return nil, ctx.Err()
		}
	} else {
		select {
		case e.queue <- task:
		default:
			e.untrack(task.ID)
			metrics.PlacementFailuresTotal.Inc()
			return nil, errs.ErrPoolFull
		}
	}
	metrics.QueueDepth.Set(float64(len(e.queue)))

	return resultCh, nil
}

// trackSubmission stashes the result channel keyed by task ID so the
// dispatcher that eventually pulls this task can find it; the dispatcher
// records dispatch state once it dequeues and places the task.
func (e *Engine) trackSubmission(task types.Task, resultCh chan Result) {
	shardIdx := e.shardFor(task.ID)
	e.shards[shardIdx].mu.Lock()
	e.shards[shardIdx].pending[task.ID] = &outstanding{task: task, resultCh: resultCh}
	e.shards[shardIdx].mu.Unlock()
}

func (e *Engine) untrack(taskID string) {
	shardIdx := e.shardFor(taskID)
	e.shards[shardIdx].mu.Lock()
	delete(e.shards[shardIdx].pending, taskID)
	e.shards[shardIdx].mu.Unlock()
}

func (e *Engine) shardFor(taskID string) int {
	if len(e.shards) == 0 {
		return 0
	}
	var h uint32
	for i := 0; i < len(taskID); i++ {
		h = h*31 + uint32(taskID[i])
	}
	return int(h % uint32(len(e.shards)))
}

// dispatchLoop runs on each of the N dispatcher goroutines, all pulling
// from the single shared queue; a task's outstanding-table shard is
// chosen by hashing its ID rather than by which dispatcher happened to
// dequeue it, so any dispatcher can resolve any task.
func (e *Engine) dispatchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-e.queue:
			e.dispatchOne(task)
		}
	}
}

func (e *Engine) dispatchOne(task types.Task) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.DispatchLatency)

	shardIdx := e.shardFor(task.ID)
	sh := &e.shards[shardIdx]
	sh.mu.Lock()
	ost, ok := sh.pending[task.ID]
	sh.mu.Unlock()
	if !ok {
		e.log.Error().Str("task_id", task.ID).Msg("dispatcher lost track of submitted task")
		return
	}

	queuedFor := time.Since(task.Timestamp)
	if queuedFor > e.cfg.SlowDispatch {
		metrics.DispatchSlowTotal.Inc()
		e.log.Warn().Str("task_id", task.ID).Dur("queued_for", queuedFor).Msg("dispatch-slow: task waited past threshold before dispatch")
	}

	placeTimer := metrics.NewTimer()
	targetID, err := e.placer.Select(e.reg.Candidates(), e.placeOpt)
	placeTimer.ObserveDuration(metrics.PlacementDuration)
	if err != nil {
		metrics.PlacementFailuresTotal.Inc()
		e.resolve(shardIdx, task.ID, Result{Err: err})
		return
	}

	payload, err := wire.Encode(wire.TaskMsg{
		ID:        task.ID,
		Payload:   task.Payload,
		Timestamp: task.Timestamp,
		Metadata:  task.Metadata,
		Priority:  task.Priority,
	})
	if err != nil {
		e.resolve(shardIdx, task.ID, Result{Err: fmt.Errorf("engine: encode task %s: %w", task.ID, err)})
		return
	}

	sh.mu.Lock()
	ost.targetID = targetID
	ost.dispatchTS = time.Now()
	sh.mu.Unlock()

	if err := e.router.Send(targetID, payload); err != nil {
		e.resolve(shardIdx, task.ID, Result{WorkerID: targetID, Err: fmt.Errorf("engine: send task %s to %s: %w", task.ID, targetID, err)})
	}
}

// HandleResponse is invoked by the caller's router-poll loop when a
// Response frame arrives. The wire contract carries only the worker id,
// not a task id (§4.1's Response schema), so the oldest still-outstanding
// task dispatched to that worker is the one resolved — correct as long as
// a worker's responses complete in dispatch order, which holds for the
// common case of MaxTasks==1 and is the documented simplification for
// MaxTasks>1 until the wire contract grows a task-id echo.
func (e *Engine) HandleResponse(resp wire.ResponseMsg) {
	taskID, ok := e.oldestOutstandingFor(resp.WorkerID)
	if !ok {
		e.log.Warn().Str("worker_id", resp.WorkerID).Msg("response with no matching outstanding task")
		return
	}

	var result Result
	if resp.Err != "" {
		result = Result{WorkerID: resp.WorkerID, Err: fmt.Errorf("engine: task %s failed: %s", taskID, resp.Err)}
	} else {
		result = Result{WorkerID: resp.WorkerID, Output: resp.Output}
	}
	e.resolve(e.shardFor(taskID), taskID, result)
}

func (e *Engine) oldestOutstandingFor(workerID string) (string, bool) {
	var bestID string
	var bestTS time.Time
	found := false
	for i := range e.shards {
		sh := &e.shards[i]
		sh.mu.Lock()
		for id, ost := range sh.pending {
			if ost.targetID != workerID {
				continue
			}
			if !found || ost.dispatchTS.Before(bestTS) {
				bestID, bestTS, found = id, ost.dispatchTS, true
			}
		}
		sh.mu.Unlock()
	}
	return bestID, found
}

func (e *Engine) resolve(shardIdx int, taskID string, result Result) {
	sh := &e.shards[shardIdx]
	sh.mu.Lock()
	ost, ok := sh.pending[taskID]
	if ok {
		delete(sh.pending, taskID)
	}
	sh.mu.Unlock()
	if !ok {
		return
	}
	ost.resultCh <- result
	close(ost.resultCh)
}

// Shutdown stops intake, waits up to GraceOnShutdown for outstanding tasks
// to resolve, then aborts whatever remains and returns the aggregated
// abort causes.
func (e *Engine) Shutdown(ctx context.Context) error {
	if e.cancel != nil {
		e.cancel()
	}
	deadline := time.Now().Add(e.cfg.GraceOnShutdown)
	for time.Now().Before(deadline) && e.outstandingCount() > 0 {
		time.Sleep(10 * time.Millisecond)
	}

	var result *multierror.Error
	for i := range e.shards {
		sh := &e.shards[i]
		sh.mu.Lock()
		for id, ost := range sh.pending {
			abortErr := fmt.Errorf("engine: task %s aborted at shutdown: %w", id, errs.ErrShutdown)
			result = multierror.Append(result, abortErr)
			ost.resultCh <- Result{Err: abortErr}
			close(ost.resultCh)
			delete(sh.pending, id)
		}
		sh.mu.Unlock()
	}
	if e.pool != nil {
		e.pool.Wait()
	}
	return result.ErrorOrNil()
}

func (e *Engine) outstandingCount() int {
	n := 0
	for i := range e.shards {
		e.shards[i].mu.Lock()
		n += len(e.shards[i].pending)
		e.shards[i].mu.Unlock()
	}
	return n
}
