// Package drone implements the worker-side agent: it dials the
// coordinator, registers, runs a jittered heartbeat loop reporting local
// load, and accepts dispatched tasks for execution.
package drone

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hiveswarm/hive/pkg/errs"
	"github.com/hiveswarm/hive/pkg/router"
	"github.com/hiveswarm/hive/pkg/types"
	"github.com/hiveswarm/hive/pkg/wire"
)

// Config tunes one Drone's identity, heartbeat cadence and dial behaviour.
type Config struct {
	HiveAddr          string
	WorkerID          string
	MaxTasks          uint32
	Capabilities      []string
	HeartbeatInterval time.Duration // T_hb, default 3s
	Jitter            float64       // default 0.05 (±5%)
	MissTimeout       time.Duration // T_miss, default 9s
	MaxMisses         int           // default 3
}

// DefaultConfig fills in the source's default constants.
func DefaultConfig(hiveAddr string) Config {
	return Config{
		HiveAddr:          hiveAddr,
		WorkerID:          uuid.NewString(),
		MaxTasks:          10,
		HeartbeatInterval: 3 * time.Second,
		Jitter:            0.05,
		MissTimeout:       9 * time.Second,
		MaxMisses:         3,
	}
}

// Drone is one worker-side agent instance.
type Drone struct {
	cfg    Config
	log    zerolog.Logger
	runner TaskRunner

	mu           sync.Mutex
	currentTasks uint32
	lastLatency  time.Duration

	ackCh  chan struct{}
	taskCh chan wire.TaskMsg
}

// New constructs a Drone that executes accepted tasks with runner.
func New(cfg Config, runner TaskRunner, logger zerolog.Logger) *Drone {
	if cfg.WorkerID == "" {
		cfg.WorkerID = uuid.NewString()
	}
	return &Drone{
		cfg:    cfg,
		log:    logger,
		runner: runner,
		ackCh:  make(chan struct{}, 1),
		taskCh: make(chan wire.TaskMsg, 32),
	}
}

// Run dials the Hive, retrying with exponential backoff until the first
// connection succeeds, registers, and runs the heartbeat and task-accept
// loops until ctx is cancelled, the connection is lost, or the heartbeat
// loop trips the worker's local circuit breaker. A lost connection is not
// redialled.
func (d *Drone) Run(ctx context.Context) error {
	conn, err := d.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := d.register(conn); err != nil {
		return err
	}

	readErrCh := make(chan error, 1)
	go func() { readErrCh <- d.readLoop(ctx, conn) }()

	hbErrCh := make(chan error, 1)
	go func() { hbErrCh <- d.heartbeatLoop(ctx, conn) }()

	go d.executeLoop(ctx, conn)

	select {
	case <-ctx.Done():
		return nil
	case err := <-hbErrCh:
		return err
	case err := <-readErrCh:
		return err
	}
}

func (d *Drone) dial(ctx context.Context) (*router.Conn, error) {
	var conn *router.Conn
	operation := func() error {
		c, err := router.Dial(d.cfg.HiveAddr, d.cfg.WorkerID)
		if err != nil {
			return err
		}
		conn = c
		return nil
	}
	b := backoff.WithContext(backoff.NewExponentialBackOff(), ctx)
	if err := backoff.Retry(operation, b); err != nil {
		return nil, fmt.Errorf("drone: dial %s: %w", d.cfg.HiveAddr, err)
	}
	return conn, nil
}

func (d *Drone) register(conn *router.Conn) error {
	payload, err := wire.Encode(wire.Registration{
		WorkerID:     d.cfg.WorkerID,
		MaxThreads:   int32(d.cfg.MaxTasks),
		Version:      "1",
		Capabilities: d.cfg.Capabilities,
	})
	if err != nil {
		return fmt.Errorf("drone: encode registration: %w", err)
	}
	return conn.Send(payload)
}

// readLoop demultiplexes inbound frames: Response frames are heartbeat
// acknowledgements, Task frames go to the execute loop.
func (d *Drone) readLoop(ctx context.Context, conn *router.Conn) error {
	for {
		payload, err := conn.Recv()
		if err != nil {
			return fmt.Errorf("drone: connection lost: %w", err)
		}
		msg, err := wire.Decode(payload)
		if err != nil {
			d.log.Warn().Err(err).Msg("dropping undecodable frame")
			continue
		}
		switch m := msg.(type) {
		case wire.ResponseMsg:
			select {
			case d.ackCh <- struct{}{}:
			default:
			}
		case wire.TaskMsg:
			select {
			case d.taskCh <- m:
			case <-ctx.Done():
				return nil
			}
		default:
			d.log.Warn().Msg("dropping unexpected frame type on worker side")
		}
	}
}

// heartbeatLoop sends a jittered-interval heartbeat and waits up to
// MissTimeout for an acknowledgement; after MaxMisses consecutive misses
// it trips the worker's local circuit breaker and returns.
func (d *Drone) heartbeatLoop(ctx context.Context, conn *router.Conn) error {
	misses := 0
	for {
		wait := d.jittered()
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}

		sendTS := time.Now()
		if err := d.sendHeartbeat(ctx, conn); err != nil {
			return fmt.Errorf("drone: send heartbeat: %w", err)
		}

		select {
		case <-d.ackCh:
			misses = 0
			d.mu.Lock()
			d.lastLatency = time.Since(sendTS)
			d.mu.Unlock()
		case <-time.After(d.cfg.MissTimeout):
			misses++
			d.log.Warn().Int("misses", misses).Msg("heartbeat acknowledgement missed")
			if misses >= d.cfg.MaxMisses {
				d.log.Error().Msg("worker tripped local circuit breaker after consecutive missed heartbeats")
				return errs.ErrHeartbeatTimeout
			}
		case <-ctx.Done():
			return nil
		}
	}
}

func (d *Drone) jittered() time.Duration {
	base := d.cfg.HeartbeatInterval
	offset := (rand.Float64()*2 - 1) * d.cfg.Jitter
	return time.Duration(float64(base) * (1 + offset))
}

func (d *Drone) sendHeartbeat(ctx context.Context, conn *router.Conn) error {
	sample, err := readSample(ctx)
	if err != nil {
		return err
	}
	d.mu.Lock()
	current := d.currentTasks
	latencyMs := uint32(d.lastLatency.Milliseconds())
	d.mu.Unlock()

	payload, err := wire.Encode(wire.Heartbeat{
		WorkerID:     d.cfg.WorkerID,
		Timestamp:    time.Now(),
		Health:       types.Healthy,
		CPUUsage:     sample.cpu,
		MemUsage:     sample.mem,
		LatencyMs:    latencyMs,
		CurrentTasks: current,
		MaxTasks:     d.cfg.MaxTasks,
	})
	if err != nil {
		return err
	}
	return conn.Send(payload)
}

// executeLoop accepts dispatched tasks and replies with their Response
// frame once the runner finishes.
func (d *Drone) executeLoop(ctx context.Context, conn *router.Conn) {
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-d.taskCh:
			d.runOne(ctx, conn, task)
		}
	}
}

func (d *Drone) runOne(ctx context.Context, conn *router.Conn, msg wire.TaskMsg) {
	d.mu.Lock()
	d.currentTasks++
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		d.currentTasks--
		d.mu.Unlock()
	}()

	task := types.Task{ID: msg.ID, Payload: msg.Payload, Timestamp: msg.Timestamp, Metadata: msg.Metadata, Priority: msg.Priority}
	out, err := d.runner.Run(ctx, task)

	resp := wire.ResponseMsg{WorkerID: d.cfg.WorkerID}
	if err != nil {
		resp.Err = err.Error()
	} else {
		resp.Output = out
	}
	payload, encErr := wire.Encode(resp)
	if encErr != nil {
		d.log.Error().Err(encErr).Str("task_id", msg.ID).Msg("failed to encode task response")
		return
	}
	if sendErr := conn.Send(payload); sendErr != nil && !errors.Is(sendErr, context.Canceled) {
		d.log.Warn().Err(sendErr).Str("task_id", msg.ID).Msg("failed to send task response")
	}
}
