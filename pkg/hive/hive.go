// Package hive wires the coordinator's components — registry, router,
// placement engine and task engine — into one construction point, the
// shape the rest of the corpus uses for its top-level manager type.
package hive

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/hiveswarm/hive/pkg/engine"
	"github.com/hiveswarm/hive/pkg/metrics"
	"github.com/hiveswarm/hive/pkg/placement"
	"github.com/hiveswarm/hive/pkg/registry"
	"github.com/hiveswarm/hive/pkg/router"
	"github.com/hiveswarm/hive/pkg/scaler"
	"github.com/hiveswarm/hive/pkg/wire"
)

// Config assembles the tunables of every owned component.
type Config struct {
	BindAddr       string
	ReconcileTick  time.Duration // default 1s
	PollTimeout    time.Duration // default 100ms
	Registry       registry.Config
	Placement      placement.Options
	Engine         engine.Config
	ScaleOutWarmup time.Duration // default 5s
}

// DefaultConfig mirrors the source's defaults for every sub-component.
func DefaultConfig(bindAddr string) Config {
	return Config{
		BindAddr:       bindAddr,
		ReconcileTick:  time.Second,
		PollTimeout:    100 * time.Millisecond,
		Registry:       registry.DefaultConfig(),
		Placement:      placement.DefaultOptions(),
		Engine:         engine.DefaultConfig(),
		ScaleOutWarmup: 5 * time.Second,
	}
}

// Hive is the coordinator: one Registry, one router Endpoint, one task
// Engine, and the placement/scaler logic wired between them.
type Hive struct {
	cfg      Config
	log      zerolog.Logger
	Registry *registry.Registry
	Router   *router.Endpoint
	Engine   *engine.Engine
	Scaler   *scaler.Scaler
	placer   *placement.Engine

	collector *metrics.Collector
	cancel    context.CancelFunc
}

// New constructs a Hive with all sub-components wired but not yet
// running; call Start to bind the router and launch background loops.
func New(cfg Config, logger zerolog.Logger) *Hive {
	reg := registry.New(cfg.Registry, logger)
	rtr := router.New(logger)
	placer := placement.New()
	eng := engine.New(cfg.Engine, reg, rtr, placer, cfg.Placement, logger)
	scl := scaler.New(reg, cfg.ScaleOutWarmup, logger)

	return &Hive{
		cfg:       cfg,
		log:       logger,
		Registry:  reg,
		Router:    rtr,
		Engine:    eng,
		Scaler:    scl,
		placer:    placer,
		collector: metrics.NewCollector(reg),
	}
}

// Start binds the router, launches the dispatcher pool, the router-poll
// loop, and the registry reconciler.
func (h *Hive) Start(ctx context.Context) error {
	if err := h.Router.Bind(h.cfg.BindAddr); err != nil {
		return fmt.Errorf("hive: bind router: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	h.cancel = cancel

	h.Engine.Start(ctx)
	go h.pollLoop(ctx)
	go h.reconcileLoop(ctx)

	metrics.RegisterComponent("registry", true, "")
	metrics.RegisterComponent("router", true, "")
	metrics.RegisterComponent("engine", true, "")
	h.collector.Start()
	return nil
}

// pollLoop drains inbound frames from the router and routes each to the
// registry (Registration/Heartbeat) or the engine (Response), replying
// to heartbeats with a Response frame whose WorkerID is "hive" as the
// acknowledgement the worker side waits on.
func (h *Hive) pollLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		frames, err := h.Router.Poll(ctx, h.cfg.PollTimeout)
		if err != nil {
			return
		}
		for _, f := range frames {
			h.handleFrame(f.Identity, f.Payload)
		}
	}
}

func (h *Hive) handleFrame(identity string, payload []byte) {
	msg, err := wire.Decode(payload)
	if err != nil {
		h.log.Warn().Str("worker_id", identity).Err(err).Msg("dropping undecodable frame")
		return
	}
	switch m := msg.(type) {
	case wire.Registration:
		h.Registry.Register(m.WorkerID, uint32(m.MaxThreads), m.Capabilities)
	case wire.Heartbeat:
		if err := h.Registry.UpdateHeartbeat(m.WorkerID, m.CPUUsage, m.MemUsage, m.LatencyMs, m.CurrentTasks); err != nil {
			h.log.Warn().Str("worker_id", m.WorkerID).Err(err).Msg("heartbeat update rejected")
			return
		}
		ack, err := wire.Encode(wire.ResponseMsg{WorkerID: "hive"})
		if err != nil {
			h.log.Error().Err(err).Msg("failed to encode heartbeat ack")
			return
		}
		if err := h.Router.Send(m.WorkerID, ack); err != nil {
			h.log.Warn().Str("worker_id", m.WorkerID).Err(err).Msg("failed to send heartbeat ack")
		}
	case wire.ResponseMsg:
		h.Engine.HandleResponse(m)
	default:
		h.log.Warn().Str("worker_id", identity).Msg("dropping unexpected frame type")
	}
}

// reconcileLoop ticks the registry's heartbeat-deadline check.
func (h *Hive) reconcileLoop(ctx context.Context) {
	ticker := time.NewTicker(h.cfg.ReconcileTick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			h.Registry.ReconcileDeadlines(now)
			metrics.ActivePoolSize.Set(float64(len(h.Registry.ListActive())))
			metrics.BackupPoolSize.Set(float64(len(h.Registry.ListBackup())))
		}
	}
}

// Shutdown stops intake, drains the engine, then closes the router.
func (h *Hive) Shutdown(ctx context.Context) error {
	if h.cancel != nil {
		h.cancel()
	}
	h.collector.Stop()
	metrics.RegisterComponent("registry", false, "shutting down")
	metrics.RegisterComponent("router", false, "shutting down")
	metrics.RegisterComponent("engine", false, "shutting down")
	if err := h.Engine.Shutdown(ctx); err != nil {
		h.log.Warn().Err(err).Msg("engine shutdown drained with aborted tasks")
	}
	return h.Router.Close(ctx)
}
