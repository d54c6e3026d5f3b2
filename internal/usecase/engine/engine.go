// Package engine runs the opener: the boot sequence and the single-consumer
// loop that applies transport events and foreground ticks to the access core.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"garage-opener/internal/domain"
	"garage-opener/internal/infra/clock"
	"garage-opener/internal/infra/tracer"
	"garage-opener/internal/usecase/access"
	"garage-opener/internal/usecase/gesture"
	"garage-opener/internal/usecase/registry"
)

// Config holds the loop cadence and the two gestures.
type Config struct {
	Tick       time.Duration
	EventQueue int
	ResetHold  gesture.Hold
	PairHold   gesture.Hold
}

// Deps are the collaborators of the engine.
type Deps struct {
	Core      *access.Core
	Registry  *registry.Registry
	Detector  *gesture.Detector
	Transport domain.Transport
	Clock     clock.Clock
	Bus       domain.EventBus // optional
	Logger    *slog.Logger
}

// Engine owns the access state for the lifetime of one boot.
type Engine struct {
	core      *access.Core
	registry  *registry.Registry
	detector  *gesture.Detector
	transport domain.Transport
	clock     clock.Clock
	bus       domain.EventBus
	config    Config
	logger    *slog.Logger

	pairing *gesture.Tracker
}

// New creates an Engine.
func New(deps Deps, cfg Config) *Engine {
	if cfg.Tick <= 0 {
		cfg.Tick = 100 * time.Millisecond
	}
	if cfg.EventQueue <= 0 {
		cfg.EventQueue = 32
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	return &Engine{
		core:      deps.Core,
		registry:  deps.Registry,
		detector:  deps.Detector,
		transport: deps.Transport,
		clock:     deps.Clock,
		bus:       deps.Bus,
		config:    cfg,
		logger:    deps.Logger,
		pairing:   deps.Detector.Track(cfg.PairHold),
	}
}

// Boot runs the factory-reset gesture and sets the advertising policy. It
// returns domain.ErrRestartRequested after a factory reset.
func (e *Engine) Boot(ctx context.Context) error {
	ctx, span := tracer.StartSpan(ctx, "engine.boot")
	var err error
	defer func() { tracer.End(span, err) }()

	reset, err := e.detector.AwaitHold(ctx, e.config.ResetHold)
	if err != nil {
		return fmt.Errorf("reset gesture: %w", err)
	}
	if reset {
		e.core.Screen.Render("FCT rST", 0, "")
		e.publish(ctx, domain.EventFactoryReset, "boot gesture")
		e.logger.Warn("factory reset requested at boot, clearing all bonded devices")
		if err = e.registry.EraseAll(ctx, "factory reset"); err != nil {
			return err
		}
		err = domain.ErrRestartRequested
		return err
	}

	n, err := e.registry.Count(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		if err = e.transport.StartAdvertising(); err != nil {
			return domain.WrapOp("Engine.Boot", err)
		}
		e.logger.Info("advertising started for bonded devices",
			"bonded", n, "hint", "hold the pairing button to pair a new device")
	} else {
		if err = e.transport.StopAdvertising(); err != nil {
			return domain.WrapOp("Engine.Boot", err)
		}
		e.logger.Info("no bonded devices found, press the pairing button to enter pairing mode")
	}

	e.logBonds(ctx)
	return nil
}

func (e *Engine) logBonds(ctx context.Context) {
	devices, err := e.registry.List(ctx)
	if err != nil {
		e.logger.Error("failed to list bonded devices", "error", err)
		return
	}
	if len(devices) == 0 {
		e.logger.Info("no bonded devices found")
		return
	}
	for i, dev := range devices {
		e.logger.Info("bonded device", "index", i+1, "remote", dev.Identity.String(),
			"bonded_at", dev.BondedAt)
	}
}

// Run starts the transport and applies its events and the foreground tick
// until ctx is done. A restart request surfaces as domain.ErrRestartRequested.
func (e *Engine) Run(ctx context.Context) error {
	events := make(chan domain.TransportEvent, e.config.EventQueue)
	if err := e.transport.Start(ctx, events); err != nil {
		return fmt.Errorf("start transport: %w", err)
	}
	e.logger.Info("engine running", "tick", e.config.Tick)

	tick := e.clock.After(e.config.Tick)
	for {
		select {
		case <-ctx.Done():
			if cause := context.Cause(ctx); errors.Is(cause, domain.ErrRestartRequested) {
				return cause
			}
			return ctx.Err()
		case ev := <-events:
			e.Handle(ctx, ev)
		case <-tick:
			e.Tick(ctx)
			tick = e.clock.After(e.config.Tick)
		}
	}
}

// Handle applies one transport event and returns the component's error, if
// any. Rejections are expected outcomes and are already logged.
func (e *Engine) Handle(ctx context.Context, ev domain.TransportEvent) error {
	ctx, span := tracer.StartSpan(ctx, "transport."+ev.Kind(),
		trace.WithAttributes(tracer.LinkAttr(uint16(ev.LinkOf()))))
	var err error
	defer func() { tracer.End(span, err) }()

	switch ev := ev.(type) {
	case domain.LinkEstablished:
		span.SetAttributes(tracer.StringAttr("ble.remote", ev.Remote.String()))
		err = e.core.Gatekeeper.OnLinkEstablished(ctx, ev)
	case domain.SecurityRequested:
		var verdict domain.SecurityVerdict
		verdict, err = e.core.Gatekeeper.OnSecurityRequested(ctx, ev)
		if rerr := e.transport.ResolveSecurity(ev.Link, verdict); rerr != nil {
			e.logger.Warn("security verdict not delivered", "link", ev.Link, "error", rerr)
			if err == nil {
				err = domain.WrapOp("Engine.Handle", rerr)
			}
		}
	case domain.PasskeyReady:
		err = e.core.Auth.OnPasskeyReady(ctx, ev)
	case domain.AuthResolved:
		err = e.core.Auth.OnAuthenticationResolved(ctx, ev)
	case domain.LinkLost:
		e.core.Gatekeeper.OnLinkLost(ctx, ev)
	case domain.CharacteristicWritten:
		_, err = e.core.Dispatcher.OnCommandWritten(ctx, ev)
	default:
		err = fmt.Errorf("unhandled transport event %T", ev)
		e.logger.Error("unhandled transport event", "kind", ev.Kind())
	}
	return err
}

// Tick runs one foreground iteration: the pairing gesture (only while the
// window is idle), the window timeout and display housekeeping.
func (e *Engine) Tick(ctx context.Context) {
	if !e.core.Window.Active() {
		status, err := e.pairing.Poll()
		if err != nil {
			e.logger.Warn("button read failed", "error", err)
		}
		if status == gesture.Completed {
			if err := e.core.Window.Open(ctx); err != nil {
				e.logger.Error("failed to open pairing window", "error", err)
			}
		}
	} else if e.pairing.Active() {
		e.pairing.Cancel()
	}

	e.core.Window.Expire(ctx)
	e.core.Screen.Housekeep(e.clock.Now())
}

func (e *Engine) publish(ctx context.Context, typ domain.EventType, detail string) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(ctx, domain.Event{Type: typ, Timestamp: e.clock.Now(), Detail: detail})
}
