// Package access is the access-control core: the pairing window, the
// connection gatekeeper, the authentication coordinator and the command
// dispatcher. Every component shares one *State and is driven from a single
// goroutine by the engine.
package access

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"garage-opener/internal/domain"
	"garage-opener/internal/infra/clock"
)

// Bonds is the part of the bonded-device registry the core consults.
type Bonds interface {
	Count(ctx context.Context) (int, error)
	Contains(ctx context.Context, id domain.Identity) (bool, error)
}

// Options tunes the core.
type Options struct {
	Command                  string
	RelayPulse               time.Duration
	WindowTimeout            time.Duration
	DisplayTimeout           time.Duration
	RejectHold               time.Duration
	RequireAuthenticatedLink bool
	AllowFirstPairing        bool
	RejectLogRate            float64
	RejectLogBurst           int
}

// Deps are the collaborators of the core.
type Deps struct {
	Bonds     Bonds
	Transport domain.Transport
	Display   domain.Display
	Relay     domain.Relay
	Clock     clock.Clock
	Bus       domain.EventBus // optional
	Logger    *slog.Logger
}

// Core wires the access components around one State.
type Core struct {
	State      *State
	Screen     *Screen
	Window     *PairingWindow
	Gatekeeper *Gatekeeper
	Auth       *Coordinator
	Dispatcher *Dispatcher
}

// New builds the core.
func New(deps Deps, opts Options) *Core {
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if opts.WindowTimeout <= 0 {
		opts.WindowTimeout = 60 * time.Second
	}
	if opts.DisplayTimeout <= 0 {
		opts.DisplayTimeout = 5 * time.Second
	}

	state := NewState(opts.WindowTimeout)
	screen := NewScreen(deps.Display, state, deps.Clock, opts.DisplayTimeout)
	pub := &publisher{bus: deps.Bus, clock: deps.Clock}
	policy := &enrollmentPolicy{bonds: deps.Bonds, state: state, allowFirst: opts.AllowFirstPairing}

	window := &PairingWindow{
		state:     state,
		screen:    screen,
		transport: deps.Transport,
		clock:     deps.Clock,
		pub:       pub,
		logger:    deps.Logger.With("component", "pairing_window"),
	}

	return &Core{
		State:  state,
		Screen: screen,
		Window: window,
		Gatekeeper: &Gatekeeper{
			policy:     policy,
			state:      state,
			screen:     screen,
			transport:  deps.Transport,
			clock:      deps.Clock,
			pub:        pub,
			rejectHold: opts.RejectHold,
			warn:       newThrottledWarn(deps.Logger.With("component", "gatekeeper"), deps.Clock, opts.RejectLogRate, opts.RejectLogBurst),
			logger:     deps.Logger.With("component", "gatekeeper"),
		},
		Auth: &Coordinator{
			policy:    policy,
			state:     state,
			screen:    screen,
			transport: deps.Transport,
			window:    window,
			pub:       pub,
			logger:    deps.Logger.With("component", "auth"),
		},
		Dispatcher: &Dispatcher{
			bonds:       deps.Bonds,
			state:       state,
			screen:      screen,
			relay:       deps.Relay,
			transport:   deps.Transport,
			clock:       deps.Clock,
			pub:         pub,
			command:     opts.Command,
			pulse:       opts.RelayPulse,
			requireAuth: opts.RequireAuthenticatedLink,
			logger:      deps.Logger.With("component", "dispatcher"),
		},
	}
}

// enrollmentPolicy answers "may a not-yet-bonded peer proceed right now".
type enrollmentPolicy struct {
	bonds      Bonds
	state      *State
	allowFirst bool
}

// open reports whether enrollment is currently possible: the registry is
// empty (first pairing) or the pairing window allows it. A registry error is
// returned as-is and callers deny.
func (p *enrollmentPolicy) open(ctx context.Context) (bool, error) {
	if p.state.AllowEnrollment() {
		return true, nil
	}
	n, err := p.bonds.Count(ctx)
	if err != nil {
		return false, err
	}
	return n == 0 && p.allowFirst, nil
}

// publisher stamps and publishes bus events. A nil bus drops them.
type publisher struct {
	bus   domain.EventBus
	clock clock.Clock
}

func (p *publisher) publish(ctx context.Context, typ domain.EventType, link domain.LinkID, remote domain.Identity, err error, detail string) {
	if p.bus == nil {
		return
	}
	p.bus.Publish(ctx, domain.Event{
		Type:      typ,
		Timestamp: p.clock.Now(),
		Link:      link,
		Remote:    remote,
		Code:      domain.ErrorCodeOf(err),
		Detail:    detail,
	})
}

// throttledWarn rate-limits rejection warnings so a storm of connection
// attempts cannot flood the log. Suppressed lines are counted and reported
// on the next line that gets through.
type throttledWarn struct {
	logger     *slog.Logger
	clock      clock.Clock
	limiter    *rate.Limiter
	mu         sync.Mutex
	suppressed int
}

func newThrottledWarn(logger *slog.Logger, clk clock.Clock, perSecond float64, burst int) *throttledWarn {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	if burst <= 0 {
		burst = 1
	}
	return &throttledWarn{logger: logger, clock: clk, limiter: rate.NewLimiter(limit, burst)}
}

func (w *throttledWarn) Warn(msg string, args ...any) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.limiter.AllowN(w.clock.Now(), 1) {
		w.suppressed++
		return
	}
	if w.suppressed > 0 {
		args = append(args, "suppressed", w.suppressed)
		w.suppressed = 0
	}
	w.logger.Warn(msg, args...)
}

func (w *throttledWarn) Suppressed() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.suppressed
}
