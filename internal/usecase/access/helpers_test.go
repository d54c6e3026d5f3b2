package access

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"garage-opener/internal/domain"
	"garage-opener/internal/infra/clock"
)

var (
	phone  = domain.MustParseIdentity("11:22:33:44:55:66")
	tablet = domain.MustParseIdentity("AA:BB:CC:DD:EE:FF")
	rogue  = domain.MustParseIdentity("DE:AD:BE:EF:00:01")
)

type fakeBonds struct {
	mu  sync.Mutex
	ids []domain.Identity
	err error
}

func (b *fakeBonds) Count(context.Context) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return 0, b.err
	}
	return len(b.ids), nil
}

func (b *fakeBonds) Contains(_ context.Context, id domain.Identity) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return false, b.err
	}
	for _, have := range b.ids {
		if have == id {
			return true, nil
		}
	}
	return false, nil
}

func (b *fakeBonds) add(id domain.Identity) {
	b.mu.Lock()
	b.ids = append(b.ids, id)
	b.mu.Unlock()
}

type fakeTransport struct {
	mu           sync.Mutex
	advertising  bool
	advStarts    int
	advStops     int
	disconnected []domain.LinkID
	encrypted    []domain.LinkID
	notified     []string
	encryptErr   error
}

func (t *fakeTransport) Start(context.Context, chan<- domain.TransportEvent) error { return nil }

func (t *fakeTransport) StartAdvertising() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.advertising = true
	t.advStarts++
	return nil
}

func (t *fakeTransport) StopAdvertising() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.advertising = false
	t.advStops++
	return nil
}

func (t *fakeTransport) Disconnect(link domain.LinkID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.disconnected = append(t.disconnected, link)
	return nil
}

func (t *fakeTransport) RequestEncryption(link domain.LinkID, _ domain.Identity) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.encrypted = append(t.encrypted, link)
	return t.encryptErr
}

func (t *fakeTransport) ResolveSecurity(domain.LinkID, domain.SecurityVerdict) error { return nil }

func (t *fakeTransport) Notify(_ domain.LinkID, status string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.notified = append(t.notified, status)
	return nil
}

type recordingDisplay struct {
	mu    sync.Mutex
	calls []string
}

func (d *recordingDisplay) Render(text string, start int, prefix string) {
	d.record(fmt.Sprintf("%s|%d|%s", text, start, prefix))
}

func (d *recordingDisplay) RenderNumber(v uint32, start int, prefix string) {
	d.record(fmt.Sprintf("%d|%d|%s", v, start, prefix))
}

func (d *recordingDisplay) Clear() { d.record("clear") }
func (d *recordingDisplay) Sweep() { d.record("sweep") }

func (d *recordingDisplay) record(s string) {
	d.mu.Lock()
	d.calls = append(d.calls, s)
	d.mu.Unlock()
}

func (d *recordingDisplay) all() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

func (d *recordingDisplay) last() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.calls) == 0 {
		return ""
	}
	return d.calls[len(d.calls)-1]
}

type relayEdge struct {
	at       time.Time
	asserted bool
}

type fakeRelay struct {
	mu    sync.Mutex
	clock clock.Clock
	edges []relayEdge
	err   error
}

func (r *fakeRelay) Set(asserted bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil && asserted {
		return r.err
	}
	r.edges = append(r.edges, relayEdge{at: r.clock.Now(), asserted: asserted})
	return nil
}

type recordingBus struct {
	mu     sync.Mutex
	events []domain.Event
}

func (b *recordingBus) Publish(_ context.Context, e domain.Event) {
	b.mu.Lock()
	b.events = append(b.events, e)
	b.mu.Unlock()
}

func (b *recordingBus) Subscribe(domain.EventType, domain.EventHandler) func() { return func() {} }
func (b *recordingBus) SubscribeAll(domain.EventHandler) func()                { return func() {} }
func (b *recordingBus) Close()                                                 {}

func (b *recordingBus) types() []domain.EventType {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.EventType, len(b.events))
	for i, e := range b.events {
		out[i] = e.Type
	}
	return out
}

type harness struct {
	core      *Core
	bonds     *fakeBonds
	transport *fakeTransport
	display   *recordingDisplay
	relay     *fakeRelay
	bus       *recordingBus
	clock     *clock.FakeClock
	log       *slog.Logger
}

func defaultOptions() Options {
	return Options{
		Command:                  "TRIGGER",
		RelayPulse:               750 * time.Millisecond,
		WindowTimeout:            60 * time.Second,
		DisplayTimeout:           5 * time.Second,
		RequireAuthenticatedLink: true,
		AllowFirstPairing:        true,
		RejectLogRate:            1,
		RejectLogBurst:           5,
	}
}

func newHarness(t *testing.T, opts Options, bonded ...domain.Identity) *harness {
	t.Helper()
	clk := clock.Fake(time.Unix(1_700_000_000, 0))
	h := &harness{
		bonds:     &fakeBonds{ids: bonded},
		transport: &fakeTransport{},
		display:   &recordingDisplay{},
		relay:     &fakeRelay{clock: clk},
		bus:       &recordingBus{},
		clock:     clk,
		log:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	h.core = New(Deps{
		Bonds:     h.bonds,
		Transport: h.transport,
		Display:   h.display,
		Relay:     h.relay,
		Clock:     clk,
		Bus:       h.bus,
		Logger:    h.log,
	}, opts)
	return h
}

// connect admits link for remote and fails the test on rejection.
func (h *harness) connect(t *testing.T, link domain.LinkID, remote domain.Identity) {
	t.Helper()
	if err := h.core.Gatekeeper.OnLinkEstablished(context.Background(), domain.LinkEstablished{Link: link, Remote: remote}); err != nil {
		t.Fatalf("OnLinkEstablished(%v): %v", remote, err)
	}
}

// authenticate runs a successful authentication for an admitted link.
func (h *harness) authenticate(t *testing.T, link domain.LinkID, remote domain.Identity) {
	t.Helper()
	if err := h.core.Auth.OnAuthenticationResolved(context.Background(), domain.AuthResolved{Link: link, Remote: remote, Success: true}); err != nil {
		t.Fatalf("OnAuthenticationResolved: %v", err)
	}
}
