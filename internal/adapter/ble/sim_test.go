package ble

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"garage-opener/internal/adapter/gpio"
	"garage-opener/internal/adapter/store"
	"garage-opener/internal/domain"
)

func newTestSim(t *testing.T, cfg SimConfig) (*Sim, chan domain.TransportEvent) {
	t.Helper()
	sim := NewSim(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	events := make(chan domain.TransportEvent, 16)
	require.NoError(t, sim.Start(context.Background(), events))
	return sim, events
}

func next(t *testing.T, events <-chan domain.TransportEvent) domain.TransportEvent {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(time.Second):
		t.Fatal("no transport event")
		return nil
	}
}

func TestSimLinkLifecycle(t *testing.T) {
	bonds := store.NewMemoryBondStore()
	sim, events := newTestSim(t, SimConfig{Bonds: bonds})
	ctx := context.Background()

	require.NoError(t, sim.Apply(ctx, "connect 1 11:22:33:44:55:66"))
	assert.Equal(t, domain.LinkEstablished{Link: 1, Remote: domain.MustParseIdentity("11:22:33:44:55:66")}, next(t, events))

	require.NoError(t, sim.Apply(ctx, "secure 1"))
	assert.Equal(t, domain.SecurityRequested{Link: 1}, next(t, events))

	require.NoError(t, sim.Apply(ctx, "passkey 1 482913"))
	assert.Equal(t, domain.PasskeyReady{Link: 1, Passkey: 482913}, next(t, events))

	require.NoError(t, sim.Apply(ctx, "auth 1 ok"))
	ev := next(t, events).(domain.AuthResolved)
	assert.True(t, ev.Success)

	n, err := bonds.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, sim.Apply(ctx, "write 1 TRIGGER"))
	assert.Equal(t, domain.CharacteristicWritten{Link: 1, Payload: []byte("TRIGGER")}, next(t, events))

	require.NoError(t, sim.Apply(ctx, "drop 1"))
	assert.Equal(t, domain.LinkLost{Link: 1}, next(t, events))
}

func TestSimAuthFailureCarriesReason(t *testing.T) {
	bonds := store.NewMemoryBondStore()
	sim, events := newTestSim(t, SimConfig{Bonds: bonds})
	ctx := context.Background()

	require.NoError(t, sim.Apply(ctx, "connect 2 AA:BB:CC:DD:EE:FF"))
	next(t, events)
	require.NoError(t, sim.Apply(ctx, "auth 2 fail 5"))

	ev := next(t, events).(domain.AuthResolved)
	assert.False(t, ev.Success)
	assert.Equal(t, 5, ev.FailReason)

	n, _ := bonds.Count(ctx)
	assert.Zero(t, n)
}

func TestSimRejectsBadInput(t *testing.T) {
	sim, _ := newTestSim(t, SimConfig{})
	ctx := context.Background()

	for _, line := range []string{
		"connect",
		"connect x 11:22:33:44:55:66",
		"connect 1 not-an-address",
		"passkey 1 1000000",
		"auth 9 ok",
		"bogus 1",
		"press",
	} {
		assert.Error(t, sim.Apply(ctx, line), line)
	}
	assert.NoError(t, sim.Apply(ctx, ""))
	assert.NoError(t, sim.Apply(ctx, "# comment"))
}

func TestSimDisconnectReportsLinkLost(t *testing.T) {
	var out bytes.Buffer
	sim, events := newTestSim(t, SimConfig{Out: &out})
	ctx := context.Background()

	require.NoError(t, sim.Apply(ctx, "connect 3 11:22:33:44:55:66"))
	next(t, events)

	require.NoError(t, sim.Disconnect(3))
	assert.Equal(t, domain.LinkLost{Link: 3}, next(t, events))
	assert.Contains(t, out.String(), "link 3 disconnected")

	// Unknown links are not an error and emit nothing.
	require.NoError(t, sim.Disconnect(3))
	select {
	case ev := <-events:
		t.Fatalf("unexpected event %v", ev)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestSimNotifyAndRead(t *testing.T) {
	var out bytes.Buffer
	sim, _ := newTestSim(t, SimConfig{Out: &out, StatusValue: "Status: Ready"})
	ctx := context.Background()

	require.NoError(t, sim.Notify(1, "Command executed"))
	require.NoError(t, sim.Apply(ctx, "read 1"))
	assert.Contains(t, out.String(), "link 1 notify: Command executed")
	assert.Contains(t, out.String(), "link 1 read: Status: Ready")
}

func TestSimResolveSecurity(t *testing.T) {
	var out bytes.Buffer
	sim, _ := newTestSim(t, SimConfig{Out: &out})

	require.NoError(t, sim.ResolveSecurity(1, domain.SecurityAllow))
	require.NoError(t, sim.ResolveSecurity(2, domain.SecurityReject))
	assert.Contains(t, out.String(), "link 1 security: allowed")
	assert.Contains(t, out.String(), "link 2 security: rejected")
}

func TestSimAdvertising(t *testing.T) {
	sim, _ := newTestSim(t, SimConfig{})
	require.NoError(t, sim.StartAdvertising())
	assert.True(t, sim.Advertising())
	require.NoError(t, sim.StopAdvertising())
	assert.False(t, sim.Advertising())
}

func TestSimButtons(t *testing.T) {
	panel := gpio.NewMock()
	sim, _ := newTestSim(t, SimConfig{Buttons: panel, ButtonPin: 13})
	ctx := context.Background()

	require.NoError(t, sim.Apply(ctx, "press"))
	down, err := panel.Asserted(13)
	require.NoError(t, err)
	assert.True(t, down)

	require.NoError(t, sim.Apply(ctx, "release"))
	down, _ = panel.Asserted(13)
	assert.False(t, down)
}

func TestSimServe(t *testing.T) {
	var out syncBuffer
	sim, events := newTestSim(t, SimConfig{Out: &out})

	input := strings.NewReader("connect 1 11:22:33:44:55:66\nnonsense\nwrite 1 TRIGGER\n")
	require.NoError(t, sim.Serve(context.Background(), ReadLines(input)))

	assert.IsType(t, domain.LinkEstablished{}, next(t, events))
	assert.IsType(t, domain.CharacteristicWritten{}, next(t, events))
	assert.Contains(t, out.String(), "error:")
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestSimNotStarted(t *testing.T) {
	sim := NewSim(SimConfig{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Error(t, sim.Apply(context.Background(), "secure 1"))
}

func TestOpen(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tr, err := Open("sim", SimConfig{}, GATTConfig{}, logger)
	require.NoError(t, err)
	assert.IsType(t, &Sim{}, tr)

	_, err = Open("carrier-pigeon", SimConfig{}, GATTConfig{}, logger)
	assert.Error(t, err)
}
