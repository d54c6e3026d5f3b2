package access

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"garage-opener/internal/domain"
)

func TestWindowOpen(t *testing.T) {
	h := newHarness(t, defaultOptions())
	require.NoError(t, h.core.Window.Open(context.Background()))

	win := h.core.State.Window()
	assert.True(t, win.Active)
	assert.True(t, win.AllowEnrollment)
	assert.Equal(t, h.clock.Now(), win.OpenedAt)
	assert.True(t, h.transport.advertising)
	assert.Equal(t, "PAIr ACt|0|", h.display.last())
	assert.Equal(t, []domain.EventType{domain.EventWindowOpened}, h.bus.types())

	// A second open while active changes nothing.
	h.clock.Advance(time.Second)
	require.NoError(t, h.core.Window.Open(context.Background()))
	assert.Equal(t, win.OpenedAt, h.core.State.Window().OpenedAt)
	assert.Equal(t, 1, h.transport.advStarts)
}

// The window closes at or after its timeout, never before.
func TestWindowExpiresAtTimeout(t *testing.T) {
	h := newHarness(t, defaultOptions())
	require.NoError(t, h.core.Window.Open(context.Background()))

	for elapsed := time.Duration(0); elapsed < 60*time.Second; elapsed += 100 * time.Millisecond {
		require.False(t, h.core.Window.Expire(context.Background()), "closed early at %v", elapsed)
		h.clock.Advance(100 * time.Millisecond)
	}
	require.True(t, h.core.Window.Expire(context.Background()))

	win := h.core.State.Window()
	assert.False(t, win.Active)
	assert.False(t, win.AllowEnrollment)
	assert.False(t, h.transport.advertising)
	assert.Equal(t, "PAIr StP|0|", h.display.last())
}

func TestWindowDoesNotExpireWhileConnected(t *testing.T) {
	h := newHarness(t, defaultOptions(), phone)
	require.NoError(t, h.core.Window.Open(context.Background()))
	h.connect(t, 1, tablet)

	h.clock.Advance(2 * time.Minute)
	assert.False(t, h.core.Window.Expire(context.Background()))
	assert.True(t, h.core.State.AllowEnrollment())

	h.core.Gatekeeper.OnLinkLost(context.Background(), domain.LinkLost{Link: 1})
	assert.True(t, h.core.Window.Expire(context.Background()))
	assert.False(t, h.core.State.Window().Active)
}

func TestWindowResolveIsIdempotent(t *testing.T) {
	h := newHarness(t, defaultOptions())
	require.NoError(t, h.core.Window.Open(context.Background()))

	assert.True(t, h.core.Window.Resolve(context.Background(), "success"))
	assert.False(t, h.core.Window.Resolve(context.Background(), "success"))

	win := h.core.State.Window()
	assert.False(t, win.Active)
	assert.False(t, win.AllowEnrollment)
	assert.Equal(t, 1, h.transport.advStops)
	assert.Equal(t, []domain.EventType{domain.EventWindowOpened, domain.EventWindowClosed}, h.bus.types())
}

func TestWindowIdleExpireIsNoop(t *testing.T) {
	h := newHarness(t, defaultOptions())
	h.clock.Advance(time.Hour)
	assert.False(t, h.core.Window.Expire(context.Background()))
	assert.Zero(t, h.transport.advStops)
}

func TestEnrollmentImpliesActive(t *testing.T) {
	h := newHarness(t, defaultOptions())
	check := func() {
		w := h.core.State.Window()
		assert.False(t, w.AllowEnrollment && !w.Active)
	}
	check()
	require.NoError(t, h.core.Window.Open(context.Background()))
	check()
	h.core.Window.Resolve(context.Background(), "failure")
	check()
	require.NoError(t, h.core.Window.Open(context.Background()))
	h.clock.Advance(time.Minute)
	h.core.Window.Expire(context.Background())
	check()
}
