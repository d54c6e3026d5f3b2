package access

import (
	"sync"
	"time"

	"garage-opener/internal/domain"
	"garage-opener/internal/infra/clock"
)

const (
	passkeySegment = 2
	passkeyPrefix  = "P5"
)

// Screen is the display as seen by the access core. While a passkey is held
// nothing else reaches the display. Transient messages are cleared by
// Housekeep once they are older than the display timeout.
type Screen struct {
	out     domain.Display
	state   *State
	clock   clock.Clock
	timeout time.Duration

	mu         sync.Mutex
	lastUpdate time.Time
}

// NewScreen wraps out.
func NewScreen(out domain.Display, state *State, clk clock.Clock, timeout time.Duration) *Screen {
	return &Screen{out: out, state: state, clock: clk, timeout: timeout}
}

// Render shows text unless a passkey is held.
func (s *Screen) Render(text string, startSegment int, prefix string) {
	if s.state.PasskeyHeld() {
		return
	}
	s.out.Render(text, startSegment, prefix)
	s.touch(s.clock.Now())
}

// RenderNumber shows value unless a passkey is held.
func (s *Screen) RenderNumber(value uint32, startSegment int, prefix string) {
	if s.state.PasskeyHeld() {
		return
	}
	s.out.RenderNumber(value, startSegment, prefix)
	s.touch(s.clock.Now())
}

// Clear blanks the display unless a passkey is held.
func (s *Screen) Clear() {
	if s.state.PasskeyHeld() {
		return
	}
	s.out.Clear()
	s.touch(time.Time{})
}

// Sweep runs the acknowledgment sequence unless a passkey is held.
func (s *Screen) Sweep() {
	if s.state.PasskeyHeld() {
		return
	}
	s.out.Sweep()
}

// Housekeep clears a transient message once it has been shown for the
// display timeout.
func (s *Screen) Housekeep(now time.Time) {
	s.mu.Lock()
	last := s.lastUpdate
	s.mu.Unlock()
	if last.IsZero() || now.Sub(last) < s.timeout {
		return
	}
	s.Clear()
}

func (s *Screen) showPasskey(passkey uint32) {
	s.out.RenderNumber(passkey, passkeySegment, passkeyPrefix)
	s.touch(s.clock.Now())
}

func (s *Screen) dropPasskey() {
	s.out.Clear()
	s.touch(time.Time{})
}

func (s *Screen) touch(t time.Time) {
	s.mu.Lock()
	s.lastUpdate = t
	s.mu.Unlock()
}

var _ domain.Display = (*Screen)(nil)
