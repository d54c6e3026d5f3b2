package access

import (
	"sync"
	"time"

	"garage-opener/internal/domain"
)

// Window is a snapshot of the pairing window.
type Window struct {
	Active          bool
	AllowEnrollment bool
	OpenedAt        time.Time
	Timeout         time.Duration
}

// Expired reports whether an active window has reached its timeout at now.
func (w Window) Expired(now time.Time) bool {
	return w.Active && now.Sub(w.OpenedAt) >= w.Timeout
}

// State is the single owned access-control state: the pairing window, the
// per-link connection states and the passkey held on the display. It is only
// changed through the unexported transitions below, which keep
// AllowEnrollment implying Active.
type State struct {
	mu          sync.RWMutex
	window      Window
	links       map[domain.LinkID]*domain.ConnectionState
	passkey     uint32
	passkeyHeld bool
	passkeyLink domain.LinkID
}

// NewState returns an idle state whose windows last timeout.
func NewState(timeout time.Duration) *State {
	return &State{
		window: Window{Timeout: timeout},
		links:  make(map[domain.LinkID]*domain.ConnectionState),
	}
}

// Window returns a copy of the pairing window.
func (s *State) Window() Window {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.window
}

// AllowEnrollment reports whether new peers may currently bond.
func (s *State) AllowEnrollment() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.window.AllowEnrollment
}

// Link returns the connection state of link.
func (s *State) Link(link domain.LinkID) (domain.ConnectionState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cs, ok := s.links[link]
	if !ok {
		return domain.ConnectionState{}, false
	}
	return *cs, true
}

// Authenticated reports whether link completed authentication successfully.
func (s *State) Authenticated(link domain.LinkID) bool {
	cs, ok := s.Link(link)
	return ok && cs.Connected && cs.Authenticated
}

// AnyConnected reports whether at least one link is connected.
func (s *State) AnyConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, cs := range s.links {
		if cs.Connected {
			return true
		}
	}
	return false
}

// Passkey returns the passkey currently held on the display, or 0.
func (s *State) Passkey() uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.passkey
}

// PasskeyHeld reports whether a passkey owns the display.
func (s *State) PasskeyHeld() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.passkeyHeld
}

func (s *State) openWindow(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.window.Active {
		return false
	}
	s.window.Active = true
	s.window.AllowEnrollment = true
	s.window.OpenedAt = now
	return true
}

func (s *State) closeWindow() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.window.Active {
		return false
	}
	s.window.Active = false
	s.window.AllowEnrollment = false
	s.window.OpenedAt = time.Time{}
	return true
}

func (s *State) connect(link domain.LinkID, remote domain.Identity, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.links[link] = &domain.ConnectionState{
		Link:        link,
		Remote:      remote,
		Connected:   true,
		ConnectedAt: now,
	}
}

func (s *State) authenticate(link domain.LinkID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	cs, ok := s.links[link]
	if !ok {
		return false
	}
	cs.Authenticated = true
	return true
}

// drop forgets link and reports whether the held passkey belonged to it.
func (s *State) drop(link domain.LinkID) (domain.ConnectionState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var prev domain.ConnectionState
	if cs, ok := s.links[link]; ok {
		prev = *cs
		delete(s.links, link)
	}
	if s.passkeyHeld && s.passkeyLink == link {
		s.passkey, s.passkeyHeld, s.passkeyLink = 0, false, 0
		return prev, true
	}
	return prev, false
}

func (s *State) holdPasskey(link domain.LinkID, passkey uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.passkey = passkey
	s.passkeyHeld = true
	s.passkeyLink = link
}

func (s *State) clearPasskey() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	held := s.passkeyHeld
	s.passkey, s.passkeyHeld, s.passkeyLink = 0, false, 0
	return held
}
