// Package gpio drives the pairing button and the door relay.
package gpio

import (
	"fmt"
	"log/slog"
	"sync"
)

// Backend abstracts digital pin access for testability.
type Backend interface {
	// Asserted reports whether pin reads high.
	Asserted(pin int) (bool, error)
	Write(pin int, high bool) error
	Close() error
}

// Relay drives one output pin.
type Relay struct {
	backend Backend
	pin     int
	logger  *slog.Logger
}

// NewRelay returns a relay on pin and drives it low.
func NewRelay(backend Backend, pin int, logger *slog.Logger) (*Relay, error) {
	if err := backend.Write(pin, false); err != nil {
		return nil, fmt.Errorf("init relay pin %d: %w", pin, err)
	}
	return &Relay{backend: backend, pin: pin, logger: logger}, nil
}

// Set asserts or deasserts the relay.
func (r *Relay) Set(asserted bool) error {
	if err := r.backend.Write(r.pin, asserted); err != nil {
		return fmt.Errorf("relay pin %d: %w", r.pin, err)
	}
	r.logger.Debug("relay", "pin", r.pin, "asserted", asserted)
	return nil
}

// Mock is an in-memory Backend. Tests and the desktop simulator press the
// button through it.
type Mock struct {
	mu      sync.Mutex
	levels  map[int]bool
	history map[int][]bool
	closed  bool
}

// NewMock returns a Mock with every pin low.
func NewMock() *Mock {
	return &Mock{levels: make(map[int]bool), history: make(map[int][]bool)}
}

func (m *Mock) Asserted(pin int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false, errClosed
	}
	return m.levels[pin], nil
}

func (m *Mock) Write(pin int, high bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errClosed
	}
	m.levels[pin] = high
	m.history[pin] = append(m.history[pin], high)
	return nil
}

// Press drives an input pin high.
func (m *Mock) Press(pin int) {
	m.mu.Lock()
	m.levels[pin] = true
	m.mu.Unlock()
}

// Release drives an input pin low.
func (m *Mock) Release(pin int) {
	m.mu.Lock()
	m.levels[pin] = false
	m.mu.Unlock()
}

// History returns every level written to pin, oldest first.
func (m *Mock) History(pin int) []bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]bool(nil), m.history[pin]...)
}

func (m *Mock) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

var errClosed = fmt.Errorf("gpio backend closed")
