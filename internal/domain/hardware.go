package domain

import "context"

// BondStore is the persisted bonded-device namespace owned by the wireless stack.
type BondStore interface {
	Count(ctx context.Context) (int, error)
	// Enumerate fills buf and returns the number of records written.
	// Returns ErrAllocation when buf is too small for the stored set.
	Enumerate(ctx context.Context, buf []BondedDevice) (int, error)
	// Save records a new bond. Called by the transport layer after a successful pairing.
	Save(ctx context.Context, dev BondedDevice) error
	// EraseAll irreversibly removes every record.
	EraseAll(ctx context.Context) error
}

// Restarter restarts the process. Restart does not return to normal operation:
// callers must stop what they are doing once it has been called.
type Restarter interface {
	Restart(reason string)
}

// RestartFunc adapts a function to Restarter.
type RestartFunc func(reason string)

func (f RestartFunc) Restart(reason string) { f(reason) }

// Display is the segment display collaborator. Every call overwrites the
// full display buffer.
type Display interface {
	Render(text string, startSegment int, prefix string)
	RenderNumber(value uint32, startSegment int, prefix string)
	Clear()
	// Sweep runs the fixed visual acknowledgment sequence and blocks until done.
	Sweep()
}

// InputReader reads a digital input.
type InputReader interface {
	Asserted(pin int) (bool, error)
}

// Relay drives the actuator output.
type Relay interface {
	Set(asserted bool) error
}
