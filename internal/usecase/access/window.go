package access

import (
	"context"
	"log/slog"

	"garage-opener/internal/domain"
	"garage-opener/internal/infra/clock"
)

// PairingWindow drives the Idle -> Active -> Idle pairing window.
type PairingWindow struct {
	state     *State
	screen    *Screen
	transport domain.Transport
	clock     clock.Clock
	pub       *publisher
	logger    *slog.Logger
}

// Active reports whether the window is open.
func (w *PairingWindow) Active() bool { return w.state.Window().Active }

// Open starts advertising and allows enrollment. Opening an already active
// window is a no-op. If advertising cannot start the window stays idle.
func (w *PairingWindow) Open(ctx context.Context) error {
	if w.state.Window().Active {
		return nil
	}
	if err := w.transport.StartAdvertising(); err != nil {
		w.logger.Error("pairing mode not entered, advertising failed", "error", err)
		return domain.WrapOp("PairingWindow.Open", err)
	}
	if !w.state.openWindow(w.clock.Now()) {
		return nil
	}
	w.screen.Render("PAIr ACt", 0, "")
	w.pub.publish(ctx, domain.EventWindowOpened, 0, domain.Identity{}, nil, "")
	w.logger.Info("pairing mode activated, advertising started",
		"timeout", w.state.Window().Timeout)
	return nil
}

// Expire closes the window once its timeout has elapsed and no link is
// connected. A window never expires mid-handshake. Reports whether it closed.
func (w *PairingWindow) Expire(ctx context.Context) bool {
	win := w.state.Window()
	if !win.Expired(w.clock.Now()) || w.state.AnyConnected() {
		return false
	}
	if !w.close(ctx, "timeout") {
		return false
	}
	w.screen.Render("PAIr StP", 0, "")
	w.logger.Info("pairing mode timed out without a connection")
	return true
}

// Resolve closes the window after a terminal authentication outcome.
// Resolving an idle window is a no-op, so duplicate outcomes are harmless.
func (w *PairingWindow) Resolve(ctx context.Context, outcome string) bool {
	if !w.close(ctx, outcome) {
		return false
	}
	w.logger.Info("pairing mode deactivated after authentication attempt", "outcome", outcome)
	return true
}

func (w *PairingWindow) close(ctx context.Context, reason string) bool {
	if !w.state.closeWindow() {
		return false
	}
	if err := w.transport.StopAdvertising(); err != nil {
		w.logger.Warn("stop advertising failed", "error", err)
	}
	w.pub.publish(ctx, domain.EventWindowClosed, 0, domain.Identity{}, nil, reason)
	return true
}
