package access

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"garage-opener/internal/domain"
	"garage-opener/internal/infra/clock"
)

// Replies notified on the command characteristic.
const (
	ReplyExecuted         = "Command executed"
	ReplyUnknownCommand   = "Unknown command received"
	ReplyNoBondedDevices  = "Security error: No bonded devices"
	ReplyNotAuthenticated = "Security error: link not authenticated"
	ReplyRelayFault       = "Relay error"
)

// Dispatcher executes the privileged command.
type Dispatcher struct {
	bonds       Bonds
	state       *State
	screen      *Screen
	relay       domain.Relay
	transport   domain.Transport
	clock       clock.Clock
	pub         *publisher
	command     string
	pulse       time.Duration
	requireAuth bool
	logger      *slog.Logger
}

// OnCommandWritten handles one write on the command characteristic and
// notifies the reply on the writing link. Rejections leave the link open.
// An empty write is ignored without a reply.
func (d *Dispatcher) OnCommandWritten(ctx context.Context, ev domain.CharacteristicWritten) (string, error) {
	cs, _ := d.state.Link(ev.Link)
	reply, err := d.dispatch(ctx, ev)
	if reply == "" {
		return "", err
	}

	if nerr := d.transport.Notify(ev.Link, reply); nerr != nil {
		d.logger.Warn("notify failed", "link", ev.Link, "error", nerr)
	}
	if err != nil {
		d.pub.publish(ctx, domain.EventCommandRejected, ev.Link, cs.Remote, err, reply)
	} else {
		d.pub.publish(ctx, domain.EventCommandExecuted, ev.Link, cs.Remote, nil, reply)
	}
	return reply, err
}

func (d *Dispatcher) dispatch(ctx context.Context, ev domain.CharacteristicWritten) (string, error) {
	const op = "Dispatcher.OnCommandWritten"

	n, err := d.bonds.Count(ctx)
	if err != nil {
		d.logger.Warn("write attempt ignored, bonded devices unknown", "link", ev.Link, "error", err)
		return ReplyNoBondedDevices, domain.NewDomainError(op, fmt.Errorf("%w: %w", domain.ErrNoBondedDevices, err), "")
	}
	if n == 0 {
		d.logger.Warn("write attempt with no bonded devices, ignored", "link", ev.Link)
		return ReplyNoBondedDevices, domain.NewDomainError(op, domain.ErrNoBondedDevices, "")
	}
	if d.requireAuth && !d.state.Authenticated(ev.Link) {
		d.logger.Warn("write attempt on unauthenticated link, ignored", "link", ev.Link)
		return ReplyNotAuthenticated, domain.NewDomainError(op, domain.ErrLinkNotAuthenticated, "")
	}
	if len(ev.Payload) == 0 {
		d.logger.Debug("empty write ignored", "link", ev.Link)
		return "", nil
	}

	received := string(ev.Payload)
	d.logger.Info("received command", "link", ev.Link, "command", received)
	if received != d.command {
		d.logger.Warn("unknown command received", "link", ev.Link, "command", received)
		return ReplyUnknownCommand, domain.NewDomainError(op, domain.ErrUnknownCommand, fmt.Sprintf("%q", received))
	}

	if err := d.pulseRelay(); err != nil {
		d.logger.Error("relay actuation failed", "error", err)
		return ReplyRelayFault, domain.WrapOp(op, err)
	}
	return ReplyExecuted, nil
}

// pulseRelay asserts the relay, runs the acknowledgment sweep and deasserts
// the relay once the pulse has lasted at least the configured length.
func (d *Dispatcher) pulseRelay() (err error) {
	if err := d.relay.Set(true); err != nil {
		return fmt.Errorf("assert relay: %w", err)
	}
	d.logger.Info("triggering relay")
	defer func() {
		if rerr := d.relay.Set(false); rerr != nil && err == nil {
			err = fmt.Errorf("deassert relay: %w", rerr)
		}
		d.logger.Info("relay action complete")
	}()

	start := d.clock.Now()
	d.screen.Sweep()
	if left := d.pulse - d.clock.Now().Sub(start); left > 0 {
		d.clock.Sleep(left)
	}
	return nil
}
