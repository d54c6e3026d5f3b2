package access

import (
	"context"
	"fmt"
	"log/slog"

	"garage-opener/internal/domain"
)

// Coordinator handles the passkey and the terminal outcome of an
// authentication attempt.
type Coordinator struct {
	policy    *enrollmentPolicy
	state     *State
	screen    *Screen
	transport domain.Transport
	window    *PairingWindow
	pub       *publisher
	logger    *slog.Logger
}

// OnPasskeyReady displays the passkey, or suppresses it and drops the link
// when enrollment is closed or the link was never admitted. The passkey stays
// on the display until the next authentication outcome or until its link is
// lost.
func (c *Coordinator) OnPasskeyReady(ctx context.Context, ev domain.PasskeyReady) error {
	cs, known := c.state.Link(ev.Link)

	open, err := c.policy.open(ctx)
	if err != nil || !open || !known {
		cause := domain.ErrUnauthorizedPairing
		switch {
		case err != nil:
			cause = fmt.Errorf("%w: %w", domain.ErrUnauthorizedPairing, err)
		case !known:
			cause = fmt.Errorf("%w: %w", domain.ErrUnauthorizedPairing, domain.ErrUnknownLink)
		}
		if _, hadPasskey := c.state.drop(ev.Link); hadPasskey {
			c.screen.dropPasskey()
		}
		if derr := c.transport.Disconnect(ev.Link); derr != nil {
			c.logger.Warn("disconnect failed", "link", ev.Link, "error", derr)
		}
		c.pub.publish(ctx, domain.EventPasskeySuppress, ev.Link, cs.Remote, cause, "")
		c.logger.Error("unauthorized pairing attempt, passkey not displayed",
			"link", ev.Link, "remote", cs.Remote.String(), "reason", cause)
		return domain.NewDomainError("Coordinator.OnPasskeyReady", cause, cs.Remote.String())
	}

	c.state.holdPasskey(ev.Link, ev.Passkey)
	c.screen.showPasskey(ev.Passkey)
	c.pub.publish(ctx, domain.EventPasskeyShown, ev.Link, cs.Remote, nil, "")
	c.logger.Info("pairing passkey displayed, enter it on the client", "link", ev.Link)
	return nil
}

// OnAuthenticationResolved clears the passkey, shows the outcome and closes
// an active pairing window whatever the outcome. A failed attempt drops the
// link and returns an error wrapping domain.ErrAuthenticationFailed, even when
// the link is unknown. A successful outcome for a link that is not connected
// only clears the passkey and returns domain.ErrUnknownLink.
func (c *Coordinator) OnAuthenticationResolved(ctx context.Context, ev domain.AuthResolved) error {
	if c.state.clearPasskey() {
		c.screen.dropPasskey()
	}

	cs, known := c.state.Link(ev.Link)
	if !known && ev.Success {
		// The link was rejected or already dropped; its success grants nothing.
		c.logger.Warn("authentication outcome for unknown link ignored", "link", ev.Link)
		return domain.NewDomainError("Coordinator.OnAuthenticationResolved", domain.ErrUnknownLink, "")
	}
	remote := ev.Remote
	if remote.IsZero() {
		remote = cs.Remote
	}

	var result error
	if ev.Success {
		c.state.authenticate(ev.Link)
		c.screen.Render("SEC PASS", 0, "")
		c.pub.publish(ctx, domain.EventAuthSucceeded, ev.Link, remote, nil, "")
		c.logger.Info("authentication succeeded, device bonded", "link", ev.Link, "remote", remote.String())
	} else {
		detail := fmt.Sprintf("reason %d", ev.FailReason)
		cause := domain.ErrAuthenticationFailed
		if !known {
			cause = fmt.Errorf("%w: %w", domain.ErrAuthenticationFailed, domain.ErrUnknownLink)
		}
		result = domain.NewDomainError("Coordinator.OnAuthenticationResolved", cause, detail)
		c.screen.Render("SEC FAIL", 0, "")
		c.state.drop(ev.Link)
		if err := c.transport.Disconnect(ev.Link); err != nil {
			c.logger.Warn("disconnect failed", "link", ev.Link, "error", err)
		}
		c.pub.publish(ctx, domain.EventAuthFailed, ev.Link, remote, domain.ErrAuthenticationFailed, detail)
		c.logger.Warn("authentication failed, connection terminated",
			"link", ev.Link, "remote", remote.String(), "fail_reason", ev.FailReason)
	}

	outcome := "success"
	if !ev.Success {
		outcome = "failure"
	}
	c.window.Resolve(ctx, outcome)
	return result
}
