package access

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"garage-opener/internal/domain"
	"garage-opener/internal/infra/clock"
)

// Gatekeeper decides whether a link may stay open and whether it may be
// elevated to an encrypted, authenticated link. Both checks fail closed.
type Gatekeeper struct {
	policy     *enrollmentPolicy
	state      *State
	screen     *Screen
	transport  domain.Transport
	clock      clock.Clock
	pub        *publisher
	rejectHold time.Duration
	warn       *throttledWarn
	logger     *slog.Logger
}

// OnLinkEstablished admits or rejects a new link. A rejected link is
// disconnected and the returned error wraps domain.ErrUnauthorizedConnection.
func (g *Gatekeeper) OnLinkEstablished(ctx context.Context, ev domain.LinkEstablished) error {
	if err := g.admit(ctx, ev.Remote); err != nil {
		g.reject(ctx, ev.Link, ev.Remote, "UNAUTH", domain.EventLinkRejected, err)
		g.warn.Warn("unauthorized connection attempt, disconnecting",
			"link", ev.Link, "remote", ev.Remote.String(), "reason", err)
		return domain.NewDomainError("Gatekeeper.OnLinkEstablished", err, ev.Remote.String())
	}

	g.state.connect(ev.Link, ev.Remote, g.clock.Now())
	g.pub.publish(ctx, domain.EventLinkAllowed, ev.Link, ev.Remote, nil, "")
	g.logger.Info("device connected, starting secure connection",
		"link", ev.Link, "remote", ev.Remote.String())

	if err := g.transport.RequestEncryption(ev.Link, ev.Remote); err != nil {
		g.screen.Render("COn FAil", 0, "")
		g.logger.Warn("encryption request failed", "link", ev.Link, "error", err)
		return nil
	}
	g.screen.Render("COn 6ood", 0, "")
	return nil
}

func (g *Gatekeeper) admit(ctx context.Context, remote domain.Identity) error {
	open, err := g.policy.open(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrUnauthorizedConnection, err)
	}
	if open {
		return nil
	}
	bonded, err := g.policy.bonds.Contains(ctx, remote)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrUnauthorizedConnection, err)
	}
	if !bonded {
		return domain.ErrUnauthorizedConnection
	}
	return nil
}

// OnSecurityRequested answers a request to start pairing on a link. It
// rejects when the registry is non-empty and enrollment is closed, when the
// registry cannot be read, or when the link was never admitted.
func (g *Gatekeeper) OnSecurityRequested(ctx context.Context, ev domain.SecurityRequested) (domain.SecurityVerdict, error) {
	cs, known := g.state.Link(ev.Link)
	if !known {
		g.logger.Debug("security request for unknown link", "link", ev.Link)
		return domain.SecurityReject, domain.NewDomainError("Gatekeeper.OnSecurityRequested",
			fmt.Errorf("%w: %w", domain.ErrUnauthorizedPairing, domain.ErrUnknownLink), "")
	}

	open, err := g.policy.open(ctx)
	if err != nil || !open {
		cause := domain.ErrUnauthorizedPairing
		if err != nil {
			cause = fmt.Errorf("%w: %w", domain.ErrUnauthorizedPairing, err)
		}
		g.reject(ctx, ev.Link, cs.Remote, "SEC rEj", domain.EventSecurityRejected, cause)
		g.warn.Warn("security request rejected, not in pairing mode",
			"link", ev.Link, "remote", cs.Remote.String(), "reason", cause)
		return domain.SecurityReject, domain.NewDomainError("Gatekeeper.OnSecurityRequested", cause, cs.Remote.String())
	}

	g.pub.publish(ctx, domain.EventSecurityAllowed, ev.Link, cs.Remote, nil, "")
	g.logger.Info("security request allowed", "link", ev.Link, "remote", cs.Remote.String())
	return domain.SecurityAllow, nil
}

// OnLinkLost forgets the link, releases a passkey it held and restarts
// advertising so bonded peers can reconnect.
func (g *Gatekeeper) OnLinkLost(ctx context.Context, ev domain.LinkLost) {
	prev, hadPasskey := g.state.drop(ev.Link)
	if hadPasskey {
		g.screen.dropPasskey()
		g.logger.Info("passkey withdrawn, link lost before authentication", "link", ev.Link)
	}
	g.screen.Render("COn Dis", 0, "")
	g.pub.publish(ctx, domain.EventLinkLost, ev.Link, prev.Remote, nil, "")
	g.logger.Info("device disconnected", "link", ev.Link, "remote", prev.Remote.String())

	n, err := g.policy.bonds.Count(ctx)
	if err != nil {
		g.logger.Warn("cannot count bonded devices after disconnect", "error", err)
		return
	}
	if n == 0 {
		return
	}
	if err := g.transport.StartAdvertising(); err != nil {
		g.logger.Warn("restart advertising failed", "error", err)
		return
	}
	g.screen.Render("Adv st", 0, "")
	g.logger.Info("advertising restarted for reconnection of bonded devices")
}

// reject shows the indicator, optionally holds it, then drops the link.
func (g *Gatekeeper) reject(ctx context.Context, link domain.LinkID, remote domain.Identity, indicator string, typ domain.EventType, cause error) {
	g.screen.Render(indicator, 0, "")
	if g.rejectHold > 0 {
		g.clock.Sleep(g.rejectHold)
	}
	if _, hadPasskey := g.state.drop(link); hadPasskey {
		g.screen.dropPasskey()
	}
	if err := g.transport.Disconnect(link); err != nil {
		g.logger.Warn("disconnect failed", "link", link, "error", err)
	}
	g.pub.publish(ctx, typ, link, remote, cause, "")
}
