package ble

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"garage-opener/internal/domain"
)

// HostPairing sequences encryption for stacks that pair in the host (BlueZ,
// CoreBluetooth). A bonded peer re-encrypts with its stored keys and is
// reported as authenticated straight away. An unknown peer raises a security
// request; its bond is recorded only after the core allows it.
type HostPairing struct {
	bonds  domain.BondStore
	emit   func(domain.TransportEvent)
	now    func() time.Time
	logger *slog.Logger

	mu      sync.Mutex
	pending map[domain.LinkID]domain.Identity
}

// NewHostPairing creates a HostPairing. emit is called from its own
// goroutine, so it may block on the event queue.
func NewHostPairing(bonds domain.BondStore, emit func(domain.TransportEvent), logger *slog.Logger) *HostPairing {
	return &HostPairing{
		bonds:   bonds,
		emit:    emit,
		now:     time.Now,
		logger:  logger,
		pending: make(map[domain.LinkID]domain.Identity),
	}
}

// Encrypt starts encryption of link with remote.
func (p *HostPairing) Encrypt(ctx context.Context, link domain.LinkID, remote domain.Identity) error {
	bonded, err := p.bonded(ctx, remote)
	if err != nil {
		return fmt.Errorf("look up bond for %s: %w", remote, err)
	}
	if bonded {
		p.logger.Debug("bonded peer re-encrypting", "link", link, "remote", remote.String())
		go p.emit(domain.AuthResolved{Link: link, Remote: remote, Success: true})
		return nil
	}

	p.mu.Lock()
	p.pending[link] = remote
	p.mu.Unlock()
	go p.emit(domain.SecurityRequested{Link: link})
	return nil
}

// Resolve completes or abandons the pairing pending on link. Links without
// a pending pairing are ignored.
func (p *HostPairing) Resolve(ctx context.Context, link domain.LinkID, verdict domain.SecurityVerdict) error {
	p.mu.Lock()
	remote, ok := p.pending[link]
	delete(p.pending, link)
	p.mu.Unlock()
	if !ok {
		return nil
	}
	if verdict != domain.SecurityAllow {
		p.logger.Debug("pairing refused", "link", link, "remote", remote.String())
		return nil
	}

	go func() {
		if err := p.save(ctx, remote); err != nil {
			p.logger.Error("failed to record bond", "remote", remote.String(), "error", err)
			p.emit(domain.AuthResolved{Link: link, Remote: remote, FailReason: -1})
			return
		}
		p.emit(domain.AuthResolved{Link: link, Remote: remote, Success: true})
	}()
	return nil
}

// Forget abandons any pairing pending on link.
func (p *HostPairing) Forget(link domain.LinkID) {
	p.mu.Lock()
	delete(p.pending, link)
	p.mu.Unlock()
}

// Pending reports whether link waits for a security verdict.
func (p *HostPairing) Pending(link domain.LinkID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.pending[link]
	return ok
}

func (p *HostPairing) save(ctx context.Context, remote domain.Identity) error {
	if p.bonds == nil {
		return nil
	}
	return p.bonds.Save(ctx, domain.BondedDevice{Identity: remote, BondedAt: p.now()})
}

func (p *HostPairing) bonded(ctx context.Context, remote domain.Identity) (bool, error) {
	if p.bonds == nil {
		return false, nil
	}
	n, err := p.bonds.Count(ctx)
	if err != nil || n == 0 {
		return false, err
	}
	// One spare slot absorbs a bond saved between Count and Enumerate.
	buf := make([]domain.BondedDevice, n+1)
	n, err = p.bonds.Enumerate(ctx, buf)
	if err != nil {
		return false, err
	}
	for _, dev := range buf[:n] {
		if dev.Identity == remote {
			return true, nil
		}
	}
	return false, nil
}
