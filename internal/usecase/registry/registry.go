// Package registry is the read-mostly view over the persisted set of bonded
// peers. Enumeration borrows a buffer from a bounded pool for the duration of
// one call; when no buffer can be leased the call fails with
// domain.ErrAllocation and callers must deny.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"garage-opener/internal/domain"
)

// Config bounds enumeration.
type Config struct {
	MaxBonds     int           // capacity of each enumeration buffer; bond stores evict beyond it
	Buffers      int           // number of buffers that may be leased at once
	LeaseTimeout time.Duration // how long List waits for a free buffer
}

// Registry implements the bonded-device contract over a domain.BondStore.
type Registry struct {
	store     domain.BondStore
	restarter domain.Restarter
	config    Config
	logger    *slog.Logger

	pool   chan []domain.BondedDevice
	leased atomic.Int64
}

// New creates a Registry. Zero config fields fall back to a single buffer of
// 15 records and a 50ms lease timeout.
func New(store domain.BondStore, restarter domain.Restarter, cfg Config, logger *slog.Logger) *Registry {
	if cfg.MaxBonds <= 0 {
		cfg.MaxBonds = 15
	}
	if cfg.Buffers <= 0 {
		cfg.Buffers = 1
	}
	if cfg.LeaseTimeout <= 0 {
		cfg.LeaseTimeout = 50 * time.Millisecond
	}

	pool := make(chan []domain.BondedDevice, cfg.Buffers)
	for range cfg.Buffers {
		pool <- make([]domain.BondedDevice, cfg.MaxBonds)
	}

	return &Registry{
		store:     store,
		restarter: restarter,
		config:    cfg,
		logger:    logger,
		pool:      pool,
	}
}

// Count returns the number of bonded peers.
func (r *Registry) Count(ctx context.Context) (int, error) {
	n, err := r.store.Count(ctx)
	if err != nil {
		return 0, domain.WrapOp("Registry.Count", err)
	}
	return n, nil
}

// List returns an owned copy of every bonded record, in store order.
func (r *Registry) List(ctx context.Context) ([]domain.BondedDevice, error) {
	buf, release, err := r.lease(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	n, err := r.store.Enumerate(ctx, buf)
	if err != nil {
		return nil, domain.WrapOp("Registry.List", err)
	}

	out := make([]domain.BondedDevice, n)
	copy(out, buf[:n])
	return out, nil
}

// Contains reports whether id is bonded. It fails exactly when List fails.
func (r *Registry) Contains(ctx context.Context, id domain.Identity) (bool, error) {
	buf, release, err := r.lease(ctx)
	if err != nil {
		return false, err
	}
	defer release()

	n, err := r.store.Enumerate(ctx, buf)
	if err != nil {
		return false, domain.WrapOp("Registry.Contains", err)
	}
	for _, dev := range buf[:n] {
		if dev.Identity == id {
			return true, nil
		}
	}
	return false, nil
}

// EraseAll removes every bond and then asks for a process restart. The
// caller must stop handling events once EraseAll returns nil.
func (r *Registry) EraseAll(ctx context.Context, reason string) error {
	if err := r.store.EraseAll(ctx); err != nil {
		return domain.WrapOp("Registry.EraseAll", err)
	}
	r.logger.Warn("all bonded devices removed, restarting", "reason", reason)
	r.restarter.Restart(reason)
	return nil
}

// Leased returns the number of buffers currently on loan.
func (r *Registry) Leased() int { return int(r.leased.Load()) }

// lease borrows an enumeration buffer. The returned release func must be
// called exactly once; it scrubs the buffer before returning it to the pool.
func (r *Registry) lease(ctx context.Context) ([]domain.BondedDevice, func(), error) {
	ctx, cancel := context.WithTimeout(ctx, r.config.LeaseTimeout)
	defer cancel()

	select {
	case buf := <-r.pool:
		r.leased.Add(1)
		var once atomic.Bool
		return buf, func() {
			if once.Swap(true) {
				return
			}
			clear(buf)
			r.leased.Add(-1)
			r.pool <- buf
		}, nil
	case <-ctx.Done():
		return nil, nil, domain.NewDomainError("Registry.lease", domain.ErrAllocation,
			fmt.Sprintf("%d buffers busy", r.config.Buffers))
	}
}
