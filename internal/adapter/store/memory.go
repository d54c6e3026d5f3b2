package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"garage-opener/internal/domain"
)

// MemoryBondStore is a volatile domain.BondStore.
type MemoryBondStore struct {
	mu       sync.RWMutex
	devices  []domain.BondedDevice
	capacity int
}

// NewMemoryBondStore returns a store holding devices.
func NewMemoryBondStore(devices ...domain.BondedDevice) *MemoryBondStore {
	return &MemoryBondStore{devices: append([]domain.BondedDevice(nil), devices...)}
}

// WithCapacity bounds the store like SQLiteBondStore: saving a new bond into
// a full store evicts the oldest one.
func (s *MemoryBondStore) WithCapacity(n int) *MemoryBondStore {
	s.mu.Lock()
	s.capacity = n
	s.mu.Unlock()
	return s
}

func (s *MemoryBondStore) Count(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.devices), nil
}

func (s *MemoryBondStore) Enumerate(_ context.Context, buf []domain.BondedDevice) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.devices) > len(buf) {
		return 0, domain.NewDomainError("MemoryBondStore.Enumerate", domain.ErrAllocation,
			fmt.Sprintf("%d bonds, buffer holds %d", len(s.devices), len(buf)))
	}
	return copy(buf, s.devices), nil
}

func (s *MemoryBondStore) Save(_ context.Context, dev domain.BondedDevice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if dev.BondedAt.IsZero() {
		dev.BondedAt = time.Now()
	}
	for i := range s.devices {
		if s.devices[i].Identity == dev.Identity {
			s.devices[i] = dev
			return nil
		}
	}
	s.devices = append(s.devices, dev)
	if s.capacity > 0 && len(s.devices) > s.capacity {
		s.devices = append([]domain.BondedDevice(nil), s.devices[len(s.devices)-s.capacity:]...)
	}
	return nil
}

func (s *MemoryBondStore) EraseAll(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices = nil
	return nil
}

var _ domain.BondStore = (*MemoryBondStore)(nil)
