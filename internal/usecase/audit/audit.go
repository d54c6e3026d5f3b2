// Package audit persists every access decision published on the event bus.
package audit

import (
	"context"
	"encoding/hex"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/crypto/blake2b"

	"garage-opener/internal/domain"
)

// Recorder turns bus events into access records. Peer identities are stored
// as a keyed BLAKE2b hash so the log can correlate a peer without holding
// its address.
type Recorder struct {
	store  domain.AccessEventStore
	key    []byte
	logger *slog.Logger

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// NewRecorder creates a Recorder. key salts the identity hash; it may be
// empty, and at most 64 bytes are used.
func NewRecorder(store domain.AccessEventStore, key []byte, logger *slog.Logger) *Recorder {
	if len(key) > blake2b.Size {
		key = key[:blake2b.Size]
	}
	return &Recorder{
		store:   store,
		key:     key,
		logger:  logger,
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
}

// Attach subscribes the recorder to every event on bus and returns the
// unsubscribe function.
func (r *Recorder) Attach(bus domain.EventBus) func() {
	return bus.SubscribeAll(r.Handle)
}

// Handle records one event. Store failures are logged, never propagated.
func (r *Recorder) Handle(ctx context.Context, ev domain.Event) {
	rec := domain.AccessRecord{
		ID:        r.newID(ev.Timestamp),
		Type:      ev.Type,
		Timestamp: ev.Timestamp,
		Link:      ev.Link,
		Granted:   ev.Granted(),
		Code:      ev.Code,
		Detail:    ev.Detail,
	}
	if !ev.Remote.IsZero() {
		rec.RemoteHash = r.HashIdentity(ev.Remote)
	}
	// The decision is recorded even when the publishing operation was cancelled.
	if err := r.store.Append(context.WithoutCancel(ctx), rec); err != nil {
		r.logger.Error("failed to record access event", "type", string(ev.Type), "error", err)
	}
}

// HashIdentity returns the hex keyed hash of id, truncated to 16 bytes.
func (r *Recorder) HashIdentity(id domain.Identity) string {
	h, err := blake2b.New(16, r.key)
	if err != nil {
		// Only possible with an oversized key, which NewRecorder truncates.
		panic(err)
	}
	h.Write(id[:])
	return hex.EncodeToString(h.Sum(nil))
}

func (r *Recorder) newID(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), r.entropy).String()
}
