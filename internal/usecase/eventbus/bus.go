package eventbus

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"garage-opener/internal/domain"
)

// DefaultBuffer is the per-subscriber queue depth.
const DefaultBuffer = 64

type delivery struct {
	ctx   context.Context
	event domain.Event
}

type subscription struct {
	id      uint64
	typ     domain.EventType // empty for all-event subscribers
	handler domain.EventHandler
	queue   chan delivery
	done    chan struct{}
	once    sync.Once
}

func (s *subscription) stop() {
	s.once.Do(func() { close(s.queue) })
}

// Bus is an in-process, goroutine-safe event bus. Every subscriber has its own
// queue drained by a single goroutine, so a subscriber sees events in publish
// order. Publish never blocks the caller: when a subscriber's queue is full the
// event is dropped for that subscriber and counted.
type Bus struct {
	mu      sync.RWMutex
	subs    map[uint64]*subscription
	nextID  atomic.Uint64
	dropped atomic.Uint64
	buffer  int
	logger  *slog.Logger
	wg      sync.WaitGroup
	closed  atomic.Bool
}

// New creates an event bus with DefaultBuffer per subscriber.
func New(logger *slog.Logger) *Bus {
	return NewWithBuffer(logger, DefaultBuffer)
}

// NewWithBuffer creates an event bus with the given per-subscriber queue depth.
func NewWithBuffer(logger *slog.Logger, buffer int) *Bus {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Bus{
		subs:   make(map[uint64]*subscription),
		buffer: buffer,
		logger: logger,
	}
}

// Publish fans out an event to matching typed subscribers and all-event subscribers.
func (b *Bus) Publish(ctx context.Context, event domain.Event) {
	if b.closed.Load() {
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if sub.typ != "" && sub.typ != event.Type {
			continue
		}
		select {
		case sub.queue <- delivery{ctx: ctx, event: event}:
		default:
			n := b.dropped.Add(1)
			b.logger.Warn("event dropped, subscriber queue full",
				"event", string(event.Type),
				"dropped_total", n,
			)
		}
	}
}

// Dropped returns how many deliveries were dropped because a queue was full.
func (b *Bus) Dropped() uint64 { return b.dropped.Load() }

// Subscribe registers a handler for a specific event type.
// Returns an unsubscribe function.
func (b *Bus) Subscribe(eventType domain.EventType, handler domain.EventHandler) func() {
	return b.add(eventType, handler)
}

// SubscribeAll registers a handler that receives every event.
// Returns an unsubscribe function.
func (b *Bus) SubscribeAll(handler domain.EventHandler) func() {
	return b.add("", handler)
}

func (b *Bus) add(eventType domain.EventType, handler domain.EventHandler) func() {
	sub := &subscription{
		id:      b.nextID.Add(1),
		typ:     eventType,
		handler: handler,
		queue:   make(chan delivery, b.buffer),
		done:    make(chan struct{}),
	}

	b.mu.Lock()
	if b.closed.Load() {
		b.mu.Unlock()
		return func() {}
	}
	b.subs[sub.id] = sub
	b.wg.Add(1)
	b.mu.Unlock()

	go b.drain(sub)

	return func() {
		b.mu.Lock()
		_, ok := b.subs[sub.id]
		delete(b.subs, sub.id)
		b.mu.Unlock()
		if ok {
			sub.stop()
		}
	}
}

func (b *Bus) drain(sub *subscription) {
	defer b.wg.Done()
	defer close(sub.done)
	for d := range sub.queue {
		b.invoke(sub, d)
	}
}

func (b *Bus) invoke(sub *subscription, d delivery) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				"event", string(d.event.Type),
				"panic", r,
			)
		}
	}()
	sub.handler(d.ctx, d.event)
}

// Close prevents new publishes and waits for every queued event to be handled.
// Close is idempotent and safe to call multiple times.
func (b *Bus) Close() {
	if b.closed.Swap(true) {
		return
	}
	b.mu.Lock()
	for id, sub := range b.subs {
		delete(b.subs, id)
		sub.stop()
	}
	b.mu.Unlock()
	b.wg.Wait()
}

var _ domain.EventBus = (*Bus)(nil)
