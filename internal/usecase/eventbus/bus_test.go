package eventbus

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"garage-opener/internal/domain"
)

func newTestBus() *Bus {
	return New(slog.Default())
}

func newEvent(t domain.EventType) domain.Event {
	return domain.Event{Type: t, Timestamp: time.Now()}
}

func TestPublishSubscribe(t *testing.T) {
	bus := newTestBus()

	var got atomic.Int32
	bus.Subscribe(domain.EventLinkRejected, func(_ context.Context, e domain.Event) {
		if e.Type == domain.EventLinkRejected {
			got.Add(1)
		}
	})

	bus.Publish(context.Background(), newEvent(domain.EventLinkRejected))
	bus.Publish(context.Background(), newEvent(domain.EventLinkAllowed))
	bus.Close() // drain
	if got.Load() != 1 {
		t.Fatalf("expected 1, got %d", got.Load())
	}
}

func TestSubscribeAll(t *testing.T) {
	bus := newTestBus()

	var got atomic.Int32
	bus.SubscribeAll(func(_ context.Context, _ domain.Event) {
		got.Add(1)
	})

	bus.Publish(context.Background(), newEvent(domain.EventWindowOpened))
	bus.Publish(context.Background(), newEvent(domain.EventWindowClosed))
	bus.Close()

	if got.Load() != 2 {
		t.Fatalf("expected 2, got %d", got.Load())
	}
}

func TestDeliveryOrderPerSubscriber(t *testing.T) {
	bus := newTestBus()

	var mu sync.Mutex
	var seen []domain.EventType
	bus.SubscribeAll(func(_ context.Context, e domain.Event) {
		mu.Lock()
		seen = append(seen, e.Type)
		mu.Unlock()
	})

	order := []domain.EventType{
		domain.EventLinkAllowed,
		domain.EventSecurityAllowed,
		domain.EventPasskeyShown,
		domain.EventAuthSucceeded,
		domain.EventWindowClosed,
	}
	for _, typ := range order {
		bus.Publish(context.Background(), newEvent(typ))
	}
	bus.Close()

	if len(seen) != len(order) {
		t.Fatalf("got %d events, want %d", len(seen), len(order))
	}
	for i := range order {
		if seen[i] != order[i] {
			t.Errorf("event %d = %s, want %s", i, seen[i], order[i])
		}
	}
}

func TestUnsubscribe(t *testing.T) {
	bus := newTestBus()

	var got atomic.Int32
	unsub := bus.Subscribe(domain.EventLinkRejected, func(_ context.Context, _ domain.Event) {
		got.Add(1)
	})
	unsub()
	unsub() // idempotent

	bus.Publish(context.Background(), newEvent(domain.EventLinkRejected))
	bus.Close()

	if got.Load() != 0 {
		t.Fatalf("expected 0 after unsub, got %d", got.Load())
	}
}

func TestConcurrentPublish(t *testing.T) {
	bus := NewWithBuffer(slog.Default(), 200)

	var got atomic.Int32
	bus.Subscribe(domain.EventCommandExecuted, func(_ context.Context, _ domain.Event) {
		got.Add(1)
	})

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bus.Publish(context.Background(), newEvent(domain.EventCommandExecuted))
		}()
	}
	wg.Wait()
	bus.Close()

	if got.Load() != 100 {
		t.Fatalf("expected 100, got %d", got.Load())
	}
}

func TestFullQueueDrops(t *testing.T) {
	bus := NewWithBuffer(slog.Default(), 1)

	release := make(chan struct{})
	var got atomic.Int32
	bus.SubscribeAll(func(_ context.Context, _ domain.Event) {
		<-release
		got.Add(1)
	})

	for i := 0; i < 10; i++ {
		bus.Publish(context.Background(), newEvent(domain.EventLinkRejected))
	}
	close(release)
	bus.Close()

	if bus.Dropped() == 0 {
		t.Fatal("expected dropped deliveries with a queue depth of 1")
	}
	if int(got.Load())+int(bus.Dropped()) != 10 {
		t.Fatalf("delivered %d + dropped %d != 10", got.Load(), bus.Dropped())
	}
}

func TestPanicRecovery(t *testing.T) {
	bus := newTestBus()

	var got atomic.Int32
	bus.Subscribe(domain.EventAuthFailed, func(_ context.Context, _ domain.Event) {
		panic("boom")
	})
	bus.Subscribe(domain.EventAuthFailed, func(_ context.Context, _ domain.Event) {
		got.Add(1)
	})

	bus.Publish(context.Background(), newEvent(domain.EventAuthFailed))
	bus.Publish(context.Background(), newEvent(domain.EventAuthFailed))
	bus.Close()

	if got.Load() != 2 {
		t.Fatalf("expected 2 (second handler), got %d", got.Load())
	}
}

func TestCloseDrainsAndRejectsNew(t *testing.T) {
	bus := newTestBus()

	var got atomic.Int32
	bus.Subscribe(domain.EventWindowOpened, func(_ context.Context, _ domain.Event) {
		time.Sleep(50 * time.Millisecond)
		got.Add(1)
	})

	bus.Publish(context.Background(), newEvent(domain.EventWindowOpened))
	bus.Close() // should block until the handler finishes

	if got.Load() != 1 {
		t.Fatalf("expected handler to have run, got %d", got.Load())
	}

	bus.Publish(context.Background(), newEvent(domain.EventWindowOpened))
	bus.Close()
	if got.Load() != 1 {
		t.Fatalf("expected no delivery after close, got %d", got.Load())
	}
}
