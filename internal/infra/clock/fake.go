package clock

import (
	"sync"
	"time"
)

// FakeClock is a deterministic Clock. Time stands still until Advance or
// Sleep is called. Sleep advances the fake time itself instead of blocking,
// which lets single-goroutine code that polls and sleeps (the gesture
// detector, the relay pulse) run to completion instantly in tests.
//
// FakeClock is safe for concurrent use.
type FakeClock struct {
	mu      sync.Mutex
	current time.Time
	waiters []fakeWaiter
	onSleep func(d time.Duration)
}

type fakeWaiter struct {
	deadline time.Time
	channel  chan time.Time
}

// Fake returns a FakeClock set to initial.
func Fake(initial time.Time) *FakeClock {
	return &FakeClock{current: initial}
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Sleep advances the clock by d and fires any waiters that became due.
func (c *FakeClock) Sleep(d time.Duration) {
	c.mu.Lock()
	hook := c.onSleep
	c.mu.Unlock()
	c.Advance(d)
	if hook != nil {
		hook(d)
	}
}

// OnSleep installs a hook called after every Sleep, once the clock has moved.
// Tests use it to change simulated inputs at precise instants.
func (c *FakeClock) OnSleep(hook func(d time.Duration)) {
	c.mu.Lock()
	c.onSleep = hook
	c.mu.Unlock()
}

// After returns a channel that receives once the clock reaches now+d. If
// d <= 0 the channel receives immediately.
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan time.Time, 1)
	if d <= 0 {
		ch <- c.current
		return ch
	}
	c.waiters = append(c.waiters, fakeWaiter{deadline: c.current.Add(d), channel: ch})
	return ch
}

// Advance moves the clock forward by d and fires every waiter whose deadline
// has passed.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.current = c.current.Add(d)
	kept := c.waiters[:0]
	for _, w := range c.waiters {
		if !w.deadline.After(c.current) {
			w.channel <- c.current
			continue
		}
		kept = append(kept, w)
	}
	c.waiters = kept
}

// Pending returns the number of After waiters that have not fired.
func (c *FakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}
