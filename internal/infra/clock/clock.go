// Package clock provides an injectable time source.
//
// Production code takes a Clock instead of calling time.Now, time.Sleep or
// time.After directly. Real() wraps the time package; Fake() is a
// deterministic clock for tests that only moves when told to.
package clock

import "time"

// Clock abstracts the time operations used by the access core.
type Clock interface {
	// Now returns the current time. The monotonic reading is what the
	// pairing-window timeout is compared against.
	Now() time.Time
	// Sleep pauses the caller for at least d.
	Sleep(d time.Duration)
	// After returns a channel that receives the current time once d elapses.
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

// Real returns a Clock backed by the time package.
func Real() Clock { return realClock{} }

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) Sleep(d time.Duration)                  { time.Sleep(d) }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
