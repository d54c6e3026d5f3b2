// Package gesture turns a polled digital input into "held for at least d"
// events with a once-per-second countdown. The detector is generic over
// (pin, duration, label); callers give the gesture its meaning.
package gesture

import (
	"context"
	"log/slog"
	"math"
	"time"

	"garage-opener/internal/domain"
	"garage-opener/internal/infra/clock"
)

// Hold describes one gesture.
type Hold struct {
	Pin      int
	Required time.Duration
	Label    string // countdown prefix, e.g. "rst" or "PAIr"
}

// Status is the result of one Poll.
type Status int

const (
	Idle      Status = iota // input not asserted, no sample in progress
	Pending                 // sample in progress
	Completed               // held for Required
	Released                // released before Required
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Pending:
		return "pending"
	case Completed:
		return "completed"
	case Released:
		return "released"
	default:
		return "unknown"
	}
}

// Detector builds trackers sharing one input, display and clock.
type Detector struct {
	input    domain.InputReader
	display  domain.Display
	clock    clock.Clock
	debounce time.Duration
	poll     time.Duration
	logger   *slog.Logger
}

// NewDetector creates a Detector. debounce is how long the input must stay
// asserted before a sample counts; poll is the AwaitHold sampling period.
func NewDetector(input domain.InputReader, display domain.Display, clk clock.Clock, debounce, poll time.Duration, logger *slog.Logger) *Detector {
	if poll <= 0 {
		poll = 10 * time.Millisecond
	}
	return &Detector{
		input:    input,
		display:  display,
		clock:    clk,
		debounce: debounce,
		poll:     poll,
		logger:   logger,
	}
}

// Track returns a non-blocking tracker for hold.
func (d *Detector) Track(hold Hold) *Tracker {
	return &Tracker{d: d, hold: hold}
}

// AwaitHold blocks until hold completes or the input releases. It returns
// false immediately if the input is not asserted at entry.
func (d *Detector) AwaitHold(ctx context.Context, hold Hold) (bool, error) {
	t := d.Track(hold)
	status, err := t.Poll()
	if err != nil || status == Idle {
		return false, err
	}
	for {
		select {
		case <-ctx.Done():
			t.Cancel()
			return false, ctx.Err()
		default:
		}
		d.clock.Sleep(d.poll)
		status, err = t.Poll()
		if err != nil {
			return false, err
		}
		switch status {
		case Completed:
			return true, nil
		case Released, Idle:
			return false, nil
		}
	}
}

type phase int

const (
	phaseIdle phase = iota
	phaseArming
	phaseHolding
)

// Tracker follows one gesture across polls. It is not safe for concurrent
// use; the foreground loop owns it.
type Tracker struct {
	d         *Detector
	hold      Hold
	phase     phase
	startedAt time.Time
	shown     int
}

// Hold returns the gesture being tracked.
func (t *Tracker) Hold() Hold { return t.hold }

// Active reports whether a sample is in progress.
func (t *Tracker) Active() bool { return t.phase != phaseIdle }

// Poll samples the input once and advances the gesture.
func (t *Tracker) Poll() (Status, error) {
	asserted, err := t.d.input.Asserted(t.hold.Pin)
	if err != nil {
		t.Cancel()
		return Idle, err
	}
	now := t.d.clock.Now()

	if t.phase == phaseIdle {
		if !asserted {
			return Idle, nil
		}
		t.phase = phaseArming
		t.startedAt = now
		t.shown = -1
	}

	if t.phase == phaseArming {
		if !asserted {
			t.phase = phaseIdle
			return Released, nil
		}
		if now.Sub(t.startedAt) < t.d.debounce {
			return Pending, nil
		}
		t.phase = phaseHolding
	}

	if !asserted {
		t.finish()
		t.d.logger.Info("hold released early", "label", t.hold.Label)
		return Released, nil
	}

	elapsed := now.Sub(t.startedAt)
	if elapsed >= t.hold.Required {
		t.finish()
		t.d.logger.Info("hold completed", "label", t.hold.Label, "held", elapsed)
		return Completed, nil
	}

	if secs := SecondsRemaining(t.hold.Required, elapsed); secs != t.shown {
		t.shown = secs
		t.d.display.RenderNumber(uint32(secs), len(t.hold.Label), t.hold.Label)
		t.d.logger.Info("hold to confirm", "label", t.hold.Label, "seconds_remaining", secs)
	}
	return Pending, nil
}

// Cancel abandons a sample in progress, clearing any countdown.
func (t *Tracker) Cancel() {
	if t.phase == phaseHolding {
		t.finish()
		return
	}
	t.phase = phaseIdle
}

func (t *Tracker) finish() {
	t.phase = phaseIdle
	t.d.display.Clear()
}

// SecondsRemaining is ceil((required-elapsed)/1s), floored at zero.
func SecondsRemaining(required, elapsed time.Duration) int {
	left := required - elapsed
	if left <= 0 {
		return 0
	}
	return int(math.Ceil(left.Seconds()))
}
