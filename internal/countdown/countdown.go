// Package countdown implements the exam's single deadline timer.
//
// A Countdown is not safe for concurrent use; the session event loop owns it and
// feeds it ticks from a Ticker.
package countdown

import (
	"errors"
	"fmt"
)

var (
	ErrAlreadyStarted = errors.New("countdown already started")
	ErrCancelled      = errors.New("countdown cancelled")
)

// Countdown counts whole seconds down to zero and fires onComplete exactly once.
type Countdown struct {
	remaining  int
	started    bool
	finished   bool
	cancelled  bool
	onComplete func()
}

// New creates a stopped countdown of durationSeconds.
func New(durationSeconds int, onComplete func()) *Countdown {
	return &Countdown{
		remaining:  max(durationSeconds, 0),
		onComplete: onComplete,
	}
}

// Start arms the countdown. A zero duration completes immediately.
func (c *Countdown) Start() error {
	if c.cancelled {
		return ErrCancelled
	}
	if c.started {
		return ErrAlreadyStarted
	}
	c.started = true

	if c.remaining == 0 {
		c.complete()
	}
	return nil
}

// Tick advances the countdown by one second and returns the seconds left.
func (c *Countdown) Tick() int {
	if !c.Running() {
		return c.remaining
	}

	c.remaining--
	if c.remaining <= 0 {
		c.remaining = 0
		c.complete()
	}
	return c.remaining
}

// Cancel stops the countdown without firing completion.
func (c *Countdown) Cancel() {
	c.cancelled = true
}

// Remaining returns the seconds left.
func (c *Countdown) Remaining() int {
	return c.remaining
}

// Running reports whether ticks still have an effect.
func (c *Countdown) Running() bool {
	return c.started && !c.finished && !c.cancelled
}

// Finished reports whether completion has fired.
func (c *Countdown) Finished() bool {
	return c.finished
}

func (c *Countdown) complete() {
	if c.finished {
		return
	}
	c.finished = true
	if c.onComplete != nil {
		c.onComplete()
	}
}

// Format renders seconds as H:MM:SS above one hour and MM:SS otherwise.
func Format(seconds int) string {
	seconds = max(seconds, 0)
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60

	if seconds > 3600 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m+h*60, s)
}
