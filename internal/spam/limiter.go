// Package spam throttles inbound end-user messages per ticket. Staff
// traffic never passes through here. The policy is: forward the first
// `limit` messages of a window, produce exactly one blocked notice on the
// message after that, then drop silently until the window elapses.
package spam

import (
	"sync"
	"time"
)

type Verdict int

const (
	// Forward relays the message normally.
	Forward Verdict = iota
	// Warn suppresses the message and sends the single blocked notice.
	Warn
	// Drop suppresses the message with no notice.
	Drop
)

type Limiter struct {
	mu     sync.Mutex
	counts map[int64]int
	timers map[int64]*time.Timer

	limit  int
	window time.Duration

	// afterFunc is swappable in tests.
	afterFunc func(time.Duration, func()) *time.Timer
}

func NewLimiter(limit int, window time.Duration) *Limiter {
	if limit <= 0 {
		limit = 5
	}
	if window <= 0 {
		window = 5 * time.Minute
	}
	return &Limiter{
		counts:    make(map[int64]int),
		timers:    make(map[int64]*time.Timer),
		limit:     limit,
		window:    window,
		afterFunc: time.AfterFunc,
	}
}

// Observe records one inbound user message for the ticket and returns
// the verdict. The count-compare-schedule sequence is a single critical
// section; a pending window reset is never rescheduled by later
// messages.
func (l *Limiter) Observe(ticketID int64) Verdict {
	l.mu.Lock()
	defer l.mu.Unlock()

	count, seen := l.counts[ticketID]
	if !seen {
		l.counts[ticketID] = 1
		l.timers[ticketID] = l.afterFunc(l.window, func() { l.reset(ticketID) })
		return Forward
	}
	l.counts[ticketID] = count + 1
	switch {
	case count < l.limit:
		return Forward
	case count == l.limit:
		return Warn
	default:
		return Drop
	}
}

// Forget clears the ticket's counter and cancels its pending reset.
// Called when a ticket closes so timers do not leak.
func (l *Limiter) Forget(ticketID int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if timer, ok := l.timers[ticketID]; ok {
		timer.Stop()
	}
	delete(l.counts, ticketID)
	delete(l.timers, ticketID)
}

// reset is the fire-once window expiry. A duplicate in-flight reset for
// a ticket whose counter is already gone is a no-op.
func (l *Limiter) reset(ticketID int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.counts, ticketID)
	delete(l.timers, ticketID)
}
