package spam

import (
	"sync"
	"testing"
	"time"
)

// stub timer source: captures the reset callbacks instead of arming
// real timers.
type resetCapture struct {
	mu        sync.Mutex
	callbacks []func()
}

func (c *resetCapture) afterFunc(_ time.Duration, fn func()) *time.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callbacks = append(c.callbacks, fn)
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	return timer
}

func (c *resetCapture) fireAll() {
	c.mu.Lock()
	callbacks := c.callbacks
	c.callbacks = nil
	c.mu.Unlock()
	for _, fn := range callbacks {
		fn()
	}
}

func newTestLimiter(limit int) (*Limiter, *resetCapture) {
	capture := &resetCapture{}
	l := NewLimiter(limit, time.Minute)
	l.afterFunc = capture.afterFunc
	return l, capture
}

func TestObserveTransitionTable(t *testing.T) {
	l, _ := newTestLimiter(3)
	want := []Verdict{Forward, Forward, Forward, Warn, Drop, Drop}
	for i, w := range want {
		if got := l.Observe(7); got != w {
			t.Fatalf("message %d verdict = %v, want %v", i+1, got, w)
		}
	}
}

func TestExactlyOneWarnPerWindow(t *testing.T) {
	l, _ := newTestLimiter(2)
	warns := 0
	for i := 0; i < 20; i++ {
		if l.Observe(1) == Warn {
			warns++
		}
	}
	if warns != 1 {
		t.Fatalf("warn count = %d, want 1", warns)
	}
}

func TestWindowResetStartsFresh(t *testing.T) {
	l, capture := newTestLimiter(1)
	if got := l.Observe(5); got != Forward {
		t.Fatalf("first verdict = %v, want Forward", got)
	}
	if got := l.Observe(5); got != Warn {
		t.Fatalf("second verdict = %v, want Warn", got)
	}
	capture.fireAll()
	if got := l.Observe(5); got != Forward {
		t.Fatalf("verdict after reset = %v, want Forward", got)
	}
}

func TestDuplicateResetIsIdempotent(t *testing.T) {
	l, capture := newTestLimiter(1)
	l.Observe(9)
	capture.fireAll()
	l.Observe(9) // arms a second reset for the same ticket
	capture.fireAll()
	capture.fireAll() // no pending callbacks; must not panic or corrupt state
	if got := l.Observe(9); got != Forward {
		t.Fatalf("verdict = %v, want Forward", got)
	}
}

func TestForgetClearsCounter(t *testing.T) {
	l, _ := newTestLimiter(1)
	l.Observe(3)
	l.Observe(3)
	l.Forget(3)
	if got := l.Observe(3); got != Forward {
		t.Fatalf("verdict after Forget = %v, want Forward", got)
	}
}

func TestTicketsAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(2)
	l.Observe(1)
	l.Observe(1)
	if got := l.Observe(1); got != Warn {
		t.Fatalf("ticket 1 verdict = %v, want Warn", got)
	}
	if got := l.Observe(2); got != Forward {
		t.Fatalf("ticket 2 verdict = %v, want Forward", got)
	}
}

func TestObserveIsSafeUnderConcurrency(t *testing.T) {
	l, _ := newTestLimiter(100)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				l.Observe(int64(j % 4))
			}
		}()
	}
	wg.Wait()
}
