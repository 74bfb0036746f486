// Package scheduler provides the delayed re-invocation primitive that drives
// the dashboard polling loop.
package scheduler

import (
	"sort"
	"sync"
	"time"
)

// Scheduler runs a function once after a delay.
type Scheduler interface {
	// After schedules fn to run once after d. The returned Timer can cancel it.
	After(d time.Duration, fn func()) Timer
}

// Timer is a scheduled invocation.
type Timer interface {
	// Stop cancels the invocation. It reports whether the call was cancelled
	// before it ran.
	Stop() bool
}

// Real schedules on the runtime timer heap; fn runs on its own goroutine.
type Real struct{}

// NewReal returns a wall-clock scheduler.
func NewReal() Real {
	return Real{}
}

// After implements Scheduler.
func (Real) After(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

// Manual is a Scheduler driven explicitly by Advance. Scheduled functions run
// synchronously on the goroutine calling Advance, in due-time order.
type Manual struct {
	mu      sync.Mutex
	now     time.Duration
	seq     int
	pending []*manualTimer
}

// NewManual returns a manual scheduler at time zero.
func NewManual() *Manual {
	return &Manual{}
}

type manualTimer struct {
	m       *Manual
	due     time.Duration
	seq     int
	fn      func()
	stopped bool
}

func (t *manualTimer) Stop() bool {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	for i, p := range t.m.pending {
		if p == t {
			t.m.pending = append(t.m.pending[:i], t.m.pending[i+1:]...)
			t.stopped = true
			return true
		}
	}
	return false
}

// After implements Scheduler.
func (m *Manual) After(d time.Duration, fn func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	t := &manualTimer{m: m, due: m.now + d, seq: m.seq, fn: fn}
	m.pending = append(m.pending, t)
	return t
}

// Pending returns the number of scheduled, not yet run invocations.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Advance moves the clock forward by d and runs everything that became due,
// including invocations scheduled by those runs within the window.
func (m *Manual) Advance(d time.Duration) int {
	m.mu.Lock()
	target := m.now + d
	m.mu.Unlock()

	ran := 0
	for {
		m.mu.Lock()
		sort.SliceStable(m.pending, func(i, j int) bool {
			if m.pending[i].due != m.pending[j].due {
				return m.pending[i].due < m.pending[j].due
			}
			return m.pending[i].seq < m.pending[j].seq
		})
		if len(m.pending) == 0 || m.pending[0].due > target {
			m.now = target
			m.mu.Unlock()
			return ran
		}
		next := m.pending[0]
		m.pending = m.pending[1:]
		m.now = next.due
		m.mu.Unlock()

		next.fn()
		ran++
	}
}
