package debounce

import (
	"sort"
	"sync"
	"time"
)

// Manual is a Scheduler driven by an explicit clock. Timers fire only from
// Advance, on the caller's goroutine.
type Manual struct {
	mu     sync.Mutex
	now    time.Duration
	nextID uint64
	timers []*manualTimer
}

type manualTimer struct {
	m       *Manual
	id      uint64
	due     time.Duration
	f       func()
	stopped bool
	fired   bool
}

// NewManual creates a manual scheduler at time zero.
func NewManual() *Manual {
	return &Manual{}
}

// AfterFunc implements Scheduler.
func (m *Manual) AfterFunc(d time.Duration, f func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	t := &manualTimer{m: m, id: m.nextID, due: m.now + max(d, 0), f: f}
	m.timers = append(m.timers, t)
	return t
}

func (t *manualTimer) Stop() bool {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Now returns the elapsed manual time.
func (m *Manual) Now() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Pending returns the number of armed timers.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// Advance moves the clock forward by d and fires every timer that falls due,
// in due order. Timers armed by a callback fire in the same Advance if they
// fall due within it.
func (m *Manual) Advance(d time.Duration) int {
	m.mu.Lock()
	target := m.now + max(d, 0)
	m.mu.Unlock()

	fired := 0
	for {
		t := m.nextDue(target)
		if t == nil {
			break
		}
		t.f()
		fired++
	}

	m.mu.Lock()
	m.now = target
	m.mu.Unlock()
	return fired
}

func (m *Manual) nextDue(target time.Duration) *manualTimer {
	m.mu.Lock()
	defer m.mu.Unlock()

	live := m.timers[:0]
	for _, t := range m.timers {
		if !t.stopped && !t.fired {
			live = append(live, t)
		}
	}
	m.timers = live

	sort.SliceStable(m.timers, func(i, j int) bool {
		if m.timers[i].due != m.timers[j].due {
			return m.timers[i].due < m.timers[j].due
		}
		return m.timers[i].id < m.timers[j].id
	})
	if len(m.timers) == 0 || m.timers[0].due > target {
		return nil
	}

	t := m.timers[0]
	t.fired = true
	if t.due > m.now {
		m.now = t.due
	}
	return t
}
