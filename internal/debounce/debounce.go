// Package debounce collapses bursts of calls into one callback that runs
// after a quiet period.
package debounce

import (
	"sync"
	"time"
)

// Timer is a one-shot timer that can be stopped.
type Timer interface {
	// Stop prevents the timer from firing. It returns false if the timer
	// already fired or was stopped.
	Stop() bool
}

// Scheduler arms one-shot timers. The callback runs on a goroutine chosen
// by the scheduler.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// RealScheduler returns a Scheduler backed by time.AfterFunc.
func RealScheduler() Scheduler { return realScheduler{} }

// Debouncer runs its callback once the calls to Call have stopped for at
// least the configured delay. Every Call restarts the wait from zero.
//
// All methods are safe for concurrent use. The callback never runs while
// the debouncer's lock is held, so it may call back into the debouncer.
type Debouncer struct {
	mu        sync.Mutex
	delay     time.Duration
	scheduler Scheduler
	timer     Timer
	pending   bool
	seq       uint64 // invalidates timers that were superseded
	callback  func()
}

// Option configures a Debouncer.
type Option func(*Debouncer)

// WithScheduler replaces the wall-clock scheduler.
func WithScheduler(s Scheduler) Option {
	return func(d *Debouncer) {
		if s != nil {
			d.scheduler = s
		}
	}
}

// New creates a debouncer. A negative delay is treated as zero.
func New(delay time.Duration, callback func(), opts ...Option) *Debouncer {
	d := &Debouncer{
		delay:     max(delay, 0),
		scheduler: realScheduler{},
		callback:  callback,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Call (re)arms the timer.
func (d *Debouncer) Call() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.pending = true
	d.seq++
	current := d.seq

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = d.scheduler.AfterFunc(d.delay, func() { d.fire(current) })
}

func (d *Debouncer) fire(seq uint64) {
	d.mu.Lock()
	if !d.pending || d.seq != seq || d.callback == nil {
		d.mu.Unlock()
		return
	}
	d.pending = false
	d.timer = nil
	cb := d.callback
	d.mu.Unlock()

	cb()
}

// Flush runs the callback now if a call is pending and cancels the timer.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.seq++

	if !d.pending || d.callback == nil {
		d.mu.Unlock()
		return
	}
	d.pending = false
	cb := d.callback
	d.mu.Unlock()

	cb()
}

// Cancel drops any pending call. A timer that already started firing will
// observe the cancellation and do nothing.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.seq++
	d.pending = false
}

// IsPending reports whether a call is waiting for the quiet period.
func (d *Debouncer) IsPending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}

// Delay returns the quiet period.
func (d *Debouncer) Delay() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.delay
}

// SetDelay changes the quiet period. It applies from the next Call.
func (d *Debouncer) SetDelay(delay time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.delay = max(delay, 0)
}
