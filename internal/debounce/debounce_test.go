package debounce

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestBurstFiresOnce(t *testing.T) {
	for _, delay := range []time.Duration{0, time.Millisecond, 15 * time.Millisecond, time.Second} {
		clock := NewManual()
		var calls int
		d := New(delay, func() { calls++ }, WithScheduler(clock))

		for i := 0; i < 10; i++ {
			d.Call()
			if delay > 0 {
				clock.Advance(delay / 2)
			}
		}
		assert.Zero(t, calls, "delay %v: fired inside burst", delay)
		assert.True(t, d.IsPending())

		clock.Advance(delay)
		assert.Equal(t, 1, calls, "delay %v", delay)
		assert.False(t, d.IsPending())

		clock.Advance(10 * delay)
		assert.Equal(t, 1, calls, "delay %v: fired again", delay)
	}
}

func TestCallRestartsWait(t *testing.T) {
	clock := NewManual()
	var calls int
	d := New(15*time.Millisecond, func() { calls++ }, WithScheduler(clock))

	d.Call()
	clock.Advance(14 * time.Millisecond)
	d.Call()
	clock.Advance(14 * time.Millisecond)
	assert.Zero(t, calls)

	clock.Advance(time.Millisecond)
	assert.Equal(t, 1, calls)
}

func TestCancel(t *testing.T) {
	clock := NewManual()
	var calls int
	d := New(15*time.Millisecond, func() { calls++ }, WithScheduler(clock))

	d.Call()
	d.Cancel()
	clock.Advance(time.Second)

	assert.Zero(t, calls)
	assert.False(t, d.IsPending())
	assert.Zero(t, clock.Pending())
}

func TestFlush(t *testing.T) {
	clock := NewManual()
	var calls int
	d := New(15*time.Millisecond, func() { calls++ }, WithScheduler(clock))

	d.Flush()
	assert.Zero(t, calls, "nothing pending")

	d.Call()
	d.Flush()
	assert.Equal(t, 1, calls)

	clock.Advance(time.Second)
	assert.Equal(t, 1, calls, "timer was cancelled by flush")
}

func TestCallbackMayRearm(t *testing.T) {
	clock := NewManual()
	var calls int
	var d *Debouncer
	d = New(10*time.Millisecond, func() {
		calls++
		if calls == 1 {
			d.Call()
		}
	}, WithScheduler(clock))

	d.Call()
	clock.Advance(10 * time.Millisecond)
	require.Equal(t, 1, calls)
	clock.Advance(10 * time.Millisecond)
	assert.Equal(t, 2, calls)
}

func TestSetDelay(t *testing.T) {
	d := New(-5, nil)
	assert.Zero(t, d.Delay())
	d.SetDelay(20 * time.Millisecond)
	assert.Equal(t, 20*time.Millisecond, d.Delay())
}

func TestRealScheduler(t *testing.T) {
	var calls atomic.Int32
	done := make(chan struct{})
	d := New(5*time.Millisecond, func() {
		calls.Add(1)
		close(done)
	})

	for i := 0; i < 5; i++ {
		d.Call()
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("debounced callback never ran")
	}
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}
