// Package clock abstracts time for pollers and sleepers so tests can run
// without real delays.
package clock

import (
	"sync"
	"time"
)

// Clock provides the current time and timer channels.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// Real is the wall clock.
type Real struct{}

// Now returns time.Now().
func (Real) Now() time.Time { return time.Now() }

// After returns time.After(d).
func (Real) After(d time.Duration) <-chan time.Time { return time.After(d) }

var _ Clock = Real{}

// Fake is a virtual clock. Each call to After advances virtual time by d
// and returns an already-fired channel, so a poll loop runs at full speed
// while still observing the configured intervals.
type Fake struct {
	mu     sync.Mutex
	now    time.Time
	waits  []time.Duration
	onWait func(n int)
}

// NewFake creates a fake clock starting at start.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

// OnAfter registers fn to run after each After call with the 1-based call count.
// Tests use it to advance simulated hardware in lockstep with the poll loop.
func (f *Fake) OnAfter(fn func(n int)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onWait = fn
}

// Now returns the current virtual time.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// After advances virtual time by d and returns a fired channel.
func (f *Fake) After(d time.Duration) <-chan time.Time {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.waits = append(f.waits, d)
	n := len(f.waits)
	now := f.now
	fn := f.onWait
	f.mu.Unlock()

	if fn != nil {
		fn(n)
	}

	ch := make(chan time.Time, 1)
	ch <- now
	return ch
}

// Advance moves virtual time forward without recording a wait.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

// Waits returns the durations passed to After, in call order.
func (f *Fake) Waits() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]time.Duration, len(f.waits))
	copy(out, f.waits)
	return out
}

var _ Clock = (*Fake)(nil)
