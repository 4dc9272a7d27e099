package clock

import (
	"sync"
	"time"
)

// Clock supplies the current time for booking timestamps.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

// System returns a Clock backed by time.Now, truncated to microseconds so
// values round-trip through PostgreSQL unchanged.
func System() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// Fake is a manually driven Clock for tests. Every call to Now advances the
// clock by Step, so timestamps taken in sequence are strictly ordered.
//
// Safe for concurrent use.
type Fake struct {
	mu   sync.Mutex
	now  time.Time
	Step time.Duration
}

func NewFake(start time.Time) *Fake {
	return &Fake{now: start, Step: time.Millisecond}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := f.now
	f.now = f.now.Add(f.Step)
	return now
}

func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = t
}
