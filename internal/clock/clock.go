// Package clock is a small wrapper around the system clock, adapted
// from the teacher's atomic_clock for the scheduler's single-threaded
// use: no atomics needed, since the event loop owns all state (per
// spec.md §5), but the same Now() shape so a test can
// substitute a fixed clock without touching call sites.
package clock

import "time"

// Clock is an injectable source of "now", so Delay/Hook-period tests
// can advance time deterministically instead of sleeping.
type Clock interface {
	Now() time.Time
}

// System is the real wall/monotonic clock (time.Now() carries a
// monotonic reading on every platform this runs on).
type System struct{}

func (System) Now() time.Time { return time.Now() }

// Fixed is a test clock that only advances when told to.
type Fixed struct {
	t time.Time
}

func NewFixed(t time.Time) *Fixed { return &Fixed{t: t} }

func (f *Fixed) Now() time.Time { return f.t }

func (f *Fixed) Advance(d time.Duration) { f.t = f.t.Add(d) }

func (f *Fixed) Set(t time.Time) { f.t = t }
