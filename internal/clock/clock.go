// Package clock abstracts the current time so that expiry decisions can
// be tested against a fixed instant.
package clock

import "time"

// Clock supplies the current time to components that make timing
// decisions (hold-window expiry, demand windows).
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

// NewSystem returns a clock backed by time.Now in UTC.
func NewSystem() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

// Fixed is a clock pinned to a settable instant, for tests.
type Fixed struct {
	t time.Time
}

// NewFixed returns a clock that always reports t until Advance is called.
func NewFixed(t time.Time) *Fixed {
	return &Fixed{t: t}
}

func (f *Fixed) Now() time.Time {
	return f.t
}

// Advance moves the fixed clock forward by d.
func (f *Fixed) Advance(d time.Duration) {
	f.t = f.t.Add(d)
}
