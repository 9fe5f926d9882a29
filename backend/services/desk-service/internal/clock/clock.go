package clock

import "time"

// Clock is the time source used for session boundaries and billing.
type Clock interface {
	Now() time.Time
}

// System reads the wall clock.
type System struct{}

// Now returns the current time.
func (System) Now() time.Time {
	return time.Now()
}

// Fixed always returns the same instant. Advance moves it.
type Fixed struct {
	At time.Time
}

// Now returns the fixed instant.
func (f *Fixed) Now() time.Time {
	return f.At
}

// Advance moves the fixed instant forward by d.
func (f *Fixed) Advance(d time.Duration) {
	f.At = f.At.Add(d)
}
