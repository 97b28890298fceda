// Package clock abstracts timer registration so time-driven code can run
// against the wall clock in production and a manually advanced virtual clock
// in tests.
//
// Callers never sleep: they register a callback with AfterFunc and keep the
// returned Timer to release it on cancellation.
package clock

import "time"

// Timer is a registered callback that can be released before it fires.
type Timer interface {
	// Stop prevents the callback from firing. It reports whether the call
	// stopped the timer (false if it already fired or was stopped).
	Stop() bool
}

// Clock is the scheduling source used by countdown streams.
// Implementations must be safe for concurrent use.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Real returns the wall-clock implementation backed by the time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	if d < 0 {
		d = 0
	}
	return time.AfterFunc(d, f)
}
