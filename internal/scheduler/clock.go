package scheduler

import "time"

// Clock abstracts wall time so scheduling decisions are testable without
// real waiting.
type Clock interface {
	Now() time.Time
	// After returns a channel that delivers once d has elapsed.
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// RealClock returns the wall clock.
func RealClock() Clock { return realClock{} }
