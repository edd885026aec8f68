package scheduler

import "time"

// Clock abstracts time so delivery pacing is testable without real waits.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// RealClock returns the wall-clock implementation.
func RealClock() Clock {
	return realClock{}
}
