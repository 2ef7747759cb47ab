package search

import "time"

// Timer is the part of *time.Timer the controller uses.
type Timer interface {
	Stop() bool
}

// Clock schedules delayed calls. RealClock is used outside tests.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// RealClock is backed by the time package.
var RealClock Clock = realClock{}
