package sched

import "time"

// Clock is the monotonic time source and one-shot timer primitive the
// wakeup timers are built on.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Stopper
}

// Stopper stops a pending one-shot timer. It does not wait for a callback
// that has already started.
type Stopper interface {
	Stop() bool
}

type realClock struct{}

// RealClock returns a Clock backed by the runtime timers.
func RealClock() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Stopper {
	return time.AfterFunc(d, f)
}
