package sched

import (
	"sync"
	"sync/atomic"
	"time"
)

// wakeupTimer is the recurring per-task timer. Each firing runs fire and
// then rearms itself one period after the instant it was scheduled for.
//
// Lock order: fireMu is held across fire, and fire takes the registry lock.
// Code holding the registry lock may call reset/start (armMu only) but must
// release it before cancel.
type wakeupTimer struct {
	clock  Clock
	period time.Duration
	fire   func(scheduled time.Time)

	armMu   sync.Mutex
	pending Stopper
	next    time.Time
	gen     uint64
	stopped bool

	fireMu sync.Mutex
	fired  atomic.Int64
}

// newWakeupTimer creates a disarmed timer.
func newWakeupTimer(clock Clock, period time.Duration, fire func(scheduled time.Time)) *wakeupTimer {
	return &wakeupTimer{
		clock:  clock,
		period: period,
		fire:   fire,
	}
}

// start arms the timer for its first firing at the given instant.
func (w *wakeupTimer) start(at time.Time) { w.reset(at) }

// reset replaces any pending firing with one at the given instant.
// A no-op once cancelled.
func (w *wakeupTimer) reset(at time.Time) {
	w.armMu.Lock()
	defer w.armMu.Unlock()
	if w.stopped {
		return
	}
	w.armLocked(at)
}

func (w *wakeupTimer) armLocked(at time.Time) {
	if w.pending != nil {
		w.pending.Stop()
	}
	w.gen++
	gen := w.gen
	w.next = at
	w.pending = w.clock.AfterFunc(at.Sub(w.clock.Now()), func() { w.run(gen) })
}

func (w *wakeupTimer) run(gen uint64) {
	w.fireMu.Lock()
	defer w.fireMu.Unlock()

	// a callback superseded by reset or cancel may still get here if its
	// Stop lost the race; gen tells us.
	w.armMu.Lock()
	if w.stopped || gen != w.gen {
		w.armMu.Unlock()
		return
	}
	scheduled := w.next
	w.armMu.Unlock()

	w.fired.Add(1)
	w.fire(scheduled)

	w.armMu.Lock()
	if !w.stopped && gen == w.gen {
		w.armLocked(scheduled.Add(w.period))
	}
	w.armMu.Unlock()
}

// nextFire reports the instant of the pending firing.
func (w *wakeupTimer) nextFire() (time.Time, bool) {
	w.armMu.Lock()
	defer w.armMu.Unlock()
	return w.next, !w.stopped && w.pending != nil
}

// cancel disarms the timer and waits for an in-flight callback to return.
// After cancel returns, fire is never called again.
func (w *wakeupTimer) cancel() {
	w.armMu.Lock()
	w.stopped = true
	if w.pending != nil {
		w.pending.Stop()
	}
	w.armMu.Unlock()

	// wait out a running callback
	w.fireMu.Lock()
	w.fireMu.Unlock()
}

// Count returns how many times the timer has fired.
func (w *wakeupTimer) Count() int64 {
	return w.fired.Load()
}
