// internal/sched/dispatcher.go

package sched

import (
	"context"
	"log/slog"
	"sync/atomic"

	"rmsched/internal/logging"
)

// Dispatcher is the single control loop that keeps the highest-priority
// Ready task on the processor. It sleeps until signalled, then runs one
// selection pass over the current registry state.
type Dispatcher struct {
	reg    *Registry
	exec   Executor
	emit   func(Event)
	logger *slog.Logger

	signal chan struct{} // capacity 1: pending signals coalesce
	passes atomic.Uint64
}

// NewDispatcher creates an idle dispatcher. emit may be nil.
func NewDispatcher(reg *Registry, exec Executor, emit func(Event), logger *slog.Logger) *Dispatcher {
	if emit == nil {
		emit = func(Event) {}
	}
	return &Dispatcher{
		reg:    reg,
		exec:   exec,
		emit:   emit,
		logger: logging.Component(logger, "dispatcher"),
		signal: make(chan struct{}, 1),
	}
}

// Signal requests a selection pass. It never blocks; signals sent before
// the loop wakes collapse into one pass.
func (d *Dispatcher) Signal() {
	select {
	case d.signal <- struct{}{}:
	default:
	}
}

// Run is the dispatch loop. It returns when ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Debug("dispatcher started")
	for {
		select {
		case <-ctx.Done():
			d.logger.Debug("dispatcher stopping")
			return ctx.Err()
		case <-d.signal:
			d.Pass()
		}
	}
}

// Passes returns how many selection passes have run.
func (d *Dispatcher) Passes() uint64 {
	return d.passes.Load()
}

// Pass runs one selection pass: the best Ready task replaces the running
// one if it has a shorter period (or there is no running task). The
// running task is never in the Ready index, so yield and deregistration
// clear the running reference themselves before signalling.
func (d *Dispatcher) Pass() {
	d.passes.Add(1)

	r := d.reg
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.running
	next := r.highestReadyLocked()

	// 1) nothing Ready: the running task (if any) keeps the processor
	if next == nil {
		if prev == nil {
			d.emit(Event{Kind: EventIdle, Utilization: r.util})
		}
		return
	}

	// 2) the running task keeps the processor unless next outranks it
	if prev != nil && !preempts(next, prev) {
		return
	}

	// 3) switch
	if prev != nil {
		d.demoteLocked(prev)
		d.emitLocked(EventPreempt, prev)
	}
	r.setStateLocked(next, StateRunning)
	r.running = next
	d.exec.PromoteToElevatedPriority(next.handle)
	d.exec.Resume(next.handle)

	// wake a caller blocked in Yield for this task
	select {
	case next.promoted <- struct{}{}:
	default:
	}

	d.logger.Debug("dispatched", "task", next.ID, "period", next.Period)
	d.emitLocked(EventDispatch, next)
}

func (d *Dispatcher) demoteLocked(t *Task) {
	d.reg.setStateLocked(t, StateReady)
	d.exec.SuspendToNormalPriority(t.handle)
}

func (d *Dispatcher) emitLocked(kind EventKind, t *Task) {
	d.emit(Event{
		Kind:        kind,
		TaskID:      t.ID,
		Period:      t.Period,
		Utilization: d.reg.util,
	})
}
