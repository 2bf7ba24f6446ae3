// internal/sched/scheduler.go

package sched

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"rmsched/internal/logging"
)

// Scheduler implements Rate-Monotonic scheduling of periodic tasks and
// streams lifecycle events.
type Scheduler struct {
	// Scheduler-related
	reg        *Registry            // every admitted task, behind one lock
	admission  *AdmissionController // consulted on Register only
	dispatcher *Dispatcher          // single selection loop
	exec       Executor             // runs the client work
	clock      Clock                // time source for timers and deadlines
	maxTasks   int                  // registrations beyond this fail with ErrResourceExhausted
	closed     atomic.Bool

	// event-related
	events  chan Event
	dropped atomic.Int64
	logger  *slog.Logger

	csvMu     sync.Mutex
	csvFile   *os.File
	csvWriter *csv.Writer
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(c Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// New creates a new Scheduler instance with the given configuration.
// The dispatcher does not run until Run is called.
func New(cfg Config, exec Executor, opts ...Option) *Scheduler {
	cfg.clamp()

	s := &Scheduler{
		exec:     exec,
		clock:    RealClock(),
		maxTasks: cfg.MaxTasks,
		events:   make(chan Event, cfg.EventBuffer), // buffered channel for lifecycle events
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.logger = logging.Component(s.logger, "sched")

	s.reg = NewRegistry()
	s.admission = NewAdmissionController(s.reg)
	s.dispatcher = NewDispatcher(s.reg, exec, s.emit, s.logger)
	return s
}

// Registry exposes the task registry (read access for status and tests).
func (s *Scheduler) Registry() *Registry { return s.reg }

// Dispatcher exposes the dispatcher.
func (s *Scheduler) Dispatcher() *Dispatcher { return s.dispatcher }

// Admission exposes the admission controller.
func (s *Scheduler) Admission() *AdmissionController { return s.admission }

// Events exposes a read-only stream of lifecycle events. Only use it
// when Run is not consuming them.
func (s *Scheduler) Events() <-chan Event { return s.events }

// EnableCSVLogging opens the given file path for CSV logging of events.
// Must be called before Run().
func (s *Scheduler) EnableCSVLogging(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create csv log: %w", err)
	}
	w := csv.NewWriter(f)

	// write header
	if err := w.Write([]string{"timestamp", "event", "task_id", "period_ns", "utilization"}); err != nil {
		f.Close()
		return fmt.Errorf("write csv header: %w", err)
	}
	w.Flush()

	s.csvMu.Lock()
	s.csvFile = f
	s.csvWriter = w
	s.csvMu.Unlock()
	return nil
}

// Run drives the dispatcher and consumes events until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	// start loop
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		_ = s.dispatcher.Run(ctx)
	}()

	// consume events
	for {
		select {
		case ev := <-s.events:
			s.handleEvent(ev)
		case <-ctx.Done():
			<-loopDone
			s.drainEvents()
			s.closeCSV()
			return nil
		}
	}
}

// Shutdown deregisters every task and refuses further registrations.
// Callers blocked in Yield return ErrTaskRemoved.
func (s *Scheduler) Shutdown() {
	if s.closed.Swap(true) {
		return
	}
	n := s.reg.ClearAll()
	s.logger.Info("scheduler shut down", "tasks_removed", n, "events_dropped", s.dropped.Load())
}

// Register admits a periodic task. A rejected admission leaves no trace
// and returns ErrAdmissionRejected.
func (s *Scheduler) Register(id TaskID, period, budget time.Duration) error {
	if s.closed.Load() {
		return ErrClosed
	}
	h, ok := s.exec.FindByID(id)
	if !ok {
		s.logger.Warn("register: no execution primitive", "task", id)
		return fmt.Errorf("%w: no execution primitive for %d", ErrUnknownTask, id)
	}
	t, err := newTask(id, period, budget, h)
	if err != nil {
		return err
	}

	r := s.reg
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.findLocked(id) != nil {
		return fmt.Errorf("%w: %d", ErrDuplicateTask, id)
	}
	if r.tasks.Size() >= s.maxTasks {
		return fmt.Errorf("%w: %d tasks admitted", ErrResourceExhausted, r.tasks.Size())
	}
	if !s.admission.admitLocked(period, budget) {
		s.logger.Info("admission rejected", "task", id, "period", period, "budget", budget,
			"utilization", r.util, "candidate", Utilization(period, budget))
		s.emit(Event{Kind: EventReject, TaskID: id, Period: period, Utilization: r.util})
		return fmt.Errorf("%w: utilization %d + %d > %d", ErrAdmissionRejected,
			r.util, Utilization(period, budget), AdmissionBound)
	}

	t.registeredAt = s.clock.Now()
	t.timer = newWakeupTimer(s.clock, period, func(scheduled time.Time) {
		s.wakeup(t, scheduled)
	})
	if err := r.addLocked(t); err != nil {
		return err
	}
	t.timer.start(t.registeredAt.Add(period))

	s.logger.Info("task admitted", "task", id, "period", period, "budget", budget, "utilization", r.util)
	s.emit(Event{Kind: EventAdmit, TaskID: id, Period: period, Utilization: r.util})
	return nil
}

// wakeup runs on the task's timer: a new period has begun.
func (s *Scheduler) wakeup(t *Task, scheduled time.Time) {
	r := s.reg
	r.mu.Lock()
	// deregistered (possibly re-registered under the same id) meanwhile
	if r.findLocked(t.ID) != t {
		r.mu.Unlock()
		return
	}
	if t.state == StateSleeping {
		r.setStateLocked(t, StateReady)
	}
	if t.yielded {
		t.nextDeadline = scheduled.Add(t.Period)
	}
	s.emit(Event{Kind: EventWakeup, TaskID: t.ID, Period: t.Period, Utilization: r.util})
	r.mu.Unlock()

	s.dispatcher.Signal()
}

// Yield ends the task's work for the current period. It blocks until the
// dispatcher hands the task the processor again, the task is deregistered
// (ErrTaskRemoved) or ctx ends.
func (s *Scheduler) Yield(ctx context.Context, id TaskID) error {
	r := s.reg
	r.mu.Lock()
	t := r.findLocked(id)
	if t == nil {
		r.mu.Unlock()
		s.logger.Warn("yield for unknown task", "task", id)
		return fmt.Errorf("%w: %d", ErrUnknownTask, id)
	}

	// the first yield anchors the period grid to the first deadline
	if !t.yielded {
		t.yielded = true
		t.nextDeadline = t.registeredAt.Add(t.Period)
		t.timer.reset(t.nextDeadline.Add(-t.Budget))
	}

	// drop a stale promotion token
	select {
	case <-t.promoted:
	default:
	}

	wasRunning := r.running == t
	if wasRunning {
		r.running = nil
	}
	r.setStateLocked(t, StateSleeping)
	s.exec.SuspendToNormalPriority(t.handle)
	s.emit(Event{Kind: EventYield, TaskID: t.ID, Period: t.Period, Utilization: r.util})
	r.mu.Unlock()

	if wasRunning {
		s.dispatcher.Signal()
	}

	for {
		select {
		case <-t.promoted:
			if s.isRunning(t) {
				return nil
			}
		case <-t.removed:
			return fmt.Errorf("%w: %d", ErrTaskRemoved, id)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Scheduler) isRunning(t *Task) bool {
	s.reg.mu.Lock()
	defer s.reg.mu.Unlock()
	return s.reg.running == t
}

// Deregister removes the task and disarms its timer. When it returns, no
// wakeup for the task is in flight.
func (s *Scheduler) Deregister(id TaskID) error {
	t, wasRunning := s.reg.remove(id)
	if t == nil {
		s.logger.Warn("deregister for unknown task", "task", id)
		return fmt.Errorf("%w: %d", ErrUnknownTask, id)
	}
	t.timer.cancel()

	if wasRunning {
		// hand the primitive back to normal scheduling, still runnable
		s.exec.SuspendToNormalPriority(t.handle)
		s.exec.Resume(t.handle)
		s.dispatcher.Signal()
	}
	if rel, ok := s.exec.(Releaser); ok {
		rel.Release(t.handle)
	}
	s.logger.Info("task deregistered", "task", id, "fired", t.timer.Count())
	s.emit(Event{Kind: EventDeregister, TaskID: id, Period: t.Period, Utilization: s.reg.TotalUtilization()})
	return nil
}

// Snapshot returns every admitted task in admission order.
func (s *Scheduler) Snapshot() []TaskInfo {
	return s.reg.Snapshot()
}

// emit sends without blocking; events are dropped when the buffer is full.
func (s *Scheduler) emit(ev Event) {
	ev.Time = s.clock.Now()
	select {
	case s.events <- ev:
	default:
		s.dropped.Add(1)
	}
}

func (s *Scheduler) drainEvents() {
	for {
		select {
		case ev := <-s.events:
			s.handleEvent(ev)
		default:
			return
		}
	}
}

func (s *Scheduler) handleEvent(ev Event) {
	s.logger.Debug("event",
		"kind", ev.Kind.String(),
		"task", ev.TaskID,
		"period", ev.Period,
		"utilization", ev.Utilization,
	)

	// CSV output
	s.csvMu.Lock()
	defer s.csvMu.Unlock()
	if s.csvWriter != nil {
		rec := []string{
			ev.Time.Format(time.RFC3339Nano),
			ev.Kind.String(),
			strconv.FormatUint(uint64(ev.TaskID), 10),
			strconv.FormatInt(int64(ev.Period), 10),
			strconv.FormatInt(ev.Utilization, 10),
		}
		_ = s.csvWriter.Write(rec)
		s.csvWriter.Flush()
	}
}

func (s *Scheduler) closeCSV() {
	s.csvMu.Lock()
	defer s.csvMu.Unlock()
	if s.csvFile != nil {
		s.csvWriter.Flush()
		s.csvFile.Close()
		s.csvFile, s.csvWriter = nil, nil
	}
}
