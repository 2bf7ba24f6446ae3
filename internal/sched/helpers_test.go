package sched

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"rmsched/internal/logging"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// recExec is an Executor that records every request. Handles are TaskIDs.
type recExec struct {
	mu       sync.Mutex
	unknown  map[TaskID]bool
	elevated map[TaskID]bool
	calls    []string
}

func newRecExec() *recExec {
	return &recExec{unknown: map[TaskID]bool{}, elevated: map[TaskID]bool{}}
}

func (e *recExec) FindByID(id TaskID) (Handle, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.unknown[id] {
		return nil, false
	}
	return id, true
}

func (e *recExec) Resume(h Handle) { e.record("resume", h) }

func (e *recExec) SuspendToNormalPriority(h Handle) {
	e.mu.Lock()
	delete(e.elevated, h.(TaskID))
	e.mu.Unlock()
	e.record("suspend", h)
}

func (e *recExec) PromoteToElevatedPriority(h Handle) {
	e.mu.Lock()
	e.elevated[h.(TaskID)] = true
	e.mu.Unlock()
	e.record("promote", h)
}

func (e *recExec) record(op string, h Handle) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, fmt.Sprintf("%s %d", op, h.(TaskID)))
}

func (e *recExec) elevatedCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.elevated)
}

func newTestScheduler(t *testing.T) (*Scheduler, *ManualClock, *recExec) {
	t.Helper()
	clock := NewManualClock(t0)
	exec := newRecExec()
	s := New(DefaultConfig(), exec, WithClock(clock), WithLogger(logging.Discard()))
	t.Cleanup(s.Shutdown)
	return s, clock, exec
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func mustRegister(t *testing.T, s *Scheduler, id TaskID, period, budget time.Duration) {
	t.Helper()
	if err := s.Register(id, period, budget); err != nil {
		t.Fatalf("Register(%d, %v, %v) err=%v", id, period, budget, err)
	}
}

func stateOf(t *testing.T, s *Scheduler, id TaskID) State {
	t.Helper()
	ti, ok := s.Registry().Find(id)
	if !ok {
		t.Fatalf("task %d not found", id)
	}
	return ti.State
}

func runningCount(s *Scheduler) int {
	n := 0
	s.Registry().ForEach(func(ti TaskInfo) {
		if ti.State == StateRunning {
			n++
		}
	})
	return n
}

// waitFor polls cond until it holds or a second passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}
