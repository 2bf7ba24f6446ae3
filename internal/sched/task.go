package sched

import (
	"fmt"
	"time"
)

// TaskID identifies a client computation (the pid in the control protocol).
type TaskID uint64

// State is the scheduling state of a task.
type State int

const (
	StateSleeping State = iota // waiting for its next period
	StateReady                 // runnable, waiting for the processor
	StateRunning               // holds the processor at elevated priority
)

func (s State) String() string {
	switch s {
	case StateSleeping:
		return "Sleeping"
	case StateReady:
		return "Ready"
	case StateRunning:
		return "Running"
	default:
		return "Unknown"
	}
}

// Handle is an opaque reference to the execution primitive behind a task.
// The scheduler never owns it; it only passes it back to the Executor.
type Handle any

// Task represents one admitted periodic computation.
type Task struct {
	ID     TaskID
	Period time.Duration // time between activations
	Budget time.Duration // worst-case compute time per activation

	state        State
	registeredAt time.Time
	nextDeadline time.Time // zero until the first yield
	yielded      bool
	seq          uint64 // admission order, breaks period ties

	handle Handle
	timer  *wakeupTimer

	// promoted receives a token whenever the dispatcher hands the task the processor.
	promoted chan struct{}
	// removed is closed on deregistration.
	removed chan struct{}
}

// TaskInfo is a point-in-time copy of a task's externally visible fields.
type TaskInfo struct {
	ID           TaskID
	Period       time.Duration
	Budget       time.Duration
	State        State
	RegisteredAt time.Time
	NextDeadline time.Time
}

// newTask validates the parameters and builds a Sleeping task.
// NOTE: seq, registeredAt and timer are set by the registry on insertion.
func newTask(id TaskID, period, budget time.Duration, h Handle) (*Task, error) {
	if period <= 0 || budget <= 0 {
		return nil, fmt.Errorf("%w: period=%v budget=%v must be positive", ErrInvalidParams, period, budget)
	}
	if budget > period {
		return nil, fmt.Errorf("%w: budget %v exceeds period %v", ErrInvalidParams, budget, period)
	}

	return &Task{
		ID:       id,
		Period:   period,
		Budget:   budget,
		state:    StateSleeping,
		handle:   h,
		promoted: make(chan struct{}, 1),
		removed:  make(chan struct{}),
	}, nil
}

func (t *Task) info() TaskInfo {
	return TaskInfo{
		ID:           t.ID,
		Period:       t.Period,
		Budget:       t.Budget,
		State:        t.state,
		RegisteredAt: t.registeredAt,
		NextDeadline: t.nextDeadline,
	}
}
