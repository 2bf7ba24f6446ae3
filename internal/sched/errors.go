package sched

import "errors"

var (
	// ErrUnknownTask is returned by yield/deregister for an id that is not
	// admitted, and by register when the executor has no primitive for the id.
	ErrUnknownTask = errors.New("sched: unknown task")
	// ErrAdmissionRejected means the candidate would push utilization past AdmissionBound.
	ErrAdmissionRejected = errors.New("sched: admission rejected")
	// ErrInvalidParams is returned for non-positive periods/budgets or budget > period.
	ErrInvalidParams = errors.New("sched: invalid task parameters")
	// ErrDuplicateTask is returned when registering an id that is already admitted.
	ErrDuplicateTask = errors.New("sched: task already registered")
	// ErrResourceExhausted is returned when registering past the max_tasks limit.
	ErrResourceExhausted = errors.New("sched: cannot allocate task")
	// ErrTaskRemoved is returned to a yielding caller whose task was deregistered meanwhile.
	ErrTaskRemoved = errors.New("sched: task removed while yielding")
	// ErrClosed is returned after Shutdown.
	ErrClosed = errors.New("sched: scheduler closed")
)
