package job

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rmsched/internal/sched"
)

// Scheduler is the part of the scheduler a periodic client talks to.
type Scheduler interface {
	Register(id sched.TaskID, period, budget time.Duration) error
	Yield(ctx context.Context, id sched.TaskID) error
	Deregister(id sched.TaskID) error
}

// Periodic is a client computation: register, then run Work once per
// period for Jobs periods, yielding after each, then deregister.
type Periodic struct {
	ID     sched.TaskID
	Period time.Duration
	Budget time.Duration
	Jobs   int
	Work   func(ctx context.Context) error

	// Proc, when set, is the execution primitive behind ID. Each job waits
	// for its run gate before starting.
	Proc *Proc
}

// Run executes the client loop and returns how many jobs completed.
func (p Periodic) Run(ctx context.Context, s Scheduler) (int, error) {
	if err := s.Register(p.ID, p.Period, p.Budget); err != nil {
		return 0, fmt.Errorf("register %d: %w", p.ID, err)
	}
	defer func() { _ = s.Deregister(p.ID) }()

	// sleep until the first period starts
	if err := s.Yield(ctx, p.ID); err != nil {
		return 0, fmt.Errorf("initial yield %d: %w", p.ID, err)
	}

	done := 0
	for done < p.Jobs {
		if p.Proc != nil {
			if err := p.Proc.WaitRunnable(ctx); err != nil {
				return done, fmt.Errorf("job %d of %d: %w", done+1, p.ID, err)
			}
		}
		if p.Work != nil {
			if err := p.Work(ctx); err != nil {
				return done, fmt.Errorf("job %d of %d: %w", done+1, p.ID, err)
			}
		}
		done++
		if done == p.Jobs {
			break
		}
		if err := s.Yield(ctx, p.ID); err != nil {
			if errors.Is(err, sched.ErrTaskRemoved) {
				return done, nil
			}
			return done, fmt.Errorf("yield %d: %w", p.ID, err)
		}
	}
	return done, nil
}
