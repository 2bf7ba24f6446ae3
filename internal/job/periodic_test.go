package job

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"rmsched/internal/logging"
	"rmsched/internal/sched"
)

// scriptSched records calls and lets a test fail yields on demand.
type scriptSched struct {
	mu       sync.Mutex
	calls    []string
	regErr   error
	yieldErr func(n int) error
	yields   int
}

func (s *scriptSched) Register(id sched.TaskID, period, budget time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "R")
	return s.regErr
}

func (s *scriptSched) Yield(ctx context.Context, id sched.TaskID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "Y")
	s.yields++
	if s.yieldErr != nil {
		return s.yieldErr(s.yields)
	}
	return nil
}

func (s *scriptSched) Deregister(id sched.TaskID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "D")
	return nil
}

func TestPeriodic_CallSequence(t *testing.T) {
	ss := &scriptSched{}
	var work int
	p := Periodic{ID: 1, Period: time.Second, Budget: time.Millisecond, Jobs: 3,
		Work: func(context.Context) error { work++; return nil }}

	n, err := p.Run(context.Background(), ss)
	if err != nil || n != 3 || work != 3 {
		t.Fatalf("Run = %d, %v (work=%d); want 3, nil", n, err, work)
	}
	got := ""
	for _, c := range ss.calls {
		got += c
	}
	if got != "RYYYD" {
		t.Fatalf("calls = %s, want RYYYD", got)
	}
}

func TestPeriodic_RegisterRejected(t *testing.T) {
	ss := &scriptSched{regErr: sched.ErrAdmissionRejected}
	p := Periodic{ID: 1, Period: time.Second, Budget: time.Millisecond, Jobs: 3}

	if _, err := p.Run(context.Background(), ss); !errors.Is(err, sched.ErrAdmissionRejected) {
		t.Fatalf("Run err=%v, want ErrAdmissionRejected", err)
	}
	if len(ss.calls) != 1 {
		t.Fatalf("calls = %v, want only the register", ss.calls)
	}
}

func TestPeriodic_RemovedWhileYielding(t *testing.T) {
	ss := &scriptSched{yieldErr: func(n int) error {
		if n == 2 {
			return sched.ErrTaskRemoved
		}
		return nil
	}}
	p := Periodic{ID: 1, Period: time.Second, Budget: time.Millisecond, Jobs: 5}

	n, err := p.Run(context.Background(), ss)
	if err != nil || n != 1 {
		t.Fatalf("Run = %d, %v; want 1, nil", n, err)
	}
}

func TestPeriodic_AgainstScheduler(t *testing.T) {
	log := logging.Discard()
	pool := NewPool(false, log)
	s := sched.New(sched.DefaultConfig(), pool, sched.WithLogger(log))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	runCtx, stopRun := context.WithCancel(ctx)
	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		_ = s.Run(runCtx)
	}()

	var maxElevated atomic.Int32
	specs := []Periodic{
		{ID: 1, Period: 20 * time.Millisecond, Budget: 2 * time.Millisecond, Jobs: 4},
		{ID: 2, Period: 40 * time.Millisecond, Budget: 4 * time.Millisecond, Jobs: 3},
	}

	var wg sync.WaitGroup
	results := make([]int, len(specs))
	for i := range specs {
		p := specs[i]
		p.Proc = pool.Spawn(p.ID)
		p.Work = func(context.Context) error {
			if n := int32(len(pool.Elevated())); n > maxElevated.Load() {
				maxElevated.Store(n)
			}
			return nil
		}
		wg.Add(1)
		go func(i int, p Periodic) {
			defer wg.Done()
			n, err := p.Run(ctx, s)
			if err != nil {
				t.Errorf("task %d: %v", p.ID, err)
			}
			results[i] = n
		}(i, p)
	}
	wg.Wait()

	for i, p := range specs {
		if results[i] != p.Jobs {
			t.Errorf("task %d completed %d jobs, want %d", p.ID, results[i], p.Jobs)
		}
	}
	if maxElevated.Load() > 1 {
		t.Errorf("saw %d procs at elevated priority at once", maxElevated.Load())
	}
	if s.Registry().Len() != 0 {
		t.Errorf("registry still has %d tasks", s.Registry().Len())
	}

	stopRun()
	<-runDone
}
