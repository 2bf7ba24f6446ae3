package job

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"rmsched/internal/logging"
	"rmsched/internal/sched"
)

// Level is the two-level priority of an execution primitive.
type Level int

const (
	LevelNormal Level = iota
	LevelElevated
)

func (l Level) String() string {
	if l == LevelElevated {
		return "elevated"
	}
	return "normal"
}

// Proc is an in-process stand-in for an OS thread: a priority level plus a
// run gate that Suspend closes and Resume opens.
type Proc struct {
	ID sched.TaskID

	mu        sync.Mutex
	level     Level
	suspended bool
	resumed   chan struct{} // closed while runnable

	ran  atomic.Int64 // nanoseconds of work done through the gate
	auto bool         // created by FindByID rather than Spawn
}

func newProc(id sched.TaskID) *Proc {
	ch := make(chan struct{})
	close(ch)
	return &Proc{ID: id, resumed: ch}
}

// Level returns the current priority level.
func (p *Proc) Level() Level {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.level
}

// Suspended reports whether the run gate is closed.
func (p *Proc) Suspended() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.suspended
}

// Ran returns how much work the proc has done while runnable.
func (p *Proc) Ran() time.Duration {
	return time.Duration(p.ran.Load())
}

// WaitRunnable blocks while the proc is suspended.
func (p *Proc) WaitRunnable(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	ch := p.resumed
	p.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pool is a sched.Executor over in-process Procs.
type Pool struct {
	mu        sync.Mutex
	procs     map[sched.TaskID]*Proc
	autoSpawn bool
	logger    *slog.Logger
}

// NewPool returns an empty pool. With autoSpawn, FindByID creates a Proc
// for any id it has not seen, which suits clients living outside the
// process (they only talk over the control channel).
func NewPool(autoSpawn bool, logger *slog.Logger) *Pool {
	return &Pool{
		procs:     make(map[sched.TaskID]*Proc),
		autoSpawn: autoSpawn,
		logger:    logging.Component(logger, "executor"),
	}
}

// Spawn creates (or returns) the Proc for id.
func (p *Pool) Spawn(id sched.TaskID) *Proc {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.spawnLocked(id)
}

func (p *Pool) spawnLocked(id sched.TaskID) *Proc {
	if pr, ok := p.procs[id]; ok {
		return pr
	}
	pr := newProc(id)
	p.procs[id] = pr
	return pr
}

// Len returns how many procs the pool holds.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.procs)
}

// Exit forgets the Proc for id.
func (p *Pool) Exit(id sched.TaskID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.procs, id)
}

// Elevated returns the ids currently at elevated priority.
func (p *Pool) Elevated() []sched.TaskID {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []sched.TaskID
	for id, pr := range p.procs {
		if pr.Level() == LevelElevated {
			out = append(out, id)
		}
	}
	return out
}

func (p *Pool) FindByID(id sched.TaskID) (sched.Handle, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if pr, ok := p.procs[id]; ok {
		return pr, true
	}
	if !p.autoSpawn {
		return nil, false
	}
	pr := p.spawnLocked(id)
	pr.auto = true
	return pr, true
}

// Release forgets a proc the pool created on demand. Procs made with Spawn
// belong to their caller, who ends them with Exit.
func (p *Pool) Release(h sched.Handle) {
	pr, ok := h.(*Proc)
	if !ok {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if pr.auto && p.procs[pr.ID] == pr {
		delete(p.procs, pr.ID)
		p.logger.Debug("release", "task", pr.ID)
	}
}

func (p *Pool) Resume(h sched.Handle) {
	pr, ok := h.(*Proc)
	if !ok {
		return
	}
	pr.mu.Lock()
	defer pr.mu.Unlock()
	if pr.suspended {
		pr.suspended = false
		close(pr.resumed)
	}
}

func (p *Pool) SuspendToNormalPriority(h sched.Handle) {
	pr, ok := h.(*Proc)
	if !ok {
		return
	}
	pr.mu.Lock()
	defer pr.mu.Unlock()
	pr.level = LevelNormal
	if !pr.suspended {
		pr.suspended = true
		pr.resumed = make(chan struct{})
	}
	p.logger.Debug("suspend", "task", pr.ID)
}

func (p *Pool) PromoteToElevatedPriority(h sched.Handle) {
	pr, ok := h.(*Proc)
	if !ok {
		return
	}
	pr.mu.Lock()
	defer pr.mu.Unlock()
	pr.level = LevelElevated
	p.logger.Debug("promote", "task", pr.ID)
}
