package sched

import (
	"fmt"
	"sync"

	"github.com/emirpasic/gods/maps/linkedhashmap"
	"github.com/emirpasic/gods/trees/redblacktree"
)

// Registry owns every admitted task. A single mutex serializes all access
// to the collection and to each task's state fields.
type Registry struct {
	mu      sync.Mutex
	tasks   *linkedhashmap.Map // TaskID -> *Task, admission order
	ready   *redblacktree.Tree // readyKey -> *Task, Ready tasks only
	running *Task              // written by the dispatcher; yield and remove may clear it
	nextSeq uint64
	util    int64 // sum of Utilization over all tasks
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tasks: linkedhashmap.New(),
		ready: redblacktree.NewWith(readyCmp),
	}
}

// Add inserts t. It fails if a task with the same id is already present.
func (r *Registry) Add(t *Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.addLocked(t)
}

func (r *Registry) addLocked(t *Task) error {
	if _, dup := r.tasks.Get(t.ID); dup {
		return fmt.Errorf("%w: %d", ErrDuplicateTask, t.ID)
	}

	r.nextSeq++
	t.seq = r.nextSeq
	r.tasks.Put(t.ID, t)
	r.util += Utilization(t.Period, t.Budget)
	if t.state == StateReady {
		r.ready.Put(keyOf(t), t)
	}
	return nil
}

// Remove deletes the task with the given id and cancels its wakeup timer.
// The cancel is synchronous: once Remove returns, no wakeup for the task
// is running or will run.
func (r *Registry) Remove(id TaskID) bool {
	t, _ := r.remove(id)
	if t == nil {
		return false
	}
	if t.timer != nil {
		t.timer.cancel()
	}
	return true
}

// remove unlinks the task and reports whether it held the processor.
// The caller cancels the timer after this returns.
func (r *Registry) remove(id TaskID) (*Task, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := r.findLocked(id)
	if t == nil {
		return nil, false
	}
	r.unlinkLocked(t)
	wasRunning := r.running == t
	if wasRunning {
		r.running = nil
	}
	return t, wasRunning
}

func (r *Registry) unlinkLocked(t *Task) {
	if t.state == StateReady {
		r.ready.Remove(keyOf(t))
	}
	r.tasks.Remove(t.ID)
	r.util -= Utilization(t.Period, t.Budget)
	close(t.removed)
}

// Find returns a snapshot of the task with the given id.
func (r *Registry) Find(id TaskID) (TaskInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := r.findLocked(id)
	if t == nil {
		return TaskInfo{}, false
	}
	return t.info(), true
}

func (r *Registry) findLocked(id TaskID) *Task {
	v, ok := r.tasks.Get(id)
	if !ok {
		return nil
	}
	return v.(*Task)
}

// HighestPriorityReady returns the Ready task with the shortest period.
// Equal periods go to the task admitted first.
func (r *Registry) HighestPriorityReady() (TaskInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := r.highestReadyLocked()
	if t == nil {
		return TaskInfo{}, false
	}
	return t.info(), true
}

func (r *Registry) highestReadyLocked() *Task {
	node := r.ready.Left()
	if node == nil {
		return nil
	}
	return node.Value.(*Task)
}

// Running returns the task currently holding the processor, if any.
func (r *Registry) Running() (TaskInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running == nil {
		return TaskInfo{}, false
	}
	return r.running.info(), true
}

// ForEach calls visit with a snapshot of every task in admission order.
// visit runs under the registry lock and must not call back into the registry.
func (r *Registry) ForEach(visit func(TaskInfo)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tasks.Each(func(_, v interface{}) {
		visit(v.(*Task).info())
	})
}

// Snapshot returns every task in admission order.
func (r *Registry) Snapshot() []TaskInfo {
	out := make([]TaskInfo, 0, r.Len())
	r.ForEach(func(ti TaskInfo) { out = append(out, ti) })
	return out
}

// Len returns the number of admitted tasks.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tasks.Size()
}

// TotalUtilization returns the summed utilization in ten-thousandths.
func (r *Registry) TotalUtilization() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.util
}

// ClearAll removes every task, cancelling all timers. It returns how many
// tasks were removed.
func (r *Registry) ClearAll() int {
	r.mu.Lock()
	var removed []*Task
	r.tasks.Each(func(_, v interface{}) {
		removed = append(removed, v.(*Task))
	})
	for _, t := range removed {
		r.unlinkLocked(t)
	}
	r.running = nil
	r.mu.Unlock()

	for _, t := range removed {
		if t.timer != nil {
			t.timer.cancel()
		}
	}
	return len(removed)
}

// setStateLocked moves t to s and keeps the ready index in step.
func (r *Registry) setStateLocked(t *Task, s State) {
	if t.state == s {
		return
	}
	if t.state == StateReady {
		r.ready.Remove(keyOf(t))
	}
	t.state = s
	if s == StateReady {
		r.ready.Put(keyOf(t), t)
	}
}

// readyKey orders the ready index: shorter period first, then admission order.
type readyKey struct {
	period int64
	seq    uint64
}

func keyOf(t *Task) readyKey {
	return readyKey{period: int64(t.Period), seq: t.seq}
}

// readyCmp implements the Comparator for the ready tree.
func readyCmp(a, b any) int {
	ka, kb := a.(readyKey), b.(readyKey)
	switch {
	case ka.period < kb.period:
		return -1
	case ka.period > kb.period:
		return 1
	case ka.seq < kb.seq:
		return -1
	case ka.seq > kb.seq:
		return 1
	default:
		return 0
	}
}

// preempts reports whether a should hold the processor instead of b.
func preempts(a, b *Task) bool {
	return readyCmp(keyOf(a), keyOf(b)) < 0
}
