package sched

// Executor is the process abstraction that actually runs client work.
// Every method is a non-blocking request; the scheduler may call them while
// holding its registry lock.
type Executor interface {
	// FindByID resolves the execution primitive for a client id.
	FindByID(id TaskID) (Handle, bool)
	// Resume lets a suspended primitive run again.
	Resume(h Handle)
	// SuspendToNormalPriority stops the primitive and drops it to normal priority.
	SuspendToNormalPriority(h Handle)
	// PromoteToElevatedPriority raises the primitive above all normal-priority work.
	PromoteToElevatedPriority(h Handle)
}

// Releaser is implemented by executors that keep per-task state they can
// drop once the task is deregistered. Release is called without the
// registry lock held.
type Releaser interface {
	Release(h Handle)
}
