package core

import (
	"context"
	"fmt"
	"sync/atomic"
)

// =============================================================================
// TaskPriority: Four-level priority used to multiplex the per-worker queues
// =============================================================================

type TaskPriority uint16

const (
	// PriorityCritical: Highest priority, picked before everything else
	PriorityCritical TaskPriority = iota

	// PriorityHigh
	PriorityHigh

	// PriorityNormal: Default priority
	PriorityNormal

	// PriorityLow: Lowest priority
	PriorityLow

	numPriorities = 4
)

func (p TaskPriority) String() string {
	switch p {
	case PriorityCritical:
		return "critical"
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	case PriorityLow:
		return "low"
	default:
		return "unknown"
	}
}

// AnyWorker is the affinity sentinel meaning the task may run on any worker.
const AnyWorker uint16 = 0xffff

// =============================================================================
// TaskState: Witness for the task lifecycle
// =============================================================================

// TaskState asserts the correctness of operations such as Starts or Ends
// which are only legal on tasks in specific states. Violations panic: they
// are contract breaches by the caller, not runtime conditions to recover.
type TaskState uint32

const (
	StateNew TaskState = iota
	StateReady
	StateRunning
	StateDone
)

func (s TaskState) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// TaskFunc is the body of a task. The optional return value is a
// continuation: a task the worker will execute immediately after this one,
// bypassing every queue. A returned continuation must not also have
// Scheduled called on it; returning it releases it into the worker.
type TaskFunc func(ctx context.Context) *Task

// TaskSetFunc is the body of a task set, invoked once per index in [0, N).
type TaskSetFunc func(ctx context.Context, index int)

// =============================================================================
// Task: The unit of work
// =============================================================================

// Task represents one deferred invocation with dependency, priority and
// affinity metadata. Tasks are allocated from the scheduler's slab pool and
// shared by reference count between the scheduler and any task naming this
// one as a successor. Configuration (Starts, SetPriority, SetAffinity) is
// only legal before Scheduled is called; Ends may also target a task that
// is already running.
type Task struct {
	fn    TaskFunc
	setFn TaskSetFunc
	name  string
	sched *TaskScheduler

	// Successor slots. Owning references, append-only, at most one each.
	toBeStarted *Task
	toBeEnded   *Task

	// Allocator freelist link. Only meaningful while the slot is free or
	// staged on the global recycle stack.
	next *Task

	toStart atomic.Int32
	toEnd   atomic.Int32
	refs    atomic.Int32
	elems   atomic.Int64 // task sets only: outstanding indices
	state   atomic.Uint32

	priority TaskPriority
	affinity uint16
	home     int32 // worker slot that created the task, -1 if off-worker
}

// reset prepares a slot freshly taken from the allocator. Both counters
// start at one: the extra count is consumed by the explicit Scheduled call
// and by the end-decrement after the body returns. The reference count
// starts at one and that reference belongs to the scheduler; it is dropped
// when the task is observed DONE.
func (t *Task) reset(sched *TaskScheduler, name string, home int32) {
	t.fn = nil
	t.setFn = nil
	t.name = name
	t.sched = sched
	t.toBeStarted = nil
	t.toBeEnded = nil
	t.next = nil
	t.toStart.Store(1)
	t.toEnd.Store(1)
	t.refs.Store(1)
	t.elems.Store(0)
	t.state.Store(uint32(StateNew))
	t.priority = PriorityNormal
	t.affinity = AnyWorker
	t.home = home
}

// Name returns the debug name given at creation.
func (t *Task) Name() string { return t.name }

// Priority returns the task priority.
func (t *Task) Priority() TaskPriority { return t.priority }

// Affinity returns the worker index the task is pinned to, or AnyWorker.
func (t *Task) Affinity() uint16 { return t.affinity }

// State returns the current lifecycle state.
func (t *Task) State() TaskState { return TaskState(t.state.Load()) }

// SetPriority sets the task priority. Legal only before Scheduled.
func (t *Task) SetPriority(p TaskPriority) {
	t.assertState("SetPriority", StateNew)
	if p >= numPriorities {
		panic(fmt.Sprintf("tasking: invalid priority %d", p))
	}
	t.priority = p
}

// SetAffinity pins the task to the given worker. Legal only before Scheduled.
func (t *Task) SetAffinity(worker uint16) {
	t.assertState("SetAffinity", StateNew)
	t.affinity = worker
}

// Starts declares that this task must be done before other can start.
// No-op if other is nil or a start successor is already set. Each task has
// at most one start successor.
func (t *Task) Starts(other *Task) {
	if other == nil {
		return
	}
	other.assertState("Starts target", StateNew)
	if t.toBeStarted != nil {
		return
	}
	other.retain()
	other.toStart.Add(1)
	t.toBeStarted = other
}

// Ends declares that this task must be done before other can end. The
// target may already be running (a running body may hand itself to helpers
// it spawns). No-op if other is nil or an end successor is already set.
func (t *Task) Ends(other *Task) {
	if other == nil {
		return
	}
	other.assertState("Ends target", StateNew, StateRunning)
	if t.toBeEnded != nil {
		return
	}
	other.retain()
	other.toEnd.Add(1)
	t.toBeEnded = other
}

// Scheduled releases the task into the system. It must be called exactly
// once per task by its creator; until then the task is invisible to the
// scheduler. The task becomes ready once every start dependency is done.
func (t *Task) Scheduled() {
	if n := t.toStart.Add(-1); n == 0 {
		t.sched.ready(t, int(t.home))
	} else if n < 0 {
		panic(fmt.Sprintf("tasking: task %q scheduled twice", t.name))
	}
}

func (t *Task) retain() { t.refs.Add(1) }

// transition moves the state witness forward, panicking on an illegal move.
func (t *Task) transition(from, to TaskState) {
	if !t.state.CompareAndSwap(uint32(from), uint32(to)) {
		panic(fmt.Sprintf("tasking: task %q state is %s, want %s before %s",
			t.name, t.State(), from, to))
	}
}

func (t *Task) assertState(op string, allowed ...TaskState) {
	cur := t.State()
	for _, s := range allowed {
		if cur == s {
			return
		}
	}
	panic(fmt.Sprintf("tasking: %s on task %q in state %s", op, t.name, cur))
}

// =============================================================================
// Worker identity
// =============================================================================

type workerKeyType struct{}

var workerKey workerKeyType

// WorkerID extracts the identity of the worker running the current task
// body from its context. Returns -1 when the context does not belong to a
// worker.
func WorkerID(ctx context.Context) int {
	if v := ctx.Value(workerKey); v != nil {
		return v.(int)
	}
	return -1
}

func withWorkerID(ctx context.Context, id int) context.Context {
	return context.WithValue(ctx, workerKey, id)
}
