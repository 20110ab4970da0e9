package core

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

const defaultSpinBeforePark = 64

// worker holds the per-worker scheduling state: one work-stealing deque and
// one affinity FIFO per priority level, plus a private RNG for victim
// selection. Only the owning goroutine touches rng; the queues are shared.
type worker struct {
	id     int
	deques [numPriorities]*taskDeque
	fifos  [numPriorities]*taskFIFO
	rng    uint64

	executed atomic.Int64
	stolen   atomic.Int64
	parked   atomic.Int64
}

// TaskScheduler runs the worker pool. Workers 1..N-1 are goroutines spawned
// by Start; the initiating thread joins as worker 0 through Enter. Every
// worker runs the same multiplexing policy: continuation first, then own
// affinity FIFOs, then own deque depth first, then stealing breadth first,
// highest priority first inside each bucket. Priority is honored locally at
// each lookup; no global priority order is attempted.
type TaskScheduler struct {
	cfg          *TaskSchedulerConfig
	logger       Logger
	metrics      Metrics
	panicHandler PanicHandler

	workers []*worker
	alloc   *taskAllocator
	delay   *delayManager

	parkMu   sync.Mutex
	parkCond *sync.Cond

	interruptAll  atomic.Bool
	interruptMain atomic.Bool

	readyCount atomic.Int64
	running    atomic.Int32

	started atomic.Bool
	ended   atomic.Bool
	wg      sync.WaitGroup
}

// NewTaskScheduler creates a scheduler with the given configuration.
// A nil config uses the defaults.
func NewTaskScheduler(cfg *TaskSchedulerConfig) *TaskScheduler {
	cfg = cfg.withDefaults()
	s := &TaskScheduler{
		cfg:          cfg,
		logger:       cfg.Logger,
		metrics:      cfg.Metrics,
		panicHandler: cfg.PanicHandler,
	}
	s.parkCond = sync.NewCond(&s.parkMu)
	s.workers = make([]*worker, cfg.Workers)
	for i := range s.workers {
		w := &worker{
			id:  i,
			rng: (uint64(i) + 1) * 0x9E3779B97F4A7C15,
		}
		for p := 0; p < numPriorities; p++ {
			w.deques[p] = newTaskDeque(cfg.DequeCapacity)
			w.fifos[p] = newTaskFIFO()
		}
		s.workers[i] = w
	}
	s.alloc = newTaskAllocator(cfg.Workers, cfg.AllocatorChunkTasks, cfg.CacheHighWatermark)
	s.delay = newDelayManager(s)
	return s
}

// WorkerCount returns the number of workers, including worker 0.
func (s *TaskScheduler) WorkerCount() int { return len(s.workers) }

// =============================================================================
// Task creation
// =============================================================================

// NewTask allocates a task from the slab pool. The context decides which
// worker cache serves the allocation and which deque a later Scheduled call
// pushes to: pass the context of the running body, or context.Background()
// from the initiating thread.
func (s *TaskScheduler) NewTask(ctx context.Context, name string, fn TaskFunc) *Task {
	slot := WorkerID(ctx)
	if slot >= len(s.workers) {
		slot = -1
	}
	t := s.alloc.get(slot)
	t.reset(s, name, int32(slot))
	t.fn = fn
	return t
}

// NewTaskSet allocates a task whose body runs n times, each invocation
// receiving a distinct index in [0, n). Workers that find nothing better to
// do pitch in through helper tasks, so the indices are claimed concurrently.
func (s *TaskScheduler) NewTaskSet(ctx context.Context, name string, n int, fn TaskSetFunc) *Task {
	t := s.NewTask(ctx, name, nil)
	t.setFn = fn
	t.elems.Store(int64(n))
	return t
}

// =============================================================================
// Lifecycle
// =============================================================================

// Start spawns workers 1..N-1. It must be called once from the initiating
// thread before any task is scheduled.
func (s *TaskScheduler) Start() error {
	if !s.started.CompareAndSwap(false, true) {
		return errors.New("tasking: scheduler already started")
	}
	s.logger.Info("tasking system started", F("workers", len(s.workers)))
	for i := 1; i < len(s.workers); i++ {
		s.wg.Add(1)
		go func(id int) {
			defer s.wg.Done()
			s.workerLoop(id)
		}(i)
	}
	return nil
}

// Enter makes the calling thread join the pool as worker 0. It returns
// after InterruptMain or Interrupt fired.
func (s *TaskScheduler) Enter() {
	s.workerLoop(0)
	// Leave the flag clean so the initiating thread may re-enter.
	s.interruptMain.Store(false)
}

// End tears the pool down: signals every worker, waits for them to leave
// their loops, stops the delay manager and abandons whatever was still
// queued. Must be called from the initiating thread after Enter returned.
func (s *TaskScheduler) End() error {
	if !s.started.Load() {
		return errors.New("tasking: scheduler not started")
	}
	if !s.ended.CompareAndSwap(false, true) {
		return errors.New("tasking: scheduler already ended")
	}
	s.Interrupt()
	s.wg.Wait()
	s.delay.stop()
	if dropped := s.drainQueues(); dropped > 0 {
		s.logger.Warn("abandoned queued tasks at teardown", F("tasks", dropped))
	}
	if live := s.alloc.Live(); live > 0 {
		s.logger.Warn("task slots still referenced at teardown", F("tasks", live))
	}
	s.logger.Info("tasking system ended",
		F("executed", s.totalExecuted()),
		F("chunks", s.alloc.Chunks()))
	return nil
}

// InterruptMain unparks the initiating thread only, so it may leave Enter.
// Thread-safe.
func (s *TaskScheduler) InterruptMain() {
	s.interruptMain.Store(true)
	s.wake()
}

// Interrupt signals every worker to leave its loop at the next scheduling
// round. Currently running bodies always run to completion. Thread-safe.
func (s *TaskScheduler) Interrupt() {
	if !s.interruptAll.Swap(true) {
		s.logger.Info("tasking system interrupted")
	}
	s.wake()
}

func (s *TaskScheduler) stopRequested(id int) bool {
	return s.interruptAll.Load() || (id == 0 && s.interruptMain.Load())
}

// =============================================================================
// Worker loop
// =============================================================================

func (s *TaskScheduler) workerLoop(id int) {
	w := s.workers[id]
	ctx := withWorkerID(context.Background(), id)
	spins := 0
	var cont *Task
	for {
		// A continuation returned from the previous body bypasses every
		// queue, preserving the depth-first discipline.
		if cont != nil {
			cont = s.execute(ctx, w, cont)
			continue
		}
		if s.stopRequested(id) {
			return
		}
		if t := s.findWork(w); t != nil {
			spins = 0
			cont = s.execute(ctx, w, t)
			continue
		}
		spins++
		if spins < s.cfg.SpinBeforePark {
			runtime.Gosched()
			continue
		}
		spins = 0
		s.park(w)
	}
}

// findWork implements the queue side of the multiplexing policy.
func (s *TaskScheduler) findWork(w *worker) *Task {
	// Own affinity FIFOs, highest priority first.
	for p := 0; p < numPriorities; p++ {
		if t := w.fifos[p].pop(); t != nil {
			s.readyCount.Add(-1)
			return t
		}
	}
	// Own deque, bottom end, highest priority first.
	for p := 0; p < numPriorities; p++ {
		if t := w.deques[p].popBottom(); t != nil {
			s.readyCount.Add(-1)
			return t
		}
	}
	// Steal from a bounded number of random victims, top end.
	if n := len(s.workers); n > 1 {
		for attempt := 0; attempt < s.cfg.StealAttempts; attempt++ {
			v := int(xorshift(&w.rng) % uint64(n))
			if v == w.id {
				v = (v + 1) % n
			}
			victim := s.workers[v]
			for p := 0; p < numPriorities; p++ {
				if t := victim.deques[p].steal(); t != nil {
					s.readyCount.Add(-1)
					w.stolen.Add(1)
					s.metrics.RecordSteal(w.id)
					return t
				}
			}
		}
	}
	return nil
}

// execute runs one task body and fires the end protocol. Returns the
// continuation, if any.
func (s *TaskScheduler) execute(ctx context.Context, w *worker, t *Task) *Task {
	t.transition(StateReady, StateRunning)
	s.running.Add(1)
	start := time.Now()
	var cont *Task
	func() {
		defer func() {
			if r := recover(); r != nil {
				s.metrics.RecordTaskPanic(t.name)
				s.panicHandler.HandlePanic(ctx, t.name, w.id, r, debug.Stack())
			}
		}()
		if t.setFn != nil {
			s.runTaskSet(ctx, t)
		} else if t.fn != nil {
			cont = t.fn(ctx)
		}
	}()
	s.metrics.RecordTaskDuration(t.priority, time.Since(start))
	s.running.Add(-1)
	w.executed.Add(1)
	s.taskEnded(t, w.id)
	if cont != nil {
		// Returning a continuation consumes its pending Scheduled call:
		// the task must be otherwise free of start dependencies.
		if n := cont.toStart.Add(-1); n != 0 {
			panic(fmt.Sprintf("tasking: continuation %q has toStart=%d, want 0", cont.name, n))
		}
		cont.transition(StateNew, StateReady)
	}
	return cont
}

// taskEnded decrements toEnd after the body returned; hitting zero fires
// end-completion.
func (s *TaskScheduler) taskEnded(t *Task, slot int) {
	if n := t.toEnd.Add(-1); n == 0 {
		s.finish(t, slot)
	} else if n < 0 {
		panic(fmt.Sprintf("tasking: task %q toEnd underflow", t.name))
	}
}

// finish walks the end-completion chain iteratively: promote the start
// successor, drop the scheduler reference, then follow the end successor as
// long as the completions cascade.
func (s *TaskScheduler) finish(t *Task, slot int) {
	for {
		t.transition(StateRunning, StateDone)
		if succ := t.toBeStarted; succ != nil {
			t.toBeStarted = nil
			if succ.toStart.Add(-1) == 0 {
				s.ready(succ, slot)
			}
			s.release(succ, slot)
		}
		succ := t.toBeEnded
		t.toBeEnded = nil
		s.release(t, slot)
		if succ == nil {
			return
		}
		done := succ.toEnd.Add(-1) == 0
		s.release(succ, slot)
		if !done {
			return
		}
		t = succ
	}
}

// ready publishes a task whose start dependencies are all done. Affinity
// tasks go to the pinned worker's FIFO; everything else lands at the bottom
// of the deque of worker slot (the finishing worker for promoted successors,
// the creating worker for Scheduled), worker 0 when slot is not a worker.
func (s *TaskScheduler) ready(t *Task, slot int) {
	t.transition(StateNew, StateReady)
	s.readyCount.Add(1)
	if slot < 0 || slot >= len(s.workers) {
		slot = 0
	}
	if t.affinity != AnyWorker {
		if int(t.affinity) >= len(s.workers) {
			panic(fmt.Sprintf("tasking: task %q pinned to worker %d, pool has %d",
				t.name, t.affinity, len(s.workers)))
		}
		s.workers[t.affinity].fifos[t.priority].push(t)
	} else {
		s.workers[slot].deques[t.priority].pushBottom(t)
	}
	s.wake()
}

// release drops one reference; the last one returns the slot to the pool.
func (s *TaskScheduler) release(t *Task, slot int) {
	if n := t.refs.Add(-1); n == 0 {
		t.fn = nil
		t.setFn = nil
		t.sched = nil
		s.alloc.put(t, slot)
	} else if n < 0 {
		panic(fmt.Sprintf("tasking: task %q refcount underflow", t.name))
	}
}

// =============================================================================
// Parking
// =============================================================================

func (s *TaskScheduler) wake() {
	s.parkMu.Lock()
	s.parkCond.Broadcast()
	s.parkMu.Unlock()
}

func (s *TaskScheduler) park(w *worker) {
	s.parkMu.Lock()
	for !s.hasVisibleWork(w) && !s.stopRequested(w.id) {
		w.parked.Add(1)
		s.metrics.RecordPark(w.id)
		s.parkCond.Wait()
	}
	s.parkMu.Unlock()
}

// hasVisibleWork reports whether anything this worker could legally run is
// queued somewhere: its own FIFOs and deques, or any stealable deque.
func (s *TaskScheduler) hasVisibleWork(w *worker) bool {
	for p := 0; p < numPriorities; p++ {
		if w.fifos[p].len() > 0 {
			return true
		}
	}
	for _, v := range s.workers {
		for p := 0; p < numPriorities; p++ {
			if v.deques[p].len() > 0 {
				return true
			}
		}
	}
	return false
}

// =============================================================================
// RunAnyTask
// =============================================================================

// RunAnyTask executes one ready task (and its continuation chain) on the
// calling worker and reports whether anything was executed. It is meant to
// be called from inside a running body to overlap latency, e.g. while
// polling blocking IO. Calling it outside a worker returns false.
func (s *TaskScheduler) RunAnyTask(ctx context.Context) bool {
	id := WorkerID(ctx)
	if id < 0 || id >= len(s.workers) {
		return false
	}
	w := s.workers[id]
	t := s.findWork(w)
	if t == nil {
		return false
	}
	for t != nil {
		t = s.execute(ctx, w, t)
	}
	return true
}

// =============================================================================
// Delayed scheduling
// =============================================================================

// ScheduleAfter hands the task to the delay manager; its Scheduled call
// fires once the delay elapsed. Tasks handed in after an interrupt are
// discarded.
func (s *TaskScheduler) ScheduleAfter(t *Task, d time.Duration) {
	if s.interruptAll.Load() {
		s.metrics.RecordTaskRejected("interrupted")
		s.discard(t)
		return
	}
	s.delay.add(t, d)
}

// =============================================================================
// Observability
// =============================================================================

// Stats returns a snapshot of the scheduler state.
func (s *TaskScheduler) Stats() SchedulerStats {
	var stolen, parked int64
	for _, w := range s.workers {
		stolen += w.stolen.Load()
		parked += w.parked.Load()
	}
	return SchedulerStats{
		Workers:  len(s.workers),
		Ready:    int(s.readyCount.Load()),
		Running:  int(s.running.Load()),
		Executed: s.totalExecuted(),
		Stolen:   stolen,
		Parked:   parked,
		Delayed:  s.delay.pending(),
		Live:     s.alloc.Live(),
		Chunks:   s.alloc.Chunks(),
	}
}

// WorkerStats returns one snapshot per worker.
func (s *TaskScheduler) WorkerStats() []WorkerStats {
	out := make([]WorkerStats, len(s.workers))
	for i, w := range s.workers {
		depth := 0
		for p := 0; p < numPriorities; p++ {
			depth += w.deques[p].len() + w.fifos[p].len()
		}
		out[i] = WorkerStats{
			ID:         i,
			Executed:   w.executed.Load(),
			Stolen:     w.stolen.Load(),
			Parked:     w.parked.Load(),
			QueueDepth: depth,
		}
	}
	return out
}

func (s *TaskScheduler) totalExecuted() int64 {
	var n int64
	for _, w := range s.workers {
		n += w.executed.Load()
	}
	return n
}

// =============================================================================
// Teardown helpers
// =============================================================================

// drainQueues empties every queue at teardown, dropping the references the
// abandoned tasks hold.
func (s *TaskScheduler) drainQueues() int {
	n := 0
	for _, w := range s.workers {
		for p := 0; p < numPriorities; p++ {
			for {
				t := w.deques[p].steal()
				if t == nil {
					break
				}
				s.discard(t)
				n++
			}
			for _, t := range w.fifos[p].drain() {
				s.discard(t)
				n++
			}
		}
	}
	s.readyCount.Add(int64(-n))
	return n
}

// discard destroys a task that will never run: drops the references it
// holds on its successors, then the scheduler's own reference.
func (s *TaskScheduler) discard(t *Task) {
	if succ := t.toBeStarted; succ != nil {
		t.toBeStarted = nil
		s.release(succ, -1)
	}
	if succ := t.toBeEnded; succ != nil {
		t.toBeEnded = nil
		s.release(succ, -1)
	}
	s.release(t, -1)
}

// xorshift is a cheap per-worker PRNG for victim selection.
func xorshift(state *uint64) uint64 {
	x := *state
	x ^= x << 13
	x ^= x >> 7
	x ^= x << 17
	*state = x
	return x
}
