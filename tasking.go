package tasking

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/taskweave/go-tasking/core"
)

// =============================================================================
// Global Tasking System (Singleton)
// =============================================================================

var (
	globalSched *core.TaskScheduler
	globalMu    sync.Mutex
)

// Start initializes the process-wide scheduler and spawns workers 1..N-1.
// It must be called once from the initiating thread before any task is
// scheduled. A nil config uses the defaults.
func Start(cfg *core.TaskSchedulerConfig) error {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalSched != nil {
		return errors.New("tasking: already started")
	}
	s := core.NewTaskScheduler(cfg)
	if err := s.Start(); err != nil {
		return err
	}
	globalSched = s
	return nil
}

// Enter makes the calling thread join the pool as worker 0 and run the
// scheduling loop until InterruptMain or Interrupt fires.
func Enter() {
	Scheduler().Enter()
}

// End tears down the pool. Called from the initiating thread after Enter
// returned.
func End() error {
	globalMu.Lock()
	s := globalSched
	globalSched = nil
	globalMu.Unlock()

	if s == nil {
		return errors.New("tasking: not started")
	}
	return s.End()
}

// InterruptMain unparks the initiating thread only so it may leave Enter.
// Thread-safe.
func InterruptMain() {
	Scheduler().InterruptMain()
}

// Interrupt signals every worker to leave its loop. Thread-safe.
func Interrupt() {
	Scheduler().Interrupt()
}

// RunAnyTask executes one ready task on the calling worker, if any. Meant
// to be called from inside a running body to overlap latency.
func RunAnyTask(ctx context.Context) bool {
	return Scheduler().RunAnyTask(ctx)
}

// NewTask creates a task running fn. Configure it with Starts, Ends,
// SetPriority and SetAffinity, then release it with Scheduled.
func NewTask(ctx context.Context, name string, fn core.TaskFunc) *core.Task {
	return Scheduler().NewTask(ctx, name, fn)
}

// NewTaskSet creates a task whose body runs n times with a distinct index
// each, claimed concurrently by any number of workers.
func NewTaskSet(ctx context.Context, name string, n int, fn core.TaskSetFunc) *core.Task {
	return Scheduler().NewTaskSet(ctx, name, n, fn)
}

// ScheduleAfter fires the task's Scheduled call once the delay elapsed.
func ScheduleAfter(t *core.Task, d time.Duration) {
	Scheduler().ScheduleAfter(t, d)
}

// Stats returns a snapshot of the global scheduler state.
func Stats() core.SchedulerStats {
	return Scheduler().Stats()
}

// Scheduler returns the global scheduler instance.
// It panics if Start has not been called.
func Scheduler() *core.TaskScheduler {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalSched == nil {
		panic("tasking: not started. Call tasking.Start() first.")
	}
	return globalSched
}
