package core

import "runtime"

// TaskSchedulerConfig carries construction-time settings for a scheduler.
// The zero value of any field means "use the default".
type TaskSchedulerConfig struct {
	// Workers is the number of workers, including the initiating thread
	// which joins as worker 0 via Enter. Defaults to runtime.NumCPU().
	Workers int

	// DequeCapacity bounds each work-stealing deque. Overflow is fatal.
	DequeCapacity int

	// AllocatorChunkTasks is the number of task slots carved per chunk.
	AllocatorChunkTasks int

	// CacheHighWatermark is the local free-list size above which half the
	// list is flushed to the global recycle stack.
	CacheHighWatermark int

	// StealAttempts bounds the number of victims probed per scheduling
	// round before the round counts as empty. Defaults to 2*Workers.
	StealAttempts int

	// SpinBeforePark is the number of empty scheduling rounds a worker
	// spins through before blocking on the park condition.
	SpinBeforePark int

	Logger       Logger
	Metrics      Metrics
	PanicHandler PanicHandler
}

// DefaultTaskSchedulerConfig returns the default configuration.
func DefaultTaskSchedulerConfig() *TaskSchedulerConfig {
	return &TaskSchedulerConfig{
		Workers:             runtime.NumCPU(),
		DequeCapacity:       defaultDequeCapacity,
		AllocatorChunkTasks: defaultChunkTasks,
		CacheHighWatermark:  defaultHighWatermark,
		SpinBeforePark:      defaultSpinBeforePark,
	}
}

func (c *TaskSchedulerConfig) withDefaults() *TaskSchedulerConfig {
	out := *DefaultTaskSchedulerConfig()
	if c != nil {
		if c.Workers > 0 {
			out.Workers = c.Workers
		}
		if c.DequeCapacity > 0 {
			out.DequeCapacity = c.DequeCapacity
		}
		if c.AllocatorChunkTasks > 0 {
			out.AllocatorChunkTasks = c.AllocatorChunkTasks
		}
		if c.CacheHighWatermark > 0 {
			out.CacheHighWatermark = c.CacheHighWatermark
		}
		if c.StealAttempts > 0 {
			out.StealAttempts = c.StealAttempts
		}
		if c.SpinBeforePark > 0 {
			out.SpinBeforePark = c.SpinBeforePark
		}
		out.Logger = c.Logger
		out.Metrics = c.Metrics
		out.PanicHandler = c.PanicHandler
	}
	if out.StealAttempts == 0 {
		out.StealAttempts = 2 * out.Workers
	}
	if out.Logger == nil {
		out.Logger = NewNoOpLogger()
	}
	if out.Metrics == nil {
		out.Metrics = NilMetrics{}
	}
	if out.PanicHandler == nil {
		out.PanicHandler = &DefaultPanicHandler{}
	}
	return &out
}
