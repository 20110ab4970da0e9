package tasking

import "github.com/taskweave/go-tasking/core"

// Re-export commonly used types from core package for convenience.
// This allows users to import only the tasking package for most use cases.

// Task is the unit of work
type Task = core.Task

// TaskFunc is a task body; its optional return value is the continuation
type TaskFunc = core.TaskFunc

// TaskSetFunc is a task-set body, invoked once per index
type TaskSetFunc = core.TaskSetFunc

// TaskPriority defines the priority levels for tasks
type TaskPriority = core.TaskPriority

// TaskSchedulerConfig carries construction-time scheduler settings
type TaskSchedulerConfig = core.TaskSchedulerConfig

// SchedulerStats is a point-in-time scheduler snapshot
type SchedulerStats = core.SchedulerStats

// Priority constants
const (
	PriorityCritical TaskPriority = core.PriorityCritical
	PriorityHigh     TaskPriority = core.PriorityHigh
	PriorityNormal   TaskPriority = core.PriorityNormal
	PriorityLow      TaskPriority = core.PriorityLow
)

// AnyWorker is the affinity sentinel meaning any worker may run the task
const AnyWorker = core.AnyWorker

// WorkerID extracts the current worker identity from a task body context
var WorkerID = core.WorkerID

// DefaultTaskSchedulerConfig returns the default configuration
var DefaultTaskSchedulerConfig = core.DefaultTaskSchedulerConfig
