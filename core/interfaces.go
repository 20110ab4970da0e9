package core

import (
	"context"
	"fmt"
	"time"
)

// =============================================================================
// PanicHandler: Interface for handling task panics
// =============================================================================

// PanicHandler is called when a task body panics during execution.
// A panicking body is a contract violation; the handler exists so the
// violation is reported somewhere useful before the process is torn down
// or, for tests, observed.
//
// Implementations should be thread-safe as they may be called concurrently.
type PanicHandler interface {
	// HandlePanic is called when a task body panics.
	//
	// Parameters:
	// - ctx: The context of the panicked task (carries the worker identity)
	// - taskName: The debug name of the panicked task
	// - workerID: The worker that was running the task
	// - panicInfo: The panic value recovered from the task
	// - stackTrace: The stack trace at the time of panic
	HandlePanic(ctx context.Context, taskName string, workerID int, panicInfo any, stackTrace []byte)
}

// DefaultPanicHandler provides a basic panic handler that logs to stdout.
type DefaultPanicHandler struct{}

// HandlePanic prints panic information to stdout.
func (h *DefaultPanicHandler) HandlePanic(ctx context.Context, taskName string, workerID int, panicInfo any, stackTrace []byte) {
	fmt.Printf("[Worker %d] Task %q panic: %v\nStack trace:\n%s",
		workerID, taskName, panicInfo, stackTrace)
}

// =============================================================================
// Metrics: Interface for observability and monitoring
// =============================================================================

// Metrics defines the interface for collecting scheduler execution metrics.
// Implementations can send metrics to monitoring systems (Prometheus, StatsD, etc.).
//
// Methods should be non-blocking and fast to avoid impacting task execution
// performance.
type Metrics interface {
	// RecordTaskDuration records how long a task body took to execute.
	RecordTaskDuration(priority TaskPriority, duration time.Duration)

	// RecordSteal records a successful steal from another worker's deque.
	RecordSteal(workerID int)

	// RecordPark records a worker blocking because no work was found.
	RecordPark(workerID int)

	// RecordTaskPanic records a panic escaping a task body.
	RecordTaskPanic(taskName string)

	// RecordTaskRejected records a task refused by the scheduler, e.g. a
	// delayed task dropped because the system was interrupted first.
	RecordTaskRejected(reason string)
}

// NilMetrics is a no-op Metrics implementation used when no collector is
// configured.
type NilMetrics struct{}

func (NilMetrics) RecordTaskDuration(priority TaskPriority, duration time.Duration) {}
func (NilMetrics) RecordSteal(workerID int)                                         {}
func (NilMetrics) RecordPark(workerID int)                                          {}
func (NilMetrics) RecordTaskPanic(taskName string)                                  {}
func (NilMetrics) RecordTaskRejected(reason string)                                 {}
