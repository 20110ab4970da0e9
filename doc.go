// Package tasking provides an in-process task scheduler for shared-memory
// multicore machines.
//
// Work is expressed as small units called tasks: function-like objects whose
// execution may be deferred, ordered by explicit dependencies, prioritized,
// and optionally pinned to specific workers. A running task may spawn
// further tasks, unfolding a directed acyclic graph on the fly.
//
// # Quick Start
//
// Start the worker pool, schedule a root task, and join the pool as
// worker 0:
//
//	tasking.Start(nil)
//	ctx := context.Background()
//
//	root := tasking.NewTask(ctx, "root", func(ctx context.Context) *tasking.Task {
//		// Your code here
//		tasking.InterruptMain()
//		return nil
//	})
//	root.Scheduled()
//
//	tasking.Enter() // returns after InterruptMain
//	tasking.End()
//
// # Key Concepts
//
// Dependencies: a.Starts(b) keeps b from starting until a is done;
// a.Ends(b) keeps b from completing until a is done. The start count is
// released through the explicit Scheduled call (the end count once the
// body returns), so a task can be fully wired into the graph before the
// scheduler may touch it.
//
// Priorities: four levels from PriorityCritical down to PriorityLow,
// honored locally at every queue lookup. Since scheduling is fully
// distributed, no strict global priority order is attempted.
//
// Affinity: SetAffinity pins a task to one worker, which is useful when a
// task depends on a thread-bound context. Everything else is placed in
// per-worker deques and balanced by work stealing: owners run depth first,
// thieves take breadth first.
//
// Continuations: a task body may return another task, which the same
// worker executes immediately, bypassing every queue.
//
// # Observability
//
// The scheduler exposes counters through Stats and the core.Metrics hook;
// the observability/prometheus package exports both to Prometheus.
package tasking
