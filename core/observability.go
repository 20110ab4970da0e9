package core

// SchedulerStats represents runtime observability state for a scheduler.
type SchedulerStats struct {
	Workers  int
	Ready    int   // tasks sitting in deques and affinity FIFOs
	Running  int   // bodies currently executing
	Executed int64 // bodies completed since start
	Stolen   int64 // successful steals since start
	Parked   int64 // park events since start
	Delayed  int   // tasks held by the delay manager
	Live     int64 // task slots currently allocated
	Chunks   int64 // allocator chunks carved
}

// WorkerStats represents runtime observability state for one worker.
type WorkerStats struct {
	ID         int
	Executed   int64
	Stolen     int64
	Parked     int64
	QueueDepth int // own deques plus own affinity FIFOs
}
