package core

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func startedScheduler(t *testing.T, workers int) *TaskScheduler {
	t.Helper()
	s := NewTaskScheduler(&TaskSchedulerConfig{Workers: workers})
	if err := s.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	return s
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the task graph to complete")
	}
}

// TestScheduler_LinearChain verifies start dependencies order execution
// Given: Ten tasks chained with Starts, each appending its index to a log
// When: All ten are scheduled in one go
// Then: The log reads 0..9 in order after quiescence
func TestScheduler_LinearChain(t *testing.T) {
	// Arrange
	s := startedScheduler(t, 4)
	defer s.End()
	ctx := context.Background()

	var logMu sync.Mutex
	var log []int
	done := make(chan struct{})

	tasks := make([]*Task, 10)
	for i := range tasks {
		i := i
		tasks[i] = s.NewTask(ctx, "chain", func(ctx context.Context) *Task {
			logMu.Lock()
			log = append(log, i)
			logMu.Unlock()
			if i == 9 {
				close(done)
			}
			return nil
		})
	}
	for i := 0; i < 9; i++ {
		tasks[i].Starts(tasks[i+1])
	}

	// Act
	for _, task := range tasks {
		task.Scheduled()
	}
	waitDone(t, done)

	// Assert
	logMu.Lock()
	defer logMu.Unlock()
	if len(log) != 10 {
		t.Fatalf("executed %d tasks, want 10", len(log))
	}
	for i, v := range log {
		if v != i {
			t.Fatalf("log[%d] = %d, want %d", i, v, i)
		}
	}
}

// TestScheduler_Diamond verifies fan-in dependencies
// Given: B and C both start D; A's body schedules B and C
// When: The graph runs
// Then: A is first, D is last, B and C are in between in either order
func TestScheduler_Diamond(t *testing.T) {
	// Arrange
	s := startedScheduler(t, 4)
	defer s.End()
	ctx := context.Background()

	var logMu sync.Mutex
	var log []string
	done := make(chan struct{})
	record := func(name string) {
		logMu.Lock()
		log = append(log, name)
		logMu.Unlock()
	}

	d := s.NewTask(ctx, "d", func(ctx context.Context) *Task {
		record("d")
		close(done)
		return nil
	})
	b := s.NewTask(ctx, "b", func(ctx context.Context) *Task {
		record("b")
		return nil
	})
	c := s.NewTask(ctx, "c", func(ctx context.Context) *Task {
		record("c")
		return nil
	})
	b.Starts(d)
	c.Starts(d)
	d.Scheduled()

	a := s.NewTask(ctx, "a", func(ctx context.Context) *Task {
		record("a")
		b.Scheduled()
		c.Scheduled()
		return nil
	})

	// Act
	a.Scheduled()
	waitDone(t, done)

	// Assert
	logMu.Lock()
	defer logMu.Unlock()
	if len(log) != 4 {
		t.Fatalf("executed %d tasks, want 4", len(log))
	}
	if log[0] != "a" {
		t.Errorf("log[0] = %q, want %q", log[0], "a")
	}
	if log[3] != "d" {
		t.Errorf("log[3] = %q, want %q", log[3], "d")
	}
	mid := map[string]bool{log[1]: true, log[2]: true}
	if !mid["b"] || !mid["c"] {
		t.Errorf("middle of log = %v, want {b, c}", log[1:3])
	}
}

// TestScheduler_TaskSet verifies exactly-once index delivery
// Given: A task set of 1000 indices incrementing a counter and per-index slots
// When: The set runs across four workers
// Then: The counter is 1000 and every index was seen exactly once
func TestScheduler_TaskSet(t *testing.T) {
	// Arrange
	const n = 1000
	s := startedScheduler(t, 4)
	defer s.End()
	ctx := context.Background()

	var counter atomic.Int64
	var perIndex [n]atomic.Int32
	done := make(chan struct{})

	set := s.NewTaskSet(ctx, "set", n, func(ctx context.Context, index int) {
		counter.Add(1)
		perIndex[index].Add(1)
	})
	after := s.NewTask(ctx, "after", func(ctx context.Context) *Task {
		close(done)
		return nil
	})
	set.Starts(after)

	// Act
	set.Scheduled()
	after.Scheduled()
	waitDone(t, done)

	// Assert
	if got := counter.Load(); got != n {
		t.Fatalf("counter = %d, want %d", got, n)
	}
	for i := range perIndex {
		if got := perIndex[i].Load(); got != 1 {
			t.Fatalf("index %d observed %d times, want 1", i, got)
		}
	}
}

// TestScheduler_Continuation verifies the continuation bypasses the queues
// Given: Task X whose body returns task Y
// When: Only X is scheduled
// Then: Y runs on the same worker as X, immediately after it
func TestScheduler_Continuation(t *testing.T) {
	// Arrange
	s := startedScheduler(t, 4)
	defer s.End()
	ctx := context.Background()

	var logMu sync.Mutex
	var log []string
	var workerX, workerY int
	done := make(chan struct{})

	x := s.NewTask(ctx, "x", func(ctx context.Context) *Task {
		logMu.Lock()
		log = append(log, "x")
		workerX = WorkerID(ctx)
		logMu.Unlock()
		return s.NewTask(ctx, "y", func(ctx context.Context) *Task {
			logMu.Lock()
			log = append(log, "y")
			workerY = WorkerID(ctx)
			logMu.Unlock()
			close(done)
			return nil
		})
	})

	// Act
	x.Scheduled()
	waitDone(t, done)

	// Assert
	logMu.Lock()
	defer logMu.Unlock()
	if len(log) != 2 || log[0] != "x" || log[1] != "y" {
		t.Fatalf("log = %v, want [x y]", log)
	}
	if workerX != workerY {
		t.Errorf("y ran on worker %d, x on worker %d; want the same", workerY, workerX)
	}
}

// TestScheduler_AffinityPin verifies a pinned task runs on its worker
// Given: Eight workers and a task pinned to worker 3
// When: The task is scheduled from outside the pool
// Then: It executes on worker 3
func TestScheduler_AffinityPin(t *testing.T) {
	// Arrange
	s := startedScheduler(t, 8)
	defer s.End()
	ctx := context.Background()

	ranOn := make(chan int, 1)
	z := s.NewTask(ctx, "z", func(ctx context.Context) *Task {
		ranOn <- WorkerID(ctx)
		return nil
	})
	z.SetAffinity(3)

	// Act
	z.Scheduled()

	// Assert
	select {
	case id := <-ranOn:
		if id != 3 {
			t.Errorf("pinned task ran on worker %d, want 3", id)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("pinned task never ran")
	}
}

// TestScheduler_EndDependency verifies Ends orders completions
// Given: A.Ends(B) with a slow A, and C started by B's completion
// When: The graph runs
// Then: C observes A already finished
func TestScheduler_EndDependency(t *testing.T) {
	// Arrange
	s := startedScheduler(t, 4)
	defer s.End()
	ctx := context.Background()

	var aFinished atomic.Bool
	var cSawAFinished atomic.Bool
	done := make(chan struct{})

	b := s.NewTask(ctx, "b", func(ctx context.Context) *Task { return nil })
	c := s.NewTask(ctx, "c", func(ctx context.Context) *Task {
		cSawAFinished.Store(aFinished.Load())
		close(done)
		return nil
	})
	a := s.NewTask(ctx, "a", func(ctx context.Context) *Task {
		time.Sleep(20 * time.Millisecond)
		aFinished.Store(true)
		return nil
	})
	a.Ends(b)
	b.Starts(c)

	// Act
	a.Scheduled()
	b.Scheduled()
	c.Scheduled()
	waitDone(t, done)

	// Assert
	if !cSawAFinished.Load() {
		t.Error("c ran before a finished; Ends ordering violated")
	}
}

// TestScheduler_PriorityOrder verifies local priority multiplexing
// Given: One worker with a low and a critical task queued before Enter
// When: The initiating thread enters the pool
// Then: The critical task runs before the low one despite push order
func TestScheduler_PriorityOrder(t *testing.T) {
	// Arrange
	s := startedScheduler(t, 1)
	defer s.End()
	ctx := context.Background()

	var logMu sync.Mutex
	var log []string

	low := s.NewTask(ctx, "low", func(ctx context.Context) *Task {
		logMu.Lock()
		log = append(log, "low")
		logMu.Unlock()
		s.InterruptMain()
		return nil
	})
	low.SetPriority(PriorityLow)

	critical := s.NewTask(ctx, "critical", func(ctx context.Context) *Task {
		logMu.Lock()
		log = append(log, "critical")
		logMu.Unlock()
		return nil
	})
	critical.SetPriority(PriorityCritical)

	low.Scheduled()
	critical.Scheduled()

	// Act
	s.Enter()

	// Assert
	logMu.Lock()
	defer logMu.Unlock()
	if len(log) != 2 || log[0] != "critical" || log[1] != "low" {
		t.Fatalf("log = %v, want [critical low]", log)
	}
}

// TestScheduler_RunAnyTask verifies inline execution from a running body
// Given: One worker; a running body schedules another task and calls RunAnyTask
// When: RunAnyTask is invoked from inside the body
// Then: The queued task runs inline and RunAnyTask reports true
func TestScheduler_RunAnyTask(t *testing.T) {
	// Arrange
	s := startedScheduler(t, 1)
	defer s.End()
	ctx := context.Background()

	var inlineRan atomic.Bool
	var reported atomic.Bool

	outer := s.NewTask(ctx, "outer", func(ctx context.Context) *Task {
		inner := s.NewTask(ctx, "inner", func(ctx context.Context) *Task {
			inlineRan.Store(true)
			return nil
		})
		inner.Scheduled()
		reported.Store(s.RunAnyTask(ctx))
		if !inlineRan.Load() {
			t.Error("inner task did not run inline")
		}
		s.InterruptMain()
		return nil
	})
	outer.Scheduled()

	// Act
	s.Enter()

	// Assert
	if !reported.Load() {
		t.Error("RunAnyTask() = false, want true")
	}
	if !inlineRan.Load() {
		t.Error("inner task never ran")
	}
}

// TestScheduler_RunAnyTaskOffWorker verifies the off-worker guard
// Given: A started scheduler
// When: RunAnyTask is called with a plain context
// Then: It returns false
func TestScheduler_RunAnyTaskOffWorker(t *testing.T) {
	// Arrange
	s := startedScheduler(t, 2)
	defer s.End()

	// Act and Assert
	if s.RunAnyTask(context.Background()) {
		t.Error("RunAnyTask(background) = true, want false")
	}
}

// TestScheduler_EnterReturnsOnInterruptMain verifies main-thread interrupt
// Given: One worker and a task that fires InterruptMain
// When: The initiating thread enters the pool
// Then: Enter returns once the task completed
func TestScheduler_EnterReturnsOnInterruptMain(t *testing.T) {
	// Arrange
	s := startedScheduler(t, 1)
	defer s.End()
	ctx := context.Background()

	var ran atomic.Bool
	task := s.NewTask(ctx, "stop", func(ctx context.Context) *Task {
		ran.Store(true)
		s.InterruptMain()
		return nil
	})
	task.Scheduled()

	// Act
	s.Enter()

	// Assert
	if !ran.Load() {
		t.Error("task did not run before Enter returned")
	}
}

// TestScheduler_Interrupt verifies cooperative global termination
// Given: Four workers grinding through a long chain of small tasks
// When: Interrupt fires mid-flight and End is called
// Then: End returns without hanging and no body was cut short
func TestScheduler_Interrupt(t *testing.T) {
	// Arrange
	s := startedScheduler(t, 4)
	ctx := context.Background()

	var started, finished atomic.Int64
	tasks := make([]*Task, 200)
	for i := range tasks {
		tasks[i] = s.NewTask(ctx, "link", func(ctx context.Context) *Task {
			started.Add(1)
			time.Sleep(time.Millisecond)
			finished.Add(1)
			return nil
		})
	}
	for i := 0; i < len(tasks)-1; i++ {
		tasks[i].Starts(tasks[i+1])
	}
	for _, task := range tasks {
		task.Scheduled()
	}

	// Act
	time.Sleep(10 * time.Millisecond)
	s.Interrupt()
	if err := s.End(); err != nil {
		t.Fatalf("End() failed: %v", err)
	}

	// Assert - every body that started also finished
	if started.Load() != finished.Load() {
		t.Errorf("started %d bodies but finished %d; interrupt cut one short",
			started.Load(), finished.Load())
	}
	if finished.Load() == int64(len(tasks)) {
		t.Log("chain completed before the interrupt; termination still exercised")
	}
}

// TestScheduler_ExactlyOnceUnderStealing verifies no duplicate execution
// Given: Many independent tasks scheduled at once across eight workers
// When: The pool drains them with heavy stealing
// Then: Every task ran exactly once
func TestScheduler_ExactlyOnceUnderStealing(t *testing.T) {
	// Arrange
	const n = 2000
	s := startedScheduler(t, 8)
	defer s.End()
	ctx := context.Background()

	var perTask [n]atomic.Int32
	var remaining atomic.Int64
	remaining.Store(n)
	done := make(chan struct{})

	// Act
	for i := 0; i < n; i++ {
		i := i
		task := s.NewTask(ctx, "unit", func(ctx context.Context) *Task {
			perTask[i].Add(1)
			if remaining.Add(-1) == 0 {
				close(done)
			}
			return nil
		})
		task.Scheduled()
	}
	waitDone(t, done)

	// Assert
	for i := range perTask {
		if got := perTask[i].Load(); got != 1 {
			t.Fatalf("task %d ran %d times, want 1", i, got)
		}
	}
}

// TestScheduler_Stats verifies the snapshot counters
// Given: A scheduler that executed a burst of tasks
// When: Stats is read after quiescence
// Then: Executed covers the burst and nothing is left ready or running
func TestScheduler_Stats(t *testing.T) {
	// Arrange
	const n = 50
	s := startedScheduler(t, 4)
	defer s.End()
	ctx := context.Background()

	var remaining atomic.Int64
	remaining.Store(n)
	done := make(chan struct{})
	for i := 0; i < n; i++ {
		task := s.NewTask(ctx, "burst", func(ctx context.Context) *Task {
			if remaining.Add(-1) == 0 {
				close(done)
			}
			return nil
		})
		task.Scheduled()
	}
	waitDone(t, done)
	time.Sleep(10 * time.Millisecond) // let finish() settle on all workers

	// Act
	stats := s.Stats()

	// Assert
	if stats.Workers != 4 {
		t.Errorf("Workers = %d, want 4", stats.Workers)
	}
	if stats.Executed < n {
		t.Errorf("Executed = %d, want >= %d", stats.Executed, n)
	}
	if stats.Ready != 0 {
		t.Errorf("Ready = %d, want 0", stats.Ready)
	}
	if stats.Running != 0 {
		t.Errorf("Running = %d, want 0", stats.Running)
	}
}

// TestScheduler_StartTwiceFails verifies the lifecycle guard
// Given: A started scheduler
// When: Start is called again
// Then: An error is returned
func TestScheduler_StartTwiceFails(t *testing.T) {
	// Arrange
	s := startedScheduler(t, 2)
	defer s.End()

	// Act and Assert
	if err := s.Start(); err == nil {
		t.Error("second Start() should fail")
	}
}
