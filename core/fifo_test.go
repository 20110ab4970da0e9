package core

import "testing"

// TestTaskFIFO_Order verifies strict FIFO behavior
// Given: Three tasks pushed in order
// When: They are popped
// Then: They come back in push order
func TestTaskFIFO_Order(t *testing.T) {
	// Arrange
	q := newTaskFIFO()
	tasks := dequeTasks(3)
	for _, task := range tasks {
		q.push(task)
	}

	// Act and Assert
	for i := 0; i < 3; i++ {
		if got := q.pop(); got != tasks[i] {
			t.Fatalf("pop() = %p, want tasks[%d]", got, i)
		}
	}
	if got := q.pop(); got != nil {
		t.Fatal("pop() on empty queue should return nil")
	}
}

// TestTaskFIFO_Drain verifies drain empties the queue
// Given: A queue with five tasks
// When: drain is called
// Then: All five come back in order and the queue is empty
func TestTaskFIFO_Drain(t *testing.T) {
	// Arrange
	q := newTaskFIFO()
	tasks := dequeTasks(5)
	for _, task := range tasks {
		q.push(task)
	}

	// Act
	out := q.drain()

	// Assert
	if len(out) != 5 {
		t.Fatalf("drain() returned %d tasks, want 5", len(out))
	}
	for i, task := range out {
		if task != tasks[i] {
			t.Fatalf("drain()[%d] = %p, want tasks[%d]", i, task, i)
		}
	}
	if got := q.len(); got != 0 {
		t.Fatalf("len() after drain = %d, want 0", got)
	}
}

// TestTaskFIFO_CompactsAfterHighWater verifies capacity shrinks back
// Given: A queue grown past the compaction threshold and then emptied
// When: The last task is popped
// Then: The backing array capacity is no larger than compactMinCap
func TestTaskFIFO_CompactsAfterHighWater(t *testing.T) {
	// Arrange
	q := newTaskFIFO()
	tasks := dequeTasks(compactMinCap * 2)
	for _, task := range tasks {
		q.push(task)
	}

	// Act
	for range tasks {
		q.pop()
	}

	// Assert
	if got := cap(q.tasks); got > compactMinCap {
		t.Errorf("cap after drain = %d, want <= %d", got, compactMinCap)
	}
}
