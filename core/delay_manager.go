package core

import (
	"sync"
	"time"

	"github.com/emirpasic/gods/trees/redblacktree"
)

// timerKey orders delayed tasks by fire time; the sequence number breaks
// ties so equal deadlines keep insertion order.
type timerKey struct {
	at  time.Time
	seq uint64
}

func timerKeyComparator(a, b interface{}) int {
	ka := a.(timerKey)
	kb := b.(timerKey)
	switch {
	case ka.at.Before(kb.at):
		return -1
	case ka.at.After(kb.at):
		return 1
	case ka.seq < kb.seq:
		return -1
	case ka.seq > kb.seq:
		return 1
	default:
		return 0
	}
}

// delayManager holds tasks whose Scheduled call should fire in the future.
// A red-black tree keyed by (fire time, sequence) keeps the next deadline
// at tree.Left(); a dedicated goroutine sleeps until it and releases every
// expired task.
type delayManager struct {
	sched *TaskScheduler

	mu   sync.Mutex
	tree *redblacktree.Tree
	seq  uint64

	wakeup   chan struct{}
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func newDelayManager(s *TaskScheduler) *delayManager {
	dm := &delayManager{
		sched:  s,
		tree:   redblacktree.NewWith(timerKeyComparator),
		wakeup: make(chan struct{}, 1),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go dm.loop()
	return dm
}

func (dm *delayManager) add(t *Task, d time.Duration) {
	dm.mu.Lock()
	key := timerKey{at: time.Now().Add(d), seq: dm.seq}
	dm.seq++
	dm.tree.Put(key, t)
	first := dm.tree.Left().Key.(timerKey) == key
	dm.mu.Unlock()

	if first {
		select {
		case dm.wakeup <- struct{}{}:
		default:
		}
	}
}

func (dm *delayManager) pending() int {
	dm.mu.Lock()
	n := dm.tree.Size()
	dm.mu.Unlock()
	return n
}

func (dm *delayManager) loop() {
	defer close(dm.done)
	timer := time.NewTimer(time.Hour)
	timer.Stop()

	for {
		next := dm.nextDeadline()
		if next == 0 {
			// No tasks, wait indefinitely
			next = 1000 * time.Hour
		}
		timer.Reset(next)

		select {
		case <-dm.quit:
			timer.Stop()
			return
		case <-timer.C:
			dm.releaseExpired()
		case <-dm.wakeup:
			// New earliest deadline, need to recalculate
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}
	}
}

// nextDeadline returns how long to wait until the next task, 0 when empty.
func (dm *delayManager) nextDeadline() time.Duration {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	node := dm.tree.Left()
	if node == nil {
		return 0
	}
	d := time.Until(node.Key.(timerKey).at)
	if d <= 0 {
		return time.Nanosecond
	}
	return d
}

// releaseExpired fires Scheduled on every task whose deadline passed.
func (dm *delayManager) releaseExpired() {
	now := time.Now()
	var expired []*Task

	dm.mu.Lock()
	for {
		node := dm.tree.Left()
		if node == nil || node.Key.(timerKey).at.After(now) {
			break
		}
		expired = append(expired, node.Value.(*Task))
		dm.tree.Remove(node.Key)
	}
	dm.mu.Unlock()

	for _, t := range expired {
		t.Scheduled()
	}
}

// stop terminates the loop and discards whatever never fired.
func (dm *delayManager) stop() {
	dm.stopOnce.Do(func() {
		close(dm.quit)
		<-dm.done

		dm.mu.Lock()
		var held []*Task
		for _, v := range dm.tree.Values() {
			held = append(held, v.(*Task))
		}
		dm.tree.Clear()
		dm.mu.Unlock()

		for _, t := range held {
			dm.sched.metrics.RecordTaskRejected("teardown")
			dm.sched.discard(t)
		}
	})
}
