package core

import "context"

// runTaskSet is the internal body of a task set. Indices are claimed with
// an atomic fetch-and-decrement, so any number of workers may participate;
// each index in [0, N) is observed exactly once across the pool.
//
// Before claiming, the first runner offers a helper task so idle workers
// can steal their way in; each helper offers another one while more than a
// single index remains. Helpers declare an end dependency on the set, which
// keeps the set from completing until every participant drained its claims.
func (s *TaskScheduler) runTaskSet(ctx context.Context, set *Task) {
	// Pinned sets stay on their worker, so helpers would be pointless.
	if set.affinity == AnyWorker && set.elems.Load() > 1 {
		s.spawnSetHelper(ctx, set)
	}
	for {
		n := set.elems.Add(-1)
		if n < 0 {
			return
		}
		set.setFn(ctx, int(n))
	}
}

func (s *TaskScheduler) spawnSetHelper(ctx context.Context, set *Task) {
	h := s.NewTask(ctx, set.name, func(ctx context.Context) *Task {
		if set.elems.Load() > 1 {
			s.spawnSetHelper(ctx, set)
		}
		for {
			n := set.elems.Add(-1)
			if n < 0 {
				return nil
			}
			set.setFn(ctx, int(n))
		}
	})
	h.priority = set.priority
	h.Ends(set)
	h.Scheduled()
}
