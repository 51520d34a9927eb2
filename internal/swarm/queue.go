package swarm

import (
	"time"

	"github.com/vega-swarm/vega/pkg/types"
)

// queue is the priority-ordered holding area for tasks awaiting dispatch.
// One FIFO bucket per priority level keeps ordering stable within a level:
// ties are broken by insertion (creation) order.
//
// The queue is owned by the scheduler loop and is not safe for concurrent
// use on its own.
type queue struct {
	buckets [int(types.PriorityBackground) + 1][]*types.Task
}

func newQueue() *queue {
	return &queue{}
}

// push appends the task to its priority bucket.
func (q *queue) push(t *types.Task) {
	q.buckets[t.Priority] = append(q.buckets[t.Priority], t)
}

// popMatch removes and returns the highest-priority, earliest-queued task
// for which match returns true. Tasks that do not match are skipped, so an
// undispatchable head never blocks lower-priority work.
func (q *queue) popMatch(match func(*types.Task) bool) *types.Task {
	for p := range q.buckets {
		for i, t := range q.buckets[p] {
			if match(t) {
				q.buckets[p] = append(q.buckets[p][:i], q.buckets[p][i+1:]...)
				return t
			}
		}
	}
	return nil
}

// remove deletes the task with the given ID, returning true if it was queued.
func (q *queue) remove(taskID string) bool {
	for p := range q.buckets {
		for i, t := range q.buckets[p] {
			if t.ID == taskID {
				q.buckets[p] = append(q.buckets[p][:i], q.buckets[p][i+1:]...)
				return true
			}
		}
	}
	return false
}

// len returns the number of queued tasks.
func (q *queue) len() int {
	n := 0
	for p := range q.buckets {
		n += len(q.buckets[p])
	}
	return n
}

// oldestCreatedAt returns the creation time of the oldest queued task and
// false when the queue is empty. Used to surface queue age in metrics.
func (q *queue) oldestCreatedAt() (time.Time, bool) {
	var oldest time.Time
	found := false
	for p := range q.buckets {
		for _, t := range q.buckets[p] {
			if !found || t.CreatedAt.Before(oldest) {
				oldest = t.CreatedAt
				found = true
			}
		}
	}
	return oldest, found
}
