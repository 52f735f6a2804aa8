package asyncrw

import (
	"time"

	"github.com/gammazero/deque"
)

// waiter is a request that could not be admitted on arrival. It is
// dequeued exactly once, and its resume function is posted exactly
// once onto sched by the release that admits it.
type waiter struct {
	mode   Mode      // Requested access
	sched  Scheduler // Resume context captured at enqueue time
	resume func()    // Continuation of the suspended caller
	since  time.Time // Enqueue time, for wait accounting
}

// waitQueue holds waiters in arrival order and keeps per-mode counts
// for Stats.
type waitQueue struct {
	w       deque.Deque[*waiter] // Waiters, oldest at the front
	readers int                  // Queued ModeRead waiters
	writers int                  // Queued ModeWrite waiters
}

// push appends w at the back of the queue.
func (q *waitQueue) push(w *waiter) {
	q.w.PushBack(w)
	q.count(w.mode, 1)
}

// front returns the oldest waiter, or nil if the queue is empty.
func (q *waitQueue) front() *waiter {
	if q.w.Len() == 0 {
		return nil
	}
	return q.w.Front()
}

// pop removes and returns the oldest waiter. The queue must not be
// empty.
func (q *waitQueue) pop() *waiter {
	w := q.w.PopFront()
	q.count(w.mode, -1)
	return w
}

// len returns the number of queued waiters.
func (q *waitQueue) len() int {
	return q.w.Len()
}

// count adjusts the per-mode tally by delta.
func (q *waitQueue) count(mode Mode, delta int) {
	if mode == ModeWrite {
		q.writers += delta
	} else {
		q.readers += delta
	}
}
