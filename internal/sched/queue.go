package sched

import (
	"sync"
	"sync/atomic"
)

// defaultQueueCapacity is the per-worker ring size. Must be a power of two.
const defaultQueueCapacity = 1024

// taskQueue is a fixed-capacity ring buffer with two ends. The owner
// worker pushes and pops at the bottom end in LIFO order; thieves remove
// from the top end with a compare-and-exchange, so steals are FIFO
// relative to enqueue order and the oldest tasks stay visible to peers.
//
// The bottom end is serialized by a mutex (the owner plus occasional
// external submitters), which keeps it single-threaded as the protocol
// requires. top and bottom only ever increase, except for the transient
// decrement inside pop; a push reuses a slot only once the steal end has
// moved past it, so a thief that loses the CAS can never observe a
// half-written task.
type taskQueue struct {
	mu     sync.Mutex // serializes bottom-end operations
	top    atomic.Int64
	bottom atomic.Int64
	mask   int64
	slots  []atomic.Pointer[Task]
}

func newTaskQueue(capacity int) *taskQueue {
	if capacity <= 0 || capacity&(capacity-1) != 0 {
		panic("sched: queue capacity must be a positive power of two")
	}
	return &taskQueue{
		mask:  int64(capacity - 1),
		slots: make([]atomic.Pointer[Task], capacity),
	}
}

func (q *taskQueue) capacity() int {
	return len(q.slots)
}

// push adds a task at the bottom end. Returns false when the ring is
// full; the caller then places the task on the overflow queue. The ring
// itself never resizes and never blocks.
func (q *taskQueue) push(t Task) bool {
	q.mu.Lock()
	b := q.bottom.Load()
	top := q.top.Load()
	if b-top >= int64(len(q.slots)) {
		q.mu.Unlock()
		return false
	}
	q.slots[b&q.mask].Store(&t)
	q.bottom.Store(b + 1)
	q.mu.Unlock()
	return true
}

// pop removes the most recently pushed task (LIFO), favoring cache
// locality of freshly spawned work. Competes with thieves only for the
// final remaining task.
func (q *taskQueue) pop() (Task, bool) {
	q.mu.Lock()
	b := q.bottom.Load() - 1
	q.bottom.Store(b)
	top := q.top.Load()

	if top > b {
		// Empty; restore bottom.
		q.bottom.Store(b + 1)
		q.mu.Unlock()
		return nil, false
	}

	t := *q.slots[b&q.mask].Load()
	if top == b {
		// Last element: race the thieves for it.
		won := q.top.CompareAndSwap(top, top+1)
		q.bottom.Store(b + 1)
		q.mu.Unlock()
		if !won {
			return nil, false
		}
		return t, true
	}
	q.mu.Unlock()
	return t, true
}

// steal removes the oldest task from the top end. A failed CAS means a
// concurrent steal or pop claimed the task first; the caller moves on to
// the next victim.
func (q *taskQueue) steal() (Task, bool) {
	for {
		top := q.top.Load()
		b := q.bottom.Load()
		if top >= b {
			return nil, false
		}
		t := q.slots[top&q.mask].Load()
		if q.top.CompareAndSwap(top, top+1) {
			return *t, true
		}
		// Lost the race; re-read the ends once more before giving up.
		if q.top.Load() >= q.bottom.Load() {
			return nil, false
		}
	}
}

// size returns an estimate of resident tasks; exact while the queue is
// quiescent.
func (q *taskQueue) size() int {
	b := q.bottom.Load()
	top := q.top.Load()
	if b < top {
		return 0
	}
	return int(b - top)
}
