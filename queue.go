package tickbus

import "sync/atomic"

// OverflowPolicy decides what happens when a queue with a capacity is full.
type OverflowPolicy int

const (
	// OverflowReject rejects the newest event; Publish returns ErrQueueFull.
	OverflowReject OverflowPolicy = iota
	// OverflowDropOldest evicts the oldest queued event to admit the new one.
	// Evicted poolable events are released back to the pool.
	OverflowDropOldest
)

// String returns a string representation of the policy.
func (p OverflowPolicy) String() string {
	switch p {
	case OverflowReject:
		return "reject"
	case OverflowDropOldest:
		return "drop-oldest"
	default:
		return "unknown"
	}
}

// queue is a FIFO buffer of pending reference events. It is drained in
// bounded batches and never reordered. Mutation is owner-thread only; depth
// is kept in an atomic so len() is safe from a monitoring goroutine while
// the owner enqueues and drains.
type queue struct {
	buf      []Event
	head     int
	depth    int64
	capacity int // 0 = unbounded
	policy   OverflowPolicy
}

func newQueue(capacity int, policy OverflowPolicy) *queue {
	return &queue{capacity: capacity, policy: policy}
}

// enqueue appends ev. When the queue is at capacity the overflow policy
// decides: reject returns ErrQueueFull and the evicted event (nil), drop-
// oldest admits ev and returns the evicted head for the caller to release.
func (q *queue) enqueue(ev Event) (evicted Event, err error) {
	if q.capacity > 0 && q.len() >= q.capacity {
		if q.policy == OverflowReject {
			return nil, ErrQueueFull
		}
		evicted = q.buf[q.head]
		q.buf[q.head] = nil
		q.head++
	}
	q.compact()
	q.buf = append(q.buf, ev)
	if evicted == nil {
		atomic.AddInt64(&q.depth, 1)
	}
	return evicted, nil
}

// drain pops at most max events in FIFO order, invoking fn per event.
// max <= 0 means drain everything. Returns the number of events popped.
// fn may enqueue further events; those are popped in the same pass until
// max is reached, and wait for the next drain beyond it.
func (q *queue) drain(fn func(Event), max int) int {
	n := 0
	for (max <= 0 || n < max) && q.head < len(q.buf) {
		ev := q.buf[q.head]
		q.buf[q.head] = nil
		q.head++
		atomic.AddInt64(&q.depth, -1)
		n++
		fn(ev)
	}
	q.compact()
	return n
}

// clear drops all pending events, returning them for release.
func (q *queue) clear() []Event {
	pending := append([]Event(nil), q.buf[q.head:]...)
	q.buf = q.buf[:0]
	q.head = 0
	atomic.StoreInt64(&q.depth, 0)
	return pending
}

// len reports the pending-event count. Safe to call from any goroutine.
func (q *queue) len() int {
	return int(atomic.LoadInt64(&q.depth))
}

// compact reclaims the drained prefix once it dominates the backing slice.
func (q *queue) compact() {
	if q.head == 0 {
		return
	}
	if q.head == len(q.buf) {
		q.buf = q.buf[:0]
		q.head = 0
		return
	}
	if q.head > len(q.buf)/2 {
		n := copy(q.buf, q.buf[q.head:])
		for i := n; i < len(q.buf); i++ {
			q.buf[i] = nil
		}
		q.buf = q.buf[:n]
		q.head = 0
	}
}
