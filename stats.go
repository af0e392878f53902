package tickbus

import (
	"sync/atomic"
	"time"
)

// Stats is a point-in-time snapshot of bus counters, for diagnostics
// overlays and monitoring dashboards.
type Stats struct {
	// TotalPublished counts publishes accepted by the bus (queued or
	// immediate), including value-event emits.
	TotalPublished uint64
	// TotalDispatched counts events actually dispatched to listeners.
	TotalDispatched uint64
	// ActiveListeners is the current number of registered listener entries.
	ActiveListeners int
	// QueueDepth is the number of ordinary events awaiting dispatch.
	QueueDepth int
	// UrgentQueueDepth is the number of urgent events awaiting dispatch.
	UrgentQueueDepth int
	// AvgDispatchTime is the mean wall time of a single event dispatch.
	AvgDispatchTime time.Duration
	// PeakEventsPerTick is the largest number of events processed by one
	// ProcessEvents call.
	PeakEventsPerTick int
	// ListenerErrors counts listener faults (errors and recovered panics).
	ListenerErrors uint64
	// Dropped counts events rejected or evicted by queue capacity, or
	// refused by the publish rate limit.
	Dropped uint64
	// PoolHits and PoolMisses count pool Acquire outcomes.
	PoolHits   uint64
	PoolMisses uint64
}

// busStats holds the bus's internal counters. All fields are atomics so
// Stats() can be read from a monitoring goroutine without stalling the tick.
type busStats struct {
	published     uint64
	dispatched    uint64
	dispatchNanos uint64
	errors        uint64
	dropped       uint64
	peakPerTick   int64
}

func (s *busStats) publishAccepted() {
	atomic.AddUint64(&s.published, 1)
}

func (s *busStats) eventDispatched(elapsed time.Duration) {
	atomic.AddUint64(&s.dispatched, 1)
	atomic.AddUint64(&s.dispatchNanos, uint64(elapsed))
}

func (s *busStats) listenerFault() {
	atomic.AddUint64(&s.errors, 1)
}

func (s *busStats) eventDropped() {
	atomic.AddUint64(&s.dropped, 1)
}

func (s *busStats) tickProcessed(n int) {
	for {
		peak := atomic.LoadInt64(&s.peakPerTick)
		if int64(n) <= peak || atomic.CompareAndSwapInt64(&s.peakPerTick, peak, int64(n)) {
			return
		}
	}
}

func (s *busStats) avgDispatch() time.Duration {
	n := atomic.LoadUint64(&s.dispatched)
	if n == 0 {
		return 0
	}
	return time.Duration(atomic.LoadUint64(&s.dispatchNanos) / n)
}
