package tickbus

import (
	"errors"
	"fmt"
	"testing"
)

func chatEvents(texts ...string) []Event {
	events := make([]Event, len(texts))
	for i, txt := range texts {
		events[i] = &chatEvent{BaseEvent: NewBase(kindChat), Text: txt}
	}
	return events
}

func drained(q *queue, max int) []string {
	var out []string
	q.drain(func(ev Event) {
		out = append(out, ev.(*chatEvent).Text)
	}, max)
	return out
}

func TestQueueFIFO(t *testing.T) {
	q := newQueue(0, OverflowReject)
	for _, ev := range chatEvents("a", "b", "c") {
		if _, err := q.enqueue(ev); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}
	if q.len() != 3 {
		t.Fatalf("len = %d, want 3", q.len())
	}
	got := drained(q, 0)
	if fmt.Sprint(got) != fmt.Sprint([]string{"a", "b", "c"}) {
		t.Errorf("drain order = %v, want FIFO", got)
	}
	if q.len() != 0 {
		t.Errorf("len = %d after full drain, want 0", q.len())
	}
}

func TestQueueBoundedDrain(t *testing.T) {
	q := newQueue(0, OverflowReject)
	for _, ev := range chatEvents("a", "b", "c", "d") {
		q.enqueue(ev)
	}

	got := drained(q, 2)
	if fmt.Sprint(got) != fmt.Sprint([]string{"a", "b"}) {
		t.Errorf("first batch = %v, want [a b]", got)
	}
	got = drained(q, 2)
	if fmt.Sprint(got) != fmt.Sprint([]string{"c", "d"}) {
		t.Errorf("second batch = %v, want [c d]", got)
	}
}

func TestQueueRejectPolicy(t *testing.T) {
	q := newQueue(2, OverflowReject)
	q.enqueue(&chatEvent{BaseEvent: NewBase(kindChat)})
	q.enqueue(&chatEvent{BaseEvent: NewBase(kindChat)})

	evicted, err := q.enqueue(&chatEvent{BaseEvent: NewBase(kindChat)})
	if !errors.Is(err, ErrQueueFull) {
		t.Errorf("err = %v, want ErrQueueFull", err)
	}
	if evicted != nil {
		t.Error("reject policy returned an evicted event")
	}
	if q.len() != 2 {
		t.Errorf("len = %d after rejected enqueue, want 2", q.len())
	}
}

func TestQueueDropOldestPolicy(t *testing.T) {
	q := newQueue(2, OverflowDropOldest)
	events := chatEvents("old", "mid", "new")
	q.enqueue(events[0])
	q.enqueue(events[1])

	evicted, err := q.enqueue(events[2])
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if evicted != events[0] {
		t.Errorf("evicted = %v, want the oldest entry", evicted)
	}
	got := drained(q, 0)
	if fmt.Sprint(got) != fmt.Sprint([]string{"mid", "new"}) {
		t.Errorf("remaining = %v, want [mid new]", got)
	}
}

func TestQueueReentrantEnqueue(t *testing.T) {
	q := newQueue(0, OverflowReject)
	q.enqueue(&chatEvent{BaseEvent: NewBase(kindChat), Text: "seed"})

	var seen []string
	n := 0
	q.drain(func(ev Event) {
		seen = append(seen, ev.(*chatEvent).Text)
		if n == 0 {
			q.enqueue(&chatEvent{BaseEvent: NewBase(kindChat), Text: "child"})
		}
		n++
	}, 1)
	if fmt.Sprint(seen) != fmt.Sprint([]string{"seed"}) {
		t.Errorf("drained = %v, want only the seed within the batch", seen)
	}
	if q.len() != 1 {
		t.Errorf("len = %d, want the re-entrant event queued", q.len())
	}
	if got := drained(q, 0); fmt.Sprint(got) != fmt.Sprint([]string{"child"}) {
		t.Errorf("second drain = %v, want [child]", got)
	}
}

func TestQueueReentrantDrainedWithinBudget(t *testing.T) {
	// A re-entrant enqueue is popped in the same drain pass as long as max
	// is not yet reached.
	q := newQueue(0, OverflowReject)
	q.enqueue(&chatEvent{BaseEvent: NewBase(kindChat), Text: "seed"})

	var seen []string
	q.drain(func(ev Event) {
		txt := ev.(*chatEvent).Text
		seen = append(seen, txt)
		if txt == "seed" {
			q.enqueue(&chatEvent{BaseEvent: NewBase(kindChat), Text: "child"})
		}
	}, 4)
	if fmt.Sprint(seen) != fmt.Sprint([]string{"seed", "child"}) {
		t.Errorf("drained = %v, want the re-entrant event in the same pass", seen)
	}
	if q.len() != 0 {
		t.Errorf("len = %d, want 0", q.len())
	}
}

func TestQueueClear(t *testing.T) {
	q := newQueue(0, OverflowReject)
	for _, ev := range chatEvents("a", "b") {
		q.enqueue(ev)
	}
	q.drain(func(Event) {}, 1)

	pending := q.clear()
	if len(pending) != 1 {
		t.Fatalf("clear returned %d events, want 1", len(pending))
	}
	if pending[0].(*chatEvent).Text != "b" {
		t.Errorf("clear returned %q, want the undrained tail", pending[0].(*chatEvent).Text)
	}
	if q.len() != 0 {
		t.Errorf("len = %d after clear, want 0", q.len())
	}
}

func TestQueueCompaction(t *testing.T) {
	// Interleaved enqueue/drain must not accumulate a drained prefix.
	q := newQueue(0, OverflowReject)
	for i := 0; i < 10000; i++ {
		q.enqueue(&chatEvent{BaseEvent: NewBase(kindChat)})
		q.drain(func(Event) {}, 1)
	}
	if q.len() != 0 {
		t.Fatalf("len = %d, want 0", q.len())
	}
	if len(q.buf) > 8 {
		t.Errorf("backing buffer holds %d slots after steady-state churn", len(q.buf))
	}
}
