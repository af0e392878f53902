package tickbus

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sort"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// dispatcher resolves the listener set for an event, orders it and invokes
// each listener. It is fully synchronous: every invocation completes before
// dispatch returns.
type dispatcher struct {
	reg      *registry
	kinds    *Hierarchy
	pool     *Pool
	logger   *slog.Logger
	stats    *busStats
	faultCtr metric.Int64Counter
	recovery bool
}

// dispatchValue notifies listeners registered for the exact value-event key.
// Value events have no subtype relationship and no consume semantic: every
// active listener is invoked, in descending priority order, FIFO on ties.
// Returns the number of listeners invoked.
func (d *dispatcher) dispatchValue(ctx context.Context, key Kind, payload any) int {
	list := d.reg.snapshot(key)
	if len(list) == 0 {
		return 0
	}

	notified := 0
	for _, l := range list {
		if l.valueFn == nil || !l.isActive() {
			continue
		}
		err := d.safeInvoke(key, func() error {
			return l.valueFn(ctx, payload)
		})
		notified++
		if ClassifyOutcome(err) == OutcomeError {
			d.report(ctx, key, "", err)
		}
	}
	return notified
}

// dispatchEvent notifies listeners across the whole kind hierarchy of a
// reference event. Candidate lists for every kind in the hierarchy are
// unioned (deduplicated by listener identity, since a handler may be
// registered on both an ancestor and a descendant kind) and invoked in
// descending priority order, FIFO on ties across kinds.
//
// A listener that marks the event handled, or returns ErrConsumed, stops
// dispatch of this event; it is still counted as notified. A disposed event
// short-circuits to zero notifications. After dispatch a poolable event is
// released back to the pool regardless of how many listeners saw it.
func (d *dispatcher) dispatchEvent(ctx context.Context, ev Event) int {
	b := ev.eventBase()
	if b.disposed || b.kind == KindNone {
		return 0
	}

	candidates := d.collect(b.kind)
	notified := 0
	for _, l := range candidates {
		if l.handler == nil || !l.isActive() {
			continue
		}
		err := d.safeInvoke(b.kind, func() error {
			return l.handler.HandleEvent(ctx, ev)
		})
		notified++
		switch ClassifyOutcome(err) {
		case OutcomeConsumed:
			b.handled = true
		case OutcomeError:
			d.report(ctx, b.kind, b.id, err)
		}
		if b.handled {
			break
		}
	}

	if b.poolable {
		d.pool.Release(ev)
	}
	return notified
}

// collect unions the listener lists for every kind in the hierarchy chain
// and sorts the result into one dispatch order.
func (d *dispatcher) collect(kind Kind) []*listener {
	chain := d.kinds.Resolve(kind)

	var candidates []*listener
	var seenSubs map[*Subscription]bool
	var seenIdent map[any]bool
	for _, k := range chain {
		for _, l := range d.reg.snapshot(k) {
			if seenSubs[l.sub] {
				continue
			}
			if l.identity != nil {
				if seenIdent[l.identity] {
					continue
				}
				if seenIdent == nil {
					seenIdent = make(map[any]bool)
				}
				seenIdent[l.identity] = true
			}
			if seenSubs == nil {
				seenSubs = make(map[*Subscription]bool)
			}
			seenSubs[l.sub] = true
			candidates = append(candidates, l)
		}
	}
	if len(candidates) < 2 {
		return candidates
	}
	// Per-kind lists are already priority-sorted; the union is not. The seq
	// tiebreak keeps FIFO order among equal priorities across kinds.
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].priority != candidates[j].priority {
			return candidates[i].priority > candidates[j].priority
		}
		return candidates[i].seq < candidates[j].seq
	})
	return candidates
}

// safeInvoke runs one listener, converting a panic into a
// ListenerPanicError instead of unwinding the batch. Recovery can be
// disabled for tests that want the raw panic.
func (d *dispatcher) safeInvoke(kind Kind, fn func() error) (err error) {
	if d.recovery {
		defer func() {
			if rec := recover(); rec != nil {
				err = &ListenerPanicError{Kind: kind, Value: rec, Stack: debug.Stack()}
			}
		}()
	}
	return fn()
}

// report records a listener fault. Faults never abort dispatch; they are
// counted and logged with enough context to find the misbehaving listener.
func (d *dispatcher) report(ctx context.Context, kind Kind, eventID string, err error) {
	d.stats.listenerFault()
	if d.faultCtr != nil {
		d.faultCtr.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", string(kind))))
	}
	if pe, ok := err.(*ListenerPanicError); ok {
		d.logger.Error("listener panic recovered",
			"kind", string(kind),
			"event_id", eventID,
			"error", pe.Value,
			"stack", string(pe.Stack),
		)
		return
	}
	d.logger.Error("listener error",
		"kind", string(kind),
		"event_id", eventID,
		"error", err,
	)
}
