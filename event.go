package tickbus

import (
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

var idCounter uint64

// NewID generates a new unique event ID.
func NewID() string {
	u, err := uuid.NewRandom()
	if err == nil {
		return u.String()
	}
	return strconv.FormatUint(atomic.AddUint64(&idCounter, 1), 10)
}

// Kind identifies a reference-event type on the bus. Kinds form a hierarchy
// registered on a Hierarchy value; a listener subscribed to an ancestor kind
// receives events of every descendant kind.
//
// Value events do not use kinds directly; their key is derived from their
// static Go type.
type Kind string

// KindNone is the zero Kind. Events carrying it are rejected at publish.
const KindNone Kind = ""

// Event is a reference event: an identity-bearing, optionally poolable
// object dispatched to listeners across its whole kind hierarchy.
//
// Concrete event types embed BaseEvent, which provides the identity,
// bookkeeping flags and the Event implementation:
//
//	type DamageEvent struct {
//	    tickbus.BaseEvent
//	    Target uint64
//	    Amount int
//	}
//
// Pooled event types additionally implement Resetter to clear their own
// fields when recycled.
type Event interface {
	// eventBase anchors the interface to BaseEvent so the bus can manage
	// identity and lifecycle flags without reflection.
	eventBase() *BaseEvent
}

// Resetter is implemented by poolable event types that carry their own
// fields. Reset must return every field to its zero value; the Pool calls it
// when the instance is recycled so a later Acquire never observes leftover
// data. BaseEvent fields are reset by the pool itself.
type Resetter interface {
	Reset()
}

// BaseEvent carries the identity and dispatch state shared by all reference
// events. Embed it by value in concrete event types.
//
// The zero BaseEvent has no kind and is rejected at publish; construct with
// NewBase, or acquire instances from the bus Pool which arms the base
// automatically.
type BaseEvent struct {
	id        string
	kind      Kind
	source    any
	createdAt time.Time
	handled   bool
	disposed  bool
	poolable  bool
}

// NewBase returns an armed BaseEvent for a one-off (non-pooled) event.
func NewBase(kind Kind) BaseEvent {
	return BaseEvent{
		id:        NewID(),
		kind:      kind,
		createdAt: time.Now(),
	}
}

func (b *BaseEvent) eventBase() *BaseEvent { return b }

// arm initializes identity and clears dispatch state. Called by NewBase and
// by the pool on every Acquire.
func (b *BaseEvent) arm(kind Kind) {
	b.id = NewID()
	b.kind = kind
	b.source = nil
	b.createdAt = time.Now()
	b.handled = false
	b.disposed = false
}

// ID returns the unique event ID.
func (b *BaseEvent) ID() string { return b.id }

// Kind returns the event kind.
func (b *BaseEvent) Kind() Kind { return b.kind }

// Source returns the originating source reference, if any.
func (b *BaseEvent) Source() any { return b.source }

// SetSource records the originating source reference.
func (b *BaseEvent) SetSource(src any) { b.source = src }

// CreatedAt returns the creation (or pool re-arm) timestamp.
func (b *BaseEvent) CreatedAt() time.Time { return b.createdAt }

// Handled reports whether a listener consumed the event.
func (b *BaseEvent) Handled() bool { return b.handled }

// MarkHandled flags the event as consumed. Dispatch of this event stops
// after the listener that set the flag returns.
func (b *BaseEvent) MarkHandled() { b.handled = true }

// Disposed reports whether the event was disposed. A disposed event is never
// dispatched or read again.
func (b *BaseEvent) Disposed() bool { return b.disposed }

// Dispose marks the event as disposed. Disposing twice is safe. Poolable
// events are disposed by the pool on release; call this directly only for
// events that bypass the pool.
func (b *BaseEvent) Dispose() { b.disposed = true }

// Poolable reports whether the event returns to the pool after dispatch.
func (b *BaseEvent) Poolable() bool { return b.poolable }

// SetPoolable declares whether the event returns to the pool after dispatch.
// The pool sets this on every Acquire; events built with NewBase default to
// non-poolable.
func (b *BaseEvent) SetPoolable(v bool) { b.poolable = v }
