package tickbus

import (
	"context"
	"time"
)

// PublishInfo is the snapshot handed to an Observer for every accepted
// publish, value and reference alike.
type PublishInfo struct {
	// Kind is the event kind, or the derived type key for value events.
	Kind Kind
	// EventID is the reference-event ID; empty for value events.
	EventID string
	// Payload is the value-event payload or the reference event itself.
	// Observers must treat it as read-only; reference events may be recycled
	// after dispatch.
	Payload any
	// Source is the originating source reference, if any.
	Source any
	// Category is the free-form tag supplied via WithCategory.
	Category string
	// Immediate reports whether the publish bypassed the queues.
	Immediate bool
	// Urgent reports whether the event went to the urgent queue.
	Urgent bool
	// Listeners is the listener count for Kind at publish time.
	Listeners int
	// At is the publish timestamp.
	At time.Time
}

// Observer is notified on every accepted publish. It exists for inspection
// and tooling; the bus behaves identically with no observer configured.
//
// Observers run synchronously inside Publish and Emit; keep them cheap.
// An observer panic is treated like a listener fault: recovered, counted
// and logged.
type Observer interface {
	ObservePublish(ctx context.Context, info PublishInfo)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ctx context.Context, info PublishInfo)

// ObservePublish calls f(ctx, info).
func (f ObserverFunc) ObservePublish(ctx context.Context, info PublishInfo) {
	f(ctx, info)
}
