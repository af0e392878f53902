// Package monitor provides an in-memory recorder for bus publishes, for
// inspection overlays and debugging tools.
//
// The Recorder implements tickbus.Observer: attach it with
// tickbus.WithObserver and it keeps the most recent publishes in a fixed
// ring, with payloads snapshotted as MessagePack so entries stay valid after
// pooled events are recycled.
//
// Example:
//
//	rec := monitor.NewRecorder(512)
//	bus, _ := tickbus.New("game", tickbus.WithObserver(rec))
//
//	// later, in a debug overlay
//	for _, e := range rec.Recent(20) {
//	    fmt.Println(e.At, e.Kind, e.Category)
//	}
//
// The Recorder is intended for development and diagnostics. It is not a
// durable event log and recording stops affecting the bus entirely when it
// is not attached.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/rbaliyan/tickbus"
)

// Entry is one recorded publish.
type Entry struct {
	// EventID is the reference-event ID; empty for value events.
	EventID string
	// Kind is the event kind or derived value-type key.
	Kind tickbus.Kind
	// Category is the publish category tag, if any.
	Category string
	// Immediate and Urgent mirror the publish path taken.
	Immediate bool
	Urgent    bool
	// Listeners is the listener count for Kind at publish time.
	Listeners int
	// At is the publish timestamp.
	At time.Time
	// Payload is the MessagePack snapshot of the published payload.
	// Nil when the payload could not be encoded; EncodeErr then holds the
	// reason.
	Payload   []byte
	EncodeErr string
}

// Decode deserializes the payload snapshot into v.
func (e *Entry) Decode(v any) error {
	return msgpack.Unmarshal(e.Payload, v)
}

// Recorder keeps the most recent bus publishes in a fixed-size ring.
// It is safe for concurrent use, so a debug UI may read it while the bus
// thread records.
type Recorder struct {
	mu   sync.RWMutex
	ring []*Entry
	next int
	size int
}

// NewRecorder creates a recorder holding at most capacity entries.
// A non-positive capacity defaults to 256.
func NewRecorder(capacity int) *Recorder {
	if capacity <= 0 {
		capacity = 256
	}
	return &Recorder{ring: make([]*Entry, capacity)}
}

var _ tickbus.Observer = (*Recorder)(nil)

// ObservePublish records one publish. Implements tickbus.Observer.
func (r *Recorder) ObservePublish(ctx context.Context, info tickbus.PublishInfo) {
	e := &Entry{
		EventID:   info.EventID,
		Kind:      info.Kind,
		Category:  info.Category,
		Immediate: info.Immediate,
		Urgent:    info.Urgent,
		Listeners: info.Listeners,
		At:        info.At,
	}
	data, err := msgpack.Marshal(info.Payload)
	if err != nil {
		e.EncodeErr = err.Error()
	} else {
		e.Payload = data
	}

	r.mu.Lock()
	r.ring[r.next] = e
	r.next = (r.next + 1) % len(r.ring)
	if r.size < len(r.ring) {
		r.size++
	}
	r.mu.Unlock()
}

// Recent returns up to n entries, newest first. n <= 0 returns everything
// retained.
func (r *Recorder) Recent(n int) []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if n <= 0 || n > r.size {
		n = r.size
	}
	out := make([]*Entry, 0, n)
	for i := 1; i <= n; i++ {
		idx := (r.next - i + len(r.ring)) % len(r.ring)
		out = append(out, r.ring[idx])
	}
	return out
}

// ByKind returns up to n entries of the given kind, newest first.
func (r *Recorder) ByKind(kind tickbus.Kind, n int) []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Entry
	for i := 1; i <= r.size; i++ {
		idx := (r.next - i + len(r.ring)) % len(r.ring)
		if e := r.ring[idx]; e.Kind == kind {
			out = append(out, e)
			if n > 0 && len(out) == n {
				break
			}
		}
	}
	return out
}

// Len returns the number of retained entries.
func (r *Recorder) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size
}

// DeleteOlderThan drops retained entries older than age.
// Returns the number of entries dropped.
func (r *Recorder) DeleteOlderThan(age time.Duration) int {
	cutoff := time.Now().Add(-age)

	r.mu.Lock()
	defer r.mu.Unlock()
	kept := make([]*Entry, 0, r.size)
	for i := r.size; i >= 1; i-- {
		idx := (r.next - i + len(r.ring)) % len(r.ring)
		if e := r.ring[idx]; e.At.After(cutoff) {
			kept = append(kept, e)
		}
	}
	dropped := r.size - len(kept)
	for i := range r.ring {
		r.ring[i] = nil
	}
	copy(r.ring, kept)
	r.next = len(kept) % len(r.ring)
	r.size = len(kept)
	return dropped
}

// Clear drops every retained entry.
func (r *Recorder) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.ring {
		r.ring[i] = nil
	}
	r.next = 0
	r.size = 0
}
