package tickbus

import (
	"context"
	"reflect"
	"sort"
	"sync"
	"sync/atomic"
)

// Handler processes reference events. Implementations registered on an
// ancestor kind receive events of every descendant kind.
//
// Returning nil continues dispatch to lower-priority listeners. Returning an
// error that wraps ErrConsumed (or calling MarkHandled on the event) stops
// dispatch of that event. Any other error is recorded and dispatch continues.
type Handler interface {
	HandleEvent(ctx context.Context, ev Event) error
}

// HandlerFunc adapts a function to the Handler interface.
//
// HandlerFunc values have no stable identity: subscribing the same function
// twice registers two listeners, and Unsubscribe cannot match them. Use the
// returned Subscription to remove a func listener.
type HandlerFunc func(ctx context.Context, ev Event) error

// HandleEvent calls f(ctx, ev).
func (f HandlerFunc) HandleEvent(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

// listener is one registry entry: a subscriber plus its dispatch metadata.
// Exactly one of handler and valueFn is set.
type listener struct {
	sub      *Subscription
	priority int
	seq      uint64 // insertion order, breaks priority ties FIFO
	active   func() bool
	handler  Handler
	valueFn  func(ctx context.Context, payload any) error
	identity any // dedup key for handler objects, nil for callbacks
}

// isActive reports whether the listener should be invoked right now.
func (l *listener) isActive() bool {
	return l.active == nil || l.active()
}

// registry holds per-kind listener lists kept sorted by descending priority.
// Lists are pruned when they empty, so memory is bounded by the number of
// distinct kinds in use, not by historical subscriptions.
type registry struct {
	mu      sync.RWMutex
	entries map[Kind][]*listener
	seq     uint64
	total   int64
}

func newRegistry() *registry {
	return &registry{entries: make(map[Kind][]*listener)}
}

// add registers l under key and returns its subscription. If l carries an
// identity that is already registered for key, the existing subscription is
// returned and no new entry is created.
func (r *registry) add(key Kind, l *listener) *Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()

	if l.identity != nil {
		for _, existing := range r.entries[key] {
			if sameIdentity(existing.identity, l.identity) {
				return existing.sub
			}
		}
	}

	r.seq++
	l.seq = r.seq
	l.sub = &Subscription{id: NewID(), key: key, reg: r}

	// Copy-on-write: dispatch holds returned slices without a lock, so
	// mutation always builds a fresh one.
	old := r.entries[key]
	list := make([]*listener, 0, len(old)+1)
	list = append(list, old...)
	list = append(list, l)
	// Append order equals seq order, so a stable sort preserves FIFO among
	// equal priorities.
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].priority > list[j].priority
	})
	r.entries[key] = list
	atomic.AddInt64(&r.total, 1)
	return l.sub
}

// remove deletes the entry whose subscription has the given id.
// Returns true if an entry was removed.
func (r *registry) remove(key Kind, subID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.entries[key]
	for i, l := range list {
		if l.sub.id != subID {
			continue
		}
		if len(list) == 1 {
			delete(r.entries, key)
		} else {
			next := make([]*listener, 0, len(list)-1)
			next = append(next, list[:i]...)
			next = append(next, list[i+1:]...)
			r.entries[key] = next
		}
		atomic.AddInt64(&r.total, -1)
		return true
	}
	return false
}

// removeByIdentity deletes every entry whose identity matches, across all
// kinds. Returns the number of entries removed.
func (r *registry) removeByIdentity(identity any) int {
	if identity == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for key, list := range r.entries {
		kept := make([]*listener, 0, len(list))
		for _, l := range list {
			if sameIdentity(l.identity, identity) {
				l.sub.detach()
				removed++
				continue
			}
			kept = append(kept, l)
		}
		if len(kept) == len(list) {
			continue
		}
		if len(kept) == 0 {
			delete(r.entries, key)
		} else {
			r.entries[key] = kept
		}
	}
	atomic.AddInt64(&r.total, int64(-removed))
	return removed
}

// snapshot returns the sorted listener list for key. Lists are immutable
// once stored (mutation is copy-on-write), so dispatch iterates the snapshot
// without holding the lock and without allocating. Listeners removed
// mid-dispatch still receive the in-flight event; the activity predicate is
// the escape hatch for torn-down subscribers.
func (r *registry) snapshot(key Kind) []*listener {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[key]
}

// count returns the number of entries registered for key.
func (r *registry) count(key Kind) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries[key])
}

// totalCount returns the number of entries across all kinds.
func (r *registry) totalCount() int {
	return int(atomic.LoadInt64(&r.total))
}

// clear removes every entry.
func (r *registry) clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, list := range r.entries {
		for _, l := range list {
			l.sub.detach()
		}
		delete(r.entries, key)
	}
	atomic.StoreInt64(&r.total, 0)
}

// handlerComparable reports whether h's dynamic type supports ==.
func handlerComparable(h Handler) bool {
	t := reflect.TypeOf(h)
	return t != nil && t.Comparable()
}

// sameIdentity compares two identity values without panicking on
// uncomparable dynamic types (funcs, maps, slices); those never match.
func sameIdentity(a, b any) bool {
	if a == nil || b == nil {
		return false
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}
	return a == b
}

// typeKinds caches the Kind derived for each value-event Go type.
var typeKinds sync.Map // map[reflect.Type]Kind

// typeKind derives the registry key for a value-event type. Derivation runs
// once per distinct type; later lookups hit the cache.
func typeKind(t reflect.Type) Kind {
	if k, ok := typeKinds.Load(t); ok {
		return k.(Kind)
	}
	name := t.String()
	if t.PkgPath() != "" && t.Name() != "" {
		name = t.PkgPath() + "." + t.Name()
	}
	k := Kind("go:" + name)
	typeKinds.Store(t, k)
	return k
}

// KindOf returns the registry key used for value events of type T.
// Useful for diagnostics and for Bus.Subscribers.
func KindOf[T any]() Kind {
	return typeKind(reflect.TypeOf((*T)(nil)).Elem())
}
