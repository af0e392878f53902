package tickbus

import "sync/atomic"

// Subscription is the disposable token returned from every subscribe call.
// Closing it removes exactly the listener entry it was returned for.
type Subscription struct {
	id     string
	key    Kind
	reg    *registry
	closed int32
}

// ID returns the unique subscription ID.
func (s *Subscription) ID() string { return s.id }

// Kind returns the kind (or derived value-type key) the subscription is
// registered under.
func (s *Subscription) Kind() Kind { return s.key }

// Active reports whether the subscription is still registered.
func (s *Subscription) Active() bool {
	return atomic.LoadInt32(&s.closed) == 0
}

// Close removes the listener entry. Closing twice is safe and closing a
// subscription already removed through Unsubscribe or Clear is a no-op.
// Removal affects subsequent dispatches only; a dispatch already in flight
// completes with its snapshot.
func (s *Subscription) Close() {
	if atomic.CompareAndSwapInt32(&s.closed, 0, 1) {
		s.reg.remove(s.key, s.id)
	}
}

// detach marks the subscription closed without touching the registry.
// Called by the registry itself when it removes the entry.
func (s *Subscription) detach() {
	atomic.StoreInt32(&s.closed, 1)
}
