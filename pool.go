package tickbus

import (
	"fmt"
	"sync"
)

// Pool hands out and reclaims reference-event instances per kind, so the
// steady-state publish path allocates nothing once warmed.
//
// Each kind that wants pooling registers a factory once at startup:
//
//	pool := bus.Pool()
//	pool.RegisterFactory(KindDamage, func() tickbus.Event { return &DamageEvent{} })
//	pool.Prewarm(KindDamage, 64)
//
//	ev, _ := pool.Acquire(KindDamage)
//	ev.(*DamageEvent).Amount = 10
//	bus.Publish(ctx, ev)
//	// the bus releases ev back to the pool after dispatch
//
// Free lists are unbounded: once an instance enters the pool it stays there
// until Clear, trading memory for a guaranteed allocation-free Acquire.
type Pool struct {
	mu        sync.Mutex
	factories map[Kind]func() Event
	free      map[Kind][]Event
	hits      uint64
	misses    uint64
}

// NewPool creates an empty pool. A Bus owns one; standalone pools are only
// needed for tests and tools.
func NewPool() *Pool {
	return &Pool{
		factories: make(map[Kind]func() Event),
		free:      make(map[Kind][]Event),
	}
}

// RegisterFactory declares how to construct instances for kind.
// Registering a kind twice replaces the factory; the existing free list is
// dropped since its instances may come from the old factory.
func (p *Pool) RegisterFactory(kind Kind, fn func() Event) {
	if kind == KindNone || fn == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.factories[kind]; ok {
		delete(p.free, kind)
	}
	p.factories[kind] = fn
}

// Acquire returns a ready-to-fill instance for kind: recycled if the free
// list has one, freshly constructed otherwise. The instance is armed with a
// new ID, a current timestamp, cleared flags and poolable set, so the caller
// only fills its own fields.
func (p *Pool) Acquire(kind Kind) (Event, error) {
	p.mu.Lock()
	fn, ok := p.factories[kind]
	if !ok {
		p.mu.Unlock()
		return nil, fmt.Errorf("%w: no factory for %q", ErrUnknownKind, string(kind))
	}
	var ev Event
	if list := p.free[kind]; len(list) > 0 {
		ev = list[len(list)-1]
		p.free[kind] = list[:len(list)-1]
		p.hits++
	} else {
		p.misses++
	}
	p.mu.Unlock()

	if ev == nil {
		ev = fn()
	}
	b := ev.eventBase()
	b.arm(kind)
	b.poolable = true
	return ev, nil
}

// Release returns ev to its kind's free list. The instance is disposed and
// reset first; releasing an already-disposed instance is a no-op, which
// guards the free list against double returns. Non-poolable events are
// disposed but not retained. A kind without a free list gets one lazily.
func (p *Pool) Release(ev Event) {
	if ev == nil {
		return
	}
	b := ev.eventBase()
	if b.disposed {
		return
	}
	b.disposed = true
	if !b.poolable || b.kind == KindNone {
		return
	}
	if r, ok := ev.(Resetter); ok {
		r.Reset()
	}

	p.mu.Lock()
	p.free[b.kind] = append(p.free[b.kind], ev)
	p.mu.Unlock()
}

// Prewarm populates kind's free list with n constructed instances ahead of
// steady-state load, so the first n Acquires never allocate.
func (p *Pool) Prewarm(kind Kind, n int) error {
	p.mu.Lock()
	fn, ok := p.factories[kind]
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: no factory for %q", ErrUnknownKind, string(kind))
	}

	instances := make([]Event, 0, n)
	for i := 0; i < n; i++ {
		ev := fn()
		ev.eventBase().disposed = true
		instances = append(instances, ev)
	}

	p.mu.Lock()
	p.free[kind] = append(p.free[kind], instances...)
	p.mu.Unlock()
	return nil
}

// Size returns the number of free instances held for kind.
func (p *Pool) Size(kind Kind) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free[kind])
}

// Stats returns pool hit/miss counters since creation or the last Clear.
func (p *Pool) Stats() (hits, misses uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hits, p.misses
}

// Clear evicts every free list, leaving retained instances for collection.
// Factories stay registered.
func (p *Pool) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.free = make(map[Kind][]Event)
	p.hits = 0
	p.misses = 0
}
