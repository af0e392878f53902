package tickbus

import "sync"

// Hierarchy records parent relationships between event kinds and resolves,
// for any kind, the ordered set of kinds whose listeners must be notified.
//
// The hierarchy replaces a runtime type walk: relationships are registered
// explicitly, once, at startup. Resolution is memoized per kind for the
// lifetime of the Hierarchy and never invalidated, so after the first
// Resolve for a kind every later dispatch is a single map lookup.
//
// Registration after the first Resolve of an affected kind is not supported;
// register the full hierarchy before publishing.
//
// Example:
//
//	h := bus.Hierarchy()
//	h.Register(KindCombat)
//	h.Register(KindDamage, KindCombat)
//	h.Register(KindFireDamage, KindDamage, KindFlammable)
//
//	h.Resolve(KindFireDamage)
//	// => [fire-damage, damage, combat, flammable]
type Hierarchy struct {
	mu       sync.RWMutex
	parents  map[Kind][]Kind
	resolved map[Kind][]Kind
}

// NewHierarchy creates an empty kind hierarchy.
func NewHierarchy() *Hierarchy {
	return &Hierarchy{
		parents:  make(map[Kind][]Kind),
		resolved: make(map[Kind][]Kind),
	}
}

// Register declares kind and its direct parents. Parents may be other
// concrete kinds or capability kinds that exist only to be subscribed to.
// Registering the same kind again replaces its parent list. Returns kind for
// convenient declaration:
//
//	var KindFireDamage = h.Register("damage.fire", KindDamage)
func (h *Hierarchy) Register(kind Kind, parents ...Kind) Kind {
	if kind == KindNone {
		return kind
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.parents[kind] = append([]Kind(nil), parents...)
	return kind
}

// Resolve returns the flattened ancestor chain for kind, the kind itself
// first, each ancestor exactly once, in breadth-first registration order.
// The result is memoized; callers must not mutate it.
//
// An unregistered kind resolves to just itself, so plain flat kinds work
// without any registration.
func (h *Hierarchy) Resolve(kind Kind) []Kind {
	h.mu.RLock()
	chain, ok := h.resolved[kind]
	h.mu.RUnlock()
	if ok {
		return chain
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	// Recheck under the write lock.
	if chain, ok := h.resolved[kind]; ok {
		return chain
	}
	chain = h.flatten(kind)
	h.resolved[kind] = chain
	return chain
}

// flatten walks the parent graph breadth-first, deduplicating kinds that are
// reachable through more than one path. Caller holds the write lock.
func (h *Hierarchy) flatten(kind Kind) []Kind {
	chain := []Kind{kind}
	seen := map[Kind]bool{kind: true}
	for i := 0; i < len(chain); i++ {
		for _, p := range h.parents[chain[i]] {
			if p == KindNone || seen[p] {
				continue
			}
			seen[p] = true
			chain = append(chain, p)
		}
	}
	return chain
}

// Registered reports whether kind has an explicit registration.
func (h *Hierarchy) Registered(kind Kind) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.parents[kind]
	return ok
}

// Len returns the number of registered kinds.
func (h *Hierarchy) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.parents)
}
