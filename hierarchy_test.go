package tickbus

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestHierarchyResolve(t *testing.T) {
	h := NewHierarchy()
	combat := h.Register("combat")
	dmg := h.Register("combat.damage", combat)
	flammable := h.Register("flammable")
	fire := h.Register("combat.damage.fire", dmg, flammable)

	tests := []struct {
		name string
		kind Kind
		want []Kind
	}{
		{"root kind", combat, []Kind{combat}},
		{"single parent", dmg, []Kind{dmg, combat}},
		{"multiple parents breadth-first", fire, []Kind{fire, dmg, flammable, combat}},
		{"unregistered resolves to itself", Kind("chat"), []Kind{Kind("chat")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := h.Resolve(tt.kind)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Resolve(%q) mismatch (-want +got):\n%s", string(tt.kind), diff)
			}
		})
	}
}

func TestHierarchyDiamond(t *testing.T) {
	// A kind reachable through two paths must appear exactly once.
	h := NewHierarchy()
	base := h.Register("base")
	left := h.Register("left", base)
	right := h.Register("right", base)
	leaf := h.Register("leaf", left, right)

	want := []Kind{leaf, left, right, base}
	if diff := cmp.Diff(want, h.Resolve(leaf)); diff != "" {
		t.Errorf("diamond resolve mismatch (-want +got):\n%s", diff)
	}
}

func TestHierarchyMemoized(t *testing.T) {
	h := NewHierarchy()
	parent := h.Register("parent")
	child := h.Register("child", parent)

	first := h.Resolve(child)
	second := h.Resolve(child)
	if &first[0] != &second[0] {
		t.Error("Resolve did not return the memoized chain")
	}
}

func TestHierarchyRegistered(t *testing.T) {
	h := NewHierarchy()
	h.Register("known")

	if !h.Registered("known") {
		t.Error("Registered(known) = false")
	}
	if h.Registered("unknown") {
		t.Error("Registered(unknown) = true")
	}
	if h.Len() != 1 {
		t.Errorf("Len() = %d, want 1", h.Len())
	}

	// KindNone registrations are ignored.
	h.Register(KindNone)
	if h.Len() != 1 {
		t.Errorf("Len() = %d after registering KindNone, want 1", h.Len())
	}
}

func TestHierarchyReplaceParents(t *testing.T) {
	h := NewHierarchy()
	a := h.Register("a")
	b := h.Register("b")
	kid := h.Register("kid", a)
	h.Register(kid, b)

	want := []Kind{kid, b}
	if diff := cmp.Diff(want, h.Resolve(kid)); diff != "" {
		t.Errorf("re-registration did not replace parents (-want +got):\n%s", diff)
	}
}
