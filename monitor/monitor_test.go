package monitor

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/rbaliyan/tickbus"
)

type hit struct {
	Amount int
	Cause  string
}

func record(r *Recorder, kind tickbus.Kind, payload any) {
	r.ObservePublish(context.Background(), tickbus.PublishInfo{
		Kind:    kind,
		Payload: payload,
		At:      time.Now(),
	})
}

func TestRecorderRecentOrder(t *testing.T) {
	r := NewRecorder(8)
	for i := 0; i < 3; i++ {
		record(r, tickbus.Kind(fmt.Sprintf("k%d", i)), i)
	}
	if r.Len() != 3 {
		t.Fatalf("Len = %d, want 3", r.Len())
	}

	got := r.Recent(0)
	want := []tickbus.Kind{"k2", "k1", "k0"}
	if len(got) != len(want) {
		t.Fatalf("Recent returned %d entries, want %d", len(got), len(want))
	}
	for i, e := range got {
		if e.Kind != want[i] {
			t.Errorf("Recent[%d].Kind = %q, want %q", i, string(e.Kind), string(want[i]))
		}
	}

	limited := r.Recent(2)
	if len(limited) != 2 {
		t.Fatalf("Recent(2) returned %d entries", len(limited))
	}
	if limited[0].Kind != "k2" {
		t.Errorf("Recent(2)[0].Kind = %q, want k2", string(limited[0].Kind))
	}
}

func TestRecorderRingWrap(t *testing.T) {
	r := NewRecorder(3)
	for i := 0; i < 5; i++ {
		record(r, tickbus.Kind(fmt.Sprintf("k%d", i)), i)
	}
	if r.Len() != 3 {
		t.Fatalf("Len = %d after wrap, want 3", r.Len())
	}
	got := r.Recent(0)
	want := []tickbus.Kind{"k4", "k3", "k2"}
	for i, e := range got {
		if e.Kind != want[i] {
			t.Errorf("Recent[%d].Kind = %q, want %q (oldest overwritten)", i, string(e.Kind), string(want[i]))
		}
	}
}

func TestRecorderByKind(t *testing.T) {
	r := NewRecorder(8)
	record(r, "combat", 1)
	record(r, "chat", 2)
	record(r, "combat", 3)

	got := r.ByKind("combat", 0)
	if len(got) != 2 {
		t.Fatalf("ByKind returned %d entries, want 2", len(got))
	}
	var newest int
	if err := got[0].Decode(&newest); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if newest != 3 {
		t.Errorf("newest combat payload = %d, want 3", newest)
	}

	if limited := r.ByKind("combat", 1); len(limited) != 1 {
		t.Errorf("ByKind(n=1) returned %d entries", len(limited))
	}
	if none := r.ByKind("despawn", 0); len(none) != 0 {
		t.Errorf("ByKind(unknown) returned %d entries", len(none))
	}
}

func TestRecorderPayloadSnapshot(t *testing.T) {
	r := NewRecorder(4)
	want := hit{Amount: 12, Cause: "fire"}
	record(r, "combat.damage", want)

	entry := r.Recent(1)[0]
	if entry.EncodeErr != "" {
		t.Fatalf("encode error: %s", entry.EncodeErr)
	}
	var got hit
	if err := entry.Decode(&got); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("payload round-trip mismatch (-want +got):\n%s", diff)
	}
}

func TestRecorderEncodeFailureKept(t *testing.T) {
	r := NewRecorder(4)
	record(r, "bad", func() {}) // funcs cannot be encoded

	entry := r.Recent(1)[0]
	if entry.EncodeErr == "" {
		t.Error("expected an encode error for a func payload")
	}
	if entry.Payload != nil {
		t.Error("payload set despite encode failure")
	}
	if entry.Kind != "bad" {
		t.Errorf("entry kind = %q, want metadata kept on encode failure", string(entry.Kind))
	}
}

func TestRecorderDeleteOlderThan(t *testing.T) {
	r := NewRecorder(8)
	old := &Entry{Kind: "old", At: time.Now().Add(-time.Hour)}
	r.ObservePublish(context.Background(), tickbus.PublishInfo{Kind: old.Kind, At: old.At})
	record(r, "fresh", 1)

	dropped := r.DeleteOlderThan(time.Minute)
	if dropped != 1 {
		t.Fatalf("dropped = %d, want 1", dropped)
	}
	if r.Len() != 1 {
		t.Fatalf("Len = %d after prune, want 1", r.Len())
	}
	if got := r.Recent(0)[0].Kind; got != "fresh" {
		t.Errorf("survivor kind = %q, want fresh", string(got))
	}

	// Recording continues normally after a prune.
	record(r, "later", 2)
	if got := r.Recent(0)[0].Kind; got != "later" {
		t.Errorf("post-prune record landed wrong: %q", string(got))
	}
}

func TestRecorderClear(t *testing.T) {
	r := NewRecorder(4)
	record(r, "a", 1)
	record(r, "b", 2)

	r.Clear()
	if r.Len() != 0 {
		t.Errorf("Len = %d after Clear, want 0", r.Len())
	}
	if got := r.Recent(0); len(got) != 0 {
		t.Errorf("Recent after Clear returned %d entries", len(got))
	}
}

func TestRecorderDefaultCapacity(t *testing.T) {
	r := NewRecorder(0)
	for i := 0; i < 300; i++ {
		record(r, "k", i)
	}
	if r.Len() != 256 {
		t.Errorf("Len = %d with default capacity, want 256", r.Len())
	}
}

func TestRecorderAttachedToBus(t *testing.T) {
	r := NewRecorder(8)
	bus, err := tickbus.New("monitored",
		tickbus.WithObserver(r),
		tickbus.WithMetrics(false),
		tickbus.WithTracing(false),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer bus.Close()

	if _, err := tickbus.Emit(context.Background(), bus, hit{Amount: 5}); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if r.Len() != 1 {
		t.Fatalf("recorder saw %d publishes, want 1", r.Len())
	}
	entry := r.Recent(1)[0]
	if !entry.Immediate {
		t.Error("value publish not flagged immediate")
	}
	var got hit
	if err := entry.Decode(&got); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Amount != 5 {
		t.Errorf("payload amount = %d, want 5", got.Amount)
	}
}
