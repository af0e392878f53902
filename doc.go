// Package tickbus provides an in-process publish/subscribe event bus for
// tick-driven hosts such as game loops and simulation frames.
//
// Architecture:
//   - Two event representations share one logical bus: value events (plain Go
//     values, dispatched synchronously to exact-type listeners, no identity,
//     no pooling) and reference events (identity-bearing objects implementing
//     Event, dispatched across their whole kind hierarchy, poolable)
//   - Listeners are ordered by descending priority with FIFO ties
//   - Queued events are drained by ProcessEvents under a hard per-tick budget
//   - Reference events are recycled through a per-kind object Pool so the
//     steady-state publish path does not allocate
//
// The bus is driven by the host calling ProcessEvents once per tick. Urgent
// events are always drained fully before ordinary events within the same
// tick; ordinary events beyond the tick budget simply wait for the next tick.
//
// Value events use compile-time type safety through generics:
//
//	type Damage struct{ Amount int }
//
//	bus, _ := tickbus.New("game")
//	sub, _ := tickbus.On(bus, func(ctx context.Context, d Damage) error {
//	    fmt.Println("took", d.Amount)
//	    return nil
//	}, tickbus.WithPriority(100))
//	defer sub.Close()
//
//	notified, _ := tickbus.Emit(ctx, bus, Damage{Amount: 10})
//
// Reference events embed BaseEvent, declare a Kind, and may be registered in
// a Hierarchy so listeners on an ancestor kind receive descendant events:
//
//	var (
//	    KindEntity  = tickbus.Kind("entity")
//	    KindDespawn = tickbus.Kind("entity.despawn")
//	)
//
//	type DespawnEvent struct {
//	    tickbus.BaseEvent
//	    EntityID uint64
//	}
//
//	bus.Hierarchy().Register(KindDespawn, KindEntity)
//	sub, _ = bus.OnEvent(KindEntity, tickbus.HandlerFunc(onEntityEvent))
//
//	ev := &DespawnEvent{BaseEvent: tickbus.NewBase(KindDespawn), EntityID: 7}
//	bus.Publish(ctx, ev)          // queued, dispatched on the next tick
//	bus.ProcessEvents(ctx)        // host tick
//
// A listener fault (returned error or panic) is recovered, reported through
// the bus logger and counters, and never aborts the rest of a dispatch or a
// tick's drain. A listener can stop dispatch of one reference event early by
// marking it handled or returning ErrConsumed.
//
// The bus has no global instance: construct one with New and pass it to
// every producer and consumer that needs it.
package tickbus
