package tickbus

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

const (
	busRunning = 1
	busStopped = 0
)

// Bus is the public surface of the event bus: subscribe, publish and the
// per-tick drain. It owns the listener registry, both queues, the dispatcher
// and the object pool for its lifetime.
//
// The bus is designed for one logical owner thread: the thread that calls
// Publish, Emit and ProcessEvents. Listener invocations happen on that
// thread, synchronously, and listeners may publish and subscribe re-entrantly.
// Subscriptions may be closed from teardown paths on other goroutines; the
// registry and pool are internally synchronized for that. Concurrent
// publication from multiple goroutines is out of scope by design.
type Bus struct {
	status int32
	id     string
	name   string

	logger   *slog.Logger
	reg      *registry
	kinds    *Hierarchy
	pool     *Pool
	ordinary *queue
	urgent   *queue
	disp     *dispatcher
	limiter  *rate.Limiter
	observer Observer

	maxPerTick int
	drainBatch int

	tracingEnabled bool
	tracer         trace.Tracer

	metricsEnabled bool
	publishedCtr   metric.Int64Counter
	dispatchedCtr  metric.Int64Counter
	droppedCtr     metric.Int64Counter
	faultCtr       metric.Int64Counter
	dispatchHist   metric.Float64Histogram

	stats busStats
}

// New creates an event bus. The name scopes the bus logger and metric
// attributes; an empty name falls back to DefaultBusName.
//
// There is no global bus instance: pass the returned *Bus to every producer
// and consumer that needs it.
func New(name string, opts ...Option) (*Bus, error) {
	o := newBusOptions(opts...)
	if name == "" {
		name = DefaultBusName
	}

	b := &Bus{
		status:         busRunning,
		id:             NewID(),
		name:           name,
		logger:         o.logger.With("component", "bus>"+name),
		reg:            newRegistry(),
		kinds:          o.hierarchy,
		pool:           o.pool,
		ordinary:       newQueue(o.queueCapacity, o.overflowPolicy),
		urgent:         newQueue(o.urgentCapacity, o.overflowPolicy),
		limiter:        o.limiter,
		observer:       o.observer,
		maxPerTick:     o.maxPerTick,
		drainBatch:     o.drainBatch,
		tracingEnabled: o.tracingEnabled,
		metricsEnabled: o.metricsEnabled,
	}

	if b.tracingEnabled {
		b.tracer = otel.Tracer("tickbus")
	}
	if b.metricsEnabled {
		meter := otel.Meter("tickbus")
		b.publishedCtr, _ = meter.Int64Counter("tickbus.events.published",
			metric.WithDescription("Events accepted by the bus"),
			metric.WithUnit("{event}"),
		)
		b.dispatchedCtr, _ = meter.Int64Counter("tickbus.events.dispatched",
			metric.WithDescription("Events dispatched to listeners"),
			metric.WithUnit("{event}"),
		)
		b.droppedCtr, _ = meter.Int64Counter("tickbus.events.dropped",
			metric.WithDescription("Events dropped by queue capacity or rate limit"),
			metric.WithUnit("{event}"),
		)
		b.faultCtr, _ = meter.Int64Counter("tickbus.listener.faults",
			metric.WithDescription("Listener errors and recovered panics"),
			metric.WithUnit("{fault}"),
		)
		b.dispatchHist, _ = meter.Float64Histogram("tickbus.dispatch.duration",
			metric.WithDescription("Wall time of a single event dispatch"),
			metric.WithUnit("ms"),
		)
	}

	b.disp = &dispatcher{
		reg:      b.reg,
		kinds:    b.kinds,
		pool:     b.pool,
		logger:   b.logger,
		stats:    &b.stats,
		faultCtr: b.faultCtr,
		recovery: o.recoveryEnabled,
	}
	return b, nil
}

// ID returns the bus ID.
func (b *Bus) ID() string { return b.id }

// Name returns the bus name.
func (b *Bus) Name() string { return b.name }

// Running returns true if the bus is running.
func (b *Bus) Running() bool {
	return atomic.LoadInt32(&b.status) == busRunning
}

// Hierarchy returns the kind hierarchy reference events are resolved
// against. Register kinds on it before publishing.
func (b *Bus) Hierarchy() *Hierarchy { return b.kinds }

// Pool returns the object pool the bus recycles reference events through.
func (b *Bus) Pool() *Pool { return b.pool }

// Logger returns the bus logger.
func (b *Bus) Logger() *slog.Logger { return b.logger }

// Acquire is shorthand for Pool().Acquire: it returns a ready-to-fill,
// poolable event instance for kind.
func (b *Bus) Acquire(kind Kind) (Event, error) {
	return b.pool.Acquire(kind)
}

// Publish submits a reference event to the bus.
//
// By default the event is queued and dispatched on a later ProcessEvents
// call; the returned count is 0. WithUrgent routes it to the urgent queue,
// drained before any ordinary event next tick. WithImmediate bypasses both
// queues, dispatches synchronously in the calling context and returns the
// number of listeners notified.
//
// On ErrQueueFull or ErrRateLimited the caller keeps ownership of the event
// and may retry or release it.
func (b *Bus) Publish(ctx context.Context, ev Event, opts ...PublishOption) (int, error) {
	if !b.Running() {
		return 0, ErrBusClosed
	}
	if ev == nil {
		return 0, ErrNilEvent
	}
	base := ev.eventBase()
	if base.disposed {
		return 0, ErrEventDisposed
	}
	if base.kind == KindNone {
		return 0, ErrUnknownKind
	}

	var po publishOptions
	for _, opt := range opts {
		opt(&po)
	}
	if po.source != nil {
		base.source = po.source
	}

	if !po.immediate && b.limiter != nil && !b.limiter.Allow() {
		b.dropped(ctx, base.kind, "rate-limit")
		return 0, ErrRateLimited
	}

	if po.immediate {
		b.accepted(ctx, base.kind)
		b.notifyObserver(ctx, ev, &po, false)
		ctx, span := b.startSpan(ctx, base.kind, "dispatch.immediate")
		n := b.dispatchOne(ctx, ev)
		if span != nil {
			span.SetAttributes(attribute.Int("listeners.notified", n))
			span.End()
		}
		return n, nil
	}

	q := b.ordinary
	if po.urgent {
		q = b.urgent
	}
	evicted, err := q.enqueue(ev)
	if err != nil {
		// A rejected publish was never accepted: no counter, no observer.
		b.dropped(ctx, base.kind, "queue-full")
		return 0, err
	}
	b.accepted(ctx, base.kind)
	b.notifyObserver(ctx, ev, &po, po.urgent)
	if evicted != nil {
		// Drop-oldest eviction. Dispose so a stale reference can never be
		// dispatched, and recycle it when poolable.
		b.dropped(ctx, evicted.eventBase().kind, "evicted")
		b.pool.Release(evicted)
	}
	return 0, nil
}

// notifyObserver snapshots a just-accepted reference publish for the
// observer hook.
func (b *Bus) notifyObserver(ctx context.Context, ev Event, po *publishOptions, urgent bool) {
	if b.observer == nil {
		return
	}
	base := ev.eventBase()
	b.observePublish(ctx, PublishInfo{
		Kind:      base.kind,
		EventID:   base.id,
		Payload:   ev,
		Source:    base.source,
		Category:  po.category,
		Immediate: po.immediate,
		Urgent:    urgent,
		Listeners: b.reg.count(base.kind),
		At:        time.Now(),
	})
}

// ProcessEvents drains pending events; the host calls it once per tick.
//
// The urgent queue is drained fully first, including urgent events published
// by listeners during the drain. The ordinary queue is then drained up to
// maxEventsPerTick minus the urgent count, so one call never dispatches more
// than the configured tick budget of ordinary work. Excess ordinary events
// stay queued for subsequent ticks; nothing is lost.
//
// Returns the number of events dispatched this tick.
func (b *Bus) ProcessEvents(ctx context.Context) (int, error) {
	if !b.Running() {
		return 0, ErrBusClosed
	}

	var span trace.Span
	if b.tracer != nil {
		ctx, span = b.tracer.Start(ctx, "tickbus.tick",
			trace.WithSpanKind(trace.SpanKindInternal),
			trace.WithAttributes(attribute.String("bus", b.name)),
		)
		defer span.End()
	}

	dispatch := func(ev Event) {
		b.dispatchOne(ctx, ev)
	}

	urgentN := b.urgent.drain(dispatch, 0)

	ordinaryN := 0
	budget := b.maxPerTick - urgentN
	for budget > 0 {
		batch := b.drainBatch
		if batch > budget {
			batch = budget
		}
		n := b.ordinary.drain(dispatch, batch)
		ordinaryN += n
		budget -= n
		if n < batch {
			break
		}
	}

	processed := urgentN + ordinaryN
	b.stats.tickProcessed(processed)
	if span != nil {
		span.SetAttributes(
			attribute.Int("events.urgent", urgentN),
			attribute.Int("events.ordinary", ordinaryN),
		)
	}
	return processed, nil
}

// dispatchOne runs a single reference-event dispatch with timing and
// metrics.
func (b *Bus) dispatchOne(ctx context.Context, ev Event) int {
	kind := ev.eventBase().kind
	start := time.Now()
	n := b.disp.dispatchEvent(ctx, ev)
	elapsed := time.Since(start)
	b.stats.eventDispatched(elapsed)
	if b.dispatchedCtr != nil {
		b.dispatchedCtr.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", string(kind))))
	}
	if b.dispatchHist != nil {
		b.dispatchHist.Record(ctx, float64(elapsed)/float64(time.Millisecond))
	}
	return n
}

// OnEvent subscribes a handler to a reference-event kind. The handler also
// receives events of every kind registered as a descendant of kind.
//
// Subscribing the same handler object twice for the same kind is a no-op
// returning the existing subscription. Handlers adapted with HandlerFunc
// have no identity and always create a new entry.
func (b *Bus) OnEvent(kind Kind, h Handler, opts ...SubscribeOption) (*Subscription, error) {
	if !b.Running() {
		return nil, ErrBusClosed
	}
	if h == nil {
		return nil, ErrNilHandler
	}
	if kind == KindNone {
		return nil, ErrUnknownKind
	}
	so := newSubscribeOptions(opts...)
	return b.reg.add(kind, &listener{
		priority: so.priority,
		active:   so.active,
		handler:  h,
		identity: comparableIdentity(h),
	}), nil
}

// Unsubscribe removes every entry registered with this handler object,
// across all kinds. Returns the number of entries removed. Handlers without
// identity (HandlerFunc, closures) cannot be matched; close their
// Subscription instead.
func (b *Bus) Unsubscribe(h Handler) int {
	return b.reg.removeByIdentity(comparableIdentity(h))
}

// Subscribers returns the number of listeners registered for kind.
// For value events pass KindOf[T]().
func (b *Bus) Subscribers(kind Kind) int {
	return b.reg.count(kind)
}

// Clear removes every listener and drops every pending event. Pending
// poolable events are released back to the pool. Counters are kept.
func (b *Bus) Clear() {
	for _, ev := range b.urgent.clear() {
		b.pool.Release(ev)
	}
	for _, ev := range b.ordinary.clear() {
		b.pool.Release(ev)
	}
	b.reg.clear()
}

// Stats returns a snapshot of bus counters.
func (b *Bus) Stats() Stats {
	hits, misses := b.pool.Stats()
	return Stats{
		TotalPublished:    atomic.LoadUint64(&b.stats.published),
		TotalDispatched:   atomic.LoadUint64(&b.stats.dispatched),
		ActiveListeners:   b.reg.totalCount(),
		QueueDepth:        b.ordinary.len(),
		UrgentQueueDepth:  b.urgent.len(),
		AvgDispatchTime:   b.stats.avgDispatch(),
		PeakEventsPerTick: int(atomic.LoadInt64(&b.stats.peakPerTick)),
		ListenerErrors:    atomic.LoadUint64(&b.stats.errors),
		Dropped:           atomic.LoadUint64(&b.stats.dropped),
		PoolHits:          hits,
		PoolMisses:        misses,
	}
}

// Close stops the bus. Pending events are dropped, listeners removed and
// the pool's free lists evicted. Further calls fail with ErrBusClosed;
// closing twice is safe.
func (b *Bus) Close() error {
	if atomic.CompareAndSwapInt32(&b.status, busRunning, busStopped) {
		b.Clear()
		b.pool.Clear()
		b.logger.Debug("bus closed", "bus", b.name)
	}
	return nil
}

// Emit publishes a value event: payload is dispatched synchronously to every
// active listener registered for exactly type T, in descending priority
// order. Value events have no identity, no hierarchy and no consume
// semantic. Returns the number of listeners notified.
func Emit[T any](ctx context.Context, b *Bus, payload T) (int, error) {
	if b == nil || !b.Running() {
		return 0, ErrBusClosed
	}
	key := KindOf[T]()
	b.accepted(ctx, key)
	if b.observer != nil {
		b.observePublish(ctx, PublishInfo{
			Kind:      key,
			Payload:   payload,
			Immediate: true,
			Listeners: b.reg.count(key),
			At:        time.Now(),
		})
	}

	start := time.Now()
	n := b.disp.dispatchValue(ctx, key, payload)
	elapsed := time.Since(start)
	b.stats.eventDispatched(elapsed)
	if b.dispatchedCtr != nil {
		b.dispatchedCtr.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", string(key))))
	}
	if b.dispatchHist != nil {
		b.dispatchHist.Record(ctx, float64(elapsed)/float64(time.Millisecond))
	}
	return n, nil
}

// On subscribes a callback to value events of type T.
//
// Callbacks have no identity: subscribing the same function twice registers
// two listeners. Remove a value listener by closing its Subscription.
func On[T any](b *Bus, fn func(ctx context.Context, payload T) error, opts ...SubscribeOption) (*Subscription, error) {
	if b == nil || !b.Running() {
		return nil, ErrBusClosed
	}
	if fn == nil {
		return nil, ErrNilHandler
	}
	so := newSubscribeOptions(opts...)
	return b.reg.add(KindOf[T](), &listener{
		priority: so.priority,
		active:   so.active,
		valueFn: func(ctx context.Context, payload any) error {
			return fn(ctx, payload.(T))
		},
	}), nil
}

// accepted records an accepted publish.
func (b *Bus) accepted(ctx context.Context, kind Kind) {
	b.stats.publishAccepted()
	if b.publishedCtr != nil {
		b.publishedCtr.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", string(kind))))
	}
}

// dropped records a rejected, evicted or rate-limited event.
func (b *Bus) dropped(ctx context.Context, kind Kind, reason string) {
	b.stats.eventDropped()
	if b.droppedCtr != nil {
		b.droppedCtr.Add(ctx, 1, metric.WithAttributes(
			attribute.String("kind", string(kind)),
			attribute.String("reason", reason),
		))
	}
	b.logger.Debug("event dropped", "kind", string(kind), "reason", reason)
}

// observePublish notifies the observer hook. An observer panic is treated
// like a listener fault and never reaches the publisher.
func (b *Bus) observePublish(ctx context.Context, info PublishInfo) {
	if b.observer == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			b.stats.listenerFault()
			if b.faultCtr != nil {
				b.faultCtr.Add(ctx, 1)
			}
			b.logger.Error("observer panic recovered",
				"kind", string(info.Kind),
				"error", rec,
			)
		}
	}()
	b.observer.ObservePublish(ctx, info)
}

// startSpan opens a dispatch span when tracing is enabled.
func (b *Bus) startSpan(ctx context.Context, kind Kind, op string) (context.Context, trace.Span) {
	if b.tracer == nil {
		return ctx, nil
	}
	return b.tracer.Start(ctx, "tickbus."+op,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("bus", b.name),
			attribute.String("kind", string(kind)),
		),
	)
}

// subscribeOptions holds per-subscription configuration (unexported).
type subscribeOptions struct {
	priority int
	active   func() bool
}

// SubscribeOption configures a single subscribe call.
type SubscribeOption func(*subscribeOptions)

// WithPriority sets the listener priority. Higher priorities are dispatched
// first; listeners with equal priority fire in subscription order. The
// default priority is 0.
func WithPriority(p int) SubscribeOption {
	return func(o *subscribeOptions) {
		o.priority = p
	}
}

// WithActive sets an activity predicate checked before every invocation.
// When it returns false the listener is skipped but stays registered; use it
// to mute listeners whose owning context is paused or being torn down.
func WithActive(fn func() bool) SubscribeOption {
	return func(o *subscribeOptions) {
		o.active = fn
	}
}

func newSubscribeOptions(opts ...SubscribeOption) *subscribeOptions {
	o := &subscribeOptions{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// comparableIdentity returns h when its dynamic type can be compared,
// otherwise nil. Func types and other uncomparable handlers get no identity
// and therefore no dedup or Unsubscribe matching.
func comparableIdentity(h Handler) any {
	if h == nil {
		return nil
	}
	if !handlerComparable(h) {
		return nil
	}
	return h
}
