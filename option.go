package tickbus

import (
	"log/slog"

	"golang.org/x/time/rate"
)

var (
	// DefaultMaxEventsPerTick is the default hard bound on events dispatched
	// by one ProcessEvents call.
	DefaultMaxEventsPerTick = 10000

	// DefaultDrainBatchSize is the default number of events popped per
	// internal drain pass.
	DefaultDrainBatchSize = 256

	// DefaultBusName is used when New is called with an empty name.
	DefaultBusName = "tickbus"
)

// busOptions holds configuration for a Bus (unexported).
type busOptions struct {
	logger          *slog.Logger
	hierarchy       *Hierarchy
	pool            *Pool
	observer        Observer
	maxPerTick      int
	drainBatch      int
	queueCapacity   int
	urgentCapacity  int
	overflowPolicy  OverflowPolicy
	limiter         *rate.Limiter
	tracingEnabled  bool
	metricsEnabled  bool
	recoveryEnabled bool
}

// Option configures a Bus.
type Option func(*busOptions)

// WithLogger sets a custom logger for the bus.
func WithLogger(l *slog.Logger) Option {
	return func(o *busOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithHierarchy sets the kind hierarchy the bus resolves reference events
// against. Use it to share one hierarchy between buses.
func WithHierarchy(h *Hierarchy) Option {
	return func(o *busOptions) {
		if h != nil {
			o.hierarchy = h
		}
	}
}

// WithPool sets the object pool the bus acquires and releases reference
// events through.
func WithPool(p *Pool) Option {
	return func(o *busOptions) {
		if p != nil {
			o.pool = p
		}
	}
}

// WithObserver sets the inspection hook notified on every accepted publish.
func WithObserver(obs Observer) Option {
	return func(o *busOptions) {
		o.observer = obs
	}
}

// WithMaxEventsPerTick bounds the dispatch work done by one ProcessEvents
// call. Urgent events count against the same budget but are never cut off
// by it. Zero or negative values are ignored.
func WithMaxEventsPerTick(n int) Option {
	return func(o *busOptions) {
		if n > 0 {
			o.maxPerTick = n
		}
	}
}

// WithDrainBatchSize sets the number of events popped per internal drain
// pass. Zero or negative values are ignored.
func WithDrainBatchSize(n int) Option {
	return func(o *busOptions) {
		if n > 0 {
			o.drainBatch = n
		}
	}
}

// WithQueueCapacity caps the ordinary queue. Zero (the default) means
// unbounded; sustained overproduction then grows memory rather than
// dropping events. The overflow policy decides what happens at the cap.
func WithQueueCapacity(n int) Option {
	return func(o *busOptions) {
		if n >= 0 {
			o.queueCapacity = n
		}
	}
}

// WithUrgentQueueCapacity caps the urgent queue. Zero (the default) means
// unbounded.
func WithUrgentQueueCapacity(n int) Option {
	return func(o *busOptions) {
		if n >= 0 {
			o.urgentCapacity = n
		}
	}
}

// WithOverflowPolicy decides what happens when a capped queue is full:
// OverflowReject fails the publish with ErrQueueFull, OverflowDropOldest
// evicts the oldest pending event. Ignored for unbounded queues.
func WithOverflowPolicy(p OverflowPolicy) Option {
	return func(o *busOptions) {
		o.overflowPolicy = p
	}
}

// WithPublishLimit applies a token-bucket rate limit to queued publishes.
// Publishes beyond the limit fail with ErrRateLimited and count as drops.
// Immediate publishes are not limited; they are the caller's own tick time.
func WithPublishLimit(limit rate.Limit, burst int) Option {
	return func(o *busOptions) {
		if limit > 0 && burst > 0 {
			o.limiter = rate.NewLimiter(limit, burst)
		}
	}
}

// WithTracing enables/disables dispatch spans for the bus.
func WithTracing(enabled bool) Option {
	return func(o *busOptions) {
		o.tracingEnabled = enabled
	}
}

// WithMetrics enables/disables OpenTelemetry metrics for the bus.
func WithMetrics(enabled bool) Option {
	return func(o *busOptions) {
		o.metricsEnabled = enabled
	}
}

// WithRecovery enables/disables per-listener panic recovery.
// Recovery should always be enabled; disable only in tests that assert on
// the raw panic.
func WithRecovery(enabled bool) Option {
	return func(o *busOptions) {
		o.recoveryEnabled = enabled
	}
}

// newBusOptions creates options with defaults and applies provided options.
func newBusOptions(opts ...Option) *busOptions {
	o := &busOptions{
		logger:          slog.Default(),
		maxPerTick:      DefaultMaxEventsPerTick,
		drainBatch:      DefaultDrainBatchSize,
		tracingEnabled:  true,
		metricsEnabled:  true,
		recoveryEnabled: true,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.hierarchy == nil {
		o.hierarchy = NewHierarchy()
	}
	if o.pool == nil {
		o.pool = NewPool()
	}
	return o
}

// publishOptions holds per-publish configuration (unexported).
type publishOptions struct {
	immediate bool
	urgent    bool
	category  string
	source    any
}

// PublishOption configures a single Publish call.
type PublishOption func(*publishOptions)

// WithImmediate bypasses the queues: the event is dispatched synchronously
// inside the Publish call and the notified count is returned.
func WithImmediate() PublishOption {
	return func(o *publishOptions) {
		o.immediate = true
	}
}

// WithUrgent routes the event to the urgent queue, which is fully drained
// before any ordinary event on the next tick. Ignored when combined with
// WithImmediate.
func WithUrgent() PublishOption {
	return func(o *publishOptions) {
		o.urgent = true
	}
}

// WithCategory tags the publish for the observer hook (for example
// "gameplay", "system", "debug"). The bus itself ignores it.
func WithCategory(c string) PublishOption {
	return func(o *publishOptions) {
		o.category = c
	}
}

// WithSource records the originating source reference on the event before
// dispatch.
func WithSource(src any) PublishOption {
	return func(o *publishOptions) {
		o.source = src
	}
}
