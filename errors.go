package tickbus

import (
	"errors"
	"fmt"
)

// Bus errors
var (
	// ErrBusClosed is returned when publishing or subscribing on a closed bus.
	ErrBusClosed = errors.New("bus is closed")

	// ErrNilEvent is returned when a nil reference event is published.
	ErrNilEvent = errors.New("event is nil")

	// ErrNilHandler is returned when subscribing with a nil handler.
	ErrNilHandler = errors.New("handler is nil")

	// ErrEventDisposed is returned when a disposed reference event is
	// published or dispatched. A disposed event may have been recycled and
	// must never be read again.
	ErrEventDisposed = errors.New("event is disposed")

	// ErrUnknownKind is returned when a reference event carries an empty
	// kind, or when the pool has no factory registered for a kind.
	ErrUnknownKind = errors.New("unknown event kind")

	// ErrQueueFull is returned from Publish when the queue has a capacity,
	// the overflow policy is OverflowReject and the queue is full.
	ErrQueueFull = errors.New("event queue is full")

	// ErrRateLimited is returned from Publish when a publish rate limit is
	// configured and exhausted.
	ErrRateLimited = errors.New("publish rate limit exceeded")
)

// ErrConsumed signals from a listener that the reference event it just
// received is fully handled and no lower-priority listener should see it.
// Returning it is equivalent to calling MarkHandled on the event.
// Use errors.Is() to check for it as it may be wrapped with context.
//
// Example:
//
//	func (s *Shield) HandleEvent(ctx context.Context, ev tickbus.Event) error {
//	    if s.absorb(ev) {
//	        return fmt.Errorf("absorbed by shield: %w", tickbus.ErrConsumed)
//	    }
//	    return nil
//	}
//
// ErrConsumed only affects reference-event dispatch; value events always
// notify every active listener.
var ErrConsumed = errors.New("consumed: stop dispatching this event")

// Outcome classifies the result of one listener invocation.
// Dispatch decides per invocation whether to keep going, stop early, or
// record a fault; a fault never unwinds the rest of the batch.
type Outcome int

const (
	// OutcomeContinue - listener succeeded, keep dispatching.
	OutcomeContinue Outcome = iota
	// OutcomeConsumed - listener consumed the event, stop dispatching it.
	OutcomeConsumed
	// OutcomeError - listener failed (error or panic); recorded, dispatch continues.
	OutcomeError
)

// ClassifyOutcome determines the invocation outcome from a listener error.
// Returns OutcomeContinue if err is nil, OutcomeConsumed if err wraps
// ErrConsumed, and OutcomeError otherwise.
func ClassifyOutcome(err error) Outcome {
	if err == nil {
		return OutcomeContinue
	}
	if errors.Is(err, ErrConsumed) {
		return OutcomeConsumed
	}
	return OutcomeError
}

// String returns a string representation of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeContinue:
		return "continue"
	case OutcomeConsumed:
		return "consumed"
	case OutcomeError:
		return "error"
	default:
		return fmt.Sprintf("unknown(%d)", int(o))
	}
}

// Consumed wraps an error to signal that the event was consumed.
// The original error is preserved for logging.
func Consumed(err error) error {
	if err == nil {
		return ErrConsumed
	}
	return fmt.Errorf("%w: %v", ErrConsumed, err)
}

// ListenerPanicError reports a panic recovered inside a listener during
// dispatch. The panic value and stack are preserved for logging.
type ListenerPanicError struct {
	Kind  Kind
	Value any
	Stack []byte
}

func (e *ListenerPanicError) Error() string {
	return fmt.Sprintf("listener panic dispatching %q: %v", string(e.Kind), e.Value)
}

// IsListenerPanic checks whether an error reports a recovered listener panic.
func IsListenerPanic(err error) bool {
	var pe *ListenerPanicError
	return errors.As(err, &pe)
}
