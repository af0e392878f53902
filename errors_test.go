package tickbus

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestClassifyOutcome(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Outcome
	}{
		{"nil continues", nil, OutcomeContinue},
		{"bare consumed", ErrConsumed, OutcomeConsumed},
		{"wrapped consumed", fmt.Errorf("shield: %w", ErrConsumed), OutcomeConsumed},
		{"Consumed helper", Consumed(errors.New("absorbed")), OutcomeConsumed},
		{"Consumed of nil", Consumed(nil), OutcomeConsumed},
		{"plain error", errors.New("boom"), OutcomeError},
		{"panic error", &ListenerPanicError{Kind: "k", Value: "boom"}, OutcomeError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyOutcome(tt.err); got != tt.want {
				t.Errorf("ClassifyOutcome(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestOutcomeString(t *testing.T) {
	tests := []struct {
		outcome Outcome
		want    string
	}{
		{OutcomeContinue, "continue"},
		{OutcomeConsumed, "consumed"},
		{OutcomeError, "error"},
		{Outcome(42), "unknown(42)"},
	}
	for _, tt := range tests {
		if got := tt.outcome.String(); got != tt.want {
			t.Errorf("Outcome(%d).String() = %q, want %q", int(tt.outcome), got, tt.want)
		}
	}
}

func TestConsumedPreservesCause(t *testing.T) {
	cause := errors.New("absorbed by shield")
	err := Consumed(cause)
	if !errors.Is(err, ErrConsumed) {
		t.Error("Consumed result does not match ErrConsumed")
	}
	if !strings.Contains(err.Error(), cause.Error()) {
		t.Errorf("Consumed lost the cause: %v", err)
	}
}

func TestIsListenerPanic(t *testing.T) {
	pe := &ListenerPanicError{Kind: kindDamage, Value: "boom", Stack: []byte("stack")}
	if !IsListenerPanic(pe) {
		t.Error("IsListenerPanic(direct) = false")
	}
	if !IsListenerPanic(fmt.Errorf("dispatch: %w", pe)) {
		t.Error("IsListenerPanic(wrapped) = false")
	}
	if IsListenerPanic(errors.New("boom")) {
		t.Error("IsListenerPanic(plain error) = true")
	}
	if !strings.Contains(pe.Error(), "boom") || !strings.Contains(pe.Error(), string(kindDamage)) {
		t.Errorf("panic error message missing context: %v", pe)
	}
}

func TestOverflowPolicyString(t *testing.T) {
	if OverflowReject.String() != "reject" {
		t.Errorf("OverflowReject.String() = %q", OverflowReject.String())
	}
	if OverflowDropOldest.String() != "drop-oldest" {
		t.Errorf("OverflowDropOldest.String() = %q", OverflowDropOldest.String())
	}
	if OverflowPolicy(9).String() != "unknown" {
		t.Errorf("OverflowPolicy(9).String() = %q", OverflowPolicy(9).String())
	}
}
