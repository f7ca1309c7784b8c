package resilience

import (
	"errors"
	"testing"
	"time"
)

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	b := NewCircuitBreaker(3, 10*time.Second)

	now := time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		if err := b.Allow(); err != nil {
			t.Fatalf("expected allow while closed: %v", err)
		}
		b.RecordFailure()
	}
	if state := b.State(); state != CircuitStateClosed {
		t.Fatalf("expected closed below threshold, got %s", state)
	}

	b.RecordFailure()
	if state := b.State(); state != CircuitStateOpen {
		t.Fatalf("expected open at threshold, got %s", state)
	}
	if err := b.Allow(); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected short-circuit while open, got %v", err)
	}
}

func TestCircuitBreaker_SingleProbeAfterOpenTimeout(t *testing.T) {
	b := NewCircuitBreaker(1, 10*time.Second)

	now := time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return now }

	b.RecordFailure()
	now = now.Add(11 * time.Second)

	if err := b.Allow(); err != nil {
		t.Fatalf("expected probe admitted, got %v", err)
	}
	if err := b.Allow(); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected second call rejected while probe in flight, got %v", err)
	}

	b.RecordSuccess()
	if state := b.State(); state != CircuitStateClosed {
		t.Fatalf("expected closed after successful probe, got %s", state)
	}
}

func TestCircuitBreaker_FailedProbeReopens(t *testing.T) {
	b := NewCircuitBreaker(1, 10*time.Second)

	now := time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return now }

	b.RecordFailure()
	now = now.Add(10 * time.Second)

	if err := b.Allow(); err != nil {
		t.Fatalf("expected probe admitted, got %v", err)
	}
	b.RecordFailure()

	if state := b.State(); state != CircuitStateOpen {
		t.Fatalf("expected reopened after failed probe, got %s", state)
	}
	if err := b.Allow(); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected short-circuit after reopen, got %v", err)
	}
}

func TestCircuitBreaker_ResetForcesClosed(t *testing.T) {
	b := NewCircuitBreaker(1, time.Minute)
	b.RecordFailure()

	b.Reset()
	if state := b.State(); state != CircuitStateClosed {
		t.Fatalf("expected closed after reset, got %s", state)
	}
	if got := b.FailureCount(); got != 0 {
		t.Fatalf("expected zero failures after reset, got %d", got)
	}
}
