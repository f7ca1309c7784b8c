package resilience

import (
	"errors"
	"testing"
	"time"
)

func TestRegistry_IsolatesOperations(t *testing.T) {
	t.Parallel()

	r := NewRegistry(CircuitBreakerConfig{Enabled: true, FailureThreshold: 1, OpenTimeout: time.Minute})

	r.RecordFailure("calculate")
	if err := r.Allow("calculate"); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected calculate open, got %v", err)
	}
	if err := r.Allow("snapshot"); err != nil {
		t.Fatalf("expected snapshot unaffected, got %v", err)
	}
}

func TestRegistry_DisabledAdmitsEverything(t *testing.T) {
	t.Parallel()

	r := NewRegistry(CircuitBreakerConfig{Enabled: false, FailureThreshold: 1, OpenTimeout: time.Minute})
	for i := 0; i < 10; i++ {
		r.RecordFailure("calculate")
	}
	if err := r.Allow("calculate"); err != nil {
		t.Fatalf("disabled registry must admit all calls, got %v", err)
	}
}

func TestRegistry_Reset(t *testing.T) {
	t.Parallel()

	r := NewRegistry(CircuitBreakerConfig{Enabled: true, FailureThreshold: 1, OpenTimeout: time.Hour})
	r.RecordFailure("restore")
	r.Reset("restore")

	if err := r.Allow("restore"); err != nil {
		t.Fatalf("expected allow after reset, got %v", err)
	}
	if state := r.State("restore"); state != CircuitStateClosed {
		t.Fatalf("expected closed after reset, got %s", state)
	}
}
