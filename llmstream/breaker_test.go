package llmstream

import (
	"testing"
	"time"
)

func TestBreakerOpensAtThreshold(t *testing.T) {
	b := NewCircuitBreaker(3, time.Minute)

	for i := 0; i < 2; i++ {
		b.RecordFailure()
		if !b.Allow() {
			t.Fatalf("breaker open after %d failures, threshold is 3", i+1)
		}
	}
	b.RecordFailure()
	if b.Allow() {
		t.Fatal("breaker should be open at the threshold")
	}
}

func TestBreakerHalfOpenProbeAfterCooldown(t *testing.T) {
	b := NewCircuitBreaker(1, time.Minute)
	current := time.Unix(1000, 0)
	b.now = func() time.Time { return current }

	b.RecordFailure()
	if b.Allow() {
		t.Fatal("breaker should be open")
	}

	current = current.Add(2 * time.Minute)
	if !b.Allow() {
		t.Fatal("cooldown elapsed; probe should be allowed")
	}
	// The probe window re-arms: a second call during cooldown is rejected.
	if b.Allow() {
		t.Fatal("only one probe should pass per cooldown window")
	}

	b.RecordSuccess()
	if !b.Allow() {
		t.Fatal("breaker should close after a successful probe")
	}
}

func TestNilBreakerAlwaysAllows(t *testing.T) {
	var b *CircuitBreaker
	b.RecordFailure()
	b.RecordSuccess()
	if !b.Allow() {
		t.Fatal("nil breaker must allow")
	}
}
