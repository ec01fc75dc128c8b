package resilience

import (
	"testing"
	"time"
)

func TestCircuitBreakerStaysClosedBelowMinSamples(t *testing.T) {
	cb := NewCircuitBreakerAdaptive(time.Second, 4, 5, 0.5, time.Second, 1)
	for i := 0; i < 4; i++ {
		cb.RecordResult(false)
	}
	if !cb.Allow() {
		t.Fatal("Allow() = false, want true: fewer than minSamples requests recorded so far")
	}
}

func TestCircuitBreakerOpensAfterSustainedFailures(t *testing.T) {
	cb := NewCircuitBreakerAdaptive(time.Second, 4, 5, 0.5, time.Hour, 1)
	for i := 0; i < 10; i++ {
		cb.RecordResult(false)
	}
	if cb.Allow() {
		t.Fatal("Allow() = true, want false once the failure rate crosses the open threshold")
	}
}

func TestCircuitBreakerHalfOpensAfterCooldownAndCloses(t *testing.T) {
	cb := NewCircuitBreakerAdaptive(time.Second, 4, 5, 0.5, 10*time.Millisecond, 1)
	for i := 0; i < 10; i++ {
		cb.RecordResult(false)
	}
	if cb.Allow() {
		t.Fatal("expected the breaker to be open immediately after tripping")
	}

	time.Sleep(20 * time.Millisecond)
	// The first Allow() after cooldown transitions Open->HalfOpen itself
	// (without yet counting as a probe); it takes a second Allow() to
	// actually consume the single allowed probe.
	if !cb.Allow() {
		t.Fatal("Allow() = false, want true: cooldown elapsed, breaker should transition to half-open")
	}
	cb.RecordResult(true)
	if !cb.Allow() {
		t.Fatal("Allow() = false, want true: still half-open, one probe slot remains")
	}
	cb.RecordResult(true)
	if !cb.Allow() {
		t.Fatal("Allow() = false, want true: the probe quota's success should have closed the breaker")
	}
}

func TestCircuitBreakerReopensOnHalfOpenFailure(t *testing.T) {
	cb := NewCircuitBreakerAdaptive(time.Second, 4, 5, 0.5, 10*time.Millisecond, 2)
	for i := 0; i < 10; i++ {
		cb.RecordResult(false)
	}
	time.Sleep(20 * time.Millisecond)
	if !cb.Allow() {
		t.Fatal("expected a half-open probe to be admitted")
	}
	cb.RecordResult(false)
	if cb.Allow() {
		t.Fatal("Allow() = true, want false: a failed half-open probe should reopen the breaker immediately")
	}
}
