package resilience

import (
	"testing"
	"time"
)

func TestRateLimiterDeniesOnceCapacityIsExhausted(t *testing.T) {
	rl := NewRateLimiter(5, 5, time.Second, 0)
	for i := 0; i < 5; i++ {
		if !rl.Allow() {
			t.Fatalf("Allow() #%d = false, want true: within bucket capacity", i)
		}
	}
	if rl.Allow() {
		t.Fatal("Allow() = true, want false: capacity exhausted and no time has passed to refill")
	}
}

func TestRateLimiterRefillsOverTime(t *testing.T) {
	rl := NewRateLimiter(1, 100, time.Second, 0)
	if !rl.Allow() {
		t.Fatal("expected the first token to be available")
	}
	if rl.Allow() {
		t.Fatal("expected the bucket to be empty immediately after consuming its only token")
	}
	time.Sleep(20 * time.Millisecond) // 100 tok/s * 20ms ~= 2 tokens
	if !rl.Allow() {
		t.Fatal("expected a token to have refilled after 20ms at 100 tokens/sec")
	}
}

func TestRateLimiterEnforcesHardWindowCapIndependentlyOfTokens(t *testing.T) {
	rl := NewRateLimiter(100, 100, time.Minute, 2)
	if !rl.Allow() || !rl.Allow() {
		t.Fatal("expected the first two requests within the window to be allowed")
	}
	if rl.Allow() {
		t.Fatal("Allow() = true, want false: maxPerWindow should cap requests even though tokens remain")
	}
}

func TestRateLimiterReserveAfterReportsZeroWhenTokensAvailable(t *testing.T) {
	rl := NewRateLimiter(5, 5, time.Second, 0)
	if got := rl.ReserveAfter(1); got != 0 {
		t.Fatalf("ReserveAfter(1) = %v, want 0 with tokens available", got)
	}
}
