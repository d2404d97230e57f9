package retry

import (
	"testing"
	"time"
)

func TestNextBackoffIsMonotonicallyNonDecreasing(t *testing.T) {
	p := New(5, 100*time.Millisecond, 2*time.Second)
	prev := time.Duration(0)
	for attempt := 1; attempt <= 5; attempt++ {
		next := p.NextBackoff(attempt)
		if next < prev {
			t.Fatalf("attempt %d backoff %v is less than previous %v", attempt, next, prev)
		}
		prev = next
	}
}

func TestNextBackoffCapsAtMaxBackoff(t *testing.T) {
	p := New(10, 100*time.Millisecond, time.Second)
	if got := p.NextBackoff(10); got != time.Second {
		t.Fatalf("expected capped backoff of 1s, got %v", got)
	}
}

func TestExhaustedAtMaxAttempts(t *testing.T) {
	p := New(3, time.Millisecond, time.Second)
	if p.Exhausted(2) {
		t.Fatal("expected not exhausted before reaching max attempts")
	}
	if !p.Exhausted(3) {
		t.Fatal("expected exhausted at max attempts")
	}
}
