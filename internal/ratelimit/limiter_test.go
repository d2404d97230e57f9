package ratelimit

import "testing"

func TestTokenBucketExhaustsAtBurst(t *testing.T) {
	b := NewTokenBucket(2)
	if !b.Allow() || !b.Allow() {
		t.Fatal("expected first two requests to be allowed (burst == rps)")
	}
	if b.Allow() {
		t.Fatal("expected third request to be denied once burst is exhausted")
	}
}

func TestKeyedLimiterIsolatesKeys(t *testing.T) {
	l := NewKeyedLimiter(1)
	if !l.Allow("1.2.3.4") {
		t.Fatal("expected first request from 1.2.3.4 to be allowed")
	}
	if l.Allow("1.2.3.4") {
		t.Fatal("expected second request from 1.2.3.4 to be denied")
	}
	if !l.Allow("5.6.7.8") {
		t.Fatal("expected a different key to have its own bucket")
	}
}

func TestLimitersAllowShortCircuitsOnGlobal(t *testing.T) {
	l := NewLimiters(0, 100)
	if l.Allow("1.1.1.1") {
		t.Fatal("expected global limiter with 0 rps to deny immediately")
	}
}
