// Package breaker implements the per-replica circuit breaker state machine
// (spec §4.5): Closed, Open, HalfOpen, with configurable thresholds.
package breaker

import (
	"sync"
	"time"
)

// State is exported as Prometheus state numbering per spec §4.5.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

// Config holds the breaker's tunables.
type Config struct {
	FailureThreshold   int
	SuccessThreshold   int
	TimeoutDuration    time.Duration
	HalfOpenMaxRequests int
}

// Breaker is a small mutex-guarded state machine; one instance per replica,
// never shared, never keyed by name in the hot path (spec §9).
type Breaker struct {
	cfg Config

	mu          sync.Mutex
	state       State
	failures    int
	successes   int
	openedAt    time.Time
	halfOpenInFlight int
}

// New constructs a Breaker in the Closed state.
func New(cfg Config) *Breaker {
	return &Breaker{cfg: cfg, state: Closed}
}

// ShouldAllowRequest reports whether a new request may be dispatched to
// this replica, transitioning Open -> HalfOpen when the timeout has
// elapsed. On HalfOpen, up to HalfOpenMaxRequests probes are admitted in
// parallel.
func (b *Breaker) ShouldAllowRequest() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return true
	case Open:
		if time.Since(b.openedAt) >= b.cfg.TimeoutDuration {
			b.state = HalfOpen
			b.successes = 0
			b.halfOpenInFlight = 1
			return true
		}
		return false
	case HalfOpen:
		if b.halfOpenInFlight < b.cfg.HalfOpenMaxRequests {
			b.halfOpenInFlight++
			return true
		}
		return false
	default:
		return false
	}
}

// RecordSuccess registers an upstream success (HTTP status in [200,299]).
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		b.failures = 0
	case HalfOpen:
		b.successes++
		b.halfOpenInFlight = max0(b.halfOpenInFlight - 1)
		if b.successes >= b.cfg.SuccessThreshold {
			b.state = Closed
			b.failures = 0
			b.successes = 0
			b.halfOpenInFlight = 0
		}
	case Open:
		// a success while Open should not occur via ShouldAllowRequest's
		// gating, but is harmless to ignore.
	}
}

// RecordFailure registers an upstream failure (5xx, connect/TLS error, or
// timeout). 3xx/4xx must not be reported here (spec §4.5).
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.open()
		}
	case HalfOpen:
		b.halfOpenInFlight = max0(b.halfOpenInFlight - 1)
		b.open()
	case Open:
		// already open
	}
}

// ReleaseProbe gives back a HalfOpen probe slot consumed by ShouldAllowRequest
// for a request that turned out to never reach the upstream (cache hit,
// auth rejection). Without this, a probe consumed by such a request is never
// matched by RecordSuccess/RecordFailure, and a recovering breaker can get
// stuck in HalfOpen with all its probe slots permanently occupied.
func (b *Breaker) ReleaseProbe() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == HalfOpen {
		b.halfOpenInFlight = max0(b.halfOpenInFlight - 1)
	}
}

func (b *Breaker) open() {
	b.state = Open
	b.openedAt = time.Now()
	b.failures = 0
	b.successes = 0
	b.halfOpenInFlight = 0
}

// Snapshot returns the current state and counters for metrics export.
func (b *Breaker) Snapshot() (state State, failures, successes int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state, b.failures, b.successes
}

// OpenedAt returns the instant the breaker last transitioned to Open; zero
// if it has never opened.
func (b *Breaker) OpenedAt() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.openedAt
}

// TimeoutDuration returns the configured Open->HalfOpen cooldown, used by
// callers to compute a Retry-After hint.
func (b *Breaker) TimeoutDuration() time.Duration {
	return b.cfg.TimeoutDuration
}

func max0(v int) int {
	if v < 0 {
		return 0
	}
	return v
}

// ClassifyStatus reports whether an HTTP status code is a breaker success,
// failure, or neither (3xx/4xx, spec §4.5).
func ClassifyStatus(status int) (success bool, failure bool) {
	switch {
	case status >= 200 && status <= 299:
		return true, false
	case status >= 500:
		return false, true
	default:
		return false, false
	}
}
