// Package retry defines a backoff policy for transient upstream failures.
// Per spec §4.17 it is deliberately unwired: the request pipeline fails
// over to the next replica instead of retrying the same one, so nothing
// in internal/pipeline calls into this package. It exists so a future
// same-replica retry strategy has a ready-made, already-tested policy to
// reach for.
package retry

import "time"

// Policy is an exponential backoff schedule with a ceiling.
type Policy struct {
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
}

// New constructs a Policy, defaulting MaxAttempts to 3, InitialBackoff to
// 100ms, and MaxBackoff to 5s when the zero value is passed for any field.
func New(maxAttempts int, initialBackoff, maxBackoff time.Duration) Policy {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if initialBackoff <= 0 {
		initialBackoff = 100 * time.Millisecond
	}
	if maxBackoff <= 0 {
		maxBackoff = 5 * time.Second
	}
	return Policy{MaxAttempts: maxAttempts, InitialBackoff: initialBackoff, MaxBackoff: maxBackoff}
}

// NextBackoff returns the delay before attempt number `attempt` (1-indexed;
// attempt 1 is the first retry after the initial try), doubling each time
// and capping at MaxBackoff. Monotonically non-decreasing in attempt.
func (p Policy) NextBackoff(attempt int) time.Duration {
	if attempt <= 1 {
		return p.InitialBackoff
	}
	backoff := p.InitialBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
		if backoff >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	return backoff
}

// Exhausted reports whether attempt has used up the policy's budget.
func (p Policy) Exhausted(attempt int) bool {
	return attempt >= p.MaxAttempts
}
