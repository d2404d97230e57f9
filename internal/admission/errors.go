// Package admission implements the ordered, short-circuiting admission
// checks described in spec §4.4: concurrency limiting, resource pressure,
// security validation, routing, and rate limiting.
package admission

import "fmt"

// Decision is returned by each check and by Controller.Admit. A nil
// Decision.Err means the request is admitted.
type Decision struct {
	Err        error
	StatusCode int
	RetryAfter int // seconds, 0 means omit the header
}

// Rejection is the error type carried by a denying Decision.
type Rejection struct {
	Reason string
}

func (r *Rejection) Error() string { return r.Reason }

func reject(status, retryAfter int, reason string) Decision {
	return Decision{
		Err:        &Rejection{Reason: reason},
		StatusCode: status,
		RetryAfter: retryAfter,
	}
}

func admit() Decision { return Decision{} }

func (d Decision) String() string {
	if d.Err == nil {
		return "admit"
	}
	return fmt.Sprintf("reject(%d): %s", d.StatusCode, d.Err)
}
