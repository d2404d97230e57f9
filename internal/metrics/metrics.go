// Package metrics defines the Metrics interface consulted by every other
// component (C1-C9) and its Prometheus-backed implementation (spec §4.11).
package metrics

import "net/http"

// Metrics is implemented independently of Prometheus so components never
// import prometheus directly; the only shipped implementation is
// Prometheus-backed (spec §6).
type Metrics interface {
	IncRequests(method string)
	IncResponses(status int)
	IncAuthSuccess()
	IncAuthFailure(reason string)
	IncRateLimitExceeded(bucket string)
	IncConcurrencyRejected()
	IncCacheHit()
	IncCacheMiss()
	IncCacheEviction()

	SetActiveConnections(n float64)
	SetConfigGeneration(gen uint64)
	SetBreakerState(bucket, replica string, state int)
	SetBreakerFailures(bucket, replica string, n int)
	SetBreakerSuccesses(bucket, replica string, n int)
	SetBackendHealthy(bucket string, healthy bool)

	ObserveRequestDuration(ms float64)
	ObserveBucketLatency(bucket string, ms float64)

	// Handler returns the HTTP handler to mount at /metrics.
	Handler() http.Handler
}
