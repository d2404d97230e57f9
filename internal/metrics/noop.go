package metrics

import "net/http"

// Noop discards every observation. Used by tests and by callers that
// disable metrics entirely.
type Noop struct{}

func (Noop) IncRequests(string)                                  {}
func (Noop) IncResponses(int)                                    {}
func (Noop) IncAuthSuccess()                                      {}
func (Noop) IncAuthFailure(string)                                {}
func (Noop) IncRateLimitExceeded(string)                          {}
func (Noop) IncConcurrencyRejected()                              {}
func (Noop) IncCacheHit()                                         {}
func (Noop) IncCacheMiss()                                        {}
func (Noop) IncCacheEviction()                                    {}
func (Noop) SetActiveConnections(float64)                         {}
func (Noop) SetConfigGeneration(uint64)                           {}
func (Noop) SetBreakerState(string, string, int)                  {}
func (Noop) SetBreakerFailures(string, string, int)               {}
func (Noop) SetBreakerSuccesses(string, string, int)              {}
func (Noop) SetBackendHealthy(string, bool)                       {}
func (Noop) ObserveRequestDuration(float64)                       {}
func (Noop) ObserveBucketLatency(string, float64)                 {}
func (Noop) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}
