package admission

import (
	"net/http"

	"github.com/s3sentry/s3sentry/internal/config"
	"github.com/s3sentry/s3sentry/internal/ratelimit"
	"github.com/s3sentry/s3sentry/internal/router"
)

// Controller runs the full ordered admission pipeline (spec §4.4). Steps
// 1-3 (concurrency, resource pressure, security) happen before routing;
// step 4 is routing itself; step 5 (rate limits) runs against the routed
// bucket.
type Controller struct {
	Concurrency *ConcurrencyLimiter
	Resource    ResourceMonitor
	Limits      SecurityLimits
	Limiters    *ratelimit.Limiters
}

// New builds a Controller from its constituent limits.
func New(maxConcurrent int64, resource ResourceMonitor, limits SecurityLimits, limiters *ratelimit.Limiters) *Controller {
	return &Controller{
		Concurrency: NewConcurrencyLimiter(maxConcurrent),
		Resource:    resource,
		Limits:      limits,
		Limiters:    limiters,
	}
}

// Admit runs steps 1-3. On success the caller holds a concurrency permit
// that must be released via Release when the request finishes (including
// after upstream streaming completes), per spec §4.4.
func (c *Controller) Admit(rawURI string, header http.Header, contentLength int64) Decision {
	if !c.Concurrency.TryAcquire() {
		return reject(http.StatusServiceUnavailable, 5, "max_concurrent_requests exceeded")
	}

	if !c.Resource.ShouldAcceptRequest() {
		c.Concurrency.Release()
		return reject(http.StatusServiceUnavailable, 10, "resource pressure")
	}

	if d := ValidateRequest(c.Limits, rawURI, header, contentLength); d.Err != nil {
		c.Concurrency.Release()
		return d
	}

	return admit()
}

// Release returns the concurrency permit acquired by a successful Admit.
func (c *Controller) Release() {
	c.Concurrency.Release()
}

// Route runs step 4: routing. A nil bucket is a 404.
func Route(snap *config.Snapshot, path string) (*config.BucketEntry, Decision) {
	bucket := router.Route(snap, path)
	if bucket == nil {
		return nil, reject(http.StatusNotFound, 0, "no bucket matches path")
	}
	return bucket, admit()
}

// RateLimit runs step 5 against the global/per-IP limiters and, when the
// routed bucket overrides its rate, a per-bucket limiter too.
func (c *Controller) RateLimit(clientIP string, bucket *config.BucketEntry) Decision {
	if !c.Limiters.Allow(clientIP) {
		return reject(http.StatusTooManyRequests, 1, "rate limit exceeded")
	}
	if bucket.RateLimitRPS > 0 {
		if !c.Limiters.AllowBucket(bucket.Name, bucket.RateLimitRPS) {
			return reject(http.StatusTooManyRequests, 1, "per-bucket rate limit exceeded")
		}
	}
	return admit()
}
