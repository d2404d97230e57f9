package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusMetrics is the one shipped Metrics implementation (spec §4.11).
type PrometheusMetrics struct {
	requestsTotal           *prometheus.CounterVec
	responsesTotal          *prometheus.CounterVec
	authSuccessTotal        prometheus.Counter
	authFailureTotal        *prometheus.CounterVec
	rateLimitExceededTotal  *prometheus.CounterVec
	concurrencyRejected     prometheus.Counter
	cacheHitsTotal          prometheus.Counter
	cacheMissesTotal        prometheus.Counter
	cacheEvictionsTotal     prometheus.Counter

	activeConnections  prometheus.Gauge
	configGeneration   prometheus.Gauge
	breakerState       *prometheus.GaugeVec
	breakerFailures    *prometheus.GaugeVec
	breakerSuccesses   *prometheus.GaugeVec
	backendHealthy     *prometheus.GaugeVec

	requestDurationMs prometheus.Histogram
	bucketLatencyMs   *prometheus.HistogramVec
}

// New registers all collectors on prometheus.DefaultRegisterer and returns
// the sink.
func New() *PrometheusMetrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer allows tests to use an isolated registry instead of
// the global default (avoiding duplicate-registration panics across
// multiple test binaries).
func NewWithRegisterer(reg prometheus.Registerer) *PrometheusMetrics {
	factory := promauto.With(reg)

	return &PrometheusMetrics{
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "requests_total", Help: "Total requests received.",
		}, []string{"method"}),
		responsesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "responses_total", Help: "Total responses sent, by status code.",
		}, []string{"status"}),
		authSuccessTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "auth_success_total", Help: "Total successful authentications.",
		}),
		authFailureTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_failure_total", Help: "Total failed authentications, by reason.",
		}, []string{"reason"}),
		rateLimitExceededTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rate_limit_exceeded_total", Help: "Total requests rejected by rate limiting.",
		}, []string{"bucket"}),
		concurrencyRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "concurrency_rejected_total", Help: "Total requests rejected by the concurrency limiter.",
		}),
		cacheHitsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "cache_hits_total", Help: "Total cache hits.",
		}),
		cacheMissesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "cache_misses_total", Help: "Total cache misses.",
		}),
		cacheEvictionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "cache_evictions_total", Help: "Total cache entries evicted.",
		}),
		activeConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "active_connections", Help: "Current number of in-flight requests.",
		}),
		configGeneration: factory.NewGauge(prometheus.GaugeOpts{
			Name: "config_generation", Help: "Generation number of the currently installed config snapshot.",
		}),
		breakerState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "circuit_breaker_state", Help: "Breaker state: 0=closed, 1=open, 2=half-open.",
		}, []string{"bucket", "replica"}),
		breakerFailures: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "circuit_breaker_failures", Help: "Consecutive failure count observed by the breaker.",
		}, []string{"bucket", "replica"}),
		breakerSuccesses: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "circuit_breaker_successes", Help: "Consecutive success count observed by the breaker.",
		}, []string{"bucket", "replica"}),
		backendHealthy: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "backend_healthy", Help: "1 if at least one replica is not open, else 0.",
		}, []string{"bucket"}),
		requestDurationMs: factory.NewHistogram(prometheus.HistogramOpts{
			Name: "request_duration_ms", Help: "End-to-end request duration in milliseconds.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 16),
		}),
		bucketLatencyMs: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name: "bucket_latency_ms", Help: "Upstream latency in milliseconds, per bucket.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 16),
		}, []string{"bucket"}),
	}
}

func (m *PrometheusMetrics) IncRequests(method string) { m.requestsTotal.WithLabelValues(method).Inc() }

func (m *PrometheusMetrics) IncResponses(status int) {
	m.responsesTotal.WithLabelValues(statusLabel(status)).Inc()
}

func (m *PrometheusMetrics) IncAuthSuccess() { m.authSuccessTotal.Inc() }

func (m *PrometheusMetrics) IncAuthFailure(reason string) {
	m.authFailureTotal.WithLabelValues(reason).Inc()
}

func (m *PrometheusMetrics) IncRateLimitExceeded(bucket string) {
	m.rateLimitExceededTotal.WithLabelValues(bucket).Inc()
}

func (m *PrometheusMetrics) IncConcurrencyRejected() { m.concurrencyRejected.Inc() }
func (m *PrometheusMetrics) IncCacheHit()            { m.cacheHitsTotal.Inc() }
func (m *PrometheusMetrics) IncCacheMiss()           { m.cacheMissesTotal.Inc() }
func (m *PrometheusMetrics) IncCacheEviction()       { m.cacheEvictionsTotal.Inc() }

func (m *PrometheusMetrics) SetActiveConnections(n float64) { m.activeConnections.Set(n) }
func (m *PrometheusMetrics) SetConfigGeneration(gen uint64) { m.configGeneration.Set(float64(gen)) }

func (m *PrometheusMetrics) SetBreakerState(bucket, replica string, state int) {
	m.breakerState.WithLabelValues(bucket, replica).Set(float64(state))
}

func (m *PrometheusMetrics) SetBreakerFailures(bucket, replica string, n int) {
	m.breakerFailures.WithLabelValues(bucket, replica).Set(float64(n))
}

func (m *PrometheusMetrics) SetBreakerSuccesses(bucket, replica string, n int) {
	m.breakerSuccesses.WithLabelValues(bucket, replica).Set(float64(n))
}

func (m *PrometheusMetrics) SetBackendHealthy(bucket string, healthy bool) {
	v := 0.0
	if healthy {
		v = 1.0
	}
	m.backendHealthy.WithLabelValues(bucket).Set(v)
}

func (m *PrometheusMetrics) ObserveRequestDuration(ms float64) {
	m.requestDurationMs.Observe(ms)
}

func (m *PrometheusMetrics) ObserveBucketLatency(bucket string, ms float64) {
	m.bucketLatencyMs.WithLabelValues(bucket).Observe(ms)
}

func (m *PrometheusMetrics) Handler() http.Handler { return promhttp.Handler() }

func statusLabel(status int) string {
	return strconv.Itoa(status)
}
