package pipeline

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/s3sentry/s3sentry/internal/admission"
	"github.com/s3sentry/s3sentry/internal/auth"
	"github.com/s3sentry/s3sentry/internal/breaker"
	"github.com/s3sentry/s3sentry/internal/config"
	"github.com/s3sentry/s3sentry/internal/metrics"
	"github.com/s3sentry/s3sentry/internal/ratelimit"
	"github.com/s3sentry/s3sentry/internal/replica"
)

func newTestSnapshot(upstreamURL string, authRequired bool) *config.Snapshot {
	snap := &config.Snapshot{
		Generation: 1,
		ServerLimits: config.ServerLimits{
			MaxConcurrentRequests: 100,
			MaxURILength:          2048,
			MaxHeaderSize:         8192,
			MaxBodySize:           1 << 20,
		},
		RateLimits: config.RateLimits{GlobalRPS: 1000, PerIPRPS: 1000},
		Buckets: []*config.BucketEntry{
			{
				Name:         "photos",
				PathPrefix:   "/photos",
				AuthRequired: authRequired,
				Replicas: []*config.ReplicaConfig{
					{
						Name:      "primary",
						Priority:  0,
						Bucket:    "photos-bucket",
						Region:    "us-east-1",
						AccessKey: "AKIDEXAMPLE",
						SecretKey: "secret",
						Endpoint:  upstreamURL,
						Timeout:   5 * time.Second,
					},
				},
			},
		},
		Compression: config.CompressionConfig{Enabled: false},
	}
	return snap
}

func newTestHandler(t *testing.T, upstream *httptest.Server, authRequired bool) *Handler {
	t.Helper()
	snap := newTestSnapshot(upstream.URL, authRequired)

	owner := config.NewOwner()
	owner.Install(snap)

	replicaOwner := replica.NewOwner()
	replicaOwner.Install(replica.BuildRegistry(snap, replica.DefaultBreakerConfig))

	limiters := ratelimit.NewLimiters(1000, 1000)
	controller := admission.New(100, admission.NullMonitor{}, admission.SecurityLimits{
		MaxURILength:  2048,
		MaxHeaderSize: 8192,
		MaxBodySize:   1 << 20,
	}, limiters)

	verifier := auth.NewVerifier(auth.NewJWKSCache())

	return &Handler{
		ConfigOwner: owner,
		Replicas:    replicaOwner,
		Admission:   controller,
		Verifier:    verifier,
		AuthzHook:   auth.NewAuthorizationHook(),
		Metrics:     metrics.Noop{},
		StartedAt:   time.Now(),
		Version:     "test",
	}
}

func TestServeProxiedRoutesToUpstream(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("hello"))
	}))
	defer upstream.Close()

	h := newTestHandler(t, upstream, false)

	req := httptest.NewRequest(http.MethodGet, "/photos/cat.jpg", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != "hello" {
		t.Fatalf("unexpected body: %q", rec.Body.String())
	}
}

func TestServeProxiedReturns404ForUnknownBucket(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	h := newTestHandler(t, upstream, false)

	req := httptest.NewRequest(http.MethodGet, "/unknown/cat.jpg", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestServeProxiedRequiresAuthWhenConfigured(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	h := newTestHandler(t, upstream, true)
	h.ConfigOwner.Current().JWT = &config.JWTConfig{Enabled: true, Sources: []config.TokenSource{{Kind: config.TokenSourceBearer}}}

	req := httptest.NewRequest(http.MethodGet, "/photos/cat.jpg", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func Test5xxUpstreamPropagatesStatusWhenReplicasExhausted(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer upstream.Close()

	h := newTestHandler(t, upstream, false)

	req := httptest.NewRequest(http.MethodGet, "/photos/cat.jpg", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected the last replica's real 500 to propagate once exhausted, got %d", rec.Code)
	}

	set := h.Replicas.Current().For("photos")
	state, _, _ := set.All()[0].Breaker.Snapshot()
	if state != breaker.Closed && state != breaker.Open {
		t.Fatalf("unexpected breaker state %v", state)
	}
}

func TestHealthEndpointBypassesPipeline(t *testing.T) {
	h := newTestHandler(t, httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})), false)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from /health, got %d", rec.Code)
	}
}
