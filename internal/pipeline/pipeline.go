// Package pipeline wires the admission, routing, auth, cache, and replica
// components into the per-request state machine described in spec §4.8.
package pipeline

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/s3sentry/s3sentry/internal/admin"
	"github.com/s3sentry/s3sentry/internal/admission"
	"github.com/s3sentry/s3sentry/internal/audit"
	"github.com/s3sentry/s3sentry/internal/auth"
	"github.com/s3sentry/s3sentry/internal/breaker"
	"github.com/s3sentry/s3sentry/internal/cache"
	"github.com/s3sentry/s3sentry/internal/compress"
	"github.com/s3sentry/s3sentry/internal/config"
	"github.com/s3sentry/s3sentry/internal/metrics"
	"github.com/s3sentry/s3sentry/internal/replica"
	"github.com/s3sentry/s3sentry/internal/reqctx"
	"github.com/s3sentry/s3sentry/internal/router"
	"github.com/s3sentry/s3sentry/internal/sigv4"
)

// Handler is the single entry point http.Server dispatches every request
// to. It implements the state machine of spec §4.8 start to finish.
type Handler struct {
	ConfigOwner  *config.Owner
	Replicas     *replica.Owner // rebuilt and swapped alongside ConfigOwner on reload
	Admission    *admission.Controller
	Verifier     *auth.Verifier
	AuthzHook    *auth.AuthorizationHook
	Cache        *cache.DiskCache
	Metrics      metrics.Metrics
	Audit        *audit.Logger
	Log          *zap.Logger
	StartedAt    time.Time
	Version      string
	Admin        *admin.Handler // nil disables the admin surface entirely
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	requestID := reqctx.NewRequestID()
	clientIP := clientIPFromRemoteAddr(r.RemoteAddr)
	ctx := reqctx.WithClientIP(reqctx.WithRequestID(r.Context(), requestID), clientIP)
	r = r.WithContext(ctx)

	w.Header().Set("X-Request-ID", requestID)
	h.Metrics.IncRequests(r.Method)

	if handled := h.serveSpecialEndpoint(w, r); handled {
		return
	}

	status := h.serveProxied(w, r, requestID, clientIP, start)
	h.Metrics.IncResponses(status)
	h.Metrics.ObserveRequestDuration(float64(time.Since(start).Milliseconds()))
}

// serveSpecialEndpoint handles /health, /ready, /metrics and /admin/*,
// which bypass the admission/routing/auth pipeline entirely except for
// /admin/* which requires authentication plus admin claims (spec §4.8).
func (h *Handler) serveSpecialEndpoint(w http.ResponseWriter, r *http.Request) bool {
	switch {
	case r.URL.Path == "/health":
		h.serveHealth(w)
		return true
	case r.URL.Path == "/ready":
		h.serveReady(w)
		return true
	case r.URL.Path == "/metrics":
		h.Metrics.Handler().ServeHTTP(w, r)
		return true
	case strings.HasPrefix(r.URL.Path, "/admin/"):
		if h.Admin == nil {
			http.NotFound(w, r)
			return true
		}
		h.Admin.ServeHTTP(w, r)
		return true
	}
	return false
}

func clientIPFromRemoteAddr(remoteAddr string) string {
	if i := lastColon(remoteAddr); i >= 0 {
		return remoteAddr[:i]
	}
	return remoteAddr
}

func lastColon(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == ':' {
			return i
		}
	}
	return -1
}

// serveProxied runs ACQUIRE_CONCURRENCY through EGRESS for every request
// that is not a special endpoint.
func (h *Handler) serveProxied(w http.ResponseWriter, r *http.Request, requestID, clientIP string, start time.Time) int {
	snap := h.ConfigOwner.Current()
	h.Metrics.SetConfigGeneration(snap.Generation)

	admitDecision := h.Admission.Admit(r.URL.RequestURI(), r.Header, r.ContentLength)
	if admitDecision.Err != nil {
		return h.reject(w, r, admitDecision, requestID, clientIP, start, "", "")
	}
	defer h.Admission.Release()

	bucket, routeDecision := admission.Route(snap, router.Normalize(r.URL.Path))
	if routeDecision.Err != nil {
		return h.reject(w, r, routeDecision, requestID, clientIP, start, "", "")
	}
	objectKey := router.ExtractKey(bucket, r.URL.Path)

	rateDecision := h.Admission.RateLimit(clientIP, bucket)
	if rateDecision.Err != nil {
		h.Metrics.IncRateLimitExceeded(bucket.Name)
		return h.reject(w, r, rateDecision, requestID, clientIP, start, bucket.Name, objectKey)
	}

	set := h.Replicas.Current().For(bucket.Name)
	selected := set.SelectEligible()
	if selected == nil {
		d := admission.Decision{StatusCode: http.StatusServiceUnavailable, RetryAfter: breakerRetryAfter(set)}
		return h.rejectStatus(w, d, requestID, clientIP, start, bucket.Name, objectKey, r)
	}

	var claims *auth.Claims
	if bucket.AuthRequired && snap.JWT != nil && snap.JWT.Enabled {
		c, status := h.authenticate(r, snap, bucket, objectKey)
		if status != 0 {
			// This request never reaches tryReplica, so give back whatever
			// HalfOpen probe slot SelectEligible consumed above (spec §4.5 C5).
			selected.Breaker.ReleaseProbe()
			return h.rejectStatus(w, admission.Decision{StatusCode: status}, requestID, clientIP, start, bucket.Name, objectKey, r)
		}
		claims = c
		h.Metrics.IncAuthSuccess()
	}

	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		if entry, hit, _ := h.lookupCache(bucket, objectKey, r); hit {
			selected.Breaker.ReleaseProbe()
			h.Metrics.IncCacheHit()
			h.writeCachedEntry(w, r, entry)
			h.recordAudit(requestID, clientIP, r, bucket.Name, objectKey, http.StatusOK, start, claims, "", "")
			return http.StatusOK
		}
		h.Metrics.IncCacheMiss()
	}

	status, s3Code, s3Msg := h.streamUpstream(w, r, bucket, objectKey, set, selected)
	h.recordAudit(requestID, clientIP, r, bucket.Name, objectKey, status, start, claims, s3Code, s3Msg)
	return status
}

// breakerRetryAfter reports the fewest whole seconds until the
// soonest-to-recover open replica breaker transitions to HalfOpen, so
// clients back off no longer than necessary. Falls back to 30s if no
// breaker is open (e.g. every replica was skipped for another reason).
func breakerRetryAfter(set *replica.Set) int {
	best := -1
	for _, r := range set.All() {
		state, _, _ := r.Breaker.Snapshot()
		if state != breaker.Open {
			continue
		}
		remaining := r.Breaker.TimeoutDuration() - time.Since(r.Breaker.OpenedAt())
		secs := int(remaining.Seconds()) + 1
		if secs < 1 {
			secs = 1
		}
		if best == -1 || secs < best {
			best = secs
		}
	}
	if best == -1 {
		return 30
	}
	return best
}

func (h *Handler) authenticate(r *http.Request, snap *config.Snapshot, bucket *config.BucketEntry, objectKey string) (*auth.Claims, int) {
	query := r.URL.Query()
	token, found := auth.ExtractToken(snap.JWT.Sources, r.Header, query)
	if !found {
		h.Metrics.IncAuthFailure("missing_token")
		return nil, http.StatusUnauthorized
	}

	claims, err := h.Verifier.Verify(token, snap.JWT, snap.JWKS)
	if err != nil {
		h.Metrics.IncAuthFailure("invalid_token")
		return nil, http.StatusForbidden
	}

	if err := auth.EvaluateRules(claims, snap.JWT.ClaimRules); err != nil {
		h.Metrics.IncAuthFailure("claims_failed")
		return nil, http.StatusForbidden
	}

	if bucket.Authorization != nil {
		if err := h.AuthzHook.Check(bucket.Authorization, claims, bucket.Name, objectKey, r.Method); err != nil {
			h.Metrics.IncAuthFailure("authorization_denied")
			return nil, http.StatusForbidden
		}
	}

	return claims, 0
}

func (h *Handler) lookupCache(bucket *config.BucketEntry, objectKey string, r *http.Request) (cache.Entry, bool, error) {
	if h.Cache == nil {
		return cache.Entry{}, false, nil
	}
	key := cache.Key{Bucket: bucket.Name, Object: objectKey}
	return h.Cache.Get(key)
}

func (h *Handler) writeCachedEntry(w http.ResponseWriter, r *http.Request, entry cache.Entry) {
	if entry.Metadata.ContentType != "" {
		w.Header().Set("Content-Type", entry.Metadata.ContentType)
	}
	if entry.Metadata.ETag != "" {
		w.Header().Set("ETag", entry.Metadata.ETag)
	}
	w.Header().Set("Content-Length", strconv.Itoa(len(entry.Body)))
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		w.Write(entry.Body)
	}
}

// streamUpstream signs and relays the request to the selected replica,
// failing over to the next eligible replica on connect/timeout/5xx errors
// (spec §4.8 STREAM_UPSTREAM).
func (h *Handler) streamUpstream(w http.ResponseWriter, r *http.Request, bucket *config.BucketEntry, objectKey string, set *replica.Set, first *replica.Replica) (int, string, string) {
	candidate := first
	lastStatus := http.StatusBadGateway
	var lastCode, lastMsg string
	for candidate != nil {
		status, s3Code, s3Msg, failedOver := h.tryReplica(w, r, bucket, objectKey, candidate)
		if !failedOver {
			return status, s3Code, s3Msg
		}
		lastStatus, lastCode, lastMsg = status, s3Code, s3Msg
		candidate = nextEligible(set, candidate)
	}
	// Every replica exhausted: propagate the last attempt's real status
	// (spec §7) rather than collapsing every failure mode into one code.
	http.Error(w, http.StatusText(lastStatus), lastStatus)
	return lastStatus, lastCode, lastMsg
}

func nextEligible(set *replica.Set, after *replica.Replica) *replica.Replica {
	found := false
	for _, r := range set.All() {
		if found && r.Breaker.ShouldAllowRequest() {
			return r
		}
		if r == after {
			found = true
		}
	}
	return nil
}

// tryReplica performs one signed upstream attempt. failedOver is true when
// the caller should advance to the next replica instead of returning the
// status to the client.
func (h *Handler) tryReplica(w http.ResponseWriter, r *http.Request, bucket *config.BucketEntry, objectKey string, rep *replica.Replica) (status int, s3Code, s3Msg string, failedOver bool) {
	addr := sigv4.Resolve(rep.Bucket, rep.Region, rep.Endpoint, objectKey)
	scheme := "https"
	if rep.Endpoint != "" && len(rep.Endpoint) >= 7 && rep.Endpoint[:7] == "http://" {
		scheme = "http"
	}

	body, payloadHash := bodyAndHash(r)
	now := time.Now().UTC()
	headers := map[string]string{
		"host":                 addr.Host,
		"x-amz-date":           now.Format("20060102T150405Z"),
		"x-amz-content-sha256": payloadHash,
	}
	authHeader, err := sigv4.Sign(sigv4.Request{
		Method:      r.Method,
		URI:         addr.URI,
		Query:       r.URL.RawQuery,
		Headers:     headers,
		PayloadHash: payloadHash,
		Region:      rep.Region,
		Date:        now.Format("20060102"),
		DateTime:    now.Format("20060102T150405Z"),
	}, rep.Creds)
	if err != nil {
		rep.Breaker.RecordFailure()
		return http.StatusBadGateway, "", "", true
	}

	connHost := addr.Host
	if rep.Endpoint != "" {
		connHost = rep.Endpoint
		if i := strings.Index(connHost, "://"); i >= 0 {
			connHost = connHost[i+3:]
		}
		connHost = strings.TrimSuffix(connHost, "/")
	}
	upstreamURL := scheme + "://" + connHost + addr.URI
	if r.URL.RawQuery != "" {
		upstreamURL += "?" + r.URL.RawQuery
	}
	req, err := http.NewRequestWithContext(r.Context(), r.Method, upstreamURL, body)
	if err != nil {
		rep.Breaker.RecordFailure()
		return http.StatusBadGateway, "", "", true
	}
	req.Host = addr.Host
	req.Header.Set("X-Amz-Date", headers["x-amz-date"])
	req.Header.Set("X-Amz-Content-Sha256", payloadHash)
	req.Header.Set("Authorization", authHeader)
	if rangeHeader := r.Header.Get("Range"); rangeHeader != "" {
		req.Header.Set("Range", rangeHeader)
	}

	resp, err := rep.Client.Do(req)
	if err != nil {
		rep.Breaker.RecordFailure()
		return classifyDoErr(err), "", "", true
	}
	defer resp.Body.Close()

	success, failure := breaker.ClassifyStatus(resp.StatusCode)
	if success {
		rep.Breaker.RecordSuccess()
	} else if failure {
		rep.Breaker.RecordFailure()
		return resp.StatusCode, resp.Header.Get("X-Amz-Error-Code"), resp.Header.Get("X-Amz-Error-Message"), true
	}

	copyHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)

	if compressAlgo := compress.Negotiate(r.Header.Get("Accept-Encoding"), h.configCompression()); compressAlgo != "" {
		w.Header().Set("Content-Encoding", string(compressAlgo))
	}

	h.teeAndRespond(w, resp, bucket, objectKey, r.Method)
	return resp.StatusCode, "", "", false
}

// classifyDoErr distinguishes a timed-out upstream attempt (504) from every
// other transport failure — connection refused, DNS failure, TLS handshake
// failure — which is a 502 (spec §7).
func classifyDoErr(err error) int {
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return http.StatusGatewayTimeout
	}
	return http.StatusBadGateway
}

func (h *Handler) configCompression() config.CompressionConfig {
	return h.ConfigOwner.Current().Compression
}

func bodyAndHash(r *http.Request) (io.Reader, string) {
	if r.Body == nil || r.ContentLength == 0 {
		return nil, sigv4.EmptyBodyHash
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, sigv4.EmptyBodyHash
	}
	return &nopReader{data}, sigv4.HashPayload(data)
}

type nopReader struct{ data []byte }

func (n *nopReader) Read(p []byte) (int, error) {
	if len(n.data) == 0 {
		return 0, io.EOF
	}
	c := copy(p, n.data)
	n.data = n.data[c:]
	return c, nil
}

func copyHeaders(dst, src http.Header) {
	for k, vs := range src {
		for _, v := range vs {
			dst.Add(k, v)
		}
	}
}

// teeAndRespond relays the upstream body to the client (authoritative) and,
// for cacheable GET responses, mirrors it into the cache (abandon-safe: a
// write failure mid-stream never corrupts the cache, per spec §4.8).
func (h *Handler) teeAndRespond(w http.ResponseWriter, resp *http.Response, bucket *config.BucketEntry, objectKey, method string) {
	if h.Cache == nil || method != http.MethodGet || resp.StatusCode != http.StatusOK {
		io.Copy(w, resp.Body)
		return
	}

	var buf []byte
	pr, pw := io.Pipe()
	tee := io.TeeReader(resp.Body, pw)

	done := make(chan struct{})
	go func() {
		defer close(done)
		data, err := io.ReadAll(pr)
		if err == nil {
			buf = data
		}
	}()

	_, copyErr := io.Copy(w, tee)
	pw.CloseWithError(copyErr)
	<-done

	if buf != nil {
		key := cache.Key{Bucket: bucket.Name, Object: objectKey}
		if err := h.Cache.Set(key, buf, resp.Header.Get("Content-Type"), resp.Header.Get("ETag"), nil, 0); err != nil && h.Log != nil {
			h.Log.Warn("cache insert failed", zap.String("bucket", bucket.Name), zap.String("key", objectKey), zap.Error(err))
		}
	}
}

func (h *Handler) recordAudit(requestID, clientIP string, r *http.Request, bucket, objectKey string, status int, start time.Time, claims *auth.Claims, s3Code, s3Msg string) {
	if h.Audit == nil {
		return
	}
	sub := ""
	if claims != nil {
		sub = claims.Subject
	}
	h.Audit.Record(audit.Event{
		RequestID:     requestID,
		ClientIP:      clientIP,
		Method:        r.Method,
		Path:          r.URL.RequestURI(),
		Bucket:        bucket,
		ObjectKey:     objectKey,
		Status:        status,
		DurationMs:    float64(time.Since(start).Milliseconds()),
		Subject:       sub,
		S3ErrorCode:   s3Code,
		S3ErrorMsg:    s3Msg,
		TimestampUnix: start.Unix(),
	})
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request, d admission.Decision, requestID, clientIP string, start time.Time, bucket, objectKey string) int {
	return h.rejectStatus(w, d, requestID, clientIP, start, bucket, objectKey, r)
}

func (h *Handler) rejectStatus(w http.ResponseWriter, d admission.Decision, requestID, clientIP string, start time.Time, bucket, objectKey string, r *http.Request) int {
	if d.StatusCode == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}
	if d.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(d.RetryAfter))
	}
	msg := http.StatusText(d.StatusCode)
	if d.Err != nil {
		msg = d.Err.Error()
	}
	http.Error(w, msg, d.StatusCode)
	h.recordAudit(requestID, clientIP, r, bucket, objectKey, d.StatusCode, start, nil, "", "")
	return d.StatusCode
}
