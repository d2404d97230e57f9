package pipeline

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/s3sentry/s3sentry/internal/breaker"
)

type healthResponse struct {
	Status        string `json:"status"`
	UptimeSeconds uint64 `json:"uptime_seconds"`
	Version       string `json:"version"`
}

func (h *Handler) serveHealth(w http.ResponseWriter) {
	resp := healthResponse{
		Status:        "healthy",
		UptimeSeconds: uint64(time.Since(h.StartedAt).Seconds()),
		Version:       h.Version,
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}

type bucketHealth struct {
	Bucket   string            `json:"bucket"`
	Replicas map[string]string `json:"replicas"`
}

type readyResponse struct {
	Buckets []bucketHealth `json:"buckets"`
}

// serveReady returns 200 only if every bucket has at least one Closed
// replica breaker, else 503, per spec §4.8.
func (h *Handler) serveReady(w http.ResponseWriter) {
	allHealthy := true
	var out readyResponse

	for name, set := range h.Replicas.Current().All() {
		bh := bucketHealth{Bucket: name, Replicas: make(map[string]string)}
		if !set.AnyHealthy() {
			allHealthy = false
		}
		for _, r := range set.All() {
			state, _, _ := r.Breaker.Snapshot()
			bh.Replicas[r.Name] = stateLabel(state)
		}
		out.Buckets = append(out.Buckets, bh)
	}

	status := http.StatusOK
	if !allHealthy {
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(out)
}

func stateLabel(s breaker.State) string {
	switch s {
	case breaker.Closed:
		return "closed"
	case breaker.Open:
		return "open"
	case breaker.HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}
