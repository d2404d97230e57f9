package admission

import (
	"net/http"
	"testing"

	"github.com/s3sentry/s3sentry/internal/ratelimit"
)

func newTestController(maxConcurrent int64) *Controller {
	return New(maxConcurrent, NullMonitor{}, SecurityLimits{
		MaxURILength:  2048,
		MaxHeaderSize: 8192,
		MaxBodySize:   1 << 20,
	}, ratelimit.NewLimiters(1000, 1000))
}

func TestAdmitRejectsWhenConcurrencyExhausted(t *testing.T) {
	c := newTestController(1)
	d1 := c.Admit("/x", http.Header{}, 0)
	if d1.Err != nil {
		t.Fatalf("expected first request admitted, got %v", d1)
	}
	d2 := c.Admit("/x", http.Header{}, 0)
	if d2.Err == nil || d2.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 on second request, got %v", d2)
	}
	c.Release()
}

func TestAdmitRejectsPathTraversal(t *testing.T) {
	c := newTestController(10)
	d := c.Admit("/bucket/../../etc/passwd", http.Header{}, 0)
	if d.Err == nil || d.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", d)
	}
}

func TestAdmitRejectsOversizedURI(t *testing.T) {
	c := newTestController(10)
	longURI := "/" + string(make([]byte, 3000))
	d := c.Admit(longURI, http.Header{}, 0)
	if d.Err == nil || d.StatusCode != http.StatusRequestURITooLong {
		t.Fatalf("expected 414, got %v", d)
	}
}

func TestValidateRequestRejectsOversizedBody(t *testing.T) {
	limits := SecurityLimits{MaxURILength: 100, MaxHeaderSize: 100, MaxBodySize: 10}
	d := ValidateRequest(limits, "/x", http.Header{}, 20)
	if d.Err == nil || d.StatusCode != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %v", d)
	}
}
