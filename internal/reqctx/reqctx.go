// Package reqctx carries the per-request identifiers (request_id,
// client_ip, the installed config generation) that every log line and
// metric emitted during a request needs, without threading them through
// every function signature individually.
package reqctx

import (
	"context"

	"github.com/google/uuid"
)

type contextKey int

const (
	requestIDKey contextKey = iota
	clientIPKey
)

// NewRequestID returns a fresh UUIDv4 string, used as request_id.
func NewRequestID() string {
	return uuid.New().String()
}

// WithRequestID attaches a request id to ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID returns the request id attached to ctx, or "" if none.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithClientIP attaches the client's direct connection IP to ctx.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey, ip)
}

// ClientIP returns the client IP attached to ctx, or "" if none.
func ClientIP(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPKey).(string)
	return ip
}
