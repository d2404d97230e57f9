// Package audit implements the request audit trail (spec §4.14): one
// record per request, written through a bounded buffered channel so a slow
// or unavailable sink never blocks the request path.
package audit

// Event is one audit record. Fields mirror the structured log line
// required by spec §7 for every error path, extended with the few audit-
// specific fields (bucket, object key) useful for after-the-fact review.
type Event struct {
	RequestID    string `json:"request_id"`
	ClientIP     string `json:"client_ip"`
	Method       string `json:"method"`
	Path         string `json:"path"`
	Bucket       string `json:"bucket,omitempty"`
	ObjectKey    string `json:"object_key,omitempty"`
	Status       int    `json:"status"`
	DurationMs   float64 `json:"duration_ms"`
	Subject      string `json:"subject,omitempty"`
	S3ErrorCode  string `json:"s3_error_code,omitempty"`
	S3ErrorMsg   string `json:"s3_error_message,omitempty"`
	TimestampUnix int64 `json:"timestamp_unix"`
}
