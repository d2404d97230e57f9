// Package router implements the longest-prefix match of a request path to a
// configured bucket (spec §4.2).
package router

import (
	"strings"

	"github.com/s3sentry/s3sentry/internal/config"
)

// Normalize collapses runs of "/" into a single "/", preserving a leading
// "/". It does not decode %xx sequences: routing is byte-oriented on the
// raw path. Normalize is idempotent.
func Normalize(path string) string {
	if path == "" {
		return "/"
	}
	var b strings.Builder
	b.Grow(len(path))
	prevSlash := false
	for i := 0; i < len(path); i++ {
		c := path[i]
		if c == '/' {
			if prevSlash {
				continue
			}
			prevSlash = true
		} else {
			prevSlash = false
		}
		b.WriteByte(c)
	}
	out := b.String()
	if !strings.HasPrefix(out, "/") {
		out = "/" + out
	}
	return out
}

// Route selects the bucket whose path_prefix is the longest prefix match of
// the normalized path. Ties are impossible because prefixes are validated
// unique within a snapshot.
func Route(snap *config.Snapshot, path string) *config.BucketEntry {
	normalized := Normalize(path)
	var best *config.BucketEntry
	for _, b := range snap.Buckets {
		if strings.HasPrefix(normalized, b.PathPrefix) {
			if best == nil || len(b.PathPrefix) > len(best.PathPrefix) {
				best = b
			}
		}
	}
	return best
}

// ExtractKey strips the bucket's path prefix and any leading "/" from the
// normalized path, yielding the S3 object key.
func ExtractKey(bucket *config.BucketEntry, path string) string {
	normalized := Normalize(path)
	rest := strings.TrimPrefix(normalized, bucket.PathPrefix)
	return strings.TrimPrefix(rest, "/")
}
