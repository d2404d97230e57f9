// Package compress negotiates a response compression algorithm from the
// client's Accept-Encoding header (spec §4.16).
package compress

import (
	"sort"
	"strconv"
	"strings"

	"github.com/s3sentry/s3sentry/internal/config"
)

// Algorithm is a response content-coding s3sentry can apply.
type Algorithm string

const (
	Gzip    Algorithm = "gzip"
	Deflate Algorithm = "deflate"
	Brotli  Algorithm = "br"
)

// preference is one comma-separated term of Accept-Encoding, with its
// quality value.
type preference struct {
	encoding string
	quality  float64
}

func parsePreference(s string) (preference, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return preference{}, false
	}
	parts := strings.Split(s, ";")
	encoding := strings.ToLower(strings.TrimSpace(parts[0]))
	quality := 1.0
	if len(parts) > 1 {
		qPart := strings.TrimSpace(parts[1])
		if q, ok := strings.CutPrefix(qPart, "q="); ok {
			if v, err := strconv.ParseFloat(q, 64); err == nil {
				quality = v
			}
		}
	}
	return preference{encoding: encoding, quality: quality}, true
}

// Negotiate picks the highest-quality enabled algorithm from an
// Accept-Encoding header value. Returns "" if the client sent no header,
// compression is disabled, or nothing acceptable overlaps with the
// server's enabled set.
func Negotiate(acceptEncoding string, cfg config.CompressionConfig) Algorithm {
	if !cfg.Enabled || acceptEncoding == "" {
		return ""
	}

	var prefs []preference
	for _, term := range strings.Split(acceptEncoding, ",") {
		if p, ok := parsePreference(term); ok {
			prefs = append(prefs, p)
		}
	}

	sort.SliceStable(prefs, func(i, j int) bool { return prefs[i].quality > prefs[j].quality })

	for _, p := range prefs {
		if p.quality == 0 {
			continue
		}
		if p.encoding == "*" {
			if algo := firstEnabled(cfg); algo != "" {
				return algo
			}
			continue
		}
		algo := Algorithm(p.encoding)
		if isEnabled(cfg, algo) {
			return algo
		}
	}
	return ""
}

func isEnabled(cfg config.CompressionConfig, algo Algorithm) bool {
	for _, a := range cfg.Accepted {
		if Algorithm(strings.ToLower(a)) == algo {
			return true
		}
	}
	return false
}

// firstEnabled returns the server's own first-preference algorithm,
// respecting cfg.Accepted's configured order, for the "*" wildcard case.
func firstEnabled(cfg config.CompressionConfig) Algorithm {
	for _, a := range cfg.Accepted {
		algo := Algorithm(strings.ToLower(a))
		if algo == Gzip || algo == Brotli || algo == Deflate {
			return algo
		}
	}
	return ""
}
