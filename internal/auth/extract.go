package auth

import (
	"net/http"
	"strings"

	"github.com/s3sentry/s3sentry/internal/config"
)

// ExtractToken tries each configured TokenSource in order and returns the
// first non-empty trimmed token (spec §4.3).
func ExtractToken(sources []config.TokenSource, headers http.Header, query map[string][]string) (string, bool) {
	for _, src := range sources {
		var tok string
		switch src.Kind {
		case config.TokenSourceBearer:
			tok = extractBearer(headers)
		case config.TokenSourceHeader:
			tok = extractHeader(headers, src.Name, src.Prefix)
		case config.TokenSourceQuery:
			tok = extractQuery(query, src.Name)
		}
		tok = strings.TrimSpace(tok)
		if tok != "" {
			return tok, true
		}
	}
	return "", false
}

func extractBearer(headers http.Header) string {
	v := headers.Get("Authorization")
	const prefix = "Bearer "
	if len(v) >= len(prefix) && strings.EqualFold(v[:len(prefix)], prefix) {
		return v[len(prefix):]
	}
	return ""
}

func extractHeader(headers http.Header, name, prefix string) string {
	v := headers.Get(name)
	if prefix != "" && strings.HasPrefix(v, prefix) {
		return v[len(prefix):]
	}
	return v
}

func extractQuery(query map[string][]string, name string) string {
	vals := query[name]
	if len(vals) == 0 {
		return ""
	}
	return vals[0]
}
