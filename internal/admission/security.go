package admission

import (
	"net/http"
	"strings"
)

// SecurityLimits holds the size/length ceilings enforced by step 3 of the
// admission pipeline (spec §4.4).
type SecurityLimits struct {
	MaxURILength int
	MaxHeaderSize int
	MaxBodySize   int64
}

// pathTraversalMarkers must be checked against the raw, unnormalized URI;
// normalizing first would collapse "/../" sequences and mask the attack.
var pathTraversalMarkers = []string{"..", "%2e%2e", "%2E%2E", "\x00"}

// sqlInjectionMarkers is a deliberately simple heuristic list, per spec
// §4.4 ("simple SQL-injection heuristics"), not a full WAF ruleset.
var sqlInjectionMarkers = []string{
	"' or '", "' or 1=1", "union select", "; drop table", "--", "/*",
}

// ValidateRequest runs the security checks in spec order, returning the
// first violation found.
func ValidateRequest(limits SecurityLimits, rawURI string, header http.Header, contentLength int64) Decision {
	if len(rawURI) > limits.MaxURILength {
		return reject(http.StatusRequestURITooLong, 0, "uri exceeds max_uri_length")
	}

	if headerSize(header) > limits.MaxHeaderSize {
		return reject(http.StatusRequestHeaderFieldsTooLarge, 0, "headers exceed max_header_size")
	}

	if contentLength > 0 && contentLength > limits.MaxBodySize {
		return reject(http.StatusRequestEntityTooLarge, 0, "content-length exceeds max_body_size")
	}

	if containsAnyFold(rawURI, pathTraversalMarkers) {
		return reject(http.StatusBadRequest, 0, "path traversal pattern in uri")
	}

	if containsAnyFold(rawURI, sqlInjectionMarkers) {
		return reject(http.StatusBadRequest, 0, "sql injection pattern in uri")
	}

	return admit()
}

func headerSize(h http.Header) int {
	total := 0
	for name, values := range h {
		for _, v := range values {
			total += len(name) + len(v) + 4 // ": " + CRLF
		}
	}
	return total
}

func containsAnyFold(haystack string, needles []string) bool {
	lower := strings.ToLower(haystack)
	for _, n := range needles {
		if strings.Contains(lower, strings.ToLower(n)) {
			return true
		}
	}
	return false
}
