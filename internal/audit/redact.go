package audit

import (
	"net/url"
	"strings"
)

// redactedSignedParams are query parameters carrying signing material that
// must never reach the audit trail verbatim (spec §4.14).
var redactedSignedParams = []string{
	"x-amz-signature", "x-amz-credential", "x-amz-security-token", "signature",
}

// RedactPath strips the Authorization-bearing query parameters from a raw
// request path+query, leaving everything else intact for audit review.
func RedactPath(rawPath string) string {
	u, err := url.Parse(rawPath)
	if err != nil {
		return rawPath
	}
	q := u.Query()
	changed := false
	for key := range q {
		lower := strings.ToLower(key)
		for _, redact := range redactedSignedParams {
			if lower == redact {
				q.Set(key, "REDACTED")
				changed = true
			}
		}
	}
	if changed {
		u.RawQuery = q.Encode()
	}
	return u.String()
}
