// Package auth implements JWT token extraction, key resolution (static,
// multi-key, and JWKS), signature verification, and claim-rule evaluation
// (spec §4.3), plus the optional external authorization hook (spec §4.15).
package auth

import (
	"fmt"
	"time"

	"github.com/s3sentry/s3sentry/internal/config"
)

// Claims is the decoded JWT payload for the lifetime of one request.
type Claims struct {
	Subject string
	Expiry  *time.Time
	IssuedAt *time.Time
	NotBefore *time.Time
	Issuer  string
	Raw     map[string]interface{}
}

// Error kinds per spec §4.3 / §7.
type (
	ErrMissingToken            struct{}
	ErrInvalidToken            struct{ Reason string }
	ErrClaimsVerificationFailed struct{ Reason string }
	ErrAdminAccessDenied       struct{}
)

func (ErrMissingToken) Error() string { return "auth: missing token" }
func (e ErrInvalidToken) Error() string {
	return fmt.Sprintf("auth: invalid token: %s", e.Reason)
}
func (e ErrClaimsVerificationFailed) Error() string {
	return fmt.Sprintf("auth: claims verification failed: %s", e.Reason)
}
func (ErrAdminAccessDenied) Error() string { return "auth: admin access denied" }

// EvaluateRules checks that every rule holds conjunctively against claims.
func EvaluateRules(claims *Claims, rules []config.ClaimRule) error {
	for _, rule := range rules {
		val, ok := claims.Raw[rule.Claim]
		if !ok {
			return ErrClaimsVerificationFailed{Reason: fmt.Sprintf("missing claim %q", rule.Claim)}
		}
		if !evaluateOne(val, rule) {
			return ErrClaimsVerificationFailed{Reason: fmt.Sprintf("claim %q failed operator", rule.Claim)}
		}
	}
	return nil
}

func evaluateOne(val interface{}, rule config.ClaimRule) bool {
	switch rule.Operator {
	case config.OpEquals:
		return fmt.Sprintf("%v", val) == fmt.Sprintf("%v", rule.Value)
	case config.OpIn:
		arr, ok := rule.Value.([]interface{})
		if !ok {
			return false
		}
		for _, item := range arr {
			if fmt.Sprintf("%v", item) == fmt.Sprintf("%v", val) {
				return true
			}
		}
		return false
	case config.OpContains:
		s, ok := val.(string)
		if !ok {
			return false
		}
		sub, ok := rule.Value.(string)
		if !ok {
			return false
		}
		return contains(s, sub)
	case config.OpGT, config.OpLT, config.OpGTE, config.OpLTE:
		a, ok1 := asFloat(val)
		b, ok2 := asFloat(rule.Value)
		if !ok1 || !ok2 {
			return false
		}
		switch rule.Operator {
		case config.OpGT:
			return a > b
		case config.OpLT:
			return a < b
		case config.OpGTE:
			return a >= b
		default:
			return a <= b
		}
	default:
		return false
	}
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func contains(s, substr string) bool {
	return len(substr) == 0 || (len(s) >= len(substr) && indexOf(s, substr) >= 0)
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}

// VerifyAdminClaims reports whether claims satisfy the bucket's admin rule
// set. An empty admin rule set means "no additional admin restriction
// beyond authentication."
func VerifyAdminClaims(claims *Claims, adminRules []config.ClaimRule) bool {
	if len(adminRules) == 0 {
		return true
	}
	return EvaluateRules(claims, adminRules) == nil
}
