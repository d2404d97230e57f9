package auth

import (
	"crypto/ecdsa"
	"crypto/rsa"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/s3sentry/s3sentry/internal/config"
)

// Verifier validates bearer tokens against a bucket's JWT configuration,
// resolving keys in the precedence order of spec §4.3: JWKS, then a
// configured keys[] array, then the legacy single-key fields. A single
// Verifier is shared across every concurrently-handled request, so its key
// caches need the same guarding as JWKSCache and AuthorizationHook.
type Verifier struct {
	jwks *JWKSCache

	mu          sync.RWMutex
	rsaKeyCache map[string]*rsa.PublicKey
	ecKeyCache  map[string]*ecdsa.PublicKey
}

// NewVerifier constructs a Verifier sharing a single JWKS cache across buckets.
func NewVerifier(jwks *JWKSCache) *Verifier {
	return &Verifier{
		jwks:        jwks,
		rsaKeyCache: make(map[string]*rsa.PublicKey),
		ecKeyCache:  make(map[string]*ecdsa.PublicKey),
	}
}

// Verify parses and validates tokenStr against jwtCfg and jwksCfg (jwksCfg
// may be nil), returning decoded Claims on success.
func (v *Verifier) Verify(tokenStr string, jwtCfg *config.JWTConfig, jwksCfg *config.JWKSConfig) (*Claims, error) {
	var resolvedClaims *Claims
	var resolveErr error

	keyFunc := func(tok *jwt.Token) (interface{}, error) {
		kid, _ := tok.Header["kid"].(string)
		alg := tok.Method.Alg()

		switch {
		case jwksCfg != nil && jwksCfg.URL != "":
			return v.jwks.Resolve(jwksCfg, kid)
		case len(jwtCfg.Keys) > 0:
			return v.resolveFromKeyList(jwtCfg.Keys, kid, alg)
		default:
			return v.resolveLegacy(jwtCfg, alg)
		}
	}

	token, err := jwt.Parse(tokenStr, keyFunc, jwt.WithValidMethods(supportedAlgs))
	if err != nil {
		return nil, ErrInvalidToken{Reason: err.Error()}
	}
	if !token.Valid {
		return nil, ErrInvalidToken{Reason: "signature invalid"}
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken{Reason: "unexpected claims type"}
	}
	resolvedClaims, resolveErr = decodeClaims(mapClaims)
	if resolveErr != nil {
		return nil, resolveErr
	}
	return resolvedClaims, nil
}

var supportedAlgs = []string{
	"HS256", "HS384", "HS512",
	"RS256", "RS384", "RS512",
	"ES256", "ES384",
}

// resolveFromKeyList implements spec §4.3.2: if the header has a kid, select
// the matching entry and fail without trying others if it does not
// validate (prevents downgrade). Without a kid, it returns the first
// configured key that can be materialized for the token's algorithm; if the
// signature does not validate against that key, the remaining keys are not
// tried.
func (v *Verifier) resolveFromKeyList(keys []config.JWTKey, kid, alg string) (interface{}, error) {
	if kid != "" {
		for _, k := range keys {
			if k.KID == kid {
				return v.materializeKey(k, alg)
			}
		}
		return nil, ErrInvalidToken{Reason: fmt.Sprintf("no configured key for kid %q", kid)}
	}
	for _, k := range keys {
		if key, err := v.materializeKey(k, alg); err == nil {
			return key, nil
		}
	}
	return nil, ErrInvalidToken{Reason: "no configured key validates"}
}

func (v *Verifier) resolveLegacy(cfg *config.JWTConfig, alg string) (interface{}, error) {
	switch {
	case len(alg) >= 2 && alg[:2] == "HS":
		if cfg.Secret == "" {
			return nil, ErrInvalidToken{Reason: "no secret configured for HS*"}
		}
		return []byte(cfg.Secret), nil
	case len(alg) >= 2 && alg[:2] == "RS":
		return v.loadRSAPublicKey(cfg.RSAPubPath)
	case len(alg) >= 2 && alg[:2] == "ES":
		return v.loadECPublicKey(cfg.ECDSAPubPath)
	default:
		return nil, ErrInvalidToken{Reason: fmt.Sprintf("unsupported algorithm %q", alg)}
	}
}

func (v *Verifier) materializeKey(k config.JWTKey, alg string) (interface{}, error) {
	switch {
	case len(alg) >= 2 && alg[:2] == "HS":
		if k.Secret == "" {
			return nil, fmt.Errorf("key %q: no secret", k.KID)
		}
		return []byte(k.Secret), nil
	case len(alg) >= 2 && alg[:2] == "RS":
		return v.loadRSAPublicKey(k.PublicKeyPath)
	case len(alg) >= 2 && alg[:2] == "ES":
		return v.loadECPublicKey(k.PublicKeyPath)
	default:
		return nil, fmt.Errorf("key %q: unsupported alg %q", k.KID, alg)
	}
}

func (v *Verifier) loadRSAPublicKey(path string) (*rsa.PublicKey, error) {
	v.mu.RLock()
	key, ok := v.rsaKeyCache[path]
	v.mu.RUnlock()
	if ok {
		return key, nil
	}

	pemBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	key, err = jwt.ParseRSAPublicKeyFromPEM(pemBytes)
	if err != nil {
		return nil, err
	}

	v.mu.Lock()
	v.rsaKeyCache[path] = key
	v.mu.Unlock()
	return key, nil
}

func (v *Verifier) loadECPublicKey(path string) (*ecdsa.PublicKey, error) {
	v.mu.RLock()
	key, ok := v.ecKeyCache[path]
	v.mu.RUnlock()
	if ok {
		return key, nil
	}

	pemBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	key, err = jwt.ParseECPublicKeyFromPEM(pemBytes)
	if err != nil {
		return nil, err
	}

	v.mu.Lock()
	v.ecKeyCache[path] = key
	v.mu.Unlock()
	return key, nil
}

func decodeClaims(mc jwt.MapClaims) (*Claims, error) {
	c := &Claims{Raw: map[string]interface{}(mc)}
	if sub, ok := mc["sub"].(string); ok {
		c.Subject = sub
	}
	if iss, ok := mc["iss"].(string); ok {
		c.Issuer = iss
	}
	if t, ok := numericTime(mc["exp"]); ok {
		c.Expiry = &t
		if time.Now().After(t) {
			return nil, ErrInvalidToken{Reason: "token expired"}
		}
	}
	if t, ok := numericTime(mc["nbf"]); ok {
		c.NotBefore = &t
		if time.Now().Before(t) {
			return nil, ErrInvalidToken{Reason: "token not yet valid"}
		}
	}
	if t, ok := numericTime(mc["iat"]); ok {
		c.IssuedAt = &t
	}
	return c, nil
}

func numericTime(v interface{}) (time.Time, bool) {
	switch n := v.(type) {
	case float64:
		return time.Unix(int64(n), 0), true
	case int64:
		return time.Unix(n, 0), true
	case jwt.NumericDate:
		return n.Time, true
	default:
		return time.Time{}, false
	}
}
