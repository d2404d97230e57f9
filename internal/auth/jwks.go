package auth

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/s3sentry/s3sentry/internal/config"
)

// jwk is a single JSON Web Key as served by a JWKS endpoint.
type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
	Crv string `json:"crv"`
	X   string `json:"x"`
	Y   string `json:"y"`
}

type jwkSet struct {
	Keys []jwk `json:"keys"`
}

// JWKSCache fetches and caches a remote key set, single-flighting concurrent
// refreshes for the same URL (spec §4.3 / §5).
type JWKSCache struct {
	client *http.Client

	mu        sync.RWMutex
	fetchedAt map[string]time.Time
	keys      map[string]map[string]interface{} // url -> kid -> verification key
	group     singleflight.Group
}

// NewJWKSCache constructs an empty cache.
func NewJWKSCache() *JWKSCache {
	return &JWKSCache{
		client:    &http.Client{},
		fetchedAt: make(map[string]time.Time),
		keys:      make(map[string]map[string]interface{}),
	}
}

// Resolve returns the verification key for kid from the set at url,
// refreshing the cache if stale (age >= refresh interval) or missing.
func (c *JWKSCache) Resolve(cfg *config.JWKSConfig, kid string) (interface{}, error) {
	if kid == "" {
		return nil, ErrInvalidToken{Reason: "no kid in token header"}
	}

	c.mu.RLock()
	fetchedAt, have := c.fetchedAt[cfg.URL]
	stale := !have || time.Since(fetchedAt) >= cfg.RefreshInterval
	var key interface{}
	if !stale {
		key, have = c.keys[cfg.URL][kid]
	}
	c.mu.RUnlock()

	if !stale && have {
		return key, nil
	}

	if _, err, _ := c.group.Do(cfg.URL, func() (interface{}, error) {
		return nil, c.refresh(cfg)
	}); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	key, ok := c.keys[cfg.URL][kid]
	if !ok {
		return nil, ErrInvalidToken{Reason: fmt.Sprintf("no key for kid %q", kid)}
	}
	return key, nil
}

func (c *JWKSCache) refresh(cfg *config.JWKSConfig) error {
	ctxClient := &http.Client{Timeout: cfg.FetchTimeout}
	req, err := http.NewRequest(http.MethodGet, cfg.URL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := ctxClient.Do(req)
	if err != nil {
		return fmt.Errorf("jwks fetch %s: %w", cfg.URL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("jwks fetch %s: status %d", cfg.URL, resp.StatusCode)
	}

	var set jwkSet
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return fmt.Errorf("jwks decode %s: %w", cfg.URL, err)
	}

	byKid := make(map[string]interface{}, len(set.Keys))
	for _, k := range set.Keys {
		vk, err := keyFromJWK(k)
		if err != nil {
			continue // skip malformed keys, don't fail the whole refresh
		}
		byKid[k.Kid] = vk
	}

	c.mu.Lock()
	c.keys[cfg.URL] = byKid
	c.fetchedAt[cfg.URL] = time.Now()
	c.mu.Unlock()
	return nil
}

func keyFromJWK(k jwk) (interface{}, error) {
	switch k.Kty {
	case "RSA":
		nBytes, err := base64.RawURLEncoding.DecodeString(k.N)
		if err != nil {
			return nil, err
		}
		eBytes, err := base64.RawURLEncoding.DecodeString(k.E)
		if err != nil {
			return nil, err
		}
		n := new(big.Int).SetBytes(nBytes)
		e := new(big.Int).SetBytes(eBytes)
		return &rsa.PublicKey{N: n, E: int(e.Int64())}, nil
	case "EC":
		xBytes, err := base64.RawURLEncoding.DecodeString(k.X)
		if err != nil {
			return nil, err
		}
		yBytes, err := base64.RawURLEncoding.DecodeString(k.Y)
		if err != nil {
			return nil, err
		}
		curve, err := curveFromName(k.Crv)
		if err != nil {
			return nil, err
		}
		x := new(big.Int).SetBytes(xBytes)
		y := new(big.Int).SetBytes(yBytes)
		return &ecdsa.PublicKey{Curve: curve, X: x, Y: y}, nil
	default:
		return nil, fmt.Errorf("unsupported kty %q", k.Kty)
	}
}

func curveFromName(name string) (elliptic.Curve, error) {
	switch name {
	case "P-256":
		return elliptic.P256(), nil
	case "P-384":
		return elliptic.P384(), nil
	case "P-521":
		return elliptic.P521(), nil
	default:
		return nil, fmt.Errorf("unsupported curve %q", name)
	}
}
