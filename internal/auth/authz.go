package auth

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/s3sentry/s3sentry/internal/config"
)

// AuthorizationHook consults an external policy decision point (OPA-style)
// after JWT claim rules pass (spec §4.15). It caches decisions per
// (sub, bucket, key, method) for the configured TTL.
type AuthorizationHook struct {
	client *http.Client

	mu    sync.Mutex
	cache map[string]cachedDecision
}

type cachedDecision struct {
	allowed   bool
	expiresAt time.Time
}

type opaInput struct {
	Claims map[string]interface{} `json:"claims"`
	Bucket string                 `json:"bucket"`
	Key    string                 `json:"key"`
	Method string                 `json:"method"`
}

type opaRequest struct {
	Input opaInput `json:"input"`
}

type opaResponse struct {
	Result struct {
		Allow bool `json:"allow"`
	} `json:"result"`
}

// NewAuthorizationHook constructs a hook with an empty decision cache.
func NewAuthorizationHook() *AuthorizationHook {
	return &AuthorizationHook{
		client: &http.Client{},
		cache:  make(map[string]cachedDecision),
	}
}

// Check returns nil if the request is authorized, or an error describing
// denial/failure. On transport error or timeout, cfg.FailMode decides
// whether the request proceeds ("open") or is rejected ("closed").
func (h *AuthorizationHook) Check(cfg *config.AuthorizationConfig, claims *Claims, bucket, key, method string) error {
	cacheKey := fmt.Sprintf("%s|%s|%s|%s", claims.Subject, bucket, key, method)

	h.mu.Lock()
	if d, ok := h.cache[cacheKey]; ok && time.Now().Before(d.expiresAt) {
		h.mu.Unlock()
		if !d.allowed {
			return ErrAdminAccessDenied{}
		}
		return nil
	}
	h.mu.Unlock()

	allowed, err := h.call(cfg, claims, bucket, key, method)
	if err != nil {
		if cfg.FailMode == "open" {
			return nil
		}
		return fmt.Errorf("authorization hook unavailable: %w", err)
	}

	h.mu.Lock()
	h.cache[cacheKey] = cachedDecision{allowed: allowed, expiresAt: time.Now().Add(cfg.CacheTTL)}
	h.mu.Unlock()

	if !allowed {
		return ErrAdminAccessDenied{}
	}
	return nil
}

func (h *AuthorizationHook) call(cfg *config.AuthorizationConfig, claims *Claims, bucket, key, method string) (bool, error) {
	body, err := json.Marshal(opaRequest{Input: opaInput{
		Claims: claims.Raw, Bucket: bucket, Key: key, Method: method,
	}})
	if err != nil {
		return false, err
	}

	client := h.client
	if cfg.TimeoutMS > 0 {
		client = &http.Client{Timeout: time.Duration(cfg.TimeoutMS) * time.Millisecond}
	}

	req, err := http.NewRequest(http.MethodPost, cfg.OPAURL+cfg.OPAPolicyPath, bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("opa responded %d", resp.StatusCode)
	}

	var out opaResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, err
	}
	return out.Result.Allow, nil
}
