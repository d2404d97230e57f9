package admin

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v4"
	"go.uber.org/zap"

	"github.com/s3sentry/s3sentry/internal/auth"
	"github.com/s3sentry/s3sentry/internal/config"
	"github.com/s3sentry/s3sentry/internal/prewarm"
)

const testSecret = "admin-test-secret"

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func testOwner(t *testing.T, adminRules []config.ClaimRule) *config.Owner {
	t.Helper()
	owner := config.NewOwner()
	owner.Install(&config.Snapshot{
		Generation: 1,
		JWT: &config.JWTConfig{
			Enabled:    true,
			Sources:    []config.TokenSource{{Kind: config.TokenSourceBearer}},
			Secret:     testSecret,
			AdminRules: adminRules,
		},
		Buckets: []*config.BucketEntry{
			{Name: "photos", PathPrefix: "/photos", Replicas: []*config.ReplicaConfig{{Name: "primary"}}},
		},
	})
	return owner
}

func newTestHandler(t *testing.T, adminRules []config.ClaimRule) *Handler {
	t.Helper()
	owner := testOwner(t, adminRules)
	mgr := prewarm.NewManager(owner, nil, zap.NewNop(), func() string { return "task-1" })
	return &Handler{
		ConfigOwner: owner,
		Verifier:    auth.NewVerifier(auth.NewJWKSCache()),
		Prewarm:     mgr,
		ReloadFn:    func() error { return nil },
		Log:         zap.NewNop(),
	}
}

func TestServeHTTPRejectsRequestWithoutToken(t *testing.T) {
	h := newTestHandler(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/admin/reload", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestServeHTTPRejectsNonAdminClaims(t *testing.T) {
	h := newTestHandler(t, []config.ClaimRule{{Claim: "role", Operator: config.OpEquals, Value: "admin"}})
	token := signToken(t, jwt.MapClaims{"role": "user"})

	req := httptest.NewRequest(http.MethodPost, "/admin/reload", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestServeHTTPReloadSucceedsForAdminClaims(t *testing.T) {
	h := newTestHandler(t, []config.ClaimRule{{Claim: "role", Operator: config.OpEquals, Value: "admin"}})
	token := signToken(t, jwt.MapClaims{"role": "admin"})

	req := httptest.NewRequest(http.MethodPost, "/admin/reload", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandlePrewarmListAndSubmit(t *testing.T) {
	h := newTestHandler(t, nil)
	token := signToken(t, jwt.MapClaims{"sub": "op"})
	authHeader := "Bearer " + token

	listReq := httptest.NewRequest(http.MethodGet, "/admin/cache/prewarm", nil)
	listReq.Header.Set("Authorization", authHeader)
	listRec := httptest.NewRecorder()
	h.ServeHTTP(listRec, listReq)
	if listRec.Code != http.StatusOK {
		t.Fatalf("expected 200 for empty list, got %d", listRec.Code)
	}

	submitReq := httptest.NewRequest(http.MethodPost, "/admin/cache/prewarm/unknown-bucket/some/prefix", nil)
	submitReq.Header.Set("Authorization", authHeader)
	submitRec := httptest.NewRecorder()
	h.ServeHTTP(submitRec, submitReq)
	if submitRec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown bucket, got %d: %s", submitRec.Code, submitRec.Body.String())
	}
}

func TestHandlePrewarmCancelUnknownTaskConflicts(t *testing.T) {
	h := newTestHandler(t, nil)
	token := signToken(t, jwt.MapClaims{"sub": "op"})

	req := httptest.NewRequest(http.MethodDelete, "/admin/cache/prewarm/does-not-exist", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}
