// Package admin implements the admin HTTP surface (spec §4.12):
// POST /admin/reload and the /admin/cache/prewarm/* family. Every admin
// endpoint requires a valid JWT plus admin claims; ordinary bucket auth
// rules do not apply here.
package admin

import (
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/s3sentry/s3sentry/internal/auth"
	"github.com/s3sentry/s3sentry/internal/config"
	"github.com/s3sentry/s3sentry/internal/prewarm"
)

// Handler serves the /admin/ namespace. ReloadFn performs the actual
// config reload (reads the file, validates, installs, rebuilds the
// replica registry) and is supplied by cmd/s3sentry's bootstrap code,
// since only it knows the config file path and how to rebuild a Registry.
type Handler struct {
	ConfigOwner *config.Owner
	Verifier    *auth.Verifier
	Prewarm     *prewarm.Manager
	ReloadFn    func() error
	Log         *zap.Logger
}

// ServeHTTP dispatches to the admin sub-routes. Callers (internal/pipeline)
// are expected to have already stripped nothing from the path; this
// handler matches on the full "/admin/..." prefix.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	snap := h.ConfigOwner.Current()
	if _, status := h.authenticateAdmin(r, snap); status != 0 {
		http.Error(w, http.StatusText(status), status)
		return
	}

	switch {
	case r.URL.Path == "/admin/reload" && r.Method == http.MethodPost:
		h.handleReload(w, r)
	case strings.HasPrefix(r.URL.Path, "/admin/cache/prewarm"):
		h.handlePrewarm(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (h *Handler) authenticateAdmin(r *http.Request, snap *config.Snapshot) (*auth.Claims, int) {
	if snap.JWT == nil || !snap.JWT.Enabled {
		return nil, http.StatusForbidden
	}
	token, found := auth.ExtractToken(snap.JWT.Sources, r.Header, r.URL.Query())
	if !found {
		return nil, http.StatusUnauthorized
	}
	claims, err := h.Verifier.Verify(token, snap.JWT, snap.JWKS)
	if err != nil {
		return nil, http.StatusForbidden
	}
	if !auth.VerifyAdminClaims(claims, snap.JWT.AdminRules) {
		return nil, http.StatusForbidden
	}
	return claims, 0
}

type reloadResponse struct {
	Generation uint64 `json:"generation"`
	Error      string `json:"error,omitempty"`
}

func (h *Handler) handleReload(w http.ResponseWriter, r *http.Request) {
	if err := h.ReloadFn(); err != nil {
		if h.Log != nil {
			h.Log.Error("config reload failed", zap.Error(err))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(reloadResponse{Error: err.Error()})
		return
	}
	snap := h.ConfigOwner.Current()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(reloadResponse{Generation: snap.Generation})
}

const prewarmPrefix = "/admin/cache/prewarm"

// handlePrewarm implements spec §4.12's prewarm sub-routes:
//
//	GET    /admin/cache/prewarm               list every task
//	POST   /admin/cache/prewarm/{bucket}/{path...}  create a task
//	GET    /admin/cache/prewarm/{id}           task status
//	DELETE /admin/cache/prewarm/{id}           cancel a running task
//
// id and bucket/path are disambiguated by method: creation is always a
// POST carrying a bucket segment, everything else addresses an existing
// task by its opaque id.
func (h *Handler) handlePrewarm(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(strings.TrimPrefix(r.URL.Path, prewarmPrefix), "/")

	switch {
	case r.Method == http.MethodGet && rest == "":
		h.handleListPrewarmTasks(w, r)
	case r.Method == http.MethodPost && rest != "":
		h.handleCreatePrewarmTask(w, r, rest)
	case r.Method == http.MethodGet && rest != "":
		h.handleGetPrewarmTask(w, r, rest)
	case r.Method == http.MethodDelete && rest != "":
		h.handleCancelPrewarmTask(w, r, rest)
	default:
		http.NotFound(w, r)
	}
}

func (h *Handler) handleCreatePrewarmTask(w http.ResponseWriter, r *http.Request, rest string) {
	bucket, path, _ := strings.Cut(rest, "/")
	task, err := h.Prewarm.Submit(bucket, path)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(task)
}

func (h *Handler) handleGetPrewarmTask(w http.ResponseWriter, r *http.Request, id string) {
	task, found := h.Prewarm.Get(id)
	if !found {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(task)
}

func (h *Handler) handleCancelPrewarmTask(w http.ResponseWriter, r *http.Request, id string) {
	if !h.Prewarm.Cancel(id) {
		http.Error(w, "task not found or already terminal", http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListPrewarmTasks(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.Prewarm.List())
}
