package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/gatehouseio/gatehouse/internal/model"
	"github.com/gatehouseio/gatehouse/internal/server/middleware"
	"github.com/gatehouseio/gatehouse/internal/service"
	"github.com/gatehouseio/gatehouse/internal/store"
)

// maxTokenNameLength caps user-chosen token names.
const maxTokenNameLength = 100

// TokenHandler manages personal API tokens. Every route requires an
// authenticated principal, and the mutating routes additionally require a
// browser session: a leaked token must not be able to mint or destroy tokens.
type TokenHandler struct {
	tokens     *service.TokenService
	logger     *slog.Logger
	production bool
}

func NewTokenHandler(tokens *service.TokenService, logger *slog.Logger, production bool) *TokenHandler {
	return &TokenHandler{tokens: tokens, logger: logger, production: production}
}

// requireSession rejects bearer-authenticated callers. Returns false after
// writing the response when the check fails.
func requireSession(w http.ResponseWriter, p *middleware.Principal) bool {
	if p.Method != middleware.MethodSession {
		writeError(w, http.StatusForbidden, "API tokens can only be managed from a browser session")
		return false
	}
	return true
}

func tokenPayload(t *model.APIToken) map[string]interface{} {
	return map[string]interface{}{
		"id":          t.ID,
		"name":        t.Name,
		"tokenPrefix": t.TokenPrefix,
		"lastUsedAt":  msTimePtr(t.LastUsedAt),
		"expiresAt":   msTimePtr(t.ExpiresAt),
		"createdAt":   t.CreatedAt.UnixMilli(),
	}
}

// List handles GET /api/api-tokens. Hashes are never part of the payload.
func (h *TokenHandler) List(w http.ResponseWriter, r *http.Request) {
	p := middleware.GetPrincipal(r.Context())

	list, err := h.tokens.List(r.Context(), p.UserID)
	if err != nil {
		writeServerError(w, h.logger, h.production, "Failed to list API tokens", err)
		return
	}
	out := make([]map[string]interface{}, 0, len(list))
	for i := range list {
		out = append(out, tokenPayload(&list[i]))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tokens": out})
}

// Create handles POST /api/api-tokens. The plaintext token appears in this
// response and nowhere else.
func (h *TokenHandler) Create(w http.ResponseWriter, r *http.Request) {
	p := middleware.GetPrincipal(r.Context())
	if !requireSession(w, p) {
		return
	}

	var req struct {
		Name      string `json:"name"`
		ExpiresAt *int64 `json:"expiresAt"` // unix ms, optional
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || len(req.Name) > maxTokenNameLength {
		writeError(w, http.StatusBadRequest, "Token name must be between 1 and 100 characters")
		return
	}

	var expiresAt *time.Time
	if req.ExpiresAt != nil {
		if *req.ExpiresAt <= 0 {
			writeError(w, http.StatusBadRequest, "Expiry must be a positive timestamp")
			return
		}
		t := time.UnixMilli(*req.ExpiresAt).UTC()
		expiresAt = &t
	}

	tok, plaintext, err := h.tokens.Create(r.Context(), p.UserID, req.Name, expiresAt)
	if err != nil {
		writeServerError(w, h.logger, h.production, "Failed to create API token", err)
		return
	}

	payload := tokenPayload(tok)
	payload["rawToken"] = plaintext
	writeJSON(w, http.StatusCreated, map[string]interface{}{"token": payload})
}

// Delete handles DELETE /api/api-tokens/{id}. A token owned by a different
// user is indistinguishable from a missing one.
func (h *TokenHandler) Delete(w http.ResponseWriter, r *http.Request) {
	p := middleware.GetPrincipal(r.Context())
	if !requireSession(w, p) {
		return
	}

	id := chi.URLParam(r, "id")
	err := h.tokens.Delete(r.Context(), p.UserID, id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "API token not found")
		return
	case err != nil:
		writeServerError(w, h.logger, h.production, "Failed to delete API token", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}
