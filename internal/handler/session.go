package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mileusna/useragent"

	"github.com/gatehouseio/gatehouse/internal/model"
	"github.com/gatehouseio/gatehouse/internal/server/middleware"
	"github.com/gatehouseio/gatehouse/internal/store"
)

// SessionHandler lists and revokes a user's active browser sessions.
type SessionHandler struct {
	store      *store.Store
	logger     *slog.Logger
	production bool
}

func NewSessionHandler(st *store.Store, logger *slog.Logger, production bool) *SessionHandler {
	return &SessionHandler{store: st, logger: logger, production: production}
}

// deviceLabel reduces a raw User-Agent header to a short human-readable
// "Chrome on macOS" style string for the sessions page.
func deviceLabel(rawUA *string) (browser, os string) {
	if rawUA == nil || *rawUA == "" {
		return "Unknown browser", "Unknown OS"
	}
	ua := useragent.Parse(*rawUA)
	browser, os = ua.Name, ua.OS
	if browser == "" {
		browser = "Unknown browser"
	}
	if os == "" {
		os = "Unknown OS"
	}
	return browser, os
}

func sessionPayload(s *model.Session, current bool) map[string]interface{} {
	browser, os := deviceLabel(s.UserAgent)
	var ip interface{}
	if s.IPAddress != nil {
		ip = *s.IPAddress
	}
	return map[string]interface{}{
		"id":        s.ID,
		"browser":   browser,
		"os":        os,
		"ipAddress": ip,
		"isCurrent": current,
		"createdAt": s.CreatedAt.UnixMilli(),
		"updatedAt": s.UpdatedAt.UnixMilli(),
		"expiresAt": s.ExpiresAt.UnixMilli(),
	}
}

// List handles GET /api/settings/sessions. Expired rows that have not been swept yet
// are filtered out. isCurrent is only ever true for cookie-authenticated
// requests; a bearer caller has no current session.
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	p := middleware.GetPrincipal(r.Context())

	sessions, err := h.store.ListSessionsByUser(r.Context(), p.UserID)
	if err != nil {
		writeServerError(w, h.logger, h.production, "Failed to list sessions", err)
		return
	}

	now := time.Now()
	out := make([]map[string]interface{}, 0, len(sessions))
	for i := range sessions {
		s := &sessions[i]
		if s.ExpiresAt.Before(now) {
			continue
		}
		out = append(out, sessionPayload(s, p.SessionToken != "" && s.Token == p.SessionToken))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": out})
}

// DeleteAll handles DELETE /api/settings/sessions: signs the user out
// everywhere except the session making the request. A bearer caller has no
// current session and revokes everything.
func (h *SessionHandler) DeleteAll(w http.ResponseWriter, r *http.Request) {
	p := middleware.GetPrincipal(r.Context())

	revoked, err := h.store.DeleteOtherSessionsForUser(r.Context(), p.UserID, p.SessionToken)
	if err != nil {
		writeServerError(w, h.logger, h.production, "Failed to revoke sessions", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"revoked": revoked,
	})
}

// Delete handles DELETE /api/settings/sessions/{id}. Revoking the session
// that is making the request is refused; sign-out exists for that.
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	p := middleware.GetPrincipal(r.Context())
	id := chi.URLParam(r, "id")

	sessions, err := h.store.ListSessionsByUser(r.Context(), p.UserID)
	if err != nil {
		writeServerError(w, h.logger, h.production, "Failed to revoke session", err)
		return
	}
	var target *model.Session
	for i := range sessions {
		if sessions[i].ID == id {
			target = &sessions[i]
			break
		}
	}
	if target == nil {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}
	if p.SessionToken != "" && target.Token == p.SessionToken {
		writeError(w, http.StatusBadRequest, "Cannot revoke the current session; sign out instead")
		return
	}

	if err := h.store.DeleteSessionForUser(r.Context(), p.UserID, id); err != nil {
		writeServerError(w, h.logger, h.production, "Failed to revoke session", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}
