package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gatehouseio/gatehouse/internal/identity"
	"github.com/gatehouseio/gatehouse/internal/model"
	"github.com/gatehouseio/gatehouse/internal/server/middleware"
	"github.com/gatehouseio/gatehouse/internal/store"
)

// SettingsHandler covers the account settings surface: profile, preferences,
// password, email change, and account deletion.
type SettingsHandler struct {
	store      *store.Store
	ident      *identity.Service
	logger     *slog.Logger
	production bool
}

func NewSettingsHandler(st *store.Store, ident *identity.Service, logger *slog.Logger, production bool) *SettingsHandler {
	return &SettingsHandler{store: st, ident: ident, logger: logger, production: production}
}

// UpdateProfile handles PATCH /api/settings/profile.
func (h *SettingsHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	p := middleware.GetPrincipal(r.Context())

	var req struct {
		Name string `json:"name"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || len(req.Name) > 100 {
		writeError(w, http.StatusBadRequest, "Name must be between 1 and 100 characters")
		return
	}

	if err := h.store.UpdateUserName(r.Context(), p.UserID, req.Name); err != nil {
		writeServerError(w, h.logger, h.production, "Failed to update profile", err)
		return
	}
	user, err := h.store.GetUser(r.Context(), p.UserID)
	if err != nil {
		writeServerError(w, h.logger, h.production, "Failed to load profile", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Profile updated",
		"user":    userPayload(user),
	})
}

// GetPreferences handles GET /api/settings/preferences. Users who never
// saved preferences get the defaults.
func (h *SettingsHandler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	p := middleware.GetPrincipal(r.Context())

	user, err := h.store.GetUser(r.Context(), p.UserID)
	if err != nil {
		writeServerError(w, h.logger, h.production, "Failed to load preferences", err)
		return
	}

	prefs := model.DefaultPreferences()
	if user.Preferences != nil && *user.Preferences != "" {
		if err := json.Unmarshal([]byte(*user.Preferences), &prefs); err != nil {
			// A corrupt blob falls back to defaults rather than bricking
			// the settings page.
			h.logger.Warn("unreadable preferences blob", "user_id", p.UserID, "error", err)
			prefs = model.DefaultPreferences()
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"preferences": prefs})
}

// UpdatePreferences handles PATCH /api/settings/preferences. The payload is
// the full preferences object; partial merges happen client-side.
func (h *SettingsHandler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	p := middleware.GetPrincipal(r.Context())

	var prefs model.Preferences
	if err := readJSON(r, &prefs); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := prefs.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	blob, err := json.Marshal(prefs)
	if err != nil {
		writeServerError(w, h.logger, h.production, "Failed to save preferences", err)
		return
	}
	if err := h.store.UpdateUserPreferences(r.Context(), p.UserID, string(blob)); err != nil {
		writeServerError(w, h.logger, h.production, "Failed to save preferences", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"preferences": prefs})
}

// ChangePassword handles POST /api/settings/password.
func (h *SettingsHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	p := middleware.GetPrincipal(r.Context())

	var req struct {
		CurrentPassword string `json:"currentPassword"`
		NewPassword     string `json:"newPassword"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	err := h.ident.ChangePassword(r.Context(), p.UserID, req.CurrentPassword, req.NewPassword)
	switch {
	case errors.Is(err, identity.ErrNoPassword):
		writeError(w, http.StatusBadRequest, "This account signs in with Google and has no password")
		return
	case errors.Is(err, identity.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "Current password is incorrect")
		return
	case errors.Is(err, identity.ErrWeakPassword):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		writeServerError(w, h.logger, h.production, "Failed to change password", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"message": "Password updated"})
}

// ChangeEmail handles POST /api/settings/email: starts the mail-confirmed
// email change flow.
func (h *SettingsHandler) ChangeEmail(w http.ResponseWriter, r *http.Request) {
	p := middleware.GetPrincipal(r.Context())

	var req struct {
		Email string `json:"email"`
	}
	if err := readJSON(r, &req); err != nil || !validEmail(strings.TrimSpace(req.Email)) {
		writeError(w, http.StatusBadRequest, "A valid email address is required")
		return
	}

	user, err := h.store.GetUser(r.Context(), p.UserID)
	if err != nil {
		writeServerError(w, h.logger, h.production, "Failed to request email change", err)
		return
	}

	err = h.ident.RequestEmailChange(r.Context(), user, req.Email)
	switch {
	case errors.Is(err, identity.ErrSameEmail):
		writeError(w, http.StatusBadRequest, "This is already your current email address")
		return
	case errors.Is(err, identity.ErrEmailTaken):
		writeError(w, http.StatusConflict, "An account with this email already exists")
		return
	case err != nil:
		writeServerError(w, h.logger, h.production, "Failed to request email change", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "A confirmation link has been sent to your current email address",
	})
}

// DeleteAccount handles DELETE /api/settings/account. Destroys the user and,
// via cascade, everything they own.
func (h *SettingsHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	p := middleware.GetPrincipal(r.Context())

	var req struct {
		Password string `json:"password"`
	}
	// Body is optional for OAuth-only accounts.
	if r.Body != nil {
		_ = readJSON(r, &req)
	}

	err := h.ident.DeleteUser(r.Context(), p.UserID, req.Password)
	switch {
	case errors.Is(err, identity.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "Password is incorrect")
		return
	case err != nil:
		writeServerError(w, h.logger, h.production, "Failed to delete account", err)
		return
	}

	// The session row is already gone with the user; drop the cookie too.
	http.SetCookie(w, &http.Cookie{
		Name:     identity.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.production,
		SameSite: http.SameSiteLaxMode,
	})
	h.logger.Info("account deleted", "user_id", p.UserID)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Account deleted",
		"success": true,
	})
}
