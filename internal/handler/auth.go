package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gatehouseio/gatehouse/internal/identity"
	"github.com/gatehouseio/gatehouse/internal/model"
	"github.com/gatehouseio/gatehouse/internal/server/middleware"
)

// AuthHandler serves the public authentication endpoints under /api/auth.
type AuthHandler struct {
	ident      *identity.Service
	logger     *slog.Logger
	production bool
}

func NewAuthHandler(ident *identity.Service, logger *slog.Logger, production bool) *AuthHandler {
	return &AuthHandler{ident: ident, logger: logger, production: production}
}

// setSessionCookie installs the opaque session token. Secure is tied to the
// environment so local plain-HTTP development keeps working.
func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, sess *model.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     identity.CookieName,
		Value:    sess.Token,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		Secure:   h.production,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     identity.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.production,
		SameSite: http.SameSiteLaxMode,
	})
}

// sessionToken pulls the session cookie value, empty when absent.
func sessionToken(r *http.Request) string {
	c, err := r.Cookie(identity.CookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

// SignUp handles POST /api/auth/sign-up.
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Name     string `json:"name"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	req.Name = strings.TrimSpace(req.Name)
	if !validEmail(req.Email) {
		writeError(w, http.StatusBadRequest, "A valid email address is required")
		return
	}
	if req.Name == "" || len(req.Name) > 100 {
		writeError(w, http.StatusBadRequest, "Name must be between 1 and 100 characters")
		return
	}

	user, sess, err := h.ident.SignUp(r.Context(), req.Email, req.Password, req.Name,
		middleware.ClientIP(r), r.UserAgent())
	switch {
	case errors.Is(err, identity.ErrSignupDisabled):
		writeError(w, http.StatusForbidden, "Sign-up is currently disabled")
		return
	case errors.Is(err, identity.ErrEmailTaken):
		writeError(w, http.StatusConflict, "An account with this email already exists")
		return
	case errors.Is(err, identity.ErrWeakPassword):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		writeServerError(w, h.logger, h.production, "Failed to create account", err)
		return
	}

	h.setSessionCookie(w, sess)
	writeJSON(w, http.StatusCreated, map[string]interface{}{"user": userPayload(user)})
}

// SignIn handles POST /api/auth/sign-in.
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, sess, err := h.ident.SignIn(r.Context(), req.Email, req.Password,
		middleware.ClientIP(r), r.UserAgent())
	switch {
	case errors.Is(err, identity.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	case err != nil:
		writeServerError(w, h.logger, h.production, "Failed to sign in", err)
		return
	}

	h.setSessionCookie(w, sess)
	writeJSON(w, http.StatusOK, map[string]interface{}{"user": userPayload(user)})
}

// SignOut handles POST /api/auth/sign-out. Always succeeds, even with no or
// an already-dead session.
func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	if token := sessionToken(r); token != "" {
		if err := h.ident.SignOut(r.Context(), token); err != nil {
			h.logger.Warn("sign-out cleanup failed", "error", err)
		}
	}
	h.clearSessionCookie(w)
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// Session handles GET /api/auth/session: the probe the web client uses to
// restore its auth state on page load.
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	token := sessionToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	user, sess, err := h.ident.VerifySession(r.Context(), token)
	if errors.Is(err, identity.ErrSessionInvalid) {
		h.clearSessionCookie(w)
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	if err != nil {
		writeServerError(w, h.logger, h.production, "Failed to load session", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user": userPayload(user),
		"session": map[string]interface{}{
			"id":        sess.ID,
			"expiresAt": sess.ExpiresAt.UnixMilli(),
		},
	})
}

// RequestPasswordReset handles POST /api/auth/request-password-reset. The
// response is identical whether or not the address has an account.
func (h *AuthHandler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := readJSON(r, &req); err != nil || !validEmail(strings.TrimSpace(req.Email)) {
		writeError(w, http.StatusBadRequest, "A valid email address is required")
		return
	}
	if err := h.ident.RequestPasswordReset(r.Context(), req.Email); err != nil {
		writeServerError(w, h.logger, h.production, "Failed to process request", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "If an account exists for that address, a reset link has been sent",
	})
}

// ResetPassword handles POST /api/auth/reset-password.
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token       string `json:"token"`
		NewPassword string `json:"newPassword"`
	}
	if err := readJSON(r, &req); err != nil || req.Token == "" {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	err := h.ident.ResetPassword(r.Context(), req.Token, req.NewPassword)
	switch {
	case errors.Is(err, identity.ErrTokenInvalid):
		writeError(w, http.StatusBadRequest, "Reset link is invalid or has expired")
		return
	case errors.Is(err, identity.ErrWeakPassword):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		writeServerError(w, h.logger, h.production, "Failed to reset password", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// Verify handles GET /api/auth/verify?token=..., the link mailed for email
// changes. Browsers follow it directly, so the handler redirects rather than
// answering JSON.
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Redirect(w, r, "/settings?error=invalid-link", http.StatusFound)
		return
	}
	err := h.ident.ConfirmEmailChange(r.Context(), token)
	switch {
	case errors.Is(err, identity.ErrTokenInvalid):
		http.Redirect(w, r, "/settings?error=invalid-link", http.StatusFound)
		return
	case errors.Is(err, identity.ErrEmailTaken):
		http.Redirect(w, r, "/settings?error=email-taken", http.StatusFound)
		return
	case err != nil:
		h.logger.Error("email change confirmation failed", "error", err)
		http.Redirect(w, r, "/settings?error=server", http.StatusFound)
		return
	}
	http.Redirect(w, r, "/settings?emailChanged=true", http.StatusFound)
}

// GoogleStart handles GET /api/auth/google: redirects to Google's consent
// screen with a signed state parameter.
func (h *AuthHandler) GoogleStart(w http.ResponseWriter, r *http.Request) {
	google := h.ident.Google()
	if google == nil {
		writeError(w, http.StatusNotFound, "Google sign-in is not configured")
		return
	}
	state, err := h.ident.SignState()
	if err != nil {
		writeServerError(w, h.logger, h.production, "Failed to start sign-in", err)
		return
	}
	http.Redirect(w, r, google.AuthURL(state), http.StatusFound)
}

// GoogleCallback handles GET /api/auth/google/callback.
func (h *AuthHandler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	if h.ident.Google() == nil {
		writeError(w, http.StatusNotFound, "Google sign-in is not configured")
		return
	}
	q := r.URL.Query()
	if errCode := q.Get("error"); errCode != "" {
		// User declined consent, or Google reported a failure.
		http.Redirect(w, r, "/sign-in?error=google", http.StatusFound)
		return
	}
	if err := h.ident.VerifyState(q.Get("state")); err != nil {
		http.Redirect(w, r, "/sign-in?error=state", http.StatusFound)
		return
	}

	user, sess, err := h.ident.HandleGoogleCallback(r.Context(), q.Get("code"),
		middleware.ClientIP(r), r.UserAgent())
	if err != nil {
		h.logger.Error("google callback failed", "error", err)
		http.Redirect(w, r, "/sign-in?error=google", http.StatusFound)
		return
	}
	h.logger.Info("google sign-in", "user_id", user.ID)

	h.setSessionCookie(w, sess)
	http.Redirect(w, r, "/", http.StatusFound)
}
