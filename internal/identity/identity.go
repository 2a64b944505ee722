// Package identity owns credential verification, session issuance and
// refresh, email verification token lifecycles, and the Google OAuth
// handshake. Handlers treat it as a black-box capability: verify a session,
// change a password, change an email, delete a user.
package identity

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/gatehouseio/gatehouse/internal/config"
	"github.com/gatehouseio/gatehouse/internal/model"
	"github.com/gatehouseio/gatehouse/internal/store"
)

// CookieName is the session cookie set on sign-in.
const CookieName = "gatehouse_session"

const (
	// SessionTTL is how long a session lives from its last refresh.
	SessionTTL = 7 * 24 * time.Hour
	// SessionUpdateAge is the sliding-refresh threshold: a qualifying request
	// older than this since the last refresh extends the session.
	SessionUpdateAge = 24 * time.Hour

	passwordResetTTL = 1 * time.Hour
	emailChangeTTL   = 24 * time.Hour

	minPasswordLength = 8
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrSessionInvalid     = errors.New("session invalid")
	ErrEmailTaken         = errors.New("email already in use")
	ErrSameEmail          = errors.New("already your current address")
	ErrNoPassword         = errors.New("no password credential")
	ErrTokenInvalid       = errors.New("verification token invalid or expired")
	ErrSignupDisabled     = errors.New("email sign-up is disabled")
	ErrInvalidState       = errors.New("invalid oauth state")
	ErrWeakPassword       = fmt.Errorf("password must be at least %d characters", minPasswordLength)
)

// Service is the identity authority.
type Service struct {
	store       *store.Store
	mailer      Mailer
	logger      *slog.Logger
	google      *GoogleProvider
	baseURL     string
	stateSecret []byte
	signupOff   bool
}

// NewService wires the identity authority from config.
func NewService(st *store.Store, cfg *config.Config, mailer Mailer, logger *slog.Logger) *Service {
	s := &Service{
		store:       st,
		mailer:      mailer,
		logger:      logger,
		baseURL:     cfg.BaseURL,
		stateSecret: []byte(cfg.AuthSecret),
		signupOff:   cfg.SignupDisabled,
	}
	if cfg.Google.Enabled() {
		s.google = NewGoogleProvider(cfg.Google.ClientID, cfg.Google.ClientSecret,
			cfg.BaseURL+"/api/auth/google/callback")
	}
	return s
}

// Google returns the OAuth provider, or nil when not configured.
func (s *Service) Google() *GoogleProvider {
	return s.google
}

// ---------------------------------------------------------------------------
// Sign-up / sign-in / sessions
// ---------------------------------------------------------------------------

// SignUp registers an email/password user and opens a session.
func (s *Service) SignUp(ctx context.Context, email, password, name, ip, userAgent string) (*model.User, *model.Session, error) {
	if s.signupOff {
		return nil, nil, ErrSignupDisabled
	}
	if len(password) < minPasswordLength {
		return nil, nil, ErrWeakPassword
	}

	email = normalizeEmail(email)
	if _, err := s.store.GetUserByEmail(ctx, email); err == nil {
		return nil, nil, ErrEmailTaken
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, nil, fmt.Errorf("hash password: %w", err)
	}

	user := &model.User{Name: name, Email: email}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, nil, err
	}

	hashStr := string(hash)
	account := &model.Account{
		UserID:     user.ID,
		AccountID:  user.ID,
		ProviderID: model.ProviderCredential,
		Password:   &hashStr,
	}
	if err := s.store.CreateAccount(ctx, account); err != nil {
		return nil, nil, err
	}

	sess, err := s.issueSession(ctx, user.ID, ip, userAgent)
	if err != nil {
		return nil, nil, err
	}
	return user, sess, nil
}

// SignIn verifies an email/password pair and opens a session. Failures are
// indistinguishable between unknown email and wrong password.
func (s *Service) SignIn(ctx context.Context, email, password, ip, userAgent string) (*model.User, *model.Session, error) {
	user, err := s.store.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, err
	}

	account, err := s.store.GetCredentialAccount(ctx, user.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, err
	}

	if account.Password == nil ||
		bcrypt.CompareHashAndPassword([]byte(*account.Password), []byte(password)) != nil {
		return nil, nil, ErrInvalidCredentials
	}

	sess, err := s.issueSession(ctx, user.ID, ip, userAgent)
	if err != nil {
		return nil, nil, err
	}
	return user, sess, nil
}

// VerifySession resolves a session token to its user, applying the sliding
// refresh. Returns ErrSessionInvalid for missing or expired sessions.
func (s *Service) VerifySession(ctx context.Context, token string) (*model.User, *model.Session, error) {
	if token == "" {
		return nil, nil, ErrSessionInvalid
	}

	sess, err := s.store.GetSessionByToken(ctx, token)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, ErrSessionInvalid
		}
		return nil, nil, err
	}

	now := time.Now()
	if !sess.ExpiresAt.After(now) {
		return nil, nil, ErrSessionInvalid
	}

	if now.Sub(sess.UpdatedAt) > SessionUpdateAge {
		newExpiry := now.Add(SessionTTL)
		if err := s.store.RefreshSession(ctx, sess.ID, newExpiry); err != nil {
			// Refresh is best-effort; the session is still valid.
			s.logger.Warn("session refresh failed", "session_id", sess.ID, "error", err)
		} else {
			sess.ExpiresAt = newExpiry
			sess.UpdatedAt = now
		}
	}

	user, err := s.store.GetUser(ctx, sess.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, ErrSessionInvalid
		}
		return nil, nil, err
	}
	return user, sess, nil
}

// SignOut deletes the session bound to the token. Unknown tokens are not an
// error; sign-out is idempotent.
func (s *Service) SignOut(ctx context.Context, token string) error {
	err := s.store.DeleteSessionByToken(ctx, token)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	return err
}

func (s *Service) issueSession(ctx context.Context, userID, ip, userAgent string) (*model.Session, error) {
	sess := &model.Session{
		Token:     newOpaqueToken(),
		UserID:    userID,
		ExpiresAt: time.Now().Add(SessionTTL),
	}
	if ip != "" {
		sess.IPAddress = &ip
	}
	if userAgent != "" {
		sess.UserAgent = &userAgent
	}
	if err := s.store.CreateSession(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// ---------------------------------------------------------------------------
// Password reset and change
// ---------------------------------------------------------------------------

// RequestPasswordReset mails a reset link. The response is identical whether
// or not the address belongs to a user, so the endpoint cannot be used to
// probe for accounts.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := s.store.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}

	identifier := "password-reset:" + user.ID
	if err := s.store.DeleteVerificationsByIdentifier(ctx, identifier); err != nil {
		return err
	}

	v := &model.Verification{
		Identifier: identifier,
		Value:      newOpaqueToken(),
		ExpiresAt:  time.Now().Add(passwordResetTTL),
	}
	if err := s.store.CreateVerification(ctx, v); err != nil {
		return err
	}

	link := s.baseURL + "/reset-password?token=" + v.Value
	body := fmt.Sprintf("Hi %s,\n\nYou requested to reset your password. "+
		"Open the link below to set a new one:\n\n%s\n\n"+
		"The link expires in 1 hour and can be used once. "+
		"If you didn't request this, you can ignore this email.\n",
		displayName(user), link)

	if err := s.mailer.Send(user.Email, "Reset your password", body); err != nil {
		s.logger.Error("password reset mail failed", "error", err)
	}
	return nil
}

// ResetPassword consumes a reset token and sets the new password.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	if len(newPassword) < minPasswordLength {
		return ErrWeakPassword
	}

	v, err := s.store.GetVerificationByValue(ctx, token)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrTokenInvalid
		}
		return err
	}

	userID, ok := strings.CutPrefix(v.Identifier, "password-reset:")
	if !ok || !v.ExpiresAt.After(time.Now()) {
		return ErrTokenInvalid
	}

	account, err := s.store.GetCredentialAccount(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNoPassword
		}
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.store.UpdateAccountPassword(ctx, account.ID, string(hash)); err != nil {
		return err
	}
	return s.store.DeleteVerification(ctx, v.ID)
}

// ChangePassword verifies the current password and sets a new one. Users who
// signed up with OAuth have no credential account and get ErrNoPassword.
func (s *Service) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	if len(newPassword) < minPasswordLength {
		return ErrWeakPassword
	}

	account, err := s.store.GetCredentialAccount(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNoPassword
		}
		return err
	}

	if account.Password == nil ||
		bcrypt.CompareHashAndPassword([]byte(*account.Password), []byte(currentPassword)) != nil {
		return ErrInvalidCredentials
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return s.store.UpdateAccountPassword(ctx, account.ID, string(hash))
}

// ---------------------------------------------------------------------------
// Email change
// ---------------------------------------------------------------------------

// RequestEmailChange mails a confirmation link to the user's CURRENT address.
// The change only happens when the link is followed.
func (s *Service) RequestEmailChange(ctx context.Context, user *model.User, newEmail string) error {
	newEmail = normalizeEmail(newEmail)
	if newEmail == user.Email {
		return ErrSameEmail
	}
	if _, err := s.store.GetUserByEmail(ctx, newEmail); err == nil {
		return ErrEmailTaken
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	identifier := "email-change:" + user.ID + ":" + newEmail
	if err := s.store.DeleteVerificationsByIdentifier(ctx, identifier); err != nil {
		return err
	}

	v := &model.Verification{
		Identifier: identifier,
		Value:      newOpaqueToken(),
		ExpiresAt:  time.Now().Add(emailChangeTTL),
	}
	if err := s.store.CreateVerification(ctx, v); err != nil {
		return err
	}

	link := s.baseURL + "/api/auth/verify?token=" + v.Value
	body := fmt.Sprintf("Hi %s,\n\nYou requested to change your email to %s.\n"+
		"Open the link below to confirm:\n\n%s\n\n"+
		"The link expires in 24 hours. If you didn't request this change, "+
		"ignore this email.\n",
		displayName(user), newEmail, link)

	// Sent to the current address so a hijacked session can't silently move
	// the account.
	if err := s.mailer.Send(user.Email, "Confirm your email change", body); err != nil {
		s.logger.Error("email change mail failed", "error", err)
	}
	return nil
}

// ConfirmEmailChange consumes a confirmation token and applies the new
// address, marking it verified.
func (s *Service) ConfirmEmailChange(ctx context.Context, token string) error {
	v, err := s.store.GetVerificationByValue(ctx, token)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrTokenInvalid
		}
		return err
	}

	rest, ok := strings.CutPrefix(v.Identifier, "email-change:")
	if !ok || !v.ExpiresAt.After(time.Now()) {
		return ErrTokenInvalid
	}
	userID, newEmail, ok := strings.Cut(rest, ":")
	if !ok {
		return ErrTokenInvalid
	}

	// The address may have been claimed since the change was requested.
	if _, err := s.store.GetUserByEmail(ctx, newEmail); err == nil {
		return ErrEmailTaken
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	if err := s.store.UpdateUserEmail(ctx, userID, newEmail); err != nil {
		return err
	}
	return s.store.DeleteVerification(ctx, v.ID)
}

// ---------------------------------------------------------------------------
// Account deletion
// ---------------------------------------------------------------------------

// DeleteUser removes the account after verifying the password for credential
// users. OAuth-only users delete without a password check; their session
// already proves control of the external identity. Sessions, accounts, API
// tokens, and organization settings cascade in the database.
func (s *Service) DeleteUser(ctx context.Context, userID, password string) error {
	account, err := s.store.GetCredentialAccount(ctx, userID)
	switch {
	case err == nil:
		if account.Password == nil ||
			bcrypt.CompareHashAndPassword([]byte(*account.Password), []byte(password)) != nil {
			return ErrInvalidCredentials
		}
	case errors.Is(err, store.ErrNotFound):
		// OAuth-only user.
	default:
		return err
	}
	return s.store.DeleteUser(ctx, userID)
}

// ---------------------------------------------------------------------------
// Google OAuth callback
// ---------------------------------------------------------------------------

// HandleGoogleCallback completes the OAuth flow: exchange the code, then
// either sign in the already-linked user, link the account to an existing
// user with the same email, or create a fresh user. The unique
// (provider_id, account_id) constraint guarantees an external identity is
// never linked to two local users.
func (s *Service) HandleGoogleCallback(ctx context.Context, code, ip, userAgent string) (*model.User, *model.Session, error) {
	if s.google == nil {
		return nil, nil, errors.New("google oauth not configured")
	}

	profile, tok, err := s.google.Exchange(ctx, code)
	if err != nil {
		return nil, nil, err
	}

	account, err := s.store.GetAccountByProvider(ctx, "google", profile.ID)
	switch {
	case err == nil:
		if err := s.store.UpdateAccountTokens(ctx, account.ID,
			optional(tok.AccessToken), optional(tok.RefreshToken)); err != nil {
			s.logger.Warn("oauth token update failed", "error", err)
		}
		user, err := s.store.GetUser(ctx, account.UserID)
		if err != nil {
			return nil, nil, err
		}
		sess, err := s.issueSession(ctx, user.ID, ip, userAgent)
		return user, sess, err

	case errors.Is(err, store.ErrNotFound):
		user, err := s.linkOrCreateGoogleUser(ctx, profile, tok)
		if err != nil {
			return nil, nil, err
		}
		sess, err := s.issueSession(ctx, user.ID, ip, userAgent)
		return user, sess, err

	default:
		return nil, nil, err
	}
}

func (s *Service) linkOrCreateGoogleUser(ctx context.Context, profile *GoogleUser, tok *googleTokenResponse) (*model.User, error) {
	email := normalizeEmail(profile.Email)

	user, err := s.store.GetUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		name := profile.Name
		if name == "" {
			name, _, _ = strings.Cut(email, "@")
		}
		user = &model.User{
			Name:          name,
			Email:         email,
			EmailVerified: profile.VerifiedEmail,
		}
		if profile.Picture != "" {
			user.Image = &profile.Picture
		}
		if err := s.store.CreateUser(ctx, user); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	scope := "openid email profile"
	account := &model.Account{
		UserID:       user.ID,
		AccountID:    profile.ID,
		ProviderID:   "google",
		AccessToken:  optional(tok.AccessToken),
		RefreshToken: optional(tok.RefreshToken),
		Scope:        &scope,
	}
	if err := s.store.CreateAccount(ctx, account); err != nil {
		return nil, err
	}
	return user, nil
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

// newOpaqueToken returns 32 crypto-random bytes, base64url encoded.
func newOpaqueToken() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic("crypto/rand unavailable: " + err.Error())
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func displayName(u *model.User) string {
	if u.Name != "" {
		return u.Name
	}
	return "there"
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
