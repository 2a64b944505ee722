// Package service holds the application services between HTTP handlers and
// the store.
package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	"github.com/gatehouseio/gatehouse/internal/model"
	"github.com/gatehouseio/gatehouse/internal/store"
)

const (
	// TokenPrefix is prepended to every generated secret. Purely cosmetic:
	// it makes tokens recognizable in logs and UI, and carries no security.
	TokenPrefix = "gh_"

	tokenBytes         = 32
	tokenDisplayLength = 12
)

var (
	ErrTokenInvalid = errors.New("invalid api token")
	ErrTokenExpired = errors.New("api token expired")
)

// TokenService issues and validates opaque bearer API tokens. Only the
// SHA-256 hash of a secret is ever stored; the plaintext is returned once at
// creation and is unrecoverable afterwards.
type TokenService struct {
	store  *store.Store
	logger *slog.Logger
}

// NewTokenService creates a TokenService.
func NewTokenService(st *store.Store, logger *slog.Logger) *TokenService {
	return &TokenService{store: st, logger: logger}
}

// Create mints a token for the user and persists its hash. The returned
// string is the plaintext secret, shown exactly once.
func (s *TokenService) Create(ctx context.Context, userID, name string, expiresAt *time.Time) (*model.APIToken, string, error) {
	raw := make([]byte, tokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return nil, "", err
	}
	plaintext := TokenPrefix + base64.RawURLEncoding.EncodeToString(raw)

	token := &model.APIToken{
		UserID:      userID,
		Name:        name,
		TokenHash:   HashToken(plaintext),
		TokenPrefix: plaintext[:tokenDisplayLength] + "...",
		ExpiresAt:   expiresAt,
	}
	if err := s.store.CreateAPIToken(ctx, token); err != nil {
		return nil, "", err
	}
	return token, plaintext, nil
}

// Validate resolves a plaintext bearer token to its record and owning user.
// Returns ErrTokenInvalid or ErrTokenExpired; callers present both as the
// same authentication failure.
func (s *TokenService) Validate(ctx context.Context, plaintext string) (*model.APIToken, *model.User, error) {
	token, err := s.store.GetAPITokenByHash(ctx, HashToken(plaintext))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, ErrTokenInvalid
		}
		return nil, nil, err
	}

	if token.Expired(time.Now()) {
		return nil, nil, ErrTokenExpired
	}

	user, err := s.store.GetUser(ctx, token.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, ErrTokenInvalid
		}
		return nil, nil, err
	}

	// Stamp last-used without blocking or failing the request.
	go func(id string) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.store.TouchAPIToken(ctx, id); err != nil {
			s.logger.Warn("api token last-used stamp failed", "token_id", id, "error", err)
		}
	}(token.ID)

	return token, user, nil
}

// List returns the user's tokens, newest first.
func (s *TokenService) List(ctx context.Context, userID string) ([]model.APIToken, error) {
	return s.store.ListAPITokensByUser(ctx, userID)
}

// Delete revokes a token. Scoped to the owner: deleting another user's token
// id reports store.ErrNotFound without touching the row.
func (s *TokenService) Delete(ctx context.Context, userID, tokenID string) error {
	return s.store.DeleteAPITokenForUser(ctx, userID, tokenID)
}

// HashToken returns the hex-encoded SHA-256 hash of a plaintext token.
func HashToken(plaintext string) string {
	h := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(h[:])
}
