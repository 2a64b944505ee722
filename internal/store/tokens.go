package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/gatehouseio/gatehouse/internal/model"
)

// CreateAPIToken inserts a new API token record. TokenHash must already be
// set; the raw secret never reaches the store.
func (s *Store) CreateAPIToken(ctx context.Context, t *model.APIToken) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.CreatedAt = now()
	t.UpdatedAt = t.CreatedAt

	const q = `INSERT INTO api_tokens
		(id, user_id, name, token_hash, token_prefix, last_used_at, expires_at, created_at, updated_at)
		VALUES
		(:id, :user_id, :name, :token_hash, :token_prefix, :last_used_at, :expires_at, :created_at, :updated_at)`

	if _, err := s.db.NamedExecContext(ctx, q, t); err != nil {
		return fmt.Errorf("insert api token: %w", err)
	}
	return nil
}

// GetAPITokenByHash looks up an API token by its SHA-256 hash.
func (s *Store) GetAPITokenByHash(ctx context.Context, hash string) (*model.APIToken, error) {
	var t model.APIToken
	if err := s.db.GetContext(ctx, &t, s.rebind("SELECT * FROM api_tokens WHERE token_hash = ?"), hash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get api token by hash: %w", err)
	}
	return &t, nil
}

// ListAPITokensByUser returns all of a user's tokens, newest first.
func (s *Store) ListAPITokensByUser(ctx context.Context, userID string) ([]model.APIToken, error) {
	var tokens []model.APIToken
	err := s.db.SelectContext(ctx, &tokens,
		s.rebind("SELECT * FROM api_tokens WHERE user_id = ? ORDER BY created_at DESC"), userID)
	if err != nil {
		return nil, fmt.Errorf("list api tokens: %w", err)
	}
	return tokens, nil
}

// DeleteAPITokenForUser removes a token by id, scoped to its owner. Returns
// ErrNotFound when the id does not exist or belongs to another user, so a
// non-owner cannot distinguish the two.
func (s *Store) DeleteAPITokenForUser(ctx context.Context, userID, tokenID string) error {
	res, err := s.db.ExecContext(ctx,
		s.rebind("DELETE FROM api_tokens WHERE id = ? AND user_id = ?"), tokenID, userID)
	if err != nil {
		return fmt.Errorf("delete api token: %w", err)
	}
	return requireRow(res)
}

// TouchAPIToken sets the last_used_at timestamp. Best-effort; callers swallow
// the error.
func (s *Store) TouchAPIToken(ctx context.Context, id string) error {
	t := now()
	res, err := s.db.ExecContext(ctx,
		s.rebind("UPDATE api_tokens SET last_used_at = ?, updated_at = ? WHERE id = ?"),
		t, t, id)
	if err != nil {
		return fmt.Errorf("touch api token: %w", err)
	}
	return requireRow(res)
}
