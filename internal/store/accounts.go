package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/gatehouseio/gatehouse/internal/model"
)

// CreateAccount inserts a login-method row. The (provider_id, account_id)
// unique constraint surfaces as a database error when the same external
// identity is linked twice.
func (s *Store) CreateAccount(ctx context.Context, a *model.Account) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.CreatedAt = now()
	a.UpdatedAt = a.CreatedAt

	const q = `INSERT INTO accounts
		(id, user_id, account_id, provider_id, password, access_token, refresh_token, scope, created_at, updated_at)
		VALUES
		(:id, :user_id, :account_id, :provider_id, :password, :access_token, :refresh_token, :scope, :created_at, :updated_at)`

	if _, err := s.db.NamedExecContext(ctx, q, a); err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

// GetAccountByProvider looks up an account by its external identity pair.
func (s *Store) GetAccountByProvider(ctx context.Context, providerID, accountID string) (*model.Account, error) {
	var a model.Account
	err := s.db.GetContext(ctx, &a,
		s.rebind("SELECT * FROM accounts WHERE provider_id = ? AND account_id = ?"),
		providerID, accountID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get account by provider: %w", err)
	}
	return &a, nil
}

// GetCredentialAccount returns the user's password-credential account, or
// ErrNotFound for OAuth-only users.
func (s *Store) GetCredentialAccount(ctx context.Context, userID string) (*model.Account, error) {
	var a model.Account
	err := s.db.GetContext(ctx, &a,
		s.rebind("SELECT * FROM accounts WHERE user_id = ? AND provider_id = ?"),
		userID, model.ProviderCredential)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get credential account: %w", err)
	}
	return &a, nil
}

// UpdateAccountPassword replaces the stored bcrypt hash.
func (s *Store) UpdateAccountPassword(ctx context.Context, accountID, passwordHash string) error {
	res, err := s.db.ExecContext(ctx,
		s.rebind("UPDATE accounts SET password = ?, updated_at = ? WHERE id = ?"),
		passwordHash, now(), accountID)
	if err != nil {
		return fmt.Errorf("update account password: %w", err)
	}
	return requireRow(res)
}

// UpdateAccountTokens refreshes the stored OAuth tokens after a new exchange.
func (s *Store) UpdateAccountTokens(ctx context.Context, id string, accessToken, refreshToken *string) error {
	res, err := s.db.ExecContext(ctx,
		s.rebind("UPDATE accounts SET access_token = ?, refresh_token = ?, updated_at = ? WHERE id = ?"),
		accessToken, refreshToken, now(), id)
	if err != nil {
		return fmt.Errorf("update account tokens: %w", err)
	}
	return requireRow(res)
}
