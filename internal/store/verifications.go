package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/gatehouseio/gatehouse/internal/model"
)

// CreateVerification inserts a one-time verification token row.
func (s *Store) CreateVerification(ctx context.Context, v *model.Verification) error {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	v.CreatedAt = now()

	const q = `INSERT INTO verifications
		(id, identifier, value, expires_at, created_at)
		VALUES
		(:id, :identifier, :value, :expires_at, :created_at)`

	if _, err := s.db.NamedExecContext(ctx, q, v); err != nil {
		return fmt.Errorf("insert verification: %w", err)
	}
	return nil
}

// GetVerificationByValue looks up a verification token by its value.
func (s *Store) GetVerificationByValue(ctx context.Context, value string) (*model.Verification, error) {
	var v model.Verification
	if err := s.db.GetContext(ctx, &v, s.rebind("SELECT * FROM verifications WHERE value = ?"), value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get verification: %w", err)
	}
	return &v, nil
}

// DeleteVerification consumes a token. One use only.
func (s *Store) DeleteVerification(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.rebind("DELETE FROM verifications WHERE id = ?"), id)
	if err != nil {
		return fmt.Errorf("delete verification: %w", err)
	}
	return requireRow(res)
}

// DeleteVerificationsByIdentifier clears any outstanding tokens for an
// identifier before issuing a fresh one.
func (s *Store) DeleteVerificationsByIdentifier(ctx context.Context, identifier string) error {
	_, err := s.db.ExecContext(ctx,
		s.rebind("DELETE FROM verifications WHERE identifier = ?"), identifier)
	if err != nil {
		return fmt.Errorf("delete verifications: %w", err)
	}
	return nil
}
