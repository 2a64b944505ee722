package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/gatehouseio/gatehouse/internal/model"
)

// CreateUser inserts a new user. ID and timestamps are populated on the
// passed struct.
func (s *Store) CreateUser(ctx context.Context, u *model.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.CreatedAt = now()
	u.UpdatedAt = u.CreatedAt

	const q = `INSERT INTO users
		(id, name, email, email_verified, image, preferences, created_at, updated_at)
		VALUES
		(:id, :name, :email, :email_verified, :image, :preferences, :created_at, :updated_at)`

	if _, err := s.db.NamedExecContext(ctx, q, u); err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetUser returns a user by id.
func (s *Store) GetUser(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	if err := s.db.GetContext(ctx, &u, s.rebind("SELECT * FROM users WHERE id = ?"), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// GetUserByEmail returns a user by email address.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	var u model.User
	if err := s.db.GetContext(ctx, &u, s.rebind("SELECT * FROM users WHERE email = ?"), email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return &u, nil
}

// UpdateUserName sets the display name.
func (s *Store) UpdateUserName(ctx context.Context, id, name string) error {
	return s.touchUser(ctx, id, "name", name)
}

// UpdateUserEmail sets a new verified email address.
func (s *Store) UpdateUserEmail(ctx context.Context, id, email string) error {
	res, err := s.db.ExecContext(ctx,
		s.rebind("UPDATE users SET email = ?, email_verified = ?, updated_at = ? WHERE id = ?"),
		email, true, now(), id)
	if err != nil {
		return fmt.Errorf("update user email: %w", err)
	}
	return requireRow(res)
}

// UpdateUserImage sets or clears the avatar reference.
func (s *Store) UpdateUserImage(ctx context.Context, id string, image *string) error {
	res, err := s.db.ExecContext(ctx,
		s.rebind("UPDATE users SET image = ?, updated_at = ? WHERE id = ?"),
		image, now(), id)
	if err != nil {
		return fmt.Errorf("update user image: %w", err)
	}
	return requireRow(res)
}

// UpdateUserPreferences stores the serialized preferences blob.
func (s *Store) UpdateUserPreferences(ctx context.Context, id, preferences string) error {
	return s.touchUser(ctx, id, "preferences", preferences)
}

// DeleteUser removes a user. Sessions, accounts, API tokens, and
// organization settings cascade.
func (s *Store) DeleteUser(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.rebind("DELETE FROM users WHERE id = ?"), id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return requireRow(res)
}

func (s *Store) touchUser(ctx context.Context, id, column string, value any) error {
	res, err := s.db.ExecContext(ctx,
		s.rebind("UPDATE users SET "+column+" = ?, updated_at = ? WHERE id = ?"),
		value, now(), id)
	if err != nil {
		return fmt.Errorf("update user %s: %w", column, err)
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
