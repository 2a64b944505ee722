package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gatehouseio/gatehouse/internal/model"
)

// CreateSession inserts a new session row.
func (s *Store) CreateSession(ctx context.Context, sess *model.Session) error {
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	sess.CreatedAt = now()
	sess.UpdatedAt = sess.CreatedAt

	const q = `INSERT INTO sessions
		(id, token, user_id, expires_at, ip_address, user_agent, created_at, updated_at)
		VALUES
		(:id, :token, :user_id, :expires_at, :ip_address, :user_agent, :created_at, :updated_at)`

	if _, err := s.db.NamedExecContext(ctx, q, sess); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// GetSessionByToken looks up a session by its opaque token.
func (s *Store) GetSessionByToken(ctx context.Context, token string) (*model.Session, error) {
	var sess model.Session
	if err := s.db.GetContext(ctx, &sess, s.rebind("SELECT * FROM sessions WHERE token = ?"), token); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get session by token: %w", err)
	}
	return &sess, nil
}

// ListSessionsByUser returns all sessions for a user, most recently active
// first. Callers filter out expired rows.
func (s *Store) ListSessionsByUser(ctx context.Context, userID string) ([]model.Session, error) {
	var sessions []model.Session
	err := s.db.SelectContext(ctx, &sessions,
		s.rebind("SELECT * FROM sessions WHERE user_id = ? ORDER BY updated_at DESC"), userID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

// RefreshSession extends a session's expiry and bumps updated_at, the
// sliding-window refresh.
func (s *Store) RefreshSession(ctx context.Context, id string, expiresAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		s.rebind("UPDATE sessions SET expires_at = ?, updated_at = ? WHERE id = ?"),
		expiresAt, now(), id)
	if err != nil {
		return fmt.Errorf("refresh session: %w", err)
	}
	return requireRow(res)
}

// DeleteSessionByToken removes a session, used on sign-out.
func (s *Store) DeleteSessionByToken(ctx context.Context, token string) error {
	res, err := s.db.ExecContext(ctx, s.rebind("DELETE FROM sessions WHERE token = ?"), token)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return requireRow(res)
}

// DeleteOtherSessionsForUser removes every session the user owns except the
// one bound to keepToken, the "sign out everywhere else" operation. Returns
// the number of sessions revoked.
func (s *Store) DeleteOtherSessionsForUser(ctx context.Context, userID, keepToken string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		s.rebind("DELETE FROM sessions WHERE user_id = ? AND token <> ?"), userID, keepToken)
	if err != nil {
		return 0, fmt.Errorf("delete other sessions: %w", err)
	}
	return res.RowsAffected()
}

// DeleteSessionForUser removes one of the user's sessions by id. Returns
// ErrNotFound when the id does not exist or belongs to another user.
func (s *Store) DeleteSessionForUser(ctx context.Context, userID, sessionID string) error {
	res, err := s.db.ExecContext(ctx,
		s.rebind("DELETE FROM sessions WHERE id = ? AND user_id = ?"), sessionID, userID)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return requireRow(res)
}
