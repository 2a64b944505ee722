package model

import "time"

// APIToken is an opaque bearer credential for programmatic access, distinct
// from cookie sessions. The raw secret is never stored; only a SHA-256 hash
// and a short prefix for identification are persisted.
type APIToken struct {
	ID          string     `json:"id" db:"id"`
	UserID      string     `json:"userId" db:"user_id"`
	Name        string     `json:"name" db:"name"`
	TokenHash   string     `json:"-" db:"token_hash"`          // SHA-256 hash, never expose
	TokenPrefix string     `json:"tokenPrefix" db:"token_prefix"` // e.g. "gh_AbCdEfGhI..."
	LastUsedAt  *time.Time `json:"lastUsedAt,omitempty" db:"last_used_at"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty" db:"expires_at"`
	CreatedAt   time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time  `json:"updatedAt" db:"updated_at"`
}

// Expired reports whether the token carries an expiry that has passed.
func (t *APIToken) Expired(now time.Time) bool {
	return t.ExpiresAt != nil && t.ExpiresAt.Before(now)
}
