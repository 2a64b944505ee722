package model

import "time"

// User is the core identity record. Credential material never lives here;
// password hashes are stored on the credential Account row.
type User struct {
	ID            string     `json:"id" db:"id"`
	Name          string     `json:"name" db:"name"`
	Email         string     `json:"email" db:"email"`
	EmailVerified bool       `json:"emailVerified" db:"email_verified"`
	Image         *string    `json:"image" db:"image"`
	Preferences   *string    `json:"-" db:"preferences"` // JSON blob, see Preferences
	CreatedAt     time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt     time.Time  `json:"updatedAt" db:"updated_at"`
}

// Projection returns the minimal user view attached to request contexts and
// returned by the session endpoint.
func (u *User) Projection() UserProjection {
	return UserProjection{
		ID:    u.ID,
		Email: u.Email,
		Name:  u.Name,
		Image: u.Image,
	}
}

// UserProjection is the subset of User exposed to downstream handlers.
type UserProjection struct {
	ID    string  `json:"id"`
	Email string  `json:"email"`
	Name  string  `json:"name"`
	Image *string `json:"image,omitempty"`
}

// Session binds an opaque cookie token to a user. Sessions are refreshed on a
// sliding window and deleted on sign-out or explicit revocation.
type Session struct {
	ID        string    `json:"id" db:"id"`
	Token     string    `json:"-" db:"token"` // opaque, never exposed in listings
	UserID    string    `json:"userId" db:"user_id"`
	ExpiresAt time.Time `json:"expiresAt" db:"expires_at"`
	IPAddress *string   `json:"ipAddress" db:"ip_address"`
	UserAgent *string   `json:"userAgent" db:"user_agent"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// Account is one login method for a user: either the password credential
// ("credential" provider) or an external OAuth identity. The
// (provider_id, account_id) pair is unique so the same external identity can
// never be linked to two local users.
type Account struct {
	ID           string    `json:"id" db:"id"`
	UserID       string    `json:"userId" db:"user_id"`
	AccountID    string    `json:"accountId" db:"account_id"`
	ProviderID   string    `json:"providerId" db:"provider_id"`
	Password     *string   `json:"-" db:"password"` // bcrypt hash, credential provider only
	AccessToken  *string   `json:"-" db:"access_token"`
	RefreshToken *string   `json:"-" db:"refresh_token"`
	Scope        *string   `json:"scope" db:"scope"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" db:"updated_at"`
}

// ProviderCredential is the provider id for email/password accounts.
const ProviderCredential = "credential"

// Verification is a one-time token row used for password resets and email
// change confirmation. Identifier encodes what is being verified.
type Verification struct {
	ID         string    `db:"id"`
	Identifier string    `db:"identifier"`
	Value      string    `db:"value"`
	ExpiresAt  time.Time `db:"expires_at"`
	CreatedAt  time.Time `db:"created_at"`
}
