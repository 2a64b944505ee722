package model

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestAPITokenHashNotInJSON(t *testing.T) {
	tok := APIToken{
		ID:          "t1",
		UserID:      "u1",
		Name:        "ci",
		TokenHash:   "super-secret-hash",
		TokenPrefix: "gh_AbCdEfGhI...",
		CreatedAt:   time.Now(),
	}
	out, err := json.Marshal(tok)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if strings.Contains(string(out), "super-secret-hash") {
		t.Error("token hash must not serialize")
	}
	if !strings.Contains(string(out), "gh_AbCdEfGhI...") {
		t.Error("display prefix should serialize")
	}
}

func TestSessionTokenNotInJSON(t *testing.T) {
	sess := Session{ID: "s1", Token: "opaque-secret", UserID: "u1"}
	out, err := json.Marshal(sess)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if strings.Contains(string(out), "opaque-secret") {
		t.Error("session token must not serialize")
	}
}

func TestAccountSecretsNotInJSON(t *testing.T) {
	pw := "bcrypt-hash"
	at := "access-token"
	acc := Account{ID: "a1", UserID: "u1", Password: &pw, AccessToken: &at}
	out, err := json.Marshal(acc)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	for _, secret := range []string{pw, at} {
		if strings.Contains(string(out), secret) {
			t.Errorf("%q must not serialize", secret)
		}
	}
}

func TestAPITokenExpired(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	tests := []struct {
		name      string
		expiresAt *time.Time
		want      bool
	}{
		{"no expiry", nil, false},
		{"future expiry", &future, false},
		{"past expiry", &past, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok := APIToken{ExpiresAt: tt.expiresAt}
			if got := tok.Expired(now); got != tt.want {
				t.Errorf("Expired = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPreferencesValidate(t *testing.T) {
	tests := []struct {
		name    string
		prefs   Preferences
		wantErr bool
	}{
		{"defaults", DefaultPreferences(), false},
		{"valid full", Preferences{Theme: "violet", Mode: "dark", DateFormat: "YYYY-MM-DD", TimeFormat: "24h"}, false},
		{"custom theme", Preferences{Theme: "custom", Mode: "light"}, false},
		{"bad theme", Preferences{Theme: "hotdog", Mode: "dark"}, true},
		{"bad mode", Preferences{Theme: "default", Mode: "dusk"}, true},
		{"bad date format", Preferences{Theme: "default", Mode: "system", DateFormat: "DD.MM.YYYY"}, true},
		{"bad time format", Preferences{Theme: "default", Mode: "system", TimeFormat: "13h"}, true},
		{"empty formats allowed", Preferences{Theme: "default", Mode: "system"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.prefs.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestUserProjection(t *testing.T) {
	img := "/api/avatar/u1"
	u := User{ID: "u1", Name: "N", Email: "e@example.com", Image: &img}
	p := u.Projection()
	if p.ID != "u1" || p.Email != "e@example.com" || p.Name != "N" || p.Image != &img {
		t.Errorf("Projection = %+v", p)
	}
}
