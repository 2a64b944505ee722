package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gatehouseio/gatehouse/internal/config"
	"github.com/gatehouseio/gatehouse/internal/identity"
	"github.com/gatehouseio/gatehouse/internal/ratelimit"
	"github.com/gatehouseio/gatehouse/internal/service"
	"github.com/gatehouseio/gatehouse/internal/storage"
	"github.com/gatehouseio/gatehouse/internal/store"
)

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

const (
	testEmail    = "user@example.com"
	testPassword = "a perfectly fine password"
	testName     = "Test User"
)

type testEnv struct {
	server  *Server
	store   *store.Store
	objects *storage.Memory
	tokens  *service.TokenService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := store.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	cfg := &config.Config{
		Environment:    "development",
		BaseURL:        "http://localhost:8080",
		Host:           "127.0.0.1",
		Port:           0,
		TrustedOrigins: []string{"http://localhost:5173"},
		AuthSecret:     "test-secret",
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	mailer := identity.NewMailer(config.SMTPConfig{}, logger)
	ident := identity.NewService(st, cfg, mailer, logger)
	tokens := service.NewTokenService(st, logger)
	objects := storage.NewMemory()
	limiter := ratelimit.NewMemory()

	srv := New(cfg, "test", st, ident, tokens, objects, limiter, logger)
	return &testEnv{server: srv, store: st, objects: objects, tokens: tokens}
}

func (e *testEnv) do(t *testing.T, method, path string, body io.Reader, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if body != nil && headers["Content-Type"] == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	e.server.ServeHTTP(rr, req)
	return rr
}

// signUp registers the default user and returns the session cookie value.
func (e *testEnv) signUp(t *testing.T) string {
	t.Helper()
	return e.signUpAs(t, testEmail)
}

func (e *testEnv) signUpAs(t *testing.T, email string) string {
	t.Helper()
	body := jsonBody(t, map[string]string{
		"email": email, "password": testPassword, "name": testName,
	})
	rr := e.do(t, "POST", "/api/auth/sign-up", body, nil)
	assertStatus(t, rr, http.StatusCreated)
	return sessionCookie(t, rr)
}

// doSession executes a request authenticated with the session cookie.
func (e *testEnv) doSession(t *testing.T, method, path string, body io.Reader, cookie string) *httptest.ResponseRecorder {
	t.Helper()
	return e.do(t, method, path, body, map[string]string{
		"Cookie": identity.CookieName + "=" + cookie,
	})
}

// doBearer executes a request authenticated with a bearer API token.
func (e *testEnv) doBearer(t *testing.T, method, path string, body io.Reader, token string) *httptest.ResponseRecorder {
	t.Helper()
	return e.do(t, method, path, body, map[string]string{
		"Authorization": "Bearer " + token,
	})
}

// createToken mints an API token over the session and returns its id and
// plaintext secret.
func (e *testEnv) createToken(t *testing.T, cookie, name string) (id, plaintext string) {
	t.Helper()
	rr := e.doSession(t, "POST", "/api/api-tokens", jsonBody(t, map[string]string{"name": name}), cookie)
	assertStatus(t, rr, http.StatusCreated)

	var resp struct {
		Token struct {
			ID       string `json:"id"`
			RawToken string `json:"rawToken"`
		} `json:"token"`
	}
	decodeJSON(t, rr, &resp)
	if resp.Token.RawToken == "" {
		t.Fatal("createToken: rawToken missing from response")
	}
	return resp.Token.ID, resp.Token.RawToken
}

func sessionCookie(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	for _, c := range rr.Result().Cookies() {
		if c.Name == identity.CookieName {
			return c.Value
		}
	}
	t.Fatal("no session cookie in response")
	return ""
}

func jsonBody(t *testing.T, v interface{}) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(v); err != nil {
		t.Fatalf("jsonBody: %v", err)
	}
	return buf
}

func assertStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Fatalf("status = %d, want %d; body = %s", rr.Code, want, rr.Body.String())
	}
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decodeJSON: %v; body = %s", err, rr.Body.String())
	}
}

// ---------------------------------------------------------------------------
// Health
// ---------------------------------------------------------------------------

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "GET", "/api/health", nil, nil)
	assertStatus(t, rr, http.StatusOK)

	var resp struct {
		Status      string            `json:"status"`
		Version     string            `json:"version"`
		Environment string            `json:"environment"`
		Checks      map[string]string `json:"checks"`
	}
	decodeJSON(t, rr, &resp)
	if resp.Status != "ok" {
		t.Errorf("status = %q, want ok", resp.Status)
	}
	if resp.Checks["database"] != "ok" || resp.Checks["storage"] != "ok" {
		t.Errorf("checks = %v", resp.Checks)
	}
	if resp.Version != "test" || resp.Environment != "development" {
		t.Errorf("version = %q environment = %q", resp.Version, resp.Environment)
	}
}

func TestHealth_DegradedStill200(t *testing.T) {
	env := newTestEnv(t)
	env.objects.SetFailing(true)

	rr := env.do(t, "GET", "/api/health", nil, nil)
	assertStatus(t, rr, http.StatusOK)

	var resp struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	decodeJSON(t, rr, &resp)
	if resp.Status != "degraded" {
		t.Errorf("status = %q, want degraded", resp.Status)
	}
	if !strings.HasPrefix(resp.Checks["storage"], "error") {
		t.Errorf("storage check = %q, want error detail", resp.Checks["storage"])
	}
}

// ---------------------------------------------------------------------------
// Auth flow
// ---------------------------------------------------------------------------

func TestSignUpSignInSignOut(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.signUp(t)

	// Session probe works with the cookie.
	rr := env.doSession(t, "GET", "/api/auth/session", nil, cookie)
	assertStatus(t, rr, http.StatusOK)
	var probe struct {
		User struct {
			Email string `json:"email"`
		} `json:"user"`
	}
	decodeJSON(t, rr, &probe)
	if probe.User.Email != testEmail {
		t.Errorf("session user = %q, want %q", probe.User.Email, testEmail)
	}

	// Sign out kills the session.
	rr = env.doSession(t, "POST", "/api/auth/sign-out", nil, cookie)
	assertStatus(t, rr, http.StatusOK)
	rr = env.doSession(t, "GET", "/api/auth/session", nil, cookie)
	assertStatus(t, rr, http.StatusUnauthorized)

	// Sign in again.
	rr = env.do(t, "POST", "/api/auth/sign-in",
		jsonBody(t, map[string]string{"email": testEmail, "password": testPassword}), nil)
	assertStatus(t, rr, http.StatusOK)
	if sessionCookie(t, rr) == cookie {
		t.Error("sign-in should mint a fresh session token")
	}
}

func TestSignIn_WrongPassword(t *testing.T) {
	env := newTestEnv(t)
	env.signUp(t)

	rr := env.do(t, "POST", "/api/auth/sign-in",
		jsonBody(t, map[string]string{"email": testEmail, "password": "wrong"}), nil)
	assertStatus(t, rr, http.StatusUnauthorized)
}

func TestSignUp_Validation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		body map[string]string
		want int
	}{
		{"bad email", map[string]string{"email": "nope", "password": testPassword, "name": "X"}, http.StatusBadRequest},
		{"missing name", map[string]string{"email": "a@b.com", "password": testPassword}, http.StatusBadRequest},
		{"short password", map[string]string{"email": "a@b.com", "password": "short", "name": "X"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, "POST", "/api/auth/sign-up", jsonBody(t, tt.body), nil)
			assertStatus(t, rr, tt.want)
		})
	}
}

func TestProtectedRoutes_Unauthenticated(t *testing.T) {
	env := newTestEnv(t)

	paths := []struct{ method, path string }{
		{"GET", "/api/api-tokens"},
		{"GET", "/api/settings/sessions"},
		{"GET", "/api/organization"},
		{"GET", "/api/settings/preferences"},
		{"PATCH", "/api/settings/profile"},
	}
	for _, p := range paths {
		rr := env.do(t, p.method, p.path, nil, nil)
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("%s %s: status = %d, want 401", p.method, p.path, rr.Code)
		}
		var resp map[string]string
		decodeJSON(t, rr, &resp)
		if resp["error"] != "Unauthorized" {
			t.Errorf("%s %s: body = %v, want uniform error", p.method, p.path, resp)
		}
	}
}

// ---------------------------------------------------------------------------
// API tokens and the dual-mode gate
// ---------------------------------------------------------------------------

func TestAPIToken_BearerAuthenticates(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.signUp(t)
	_, plaintext := env.createToken(t, cookie, "ci")

	rr := env.doBearer(t, "GET", "/api/api-tokens", nil, plaintext)
	assertStatus(t, rr, http.StatusOK)

	var resp struct {
		Tokens []map[string]interface{} `json:"tokens"`
	}
	decodeJSON(t, rr, &resp)
	if len(resp.Tokens) != 1 {
		t.Fatalf("tokens = %d, want 1", len(resp.Tokens))
	}
	// Neither the plaintext nor the hash leak into listings.
	raw, _ := json.Marshal(resp.Tokens)
	if strings.Contains(string(raw), plaintext) {
		t.Error("plaintext token leaked into listing")
	}
	if _, ok := resp.Tokens[0]["tokenHash"]; ok {
		t.Error("token hash leaked into listing")
	}
}

func TestBearer_ShortCircuitsWithoutCookieFallback(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.signUp(t)

	// A garbage bearer token must fail even though a perfectly valid session
	// cookie rides along on the same request.
	rr := env.do(t, "GET", "/api/api-tokens", nil, map[string]string{
		"Authorization": "Bearer gh_garbage",
		"Cookie":        identity.CookieName + "=" + cookie,
	})
	assertStatus(t, rr, http.StatusUnauthorized)

	// Empty bearer value: same story.
	rr = env.do(t, "GET", "/api/api-tokens", nil, map[string]string{
		"Authorization": "Bearer ",
		"Cookie":        identity.CookieName + "=" + cookie,
	})
	assertStatus(t, rr, http.StatusUnauthorized)
}

func TestAPIToken_ManagementNeedsSession(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.signUp(t)
	id, plaintext := env.createToken(t, cookie, "ci")

	// Reading is allowed over bearer auth.
	rr := env.doBearer(t, "GET", "/api/api-tokens", nil, plaintext)
	assertStatus(t, rr, http.StatusOK)

	// Minting and revoking are not.
	rr = env.doBearer(t, "POST", "/api/api-tokens", jsonBody(t, map[string]string{"name": "evil"}), plaintext)
	assertStatus(t, rr, http.StatusForbidden)
	rr = env.doBearer(t, "DELETE", "/api/api-tokens/"+id, nil, plaintext)
	assertStatus(t, rr, http.StatusForbidden)
}

func TestAPIToken_DeleteCrossUserIs404(t *testing.T) {
	env := newTestEnv(t)
	ownerCookie := env.signUp(t)
	id, _ := env.createToken(t, ownerCookie, "ci")

	otherCookie := env.signUpAs(t, "other@example.com")
	rr := env.doSession(t, "DELETE", "/api/api-tokens/"+id, nil, otherCookie)
	assertStatus(t, rr, http.StatusNotFound)

	// Owner can still delete it.
	rr = env.doSession(t, "DELETE", "/api/api-tokens/"+id, nil, ownerCookie)
	assertStatus(t, rr, http.StatusOK)
}

func TestAPIToken_ExpiresAtMustBePositive(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.signUp(t)

	for _, ms := range []int64{0, -5} {
		rr := env.doSession(t, "POST", "/api/api-tokens",
			jsonBody(t, map[string]interface{}{"name": "bad", "expiresAt": ms}), cookie)
		assertStatus(t, rr, http.StatusBadRequest)
	}
}

func TestBearer_ExpiredTokenRejected(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.signUp(t)

	// A past expiry is accepted at creation; the token is just born dead.
	past := int64(1700000000000) // 2023, well in the past
	rr := env.doSession(t, "POST", "/api/api-tokens",
		jsonBody(t, map[string]interface{}{"name": "old", "expiresAt": past}), cookie)
	assertStatus(t, rr, http.StatusCreated)
	var resp struct {
		Token struct {
			RawToken string `json:"rawToken"`
		} `json:"token"`
	}
	decodeJSON(t, rr, &resp)

	rr = env.doBearer(t, "GET", "/api/api-tokens", nil, resp.Token.RawToken)
	assertStatus(t, rr, http.StatusUnauthorized)
}

// ---------------------------------------------------------------------------
// Rate limiting
// ---------------------------------------------------------------------------

func TestRateLimit_PasswordChange(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.signUp(t)

	body := func() *bytes.Buffer {
		return jsonBody(t, map[string]string{
			"currentPassword": "wrong on purpose",
			"newPassword":     "does not matter 1",
		})
	}

	// Quota is 3 per day; the first three get through to the handler.
	for i := 0; i < 3; i++ {
		rr := env.doSession(t, "POST", "/api/settings/password", body(), cookie)
		assertStatus(t, rr, http.StatusUnauthorized) // wrong current password
		if rr.Header().Get("X-RateLimit-Limit") != "3" {
			t.Errorf("X-RateLimit-Limit = %q, want 3", rr.Header().Get("X-RateLimit-Limit"))
		}
		if want := fmt.Sprintf("%d", 2-i); rr.Header().Get("X-RateLimit-Remaining") != want {
			t.Errorf("request %d: X-RateLimit-Remaining = %q, want %q",
				i+1, rr.Header().Get("X-RateLimit-Remaining"), want)
		}
	}

	rr := env.doSession(t, "POST", "/api/settings/password", body(), cookie)
	assertStatus(t, rr, http.StatusTooManyRequests)
	if rr.Header().Get("Retry-After") == "" {
		t.Error("429 must carry Retry-After")
	}
	var resp struct {
		Error      string `json:"error"`
		RetryAfter int    `json:"retryAfter"`
	}
	decodeJSON(t, rr, &resp)
	if resp.Error == "" || resp.RetryAfter <= 0 {
		t.Errorf("429 body = %+v, want machine-readable detail", resp)
	}
}

func TestRateLimit_UnlimitedRoutesUntouched(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.signUp(t)

	rr := env.doSession(t, "GET", "/api/settings/preferences", nil, cookie)
	assertStatus(t, rr, http.StatusOK)
	if rr.Header().Get("X-RateLimit-Limit") != "" {
		t.Error("unlimited route should not carry rate limit headers")
	}
}

// ---------------------------------------------------------------------------
// Settings
// ---------------------------------------------------------------------------

func TestUpdateProfile(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.signUp(t)

	rr := env.doSession(t, "PATCH", "/api/settings/profile",
		jsonBody(t, map[string]string{"name": "Renamed"}), cookie)
	assertStatus(t, rr, http.StatusOK)

	var resp struct {
		User struct {
			Name string `json:"name"`
		} `json:"user"`
	}
	decodeJSON(t, rr, &resp)
	if resp.User.Name != "Renamed" {
		t.Errorf("name = %q, want Renamed", resp.User.Name)
	}

	rr = env.doSession(t, "PATCH", "/api/settings/profile",
		jsonBody(t, map[string]string{"name": strings.Repeat("x", 101)}), cookie)
	assertStatus(t, rr, http.StatusBadRequest)
}

func TestPreferences(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.signUp(t)

	// Defaults before anything is saved.
	rr := env.doSession(t, "GET", "/api/settings/preferences", nil, cookie)
	assertStatus(t, rr, http.StatusOK)
	var resp struct {
		Preferences struct {
			Theme string `json:"theme"`
			Mode  string `json:"mode"`
		} `json:"preferences"`
	}
	decodeJSON(t, rr, &resp)
	if resp.Preferences.Theme != "default" || resp.Preferences.Mode != "system" {
		t.Errorf("defaults = %+v", resp.Preferences)
	}

	rr = env.doSession(t, "PATCH", "/api/settings/preferences",
		jsonBody(t, map[string]string{"theme": "violet", "mode": "dark"}), cookie)
	assertStatus(t, rr, http.StatusOK)

	rr = env.doSession(t, "GET", "/api/settings/preferences", nil, cookie)
	decodeJSON(t, rr, &resp)
	if resp.Preferences.Theme != "violet" || resp.Preferences.Mode != "dark" {
		t.Errorf("after save = %+v", resp.Preferences)
	}

	// Unknown enum value is rejected.
	rr = env.doSession(t, "PATCH", "/api/settings/preferences",
		jsonBody(t, map[string]string{"theme": "hotdog", "mode": "dark"}), cookie)
	assertStatus(t, rr, http.StatusBadRequest)
}

func TestChangeEmail_Conflicts(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.signUp(t)
	env.signUpAs(t, "taken@example.com")

	rr := env.doSession(t, "POST", "/api/settings/email",
		jsonBody(t, map[string]string{"email": testEmail}), cookie)
	assertStatus(t, rr, http.StatusBadRequest)

	rr = env.doSession(t, "POST", "/api/settings/email",
		jsonBody(t, map[string]string{"email": "taken@example.com"}), cookie)
	assertStatus(t, rr, http.StatusConflict)
}

func TestDeleteAccount(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.signUp(t)

	rr := env.doSession(t, "DELETE", "/api/settings/account",
		jsonBody(t, map[string]string{"password": testPassword}), cookie)
	assertStatus(t, rr, http.StatusOK)

	// The session died with the user.
	rr = env.doSession(t, "GET", "/api/settings/sessions", nil, cookie)
	assertStatus(t, rr, http.StatusUnauthorized)
}

// ---------------------------------------------------------------------------
// Sessions surface
// ---------------------------------------------------------------------------

func TestSessions_ListAndRevoke(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.signUp(t)

	// Second session for the same user.
	rr := env.do(t, "POST", "/api/auth/sign-in",
		jsonBody(t, map[string]string{"email": testEmail, "password": testPassword}), nil)
	assertStatus(t, rr, http.StatusOK)

	rr = env.doSession(t, "GET", "/api/settings/sessions", nil, cookie)
	assertStatus(t, rr, http.StatusOK)
	var resp struct {
		Sessions []struct {
			ID        string `json:"id"`
			IsCurrent bool   `json:"isCurrent"`
		} `json:"sessions"`
	}
	decodeJSON(t, rr, &resp)
	if len(resp.Sessions) != 2 {
		t.Fatalf("sessions = %d, want 2", len(resp.Sessions))
	}

	var currentID, otherID string
	for _, s := range resp.Sessions {
		if s.IsCurrent {
			currentID = s.ID
		} else {
			otherID = s.ID
		}
	}
	if currentID == "" || otherID == "" {
		t.Fatalf("expected exactly one current session: %+v", resp.Sessions)
	}

	// Revoking the current session is refused.
	rr = env.doSession(t, "DELETE", "/api/settings/sessions/"+currentID, nil, cookie)
	assertStatus(t, rr, http.StatusBadRequest)

	// Revoking the other one works.
	rr = env.doSession(t, "DELETE", "/api/settings/sessions/"+otherID, nil, cookie)
	assertStatus(t, rr, http.StatusOK)

	rr = env.doSession(t, "GET", "/api/settings/sessions", nil, cookie)
	decodeJSON(t, rr, &resp)
	if len(resp.Sessions) != 1 {
		t.Errorf("sessions after revoke = %d, want 1", len(resp.Sessions))
	}
}

func TestSessions_RevokeAllOthers(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.signUp(t)

	// Two more sessions for the same user.
	for i := 0; i < 2; i++ {
		rr := env.do(t, "POST", "/api/auth/sign-in",
			jsonBody(t, map[string]string{"email": testEmail, "password": testPassword}), nil)
		assertStatus(t, rr, http.StatusOK)
	}

	rr := env.doSession(t, "DELETE", "/api/settings/sessions", nil, cookie)
	assertStatus(t, rr, http.StatusOK)
	var resp struct {
		Revoked int `json:"revoked"`
	}
	decodeJSON(t, rr, &resp)
	if resp.Revoked != 2 {
		t.Errorf("revoked = %d, want 2", resp.Revoked)
	}

	// The requesting session survives.
	rr = env.doSession(t, "GET", "/api/settings/sessions", nil, cookie)
	assertStatus(t, rr, http.StatusOK)
	var list struct {
		Sessions []struct {
			IsCurrent bool `json:"isCurrent"`
		} `json:"sessions"`
	}
	decodeJSON(t, rr, &list)
	if len(list.Sessions) != 1 || !list.Sessions[0].IsCurrent {
		t.Errorf("sessions after revoke-all = %+v, want only the current one", list.Sessions)
	}
}

func TestSessions_BearerHasNoCurrent(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.signUp(t)
	_, plaintext := env.createToken(t, cookie, "ci")

	rr := env.doBearer(t, "GET", "/api/settings/sessions", nil, plaintext)
	assertStatus(t, rr, http.StatusOK)
	var resp struct {
		Sessions []struct {
			IsCurrent bool `json:"isCurrent"`
		} `json:"sessions"`
	}
	decodeJSON(t, rr, &resp)
	for _, s := range resp.Sessions {
		if s.IsCurrent {
			t.Error("bearer-authenticated listing must not mark any session current")
		}
	}
}

// ---------------------------------------------------------------------------
// Organization
// ---------------------------------------------------------------------------

func TestOrganization_LazyCreateAndPatch(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.signUp(t)

	rr := env.doSession(t, "GET", "/api/organization", nil, cookie)
	assertStatus(t, rr, http.StatusOK)
	var resp struct {
		Organization struct {
			ID           string  `json:"id"`
			BusinessName *string `json:"businessName"`
		} `json:"organization"`
	}
	decodeJSON(t, rr, &resp)
	if resp.Organization.ID == "" {
		t.Fatal("first read should create the row")
	}
	if resp.Organization.BusinessName != nil {
		t.Error("fresh row should have null fields")
	}

	rr = env.doSession(t, "PATCH", "/api/organization",
		jsonBody(t, map[string]interface{}{"businessName": "Acme Pty Ltd", "country": "Australia"}), cookie)
	assertStatus(t, rr, http.StatusOK)

	rr = env.doSession(t, "GET", "/api/organization", nil, cookie)
	decodeJSON(t, rr, &resp)
	if resp.Organization.BusinessName == nil || *resp.Organization.BusinessName != "Acme Pty Ltd" {
		t.Errorf("businessName = %v", resp.Organization.BusinessName)
	}

	// Explicit null clears a field.
	rr = env.doSession(t, "PATCH", "/api/organization",
		bytes.NewBufferString(`{"businessName":null}`), cookie)
	assertStatus(t, rr, http.StatusOK)
	rr = env.doSession(t, "GET", "/api/organization", nil, cookie)
	decodeJSON(t, rr, &resp)
	if resp.Organization.BusinessName != nil {
		t.Errorf("businessName should be cleared, got %v", *resp.Organization.BusinessName)
	}
}

// ---------------------------------------------------------------------------
// Avatars
// ---------------------------------------------------------------------------

// pngBytes is a minimal payload http.DetectContentType sniffs as image/png.
var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func multipartAvatar(t *testing.T, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	fw, err := mw.CreateFormFile("avatar", "avatar.png")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	fw.Write(content)
	mw.Close()
	return buf, mw.FormDataContentType()
}

func TestAvatar_UploadServeDelete(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.signUp(t)

	body, contentType := multipartAvatar(t, pngBytes)
	rr := env.do(t, "POST", "/api/settings/avatar", body, map[string]string{
		"Content-Type": contentType,
		"Cookie":       identity.CookieName + "=" + cookie,
	})
	assertStatus(t, rr, http.StatusOK)

	var resp struct {
		AvatarURL string `json:"avatarUrl"`
	}
	decodeJSON(t, rr, &resp)
	if resp.AvatarURL == "" {
		t.Fatal("upload should return the avatar URL")
	}

	// Serving is public, no auth.
	rr = env.do(t, "GET", strings.SplitN(resp.AvatarURL, "?", 2)[0], nil, nil)
	assertStatus(t, rr, http.StatusOK)
	if ct := rr.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %q, want image/png", ct)
	}
	if cc := rr.Header().Get("Cache-Control"); !strings.Contains(cc, "immutable") {
		t.Errorf("Cache-Control = %q, want immutable caching", cc)
	}

	rr = env.doSession(t, "DELETE", "/api/settings/avatar", nil, cookie)
	assertStatus(t, rr, http.StatusOK)
	rr = env.do(t, "GET", strings.SplitN(resp.AvatarURL, "?", 2)[0], nil, nil)
	assertStatus(t, rr, http.StatusNotFound)
}

func TestAvatar_RejectsNonImage(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.signUp(t)

	body, contentType := multipartAvatar(t, []byte("#!/bin/sh\nrm -rf /\n"))
	rr := env.do(t, "POST", "/api/settings/avatar", body, map[string]string{
		"Content-Type": contentType,
		"Cookie":       identity.CookieName + "=" + cookie,
	})
	assertStatus(t, rr, http.StatusBadRequest)
}
