package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gatehouseio/gatehouse/internal/identity"
	"github.com/gatehouseio/gatehouse/internal/model"
	"github.com/gatehouseio/gatehouse/internal/service"
)

type contextKeyAuth string

// AuthPrincipalKey is the context key for the authenticated principal.
const AuthPrincipalKey contextKeyAuth = "auth_principal"

// AuthMethod records which of the two authentication paths succeeded.
type AuthMethod string

const (
	MethodSession  AuthMethod = "session"
	MethodAPIToken AuthMethod = "api-token"
)

// Principal is the verified identity attached to the request context.
type Principal struct {
	UserID string
	User   model.UserProjection
	Method AuthMethod

	// SessionToken is set only for session-authenticated requests; the
	// sessions endpoints use it to recognize the caller's current session.
	SessionToken string
}

// Authenticate returns the dual-mode authentication gate. Exactly one of two
// methods is attempted per request:
//
//  1. If an Authorization: Bearer header is present, the bearer token path
//     runs and its failure is final. An invalid bearer token never falls
//     back to cookie auth; ambiguous requests are rejected rather than
//     silently downgraded.
//  2. Otherwise the session cookie is verified by the identity service.
//
// Failures are a uniform 401 that does not reveal which half failed. On
// success the Principal is attached to the request context.
func Authenticate(ident *identity.Service, tokens *service.TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
				raw := strings.TrimSpace(authHeader[len("bearer "):])
				if raw == "" {
					writeUnauthorized(w)
					return
				}
				token, user, err := tokens.Validate(r.Context(), raw)
				if err != nil {
					writeUnauthorized(w)
					return
				}
				principal := &Principal{
					UserID: token.UserID,
					User:   user.Projection(),
					Method: MethodAPIToken,
				}
				next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), principal)))
				return
			}

			cookie, err := r.Cookie(identity.CookieName)
			if err != nil {
				writeUnauthorized(w)
				return
			}
			user, sess, err := ident.VerifySession(r.Context(), cookie.Value)
			if err != nil {
				writeUnauthorized(w)
				return
			}
			principal := &Principal{
				UserID:       user.ID,
				User:         user.Projection(),
				Method:       MethodSession,
				SessionToken: sess.Token,
			}
			next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), principal)))
		})
	}
}

// GetPrincipal extracts the authenticated principal from the context.
// Returns nil for unauthenticated requests.
func GetPrincipal(ctx context.Context) *Principal {
	if p, ok := ctx.Value(AuthPrincipalKey).(*Principal); ok {
		return p
	}
	return nil
}

func withPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, AuthPrincipalKey, p)
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"Unauthorized"}`))
}
