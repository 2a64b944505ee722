package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gatehouseio/gatehouse/internal/ratelimit"
)

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{"no headers", nil, "local"},
		{"cloudflare header wins", map[string]string{
			"CF-Connecting-IP": "203.0.113.7", "X-Forwarded-For": "198.51.100.1",
		}, "203.0.113.7"},
		{"first forwarded entry", map[string]string{
			"X-Forwarded-For": "198.51.100.1, 10.0.0.1, 10.0.0.2",
		}, "198.51.100.1"},
		{"forwarded entry is trimmed", map[string]string{
			"X-Forwarded-For": "  198.51.100.1  ,10.0.0.1",
		}, "198.51.100.1"},
		{"empty forwarded falls through", map[string]string{
			"X-Forwarded-For": "  ",
		}, "local"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if got := ClientIP(r); got != tt.want {
				t.Errorf("ClientIP = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRateLimit_OnlyConfiguredRoutes(t *testing.T) {
	limits := map[string]RouteLimit{
		"POST:/limited": {Limit: 2, Window: time.Hour},
	}
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	h := RateLimit(ratelimit.NewMemory(), limits)(next)

	// Unlimited route: no headers, always passes.
	for i := 0; i < 5; i++ {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest("POST", "/other", nil))
		if rr.Code != http.StatusNoContent {
			t.Fatalf("unlimited route: status = %d", rr.Code)
		}
		if rr.Header().Get("X-RateLimit-Limit") != "" {
			t.Fatal("unlimited route should not carry rate limit headers")
		}
	}

	// Limited route: 2 pass, third is rejected.
	for i := 0; i < 2; i++ {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest("POST", "/limited", nil))
		if rr.Code != http.StatusNoContent {
			t.Fatalf("request %d: status = %d", i+1, rr.Code)
		}
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("POST", "/limited", nil))
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Error("429 must carry Retry-After")
	}
	if !strings.Contains(rr.Body.String(), "retryAfter") {
		t.Errorf("429 body should be machine readable: %s", rr.Body.String())
	}
}

func TestRateLimit_SeparatesClients(t *testing.T) {
	limits := map[string]RouteLimit{"POST:/limited": {Limit: 1, Window: time.Hour}}
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	h := RateLimit(ratelimit.NewMemory(), limits)(next)

	reqA := httptest.NewRequest("POST", "/limited", nil)
	reqA.Header.Set("CF-Connecting-IP", "203.0.113.1")
	reqB := httptest.NewRequest("POST", "/limited", nil)
	reqB.Header.Set("CF-Connecting-IP", "203.0.113.2")

	h.ServeHTTP(httptest.NewRecorder(), reqA)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, reqB)
	if rr.Code == http.StatusTooManyRequests {
		t.Error("client B should not be throttled by client A's quota")
	}
}

func TestRequestID(t *testing.T) {
	var seen string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	})
	h := RequestID(next)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))
	if seen == "" {
		t.Error("request ID should be generated")
	}
	if rr.Header().Get("X-Request-ID") != seen {
		t.Error("request ID should be echoed on the response")
	}

	// A reasonable client-provided ID is honored.
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Request-ID", "trace-123")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if seen != "trace-123" {
		t.Errorf("request ID = %q, want client-provided trace-123", seen)
	}

	// An oversized one is replaced.
	req = httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Request-ID", strings.Repeat("x", 65))
	h.ServeHTTP(httptest.NewRecorder(), req)
	if seen == strings.Repeat("x", 65) {
		t.Error("oversized request ID should be replaced")
	}
}

func TestSecurityHeaders(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	rr := httptest.NewRecorder()
	SecurityHeaders(false)(next).ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))
	if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("nosniff missing")
	}
	if rr.Header().Get("Strict-Transport-Security") != "" {
		t.Error("HSTS must not be set outside production")
	}

	rr = httptest.NewRecorder()
	SecurityHeaders(true)(next).ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))
	if rr.Header().Get("Strict-Transport-Security") == "" {
		t.Error("HSTS missing in production")
	}
}
