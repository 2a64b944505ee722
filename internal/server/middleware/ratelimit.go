package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/httprate"

	"github.com/gatehouseio/gatehouse/internal/ratelimit"
)

// RouteLimit configures the quota for one method+path.
type RouteLimit struct {
	Limit  int
	Window time.Duration
}

// DefaultRouteLimits throttles the abuse-prone settings endpoints.
func DefaultRouteLimits() map[string]RouteLimit {
	day := 24 * time.Hour
	return map[string]RouteLimit{
		"POST:/api/settings/password":   {Limit: 3, Window: day},
		"POST:/api/settings/email":      {Limit: 5, Window: day},
		"DELETE:/api/settings/account":  {Limit: 1, Window: day},
		"POST:/api/settings/avatar":     {Limit: 10, Window: time.Hour},
		"POST:/api/api-tokens":          {Limit: 10, Window: day},
	}
}

// RateLimit returns a middleware enforcing per-client quotas on the
// configured routes. Unconfigured routes pass through untouched. Every
// response on a limited route carries X-RateLimit-Limit, -Remaining and
// -Reset headers; a rejected request gets 429 with Retry-After.
func RateLimit(limiter ratelimit.Limiter, limits map[string]RouteLimit) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			routeKey := r.Method + ":" + r.URL.Path
			cfg, ok := limits[routeKey]
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			now := time.Now()
			res := limiter.Check(routeKey+":"+ClientIP(r), cfg.Limit, cfg.Window)

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))

			if !res.Allowed {
				retryAfter := res.RetryAfter(now)
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				fmt.Fprintf(w, `{"error":"Too many requests","message":"Rate limit exceeded. Try again in %s.","retryAfter":%d}`,
					formatRetryAfter(retryAfter), retryAfter)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// AuthThrottle is a coarse per-IP limit for the /api/auth/* surface, the
// first line against credential stuffing.
func AuthThrottle(requestsPerMinute int) func(http.Handler) http.Handler {
	return httprate.LimitByIP(requestsPerMinute, time.Minute)
}

// ClientIP identifies the caller for rate-limiting purposes. The chain is
// CF-Connecting-IP, then the first X-Forwarded-For entry, then a constant
// for fully-local requests.
//
// Both headers are attacker-controllable unless a reverse proxy is
// guaranteed to overwrite them. Deployments without a trusted proxy
// boundary can spoof their way past per-client limits; that risk is
// accepted here rather than papered over.
func ClientIP(r *http.Request) string {
	if ip := r.Header.Get("CF-Connecting-IP"); ip != "" {
		return ip
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	return "local"
}

func formatRetryAfter(seconds int) string {
	switch {
	case seconds < 60:
		return fmt.Sprintf("%d seconds", seconds)
	case seconds < 3600:
		return plural((seconds+59)/60, "minute")
	default:
		return plural((seconds+3599)/3600, "hour")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
