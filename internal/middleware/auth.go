// Package middleware gates facade operations on session tokens and rate
// limits the credential endpoints.
package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"camwatch/internal/logger"

	"golang.org/x/time/rate"
)

type contextKey string

const contextUsernameKey contextKey = "username"

// Validator validates session tokens; satisfied by the session manager.
type Validator interface {
	Validate(token string) (string, error)
	ValidateAdmin(token string) (string, error)
}

// Token extracts the session token from the Authorization header or the
// token query parameter.
func Token(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

// Username returns the session username stored by the middleware.
func Username(ctx context.Context) string {
	username, _ := ctx.Value(contextUsernameKey).(string)
	return username
}

// Session rejects requests without a valid session token and stores the
// owning username in the request context.
func Session(sessions Validator, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			username, err := sessions.Validate(Token(r))
			if err != nil {
				log.Warning("Rejected request to %s: %v", r.URL.Path, err)
				http.Error(w, "Invalid or expired session", http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), contextUsernameKey, username)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Admin additionally requires the admin role.
func Admin(sessions Validator, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			username, err := sessions.ValidateAdmin(Token(r))
			if err != nil {
				log.Warning("Rejected admin request to %s: %v", r.URL.Path, err)
				http.Error(w, "Invalid session or insufficient permissions", http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), contextUsernameKey, username)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RateLimit applies a per-client-address token bucket, sized to perMin
// requests per minute. A non-positive perMin disables limiting. Used on
// the credential endpoints.
func RateLimit(perMin int, log *logger.Logger) func(http.Handler) http.Handler {
	if perMin <= 0 {
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	var (
		mu       sync.Mutex
		limiters = make(map[string]*rate.Limiter)
	)

	limiterFor := func(addr string) *rate.Limiter {
		mu.Lock()
		defer mu.Unlock()
		l, ok := limiters[addr]
		if !ok {
			l = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMin)), perMin)
			limiters[addr] = l
		}
		return l
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			host, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				host = r.RemoteAddr
			}
			if !limiterFor(host).Allow() {
				log.Warning("Rate limited %s on %s", host, r.URL.Path)
				http.Error(w, "Too many requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
