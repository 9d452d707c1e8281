package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"camwatch/internal/config"
	"camwatch/internal/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenFromAuthorizationHeader(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/cameras", nil)
	r.Header.Set("Authorization", "Bearer abc-123")
	assert.Equal(t, "abc-123", Token(r))
}

func TestTokenFromQueryParameter(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/stream?token=abc-123", nil)
	assert.Equal(t, "abc-123", Token(r))
}

func TestTokenHeaderWinsOverQuery(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/stream?token=from-query", nil)
	r.Header.Set("Authorization", "Bearer from-header")
	assert.Equal(t, "from-header", Token(r))
}

func TestTokenMissing(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/cameras", nil)
	assert.Empty(t, Token(r))

	// A non-bearer scheme is not a session token.
	r.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	assert.Empty(t, Token(r))
}

func TestUsernameAbsentFromContext(t *testing.T) {
	assert.Empty(t, Username(context.Background()))
}

func TestRateLimitRejectsBursts(t *testing.T) {
	log := logger.NewLogger(&config.Config{LogDirectory: t.TempDir()})
	handler := RateLimit(2, log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	codes := make([]int, 0, 4)
	for i := 0; i < 4; i++ {
		r := httptest.NewRequest(http.MethodPost, "/api/login", nil)
		r.RemoteAddr = "10.0.0.1:1234"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		codes = append(codes, w.Code)
	}

	assert.Equal(t, http.StatusOK, codes[0])
	assert.Equal(t, http.StatusOK, codes[1])
	assert.Contains(t, codes[2:], http.StatusTooManyRequests)

	// A different client address has its own bucket.
	r := httptest.NewRequest(http.MethodPost, "/api/login", nil)
	r.RemoteAddr = "10.0.0.2:1234"
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimitDisabledForNonPositiveRate(t *testing.T) {
	log := logger.NewLogger(&config.Config{LogDirectory: t.TempDir()})

	for _, perMin := range []int{0, -1} {
		handler := RateLimit(perMin, log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

		for i := 0; i < 20; i++ {
			r := httptest.NewRequest(http.MethodPost, "/api/login", nil)
			r.RemoteAddr = "10.0.0.1:1234"
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, r)
			require.Equal(t, http.StatusOK, w.Code)
		}
	}
}
