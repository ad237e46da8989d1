package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type stubLimiter struct {
	allowed bool
	keys    []string
}

func (s *stubLimiter) CheckLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Time) {
	s.keys = append(s.keys, key)
	return s.allowed, time.Now().Add(window)
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestIPRateLimitMiddleware(t *testing.T) {
	t.Run("allows under the limit", func(t *testing.T) {
		limiter := &stubLimiter{allowed: true}
		m := NewIPRateLimitMiddleware(limiter, 5, time.Minute)

		req := httptest.NewRequest(http.MethodGet, "/v1/ws", nil)
		req.RemoteAddr = "203.0.113.7:5123"
		rec := httptest.NewRecorder()
		m.Handler(okHandler()).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []string{"connect:203.0.113.7"}, limiter.keys)
	})

	t.Run("rejects over the limit", func(t *testing.T) {
		m := NewIPRateLimitMiddleware(&stubLimiter{allowed: false}, 5, time.Minute)

		req := httptest.NewRequest(http.MethodGet, "/v1/ws", nil)
		rec := httptest.NewRecorder()
		m.Handler(okHandler()).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.NotEmpty(t, rec.Header().Get("Retry-After"))
		assert.Contains(t, rec.Body.String(), "RATE_LIMIT_EXCEEDED")
	})

	t.Run("zero limit disables the check", func(t *testing.T) {
		limiter := &stubLimiter{allowed: false}
		m := NewIPRateLimitMiddleware(limiter, 0, time.Minute)

		rec := httptest.NewRecorder()
		m.Handler(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/ws", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, limiter.keys)
	})
}

func TestBodyLimitMiddleware(t *testing.T) {
	m := NewBodyLimitMiddleware(8)

	t.Run("rejects declared oversize body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("0123456789"))
		rec := httptest.NewRecorder()
		m.Handler(okHandler()).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	})

	t.Run("passes small body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("ok"))
		rec := httptest.NewRecorder()
		m.Handler(okHandler()).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestSecurityHeadersMiddleware(t *testing.T) {
	t.Run("development", func(t *testing.T) {
		rec := httptest.NewRecorder()
		NewSecurityHeadersMiddleware(false).Handler(okHandler()).
			ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
		assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
		assert.Empty(t, rec.Header().Get("Strict-Transport-Security"))
	})

	t.Run("production adds hsts", func(t *testing.T) {
		rec := httptest.NewRecorder()
		NewSecurityHeadersMiddleware(true).Handler(okHandler()).
			ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Contains(t, rec.Header().Get("Strict-Transport-Security"), "max-age=")
	})
}

func TestRequestLogger(t *testing.T) {
	handler := RequestLogger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
}
