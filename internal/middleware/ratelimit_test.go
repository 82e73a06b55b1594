package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DukeRupert/hiretrack/internal/auth"
	"github.com/DukeRupert/hiretrack/internal/handler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLimiter(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l := NewMemoryLimiter(3, time.Minute)
	l.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		ok, _, err := l.Allow(ctx, "a")
		require.NoError(t, err)
		assert.True(t, ok, "request %d", i+1)
	}

	ok, retry, err := l.Allow(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, time.Minute, retry)

	ok, _, _ = l.Allow(ctx, "b")
	assert.True(t, ok, "keys are independent")

	now = now.Add(40 * time.Second)
	_, retry, _ = l.Allow(ctx, "a")
	assert.Equal(t, 20*time.Second, retry)

	now = now.Add(20 * time.Second)
	ok, _, _ = l.Allow(ctx, "a")
	assert.True(t, ok, "window reset")

	l.mu.Lock()
	_, kept := l.entries["b"]
	l.mu.Unlock()
	assert.False(t, kept, "expired windows are swept")
}

type stubLimiter struct {
	keys    []string
	allowed bool
	retry   time.Duration
	err     error
}

func (s *stubLimiter) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	s.keys = append(s.keys, key)
	return s.allowed, s.retry, s.err
}

func TestRateLimitMiddleware(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	t.Run("allowed", func(t *testing.T) {
		l := &stubLimiter{allowed: true}
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/resumes", nil)
		req.RemoteAddr = "10.0.0.1:555"

		NewRateLimitMiddleware(l, discardLogger()).Limit(next).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, []string{"ip:10.0.0.1"}, l.keys)
	})

	t.Run("denied", func(t *testing.T) {
		l := &stubLimiter{retry: 1500 * time.Millisecond}
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/billing/checkout", nil)
		req = req.WithContext(auth.SetPrincipal(req.Context(), &auth.Principal{ID: "user_1"}))

		NewRateLimitMiddleware(l, discardLogger()).Limit(next).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, "1", rec.Header().Get("Retry-After"))
		assert.Equal(t, []string{"user:user_1"}, l.keys)

		var body handler.JSONError
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "rate_limited", body.Error.Code)
	})

	t.Run("limiter failure lets request through", func(t *testing.T) {
		l := &stubLimiter{err: errors.New("redis down")}
		rec := httptest.NewRecorder()

		NewRateLimitMiddleware(l, discardLogger()).Limit(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/me", nil))

		assert.Equal(t, http.StatusNoContent, rec.Code)
	})
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"remote addr", nil, "192.0.2.1:1234", "192.0.2.1"},
		{"remote without port", nil, "192.0.2.1", "192.0.2.1"},
		{"forwarded chain", map[string]string{"X-Forwarded-For": "203.0.113.5, 10.0.0.1"}, "10.0.0.1:1", "203.0.113.5"},
		{"real ip", map[string]string{"X-Real-IP": " 198.51.100.7 "}, "10.0.0.1:1", "198.51.100.7"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, getClientIP(req))
		})
	}
}
