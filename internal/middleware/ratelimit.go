package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/DukeRupert/hiretrack/internal/auth"
	"github.com/DukeRupert/hiretrack/internal/handler"
	"github.com/redis/go-redis/v9"
)

// =============================================================================
// Limiters
// =============================================================================

// Limiter counts requests per key in fixed windows.
type Limiter interface {
	// Allow records one request for key. When the request is over the limit
	// the returned duration is the time until the window resets.
	Allow(ctx context.Context, key string) (bool, time.Duration, error)
}

// MemoryLimiter is a process-local fixed-window limiter. It is used when
// Redis is not configured.
type MemoryLimiter struct {
	max    int
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]*window
}

type window struct {
	count int
	start time.Time
}

// NewMemoryLimiter creates a limiter allowing max requests per window.
func NewMemoryLimiter(max int, windowLen time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		max:     max,
		window:  windowLen,
		now:     time.Now,
		entries: make(map[string]*window),
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e, ok := l.entries[key]
	if !ok || now.Sub(e.start) >= l.window {
		l.entries[key] = &window{count: 1, start: now}
		l.sweep(now)
		return true, 0, nil
	}
	if e.count < l.max {
		e.count++
		return true, 0, nil
	}
	return false, l.window - now.Sub(e.start), nil
}

// sweep drops expired windows. Called with mu held.
func (l *MemoryLimiter) sweep(now time.Time) {
	for k, e := range l.entries {
		if now.Sub(e.start) >= l.window {
			delete(l.entries, k)
		}
	}
}

// RedisLimiter shares fixed windows across replicas.
type RedisLimiter struct {
	client *redis.Client
	prefix string
	max    int
	window time.Duration
}

// NewRedisLimiter creates a Redis-backed limiter. Keys are namespaced by prefix.
func NewRedisLimiter(client *redis.Client, prefix string, max int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{client: client, prefix: prefix, max: max, window: window}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	k := fmt.Sprintf("hiretrack:ratelimit:%s:%s", l.prefix, key)

	var incr *redis.IntCmd
	var ttl *redis.DurationCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, k)
		ttl = pipe.PTTL(ctx, k)
		return nil
	})
	if err != nil {
		return false, 0, fmt.Errorf("rate limit incr: %w", err)
	}

	// A key without expiry is either new or lost its EXPIRE.
	remaining := ttl.Val()
	if remaining < 0 {
		if err := l.client.PExpire(ctx, k, l.window).Err(); err != nil {
			return false, 0, fmt.Errorf("rate limit expire: %w", err)
		}
		remaining = l.window
	}

	if int(incr.Val()) > l.max {
		return false, remaining, nil
	}
	return true, 0, nil
}

// =============================================================================
// Rate Limit Middleware
// =============================================================================

// RateLimitMiddleware wraps a limiter for use as HTTP middleware.
type RateLimitMiddleware struct {
	limiter Limiter
	logger  *slog.Logger
}

// NewRateLimitMiddleware creates a new rate limit middleware.
func NewRateLimitMiddleware(limiter Limiter, logger *slog.Logger) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		limiter: limiter,
		logger:  logger,
	}
}

// Limit returns middleware that rate limits requests per principal, or per
// client IP for unauthenticated requests. Limiter failures let the request
// through.
func (m *RateLimitMiddleware) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := limitKey(r)

		allowed, retryAfter, err := m.limiter.Allow(r.Context(), key)
		if err != nil {
			m.logger.Warn("rate limiter unavailable", "error", err, "path", r.URL.Path)
			next.ServeHTTP(w, r)
			return
		}
		if allowed {
			next.ServeHTTP(w, r)
			return
		}

		m.logger.Warn("rate limit exceeded",
			"key", key,
			"path", r.URL.Path,
			"method", r.Method,
		)

		secs := int(retryAfter.Seconds())
		if secs < 1 {
			secs = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(secs))

		var body handler.JSONError
		body.Error.Code = "rate_limited"
		body.Error.Message = "Too many requests. Please try again later."
		handler.WriteJSON(w, http.StatusTooManyRequests, body)
	})
}

func limitKey(r *http.Request) string {
	if p := auth.GetPrincipal(r.Context()); p != nil {
		return "user:" + p.ID
	}
	return "ip:" + getClientIP(r)
}

// =============================================================================
// Helpers
// =============================================================================

// getClientIP extracts the client IP from the request, considering proxy headers.
func getClientIP(r *http.Request) string {
	// X-Forwarded-For can contain multiple IPs: client, proxy1, proxy2
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
