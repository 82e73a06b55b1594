// Package middleware contains HTTP middleware for the hiretrack API.
//
// Middleware functions follow the standard Go pattern of wrapping http.Handler.
// They are designed to be composed using a middleware stack approach.
package middleware

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/DukeRupert/hiretrack/internal/auth"
	"github.com/DukeRupert/hiretrack/internal/domain"
	"github.com/DukeRupert/hiretrack/internal/handler"
)

// SessionCookieName is the cookie the auth provider sets for browser clients.
const SessionCookieName = "__session"

// Verifier verifies a bearer token and returns the principal it asserts.
type Verifier interface {
	Verify(token string) (*auth.Principal, error)
}

// UserLookup loads the stored user for a principal.
type UserLookup interface {
	GetUser(ctx context.Context, id string) (*domain.User, error)
}

// PrincipalMiddleware authenticates requests against the auth provider.
//
// Create one instance and use its methods as middleware.
type PrincipalMiddleware struct {
	verifier    Verifier
	users       UserLookup
	adminEmails map[string]bool
	logger      *slog.Logger
}

// NewPrincipalMiddleware creates a new PrincipalMiddleware. Emails in
// adminEmails are admins regardless of their stored role.
func NewPrincipalMiddleware(verifier Verifier, users UserLookup, adminEmails []string, logger *slog.Logger) *PrincipalMiddleware {
	admins := make(map[string]bool, len(adminEmails))
	for _, e := range adminEmails {
		if e = strings.ToLower(strings.TrimSpace(e)); e != "" {
			admins[e] = true
		}
	}
	return &PrincipalMiddleware{
		verifier:    verifier,
		users:       users,
		adminEmails: admins,
		logger:      logger,
	}
}

// WithPrincipal verifies the request token, if any, and stores the principal
// in the request context. Requests without a valid token continue
// unauthenticated.
//
// The token is read from the Authorization header ("Bearer <token>") and
// falls back to the session cookie.
func (m *PrincipalMiddleware) WithPrincipal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := requestToken(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}

		p, err := m.verifier.Verify(token)
		if err != nil {
			m.logger.Debug("rejected auth token", "error", err, "path", r.URL.Path)
			next.ServeHTTP(w, r)
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.SetPrincipal(r.Context(), p)))
	})
}

// RequirePrincipal rejects requests without an authenticated principal.
//
// IMPORTANT: This middleware must be used AFTER WithPrincipal in the chain.
func (m *PrincipalMiddleware) RequirePrincipal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth.GetPrincipal(r.Context()) == nil {
			handler.UnauthorizedResponse(w, r, m.logger)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin allows principals listed as admin emails or whose stored user
// holds the admin role.
//
// IMPORTANT: Use this AFTER RequirePrincipal in the middleware chain.
func (m *PrincipalMiddleware) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := auth.GetPrincipal(r.Context())
		if p == nil {
			m.logger.Error("RequireAdmin called without principal in context")
			handler.UnauthorizedResponse(w, r, m.logger)
			return
		}

		if m.adminEmails[strings.ToLower(p.Email)] {
			next.ServeHTTP(w, r)
			return
		}

		user, err := m.users.GetUser(r.Context(), p.ID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) || domain.ErrorCode(err) == domain.ENOTFOUND {
				handler.ForbiddenResponse(w, r, m.logger)
				return
			}
			handler.ErrorResponse(w, r, m.logger, err)
			return
		}
		if !user.IsAdmin() {
			m.logger.Warn("non-admin denied admin route", "user_id", p.ID, "path", r.URL.Path)
			handler.ForbiddenResponse(w, r, m.logger)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// requestToken extracts the bearer token or session cookie value.
func requestToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if c, err := r.Cookie(SessionCookieName); err == nil {
		return c.Value
	}
	return ""
}

// Stack composes middlewares so the first one listed runs outermost.
//
// Usage:
//
//	stack := middleware.Stack(pm.WithPrincipal, pm.RequirePrincipal)
//	mux.Handle("GET /api/me", stack(meHandler))
func Stack(middlewares ...func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(final http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}
