package middleware

import (
	"log/slog"
	"net/http"

	"github.com/DukeRupert/hiretrack/internal/csrf"
	"github.com/DukeRupert/hiretrack/internal/domain"
	"github.com/DukeRupert/hiretrack/internal/handler"
)

// CSRFMiddleware guards cookie-authenticated writes with a double-submit
// token. Requests carrying an Authorization header or no session cookie
// are not ambient-credentialed and pass through.
type CSRFMiddleware struct {
	isSecure bool
	logger   *slog.Logger
}

// NewCSRFMiddleware creates a new CSRFMiddleware.
func NewCSRFMiddleware(isSecure bool, logger *slog.Logger) *CSRFMiddleware {
	return &CSRFMiddleware{isSecure: isSecure, logger: logger}
}

// Handler issues a token on safe requests and verifies it on unsafe ones.
func (m *CSRFMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		const op = "csrf.verify"

		if !cookieAuthenticated(r) {
			next.ServeHTTP(w, r)
			return
		}

		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			if _, err := csrf.EnsureToken(w, r, m.isSecure); err != nil {
				m.logger.Error("Failed to issue CSRF token", "error", err)
			}
			next.ServeHTTP(w, r)
			return
		}

		if !csrf.ValidateRequest(r) {
			m.logger.Warn("CSRF token mismatch", "method", r.Method, "path", r.URL.Path)
			handler.ErrorResponse(w, r, m.logger, domain.Forbidden(op, "Missing or invalid CSRF token"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// cookieAuthenticated reports whether the request's credentials come from
// the session cookie.
func cookieAuthenticated(r *http.Request) bool {
	if r.Header.Get("Authorization") != "" {
		return false
	}
	c, err := r.Cookie(SessionCookieName)
	return err == nil && c.Value != ""
}
