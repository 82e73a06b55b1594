package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	_, _ = w.Write([]byte("metrics data"))
})

func TestMetricsAuthMiddleware(t *testing.T) {
	mw := NewMetricsAuthMiddleware("prom", "secret123")

	tests := []struct {
		name  string
		setup func(r *http.Request)
		want  int
	}{
		{"valid", func(r *http.Request) { r.SetBasicAuth("prom", "secret123") }, http.StatusOK},
		{"missing", func(*http.Request) {}, http.StatusUnauthorized},
		{"wrong user", func(r *http.Request) { r.SetBasicAuth("admin", "secret123") }, http.StatusUnauthorized},
		{"wrong password", func(r *http.Request) { r.SetBasicAuth("prom", "secret12") }, http.StatusUnauthorized},
		{"empty", func(r *http.Request) { r.SetBasicAuth("", "") }, http.StatusUnauthorized},
		{"bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer secret123") }, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
			tt.setup(req)
			rec := httptest.NewRecorder()

			mw.Handler(okHandler).ServeHTTP(rec, req)

			assert.Equal(t, tt.want, rec.Code)
			if tt.want == http.StatusUnauthorized {
				assert.Equal(t, `Basic realm="metrics"`, rec.Header().Get("WWW-Authenticate"))
				assert.NotContains(t, rec.Body.String(), "metrics data")
			}
		})
	}
}

func TestMetricsAuthMiddleware_DisabledWithoutCredentials(t *testing.T) {
	mw := NewMetricsAuthMiddleware("", "")
	rec := httptest.NewRecorder()

	mw.Handler(okHandler).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "metrics data", rec.Body.String())
}
