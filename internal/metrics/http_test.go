package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRouteLabel(t *testing.T) {
	t.Run("uses matched pattern", func(t *testing.T) {
		mux := http.NewServeMux()
		var got string
		mux.HandleFunc("GET /api/quota/{service}", func(w http.ResponseWriter, r *http.Request) {
			got = routeLabel(r)
		})
		mux.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/quota/AI_RESUME", nil))
		assert.Equal(t, "GET /api/quota/{service}", got)
	})

	t.Run("unmatched without pattern", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/wp-login.php", nil)
		assert.Equal(t, unmatchedRoute, routeLabel(r))
	})
}

func TestMiddleware_PassesStatus(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/resumes", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("{}"))
	})
	h := Middleware(mux)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/resumes", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestMiddleware_RecordsBodySize(t *testing.T) {
	var rec *statusRecorder
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec = w.(*statusRecorder)
		w.Write([]byte("hello"))
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/me", nil))
	assert.Equal(t, 5, rec.bytes)
	assert.Equal(t, http.StatusOK, rec.status)
}

func TestMiddleware_SkipsProbes(t *testing.T) {
	var wrapped bool
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, wrapped = w.(*statusRecorder)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.False(t, wrapped)
}
