package csrf

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateToken_Unique(t *testing.T) {
	a, err := GenerateToken()
	require.NoError(t, err)
	b, err := GenerateToken()
	require.NoError(t, err)

	assert.Len(t, a, 44)
	assert.NotEqual(t, a, b)
}

func TestValidateToken(t *testing.T) {
	tests := []struct {
		name      string
		cookie    string
		submitted string
		want      bool
	}{
		{name: "match", cookie: "abc", submitted: "abc", want: true},
		{name: "mismatch", cookie: "abc", submitted: "abd", want: false},
		{name: "empty cookie", cookie: "", submitted: "abc", want: false},
		{name: "empty submitted", cookie: "abc", submitted: "", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidateToken(tt.cookie, tt.submitted))
		})
	}
}

func TestValidateRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/api/billing/checkout", nil)
	r.AddCookie(&http.Cookie{Name: CookieName, Value: "tok"})
	assert.False(t, ValidateRequest(r))

	r.Header.Set(HeaderName, "tok")
	assert.True(t, ValidateRequest(r))
}

func TestEnsureToken(t *testing.T) {
	t.Run("issues cookie when missing", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/api/me", nil)

		token, err := EnsureToken(w, r, true)
		require.NoError(t, err)

		cookies := w.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, CookieName, cookies[0].Name)
		assert.Equal(t, token, cookies[0].Value)
		assert.True(t, cookies[0].Secure)
		assert.False(t, cookies[0].HttpOnly)
		assert.Equal(t, http.SameSiteStrictMode, cookies[0].SameSite)
	})

	t.Run("keeps existing cookie", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/api/me", nil)
		r.AddCookie(&http.Cookie{Name: CookieName, Value: "existing"})

		token, err := EnsureToken(w, r, false)
		require.NoError(t, err)
		assert.Equal(t, "existing", token)
		assert.Empty(t, w.Result().Cookies())
	})
}
