package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DukeRupert/hiretrack/internal/auth"
	"github.com/DukeRupert/hiretrack/internal/domain"
	"github.com/DukeRupert/hiretrack/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func accountMux(h *AccountHandler) *http.ServeMux {
	mux := http.NewServeMux()
	h.RegisterRoutes(mux, passthrough)
	return mux
}

func TestListTiers(t *testing.T) {
	cfg := domain.DefaultQuotaConfig()
	cfg.Services[domain.ServiceAIJobMatch] = domain.ServiceDefinition{Name: "Job match", Active: false}
	h := NewAccountHandler(&mockProfiles{}, &mockEntitlements{}, &mockConfig{cfg: cfg}, discardLogger())

	rec := httptest.NewRecorder()
	accountMux(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tiers", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Tiers []struct {
			Tier   domain.Tier `json:"tier"`
			Name   string      `json:"name"`
			Limits map[string]struct {
				Limit int `json:"limit"`
			} `json:"limits"`
		} `json:"tiers"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Tiers, 3)
	assert.Equal(t, domain.TierFree, body.Tiers[0].Tier)
	assert.Equal(t, "Free", body.Tiers[0].Name)

	free := body.Tiers[0].Limits
	want, _ := cfg.TierLimits[domain.TierFree].Limit(domain.ServiceResumeUpload)
	assert.Equal(t, want, free[string(domain.ServiceResumeUpload)].Limit)
	_, listed := free[string(domain.ServiceAIJobMatch)]
	assert.False(t, listed, "inactive services are hidden")
}

func TestListTiers_ConfigUnavailable(t *testing.T) {
	err := domain.Wrap(domain.ErrConfigUnavailable, domain.EINTERNAL, "config.get", "quota configuration unavailable")
	h := NewAccountHandler(&mockProfiles{}, &mockEntitlements{}, &mockConfig{err: err}, discardLogger())

	rec := httptest.NewRecorder()
	accountMux(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tiers", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestMe(t *testing.T) {
	var ensured []string
	profiles := &mockProfiles{
		EnsureUserFunc: func(_ context.Context, id, email, name string) (*domain.User, error) {
			ensured = append(ensured, id+"|"+email)
			return &domain.User{ID: id}, nil
		},
		GetHeaderDataFunc: func(_ context.Context, userID string) (*service.HeaderData, error) {
			return &service.HeaderData{UserID: userID, Tier: domain.TierPro, TierName: "Pro"}, nil
		},
	}
	h := NewAccountHandler(profiles, &mockEntitlements{}, &mockConfig{}, discardLogger())

	rec := httptest.NewRecorder()
	accountMux(h).ServeHTTP(rec, withPrincipal(httptest.NewRequest(http.MethodGet, "/api/me", nil), "u1"))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"u1|u1@example.com"}, ensured)
	var body service.HeaderData
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "u1", body.UserID)
	assert.Equal(t, "Pro", body.TierName)
}

func TestMe_Errors(t *testing.T) {
	t.Run("anonymous", func(t *testing.T) {
		h := NewAccountHandler(&mockProfiles{}, &mockEntitlements{}, &mockConfig{}, discardLogger())
		rec := httptest.NewRecorder()
		accountMux(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/me", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("missing tier limits", func(t *testing.T) {
		profiles := &mockProfiles{GetHeaderDataFunc: func(context.Context, string) (*service.HeaderData, error) {
			return nil, domain.InvalidTierConfiguration("profile.header_data", domain.TierPower)
		}}
		h := NewAccountHandler(profiles, &mockEntitlements{}, &mockConfig{}, discardLogger())
		rec := httptest.NewRecorder()
		accountMux(h).ServeHTTP(rec, withPrincipal(httptest.NewRequest(http.MethodGet, "/api/me", nil), "u1"))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotContains(t, rec.Body.String(), "power")
	})
}

func TestCheckQuota(t *testing.T) {
	var gotKey domain.ServiceKey
	var gotAction domain.QuotaAction
	ent := &mockEntitlements{VerifyTierAccessFunc: func(ctx context.Context, key domain.ServiceKey, action domain.QuotaAction) (domain.QuotaCheck, error) {
		gotKey, gotAction = key, action
		if auth.GetPrincipal(ctx) == nil {
			return domain.Deny(domain.DenialUnauthorized), nil
		}
		if key == domain.ServiceAIResume {
			return domain.QuotaCheck{Allowed: false, Used: 3, Limit: 3, Reason: domain.DenialQuotaExceeded}, nil
		}
		return domain.QuotaCheck{}, errors.New("boom")
	}}
	h := NewAccountHandler(&mockProfiles{}, ent, &mockConfig{}, discardLogger())

	rec := httptest.NewRecorder()
	accountMux(h).ServeHTTP(rec, withPrincipal(httptest.NewRequest(http.MethodGet, "/api/quota/AI_RESUME", nil), "u1"))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.ServiceAIResume, gotKey)
	assert.Equal(t, domain.ActionCheck, gotAction)
	assert.JSONEq(t, `{"service":"AI_RESUME","quota":{"allowed":false,"remaining":0,"limit":3,"used":3,"reason":"quota_exceeded"}}`, rec.Body.String())

	t.Run("malformed key", func(t *testing.T) {
		rec := httptest.NewRecorder()
		accountMux(h).ServeHTTP(rec, withPrincipal(httptest.NewRequest(http.MethodGet, "/api/quota/ai-resume", nil), "u1"))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("gate failure", func(t *testing.T) {
		rec := httptest.NewRecorder()
		accountMux(h).ServeHTTP(rec, withPrincipal(httptest.NewRequest(http.MethodGet, "/api/quota/JOBS_SAVED", nil), "u1"))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}
