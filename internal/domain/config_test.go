package domain

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultQuotaConfig_Valid(t *testing.T) {
	cfg := DefaultQuotaConfig()
	require.NoError(t, cfg.Validate())

	for _, tier := range Tiers {
		_, ok := cfg.LimitsFor(tier)
		assert.True(t, ok, "tier %s", tier)
	}
}

func TestQuotaConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*QuotaConfig)
		field  string
	}{
		{
			name:   "unknown tier",
			mutate: func(c *QuotaConfig) { c.TierLimits["enterprise"] = TierLimits{} },
			field:  "tierLimits.enterprise",
		},
		{
			name:   "limit below unlimited",
			mutate: func(c *QuotaConfig) { c.TierLimits[TierFree][ServiceAIResume] = ServiceLimit{Limit: -2} },
			field:  "tierLimits.free.AI_RESUME",
		},
		{
			name:   "limit above storage range",
			mutate: func(c *QuotaConfig) { c.TierLimits[TierFree][ServiceAIResume] = ServiceLimit{Limit: 4294967295} },
			field:  "tierLimits.free.AI_RESUME",
		},
		{
			name:   "limit just above max",
			mutate: func(c *QuotaConfig) { c.TierLimits[TierPro][ServiceAIResume] = ServiceLimit{Limit: MaxLimit + 1} },
			field:  "tierLimits.pro.AI_RESUME",
		},
		{
			name:   "limit without service definition",
			mutate: func(c *QuotaConfig) { c.TierLimits[TierPro]["GHOST"] = ServiceLimit{Limit: 1} },
			field:  "tierLimits.pro.GHOST",
		},
		{
			name:   "malformed service key",
			mutate: func(c *QuotaConfig) { c.Services["bad-key"] = ServiceDefinition{Name: "x"} },
			field:  "services.bad-key",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultQuotaConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)

			var ve *ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Contains(t, ve.Fields, tt.field)
			assert.Equal(t, EINVALID, ErrorCode(err))
		})
	}
}

func TestQuotaConfig_MaxLimitIsAllowed(t *testing.T) {
	cfg := DefaultQuotaConfig()
	cfg.TierLimits[TierPower][ServiceAIResume] = ServiceLimit{Limit: MaxLimit}
	assert.NoError(t, cfg.Validate())
}

func TestQuotaConfig_MissingTierIsAllowed(t *testing.T) {
	cfg := DefaultQuotaConfig()
	delete(cfg.TierLimits, TierPower)

	assert.NoError(t, cfg.Validate())
	_, ok := cfg.LimitsFor(TierPower)
	assert.False(t, ok)
}

func TestQuotaConfig_AddRemoveService(t *testing.T) {
	cfg := DefaultQuotaConfig()

	cfg.AddService("INTERVIEW_PREP", ServiceDefinition{Name: "Interview prep"})
	def, ok := cfg.Service("INTERVIEW_PREP")
	require.True(t, ok)
	assert.True(t, def.Active)
	for _, tier := range Tiers {
		limit, ok := cfg.TierLimits[tier].Limit("INTERVIEW_PREP")
		assert.True(t, ok)
		assert.Equal(t, 0, limit)
	}
	require.NoError(t, cfg.Validate())

	cfg.RemoveService("INTERVIEW_PREP")
	_, ok = cfg.Services["INTERVIEW_PREP"]
	assert.False(t, ok)
	for _, tier := range Tiers {
		_, ok := cfg.TierLimits[tier].Limit("INTERVIEW_PREP")
		assert.False(t, ok)
	}
}

func TestQuotaConfig_ServiceInactive(t *testing.T) {
	cfg := DefaultQuotaConfig()
	def := cfg.Services[ServiceAIResume]
	def.Active = false
	cfg.Services[ServiceAIResume] = def

	_, ok := cfg.Service(ServiceAIResume)
	assert.False(t, ok)
	_, ok = cfg.Service("NONEXISTENT_KEY")
	assert.False(t, ok)
}

func TestQuotaConfig_CloneDoesNotAlias(t *testing.T) {
	cfg := DefaultQuotaConfig()
	cp := cfg.Clone()
	cp.TierLimits[TierFree][ServiceAIResume] = ServiceLimit{Limit: 99}
	cp.Services[ServiceAIResume] = ServiceDefinition{Name: "changed"}

	limit, _ := cfg.TierLimits[TierFree].Limit(ServiceAIResume)
	assert.Equal(t, 1, limit)
	assert.Equal(t, "AI resume", cfg.Services[ServiceAIResume].Name)
}

func TestQuotaConfig_JSONShape(t *testing.T) {
	raw := `{"free":{"AI_RESUME":{"limit":1}},"power":{"JOBS_SAVED":{"limit":-1}}}`
	var limits map[Tier]TierLimits
	require.NoError(t, json.Unmarshal([]byte(raw), &limits))

	limit, ok := limits[TierFree].Limit(ServiceAIResume)
	assert.True(t, ok)
	assert.Equal(t, 1, limit)
	limit, _ = limits[TierPower].Limit(ServiceJobsSaved)
	assert.Equal(t, Unlimited, limit)
}
