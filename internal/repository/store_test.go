package repository

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DukeRupert/hiretrack/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigRoundTrip(t *testing.T) {
	cfg := domain.DefaultQuotaConfig()
	tierLimits, services, err := encodeConfig(cfg)
	require.NoError(t, err)

	got, err := decodeConfig(QuotaConfig{ID: 1, TierLimits: tierLimits, Services: services})
	require.NoError(t, err)
	assert.Equal(t, cfg.TierLimits, got.TierLimits)
	assert.Equal(t, cfg.Services, got.Services)
}

func TestDecodeConfig_RejectsInvalid(t *testing.T) {
	tests := []struct {
		name       string
		tierLimits string
		services   string
	}{
		{name: "malformed json", tierLimits: `{"free":`, services: `{}`},
		{name: "unknown tier", tierLimits: `{"gold":{}}`, services: `{}`},
		{name: "undefined service", tierLimits: `{"free":{"AI_RESUME":{"limit":1}}}`, services: `{}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeConfig(QuotaConfig{
				TierLimits: json.RawMessage(tt.tierLimits),
				Services:   json.RawMessage(tt.services),
			})
			assert.Error(t, err)
		})
	}
}

func TestNullHelpers(t *testing.T) {
	assert.False(t, toNullString("").Valid)
	assert.Equal(t, "cus_1", nullStringValue(toNullString("cus_1")))

	now := time.Now()
	assert.False(t, toNullTime(nil).Valid)
	assert.Equal(t, now, *nullTimeValue(toNullTime(&now)))
}

func TestIncrementUsage_RejectsOutOfRangeArguments(t *testing.T) {
	// The range check runs before any query, so no database is needed.
	s := NewStore(nil)
	ctx := context.Background()

	tests := []struct {
		name         string
		delta, limit int
	}{
		{name: "limit wraps to unlimited", delta: 1, limit: 4294967295},
		{name: "limit wraps negative", delta: 1, limit: domain.MaxLimit + 1},
		{name: "limit below unlimited", delta: 1, limit: -2},
		{name: "negative delta", delta: -1, limit: 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.IncrementUsage(ctx, uuid.New(), domain.ServiceAIResume, tt.delta, tt.limit)
			assert.ErrorContains(t, err, "out of range")
		})
	}
}
