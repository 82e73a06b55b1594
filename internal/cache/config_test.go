package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/DukeRupert/hiretrack/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Requires a reachable Redis; set TEST_REDIS_URL to run.
func TestRedisConfigCache(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	ctx := context.Background()

	client, err := NewRedisClient(ctx, url)
	require.NoError(t, err)
	defer client.Close()

	c := NewRedisConfigCache(client, time.Minute)
	require.NoError(t, c.Invalidate(ctx))

	got, err := c.Get(ctx)
	require.NoError(t, err)
	assert.Nil(t, got, "miss returns nil")

	cfg := domain.DefaultQuotaConfig()
	require.NoError(t, c.Set(ctx, cfg))

	got, err = c.Get(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, cfg.TierLimits, got.TierLimits)

	require.NoError(t, c.Invalidate(ctx))
	got, err = c.Get(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestNop(t *testing.T) {
	var c ConfigCache = Nop{}
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, domain.DefaultQuotaConfig()))
	got, err := c.Get(ctx)
	assert.NoError(t, err)
	assert.Nil(t, got)
}
