package service

import (
	"context"
	"testing"
	"time"

	"github.com/DukeRupert/hiretrack/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfileService_GetHeaderData(t *testing.T) {
	env := newTestEnv(t)
	svc := NewProfileService(env.store, env.config, env.quotas, env.reconciler, discardLogger())
	ctx := context.Background()

	_, err := svc.EnsureUser(ctx, "u1", " Jo@Example.com ", "Jo")
	require.NoError(t, err)

	_, err = env.entitlements.Verify(ctx, "u1", domain.ServiceAIResume, domain.ActionIncrement)
	require.NoError(t, err)

	data, err := svc.GetHeaderData(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "jo@example.com", data.Email)
	assert.Equal(t, "Jo", data.Name)
	assert.Equal(t, domain.TierFree, data.Tier)
	assert.Equal(t, "Free", data.TierName)
	assert.Len(t, data.Usage, len(domain.DefaultQuotaConfig().TierLimits[domain.TierFree]))

	var resume domain.ServiceUsage
	for _, u := range data.Usage {
		if u.Key == domain.ServiceAIResume {
			resume = u
		}
	}
	assert.Equal(t, domain.ServiceUsage{Key: domain.ServiceAIResume, Name: "AI resume", Used: 1, Limit: 1, Remaining: 0}, resume)

	// Reaching the AI resume limit recorded an exceeded notification.
	require.Len(t, data.Notifications, 1)
	assert.Equal(t, domain.NotificationExceeded, data.Notifications[0].Type)
}

func TestProfileService_TierNameShowsPendingCancellation(t *testing.T) {
	env := newTestEnv(t)
	svc := NewProfileService(env.store, env.config, env.quotas, env.reconciler, discardLogger())

	end := time.Date(2026, time.January, 2, 0, 0, 0, 0, time.UTC)
	checked := time.Now()
	env.store.addUser(domain.User{
		ID:                    "u1",
		Tier:                  domain.TierPro,
		SubscriptionStatus:    domain.SubscriptionStatusActive,
		CancelAtPeriodEnd:     true,
		CurrentPeriodEnd:      &end,
		SubscriptionCheckedAt: &checked,
	})

	data, err := svc.GetHeaderData(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "Pro (Cancels on Jan 2, 2026)", data.TierName)
	assert.Empty(t, data.Notifications)
}

func TestProfileService_Errors(t *testing.T) {
	env := newTestEnv(t)
	svc := NewProfileService(env.store, env.config, env.quotas, env.reconciler, discardLogger())

	_, err := svc.GetHeaderData(context.Background(), "ghost")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)

	_, err = svc.EnsureUser(context.Background(), "  ", "a@b.c", "")
	assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
}
