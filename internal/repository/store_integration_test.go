package repository

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DukeRupert/hiretrack/internal"
	"github.com/DukeRupert/hiretrack/internal/domain"
)

// testStore connects to TEST_DATABASE_URL and applies migrations. Tests use
// fresh user ids so they can share one database.
func testStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	db, err := sql.Open("pgx", url)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.PingContext(context.Background()))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	require.NoError(t, internal.RunMigrations(db, logger))
	return NewStore(db)
}

// seedQuota creates a user with a quota holding zero counters for keys.
func seedQuota(t *testing.T, s *Store, keys ...domain.ServiceKey) *domain.UserQuota {
	t.Helper()
	ctx := context.Background()
	id := "user_" + uuid.NewString()
	_, err := s.EnsureUser(ctx, id, id+"@example.com", "Test")
	require.NoError(t, err)

	q, err := s.CreateUserQuota(ctx, CreateUserQuotaParams{
		UserID:    id,
		ResetDate: time.Now().Add(domain.DefaultQuotaPeriod),
		Keys:      keys,
	})
	require.NoError(t, err)
	return q
}

func usageCount(t *testing.T, s *Store, userID string, key domain.ServiceKey) (int, bool) {
	t.Helper()
	q, err := s.GetUserQuota(context.Background(), userID)
	require.NoError(t, err)
	for _, u := range q.Usage {
		if u.Key == key {
			return u.Count, true
		}
	}
	return 0, false
}

// incrementConcurrently fires n increments of one at limit and returns how
// many were applied.
func incrementConcurrently(t *testing.T, s *Store, quotaID uuid.UUID, key domain.ServiceKey, n, limit int) int {
	t.Helper()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied int
		errs    []error
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.IncrementUsage(context.Background(), quotaID, key, 1, limit)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				applied++
			case !errors.Is(err, sql.ErrNoRows):
				errs = append(errs, err)
			}
		}()
	}
	wg.Wait()
	require.Empty(t, errs)
	return applied
}

func TestStore_ConcurrentIncrementsStopAtLimit(t *testing.T) {
	s := testStore(t)
	q := seedQuota(t, s, domain.ServiceAIResume)

	applied := incrementConcurrently(t, s, q.ID, domain.ServiceAIResume, 40, 7)
	assert.Equal(t, 7, applied)

	n, ok := usageCount(t, s, q.UserID, domain.ServiceAIResume)
	require.True(t, ok)
	assert.Equal(t, 7, n)
}

func TestStore_UnlimitedIncrementsAlwaysApply(t *testing.T) {
	s := testStore(t)
	q := seedQuota(t, s, domain.ServiceAIJobMatch)

	applied := incrementConcurrently(t, s, q.ID, domain.ServiceAIJobMatch, 25, domain.Unlimited)
	assert.Equal(t, 25, applied)

	n, _ := usageCount(t, s, q.UserID, domain.ServiceAIJobMatch)
	assert.Equal(t, 25, n)
}

func TestStore_IncrementAtMaxLimit(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	q := seedQuota(t, s, domain.ServiceAIResume)

	_, err := s.SetUsage(ctx, q.ID, domain.ServiceAIResume, domain.MaxLimit-1)
	require.NoError(t, err)

	u, err := s.IncrementUsage(ctx, q.ID, domain.ServiceAIResume, 1, domain.MaxLimit)
	require.NoError(t, err)
	assert.Equal(t, domain.MaxLimit, u.Count)

	_, err = s.IncrementUsage(ctx, q.ID, domain.ServiceAIResume, 1, domain.MaxLimit)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestStore_IncrementMissingCounter(t *testing.T) {
	s := testStore(t)
	q := seedQuota(t, s)

	_, err := s.IncrementUsage(context.Background(), q.ID, domain.ServiceAIResume, 1, 5)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestStore_ResetPreservesLiveCounters(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	q := seedQuota(t, s, domain.ServiceJobsCount, domain.ServiceAIResume, domain.ServiceHunterEmailSearch)

	_, err := s.SetUsage(ctx, q.ID, domain.ServiceJobsCount, 4)
	require.NoError(t, err)
	_, err = s.SetUsage(ctx, q.ID, domain.ServiceAIResume, 3)
	require.NoError(t, err)
	_, err = s.SetUsage(ctx, q.ID, domain.ServiceHunterEmailSearch, 2)
	require.NoError(t, err)

	resetDate := time.Now().Add(30 * 24 * time.Hour).Truncate(time.Second)
	reset, err := s.ResetUserQuota(ctx, ResetUserQuotaParams{
		QuotaID:   q.ID,
		Preserve:  []domain.ServiceKey{domain.ServiceJobsCount},
		Seed:      []domain.ServiceKey{domain.ServiceJobsCount, domain.ServiceAIResume, domain.ServiceAICoverLetter},
		ResetDate: resetDate,
		PeriodEnd: &resetDate,
	})
	require.NoError(t, err)
	assert.True(t, resetDate.Equal(reset.QuotaResetDate))
	require.NotNil(t, reset.StripeCurrentPeriodEnd)

	counts := map[domain.ServiceKey]int{}
	for _, u := range reset.Usage {
		counts[u.Key] = u.Count
	}
	assert.Equal(t, map[domain.ServiceKey]int{
		domain.ServiceJobsCount:     4,
		domain.ServiceAIResume:      0,
		domain.ServiceAICoverLetter: 0,
	}, counts, "unseeded counters are dropped")
}

func TestStore_ResetWithNothingPreserved(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	q := seedQuota(t, s, domain.ServiceAIResume)
	_, err := s.SetUsage(ctx, q.ID, domain.ServiceAIResume, 1)
	require.NoError(t, err)

	reset, err := s.ResetUserQuota(ctx, ResetUserQuotaParams{
		QuotaID:   q.ID,
		Seed:      []domain.ServiceKey{domain.ServiceAIResume},
		ResetDate: time.Now().Add(time.Hour),
	})
	require.NoError(t, err)
	require.Len(t, reset.Usage, 1)
	assert.Zero(t, reset.Usage[0].Count)
	assert.Nil(t, reset.StripeCurrentPeriodEnd)
}

func TestStore_CreateUserQuotaOnce(t *testing.T) {
	s := testStore(t)
	q := seedQuota(t, s, domain.ServiceAIResume)

	_, err := s.CreateUserQuota(context.Background(), CreateUserQuotaParams{
		UserID:    q.UserID,
		ResetDate: time.Now(),
		Keys:      []domain.ServiceKey{domain.ServiceAIResume},
	})
	assert.ErrorIs(t, err, sql.ErrNoRows)

	got, err := s.GetUserQuota(context.Background(), q.UserID)
	require.NoError(t, err)
	assert.Equal(t, q.ID, got.ID)
}

func TestStore_WebhookClaim(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	eventID := "evt_" + uuid.NewString()

	first, claimed, err := s.BeginWebhook(ctx, eventID, "invoice.payment_succeeded", []byte(`{"customer_id":"cus_1"}`), time.Minute)
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.EqualValues(t, 1, first.RetryCount)

	again, claimed, err := s.BeginWebhook(ctx, eventID, "invoice.payment_succeeded", nil, time.Minute)
	require.NoError(t, err)
	assert.False(t, claimed, "claim is held by the first delivery")
	assert.EqualValues(t, 1, again.RetryCount)

	require.NoError(t, s.MarkWebhookFailed(ctx, eventID, "stripe timeout"))

	retry, claimed, err := s.BeginWebhook(ctx, eventID, "invoice.payment_succeeded", nil, time.Minute)
	require.NoError(t, err)
	assert.True(t, claimed, "a failed attempt releases the claim")
	assert.EqualValues(t, 2, retry.RetryCount)
	assert.Equal(t, "stripe timeout", retry.Error.String)

	require.NoError(t, s.MarkWebhookProcessed(ctx, eventID))

	done, claimed, err := s.BeginWebhook(ctx, eventID, "invoice.payment_succeeded", nil, time.Minute)
	require.NoError(t, err)
	assert.False(t, claimed)
	assert.True(t, done.Processed)
	assert.EqualValues(t, 2, done.RetryCount)
	assert.False(t, done.Error.Valid)
}

func TestStore_ConcurrentWebhookDeliveriesClaimOnce(t *testing.T) {
	s := testStore(t)
	eventID := "evt_" + uuid.NewString()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		claims  int
		lastErr error
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, claimed, err := s.BeginWebhook(context.Background(), eventID, "customer.subscription.deleted", nil, time.Minute)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				lastErr = err
			}
			if claimed {
				claims++
			}
		}()
	}
	wg.Wait()
	require.NoError(t, lastErr)
	assert.Equal(t, 1, claims)
}
