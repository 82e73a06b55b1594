package service

import (
	"context"
	"testing"
	"time"

	"github.com/DukeRupert/hiretrack/internal/cache"
	"github.com/DukeRupert/hiretrack/internal/domain"
	"github.com/sethvargo/go-retry"
	"github.com/stretchr/testify/mock"
)

// mockFetcher is a testify mock of the billing provider lookup.
type mockFetcher struct {
	mock.Mock
}

func (m *mockFetcher) RetrieveSubscription(ctx context.Context, id string) (*domain.ExternalSubscription, error) {
	args := m.Called(ctx, id)
	sub, _ := args.Get(0).(*domain.ExternalSubscription)
	return sub, args.Error(1)
}

// testEnv wires the services over a shared memStore.
type testEnv struct {
	store        *memStore
	fetcher      *mockFetcher
	config       ConfigService
	quotas       QuotaService
	reconciler   Reconciler
	entitlements EntitlementService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := newMemStore()
	fetcher := &mockFetcher{}
	logger := discardLogger()

	config := NewConfigService(store, cache.Nop{}, logger)
	quotas := NewQuotaService(store, store, config, QuotaServiceConfig{}, logger)
	reconciler := NewReconciler(store, quotas, fetcher, ReconcilerConfig{}, logger)
	entitlements := NewEntitlementService(store, config, quotas, reconciler, store, logger)
	entitlements.(*entitlementService).backoff = func() retry.Backoff {
		return retry.WithMaxRetries(3, retry.NewConstant(time.Millisecond))
	}

	t.Cleanup(func() { fetcher.AssertExpectations(t) })
	return &testEnv{
		store:        store,
		fetcher:      fetcher,
		config:       config,
		quotas:       quotas,
		reconciler:   reconciler,
		entitlements: entitlements,
	}
}
