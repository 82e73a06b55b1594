// Package service contains the business logic layer.
//
// This file declares the storage and collaborator contracts the services
// depend on. *repository.Store satisfies every store interface.
package service

import (
	"context"
	"time"

	"github.com/DukeRupert/hiretrack/internal/domain"
	"github.com/DukeRupert/hiretrack/internal/repository"
	"github.com/google/uuid"
)

// ConfigStore persists the singleton quota configuration.
// GetConfig and UpdateConfig return sql.ErrNoRows when the row is absent.
type ConfigStore interface {
	GetConfig(ctx context.Context) (*domain.QuotaConfig, error)
	InsertConfigIfAbsent(ctx context.Context, cfg *domain.QuotaConfig) (bool, error)
	UpdateConfig(ctx context.Context, fn func(*domain.QuotaConfig) error) (*domain.QuotaConfig, error)
}

// QuotaStore persists user quotas, usage counters and notifications.
// Methods return sql.ErrNoRows for missing records; IncrementUsage also
// returns it when the increment would exceed the limit.
type QuotaStore interface {
	GetUserQuota(ctx context.Context, userID string) (*domain.UserQuota, error)
	CreateUserQuota(ctx context.Context, arg repository.CreateUserQuotaParams) (*domain.UserQuota, error)
	GetOrCreateUsage(ctx context.Context, quotaID uuid.UUID, key domain.ServiceKey) (domain.QuotaUsage, error)
	SetUsage(ctx context.Context, quotaID uuid.UUID, key domain.ServiceKey, count int) (domain.QuotaUsage, error)
	IncrementUsage(ctx context.Context, quotaID uuid.UUID, key domain.ServiceKey, delta, limit int) (domain.QuotaUsage, error)
	DecrementUsage(ctx context.Context, quotaID uuid.UUID, key domain.ServiceKey, amount int) (domain.QuotaUsage, error)
	ResetUserQuota(ctx context.Context, arg repository.ResetUserQuotaParams) (*domain.UserQuota, error)
	ListUserIDsDue(ctx context.Context, before time.Time, limit int) ([]string, error)
	CreateNotifications(ctx context.Context, notifications []domain.QuotaNotification) error
	ListNotifications(ctx context.Context, quotaID uuid.UUID, limit int) ([]domain.QuotaNotification, error)
	ListUnsentNotifications(ctx context.Context, limit int) ([]repository.PendingNotification, error)
	MarkNotificationSent(ctx context.Context, id uuid.UUID, at time.Time) error
}

// UserStore persists users and their cached subscription state.
type UserStore interface {
	GetUser(ctx context.Context, id string) (*domain.User, error)
	GetUserByCustomerID(ctx context.Context, customerID string) (*domain.User, error)
	EnsureUser(ctx context.Context, id, email, name string) (*domain.User, error)
	UpdateSubscription(ctx context.Context, id string, upd domain.SubscriptionUpdate) (*domain.User, error)
	TouchSubscriptionCheck(ctx context.Context, id string, checkedAt time.Time) error
	SetStripeCustomer(ctx context.Context, id, customerID string) error
}

// WebhookStore records processed billing events for idempotency.
// BeginWebhook reports whether the caller now holds the event's claim.
type WebhookStore interface {
	BeginWebhook(ctx context.Context, eventID, eventType string, metadata []byte, claimTTL time.Duration) (repository.WebhookEvent, bool, error)
	MarkWebhookProcessed(ctx context.Context, eventID string) error
	MarkWebhookFailed(ctx context.Context, eventID, message string) error
}

// JobCounter supplies the live count of a user's non-archived job records.
type JobCounter interface {
	CountActiveJobs(ctx context.Context, userID string) (int, error)
}

// SubscriptionFetcher looks up the billing provider's view of a subscription.
type SubscriptionFetcher interface {
	RetrieveSubscription(ctx context.Context, subscriptionID string) (*domain.ExternalSubscription, error)
}

var (
	_ ConfigStore  = (*repository.Store)(nil)
	_ QuotaStore   = (*repository.Store)(nil)
	_ UserStore    = (*repository.Store)(nil)
	_ WebhookStore = (*repository.Store)(nil)
	_ JobCounter   = (*repository.Store)(nil)
)
