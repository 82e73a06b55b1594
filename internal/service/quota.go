// Package service contains the business logic layer.
//
// This file implements the usage counter store and quota lifecycle:
// provisioning, counter updates, resets and advisory notifications.
package service

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/DukeRupert/hiretrack/internal/domain"
	"github.com/DukeRupert/hiretrack/internal/metrics"
	"github.com/DukeRupert/hiretrack/internal/repository"
	"github.com/google/uuid"
)

// Quota reset reasons, used as metric labels.
const (
	ResetReasonRenewal    = "renewal"
	ResetReasonTierChange = "tier_change"
	ResetReasonDowngrade  = "downgrade"
	ResetReasonPeriodEnd  = "period_end"
	ResetReasonAdmin      = "admin"
)

// maxListedNotifications bounds the notifications returned with a quota.
const maxListedNotifications = 20

// =============================================================================
// Interface Definition
// =============================================================================

// QuotaService manages per-user quota records.
type QuotaService interface {
	// GetOrCreateUserQuota returns the user's quota, provisioning it from the
	// user's current tier if none exists.
	GetOrCreateUserQuota(ctx context.Context, userID string) (*domain.UserQuota, error)

	// CreateInitialQuota provisions one zero counter per service of the
	// user's tier. The reset date is periodEnd when given, otherwise now plus
	// the quota period.
	CreateInitialQuota(ctx context.Context, userID string, periodEnd *time.Time) (*domain.UserQuota, error)

	// GetOrCreateUsage returns the counter for key, creating it at zero.
	GetOrCreateUsage(ctx context.Context, quotaID uuid.UUID, key domain.ServiceKey) (domain.QuotaUsage, error)

	// SetUsage overwrites the counter for key.
	SetUsage(ctx context.Context, quotaID uuid.UUID, key domain.ServiceKey, count int) (domain.QuotaUsage, error)

	// IncrementUsage atomically adds delta unless the result would exceed
	// limit. The bool is false when the increment was refused.
	IncrementUsage(ctx context.Context, quotaID uuid.UUID, key domain.ServiceKey, delta, limit int) (domain.QuotaUsage, bool, error)

	// ResetAll removes every counter except preserve, recreates seed counters
	// at zero and moves the reset date.
	ResetAll(ctx context.Context, userID string, preserve, seed []domain.ServiceKey, resetDate time.Time, periodEnd *time.Time) (*domain.UserQuota, error)

	// ResetQuota starts a new quota period for tier, preserving live-count
	// counters. periodEnd is the billing period end, if known.
	ResetQuota(ctx context.Context, userID string, tier domain.Tier, periodEnd *time.Time, reason string) (*domain.UserQuota, error)

	// DecrementServiceUsage releases amount of previously reserved usage,
	// never going below zero.
	DecrementServiceUsage(ctx context.Context, userID string, key domain.ServiceKey, amount int) error

	// CheckQuotaLimits computes and records advisory notifications.
	CheckQuotaLimits(ctx context.Context, userID string, tier domain.Tier) ([]domain.QuotaNotification, error)

	// RecordNotification stores a threshold notification. Failures are
	// logged and never affect the caller.
	RecordNotification(ctx context.Context, n domain.QuotaNotification)

	// ListNotifications returns the most recent notifications for a quota.
	ListNotifications(ctx context.Context, quotaID uuid.UUID) ([]domain.QuotaNotification, error)

	// ListDueForReset returns users whose quota period ended before now.
	ListDueForReset(ctx context.Context, now time.Time, limit int) ([]string, error)
}

// QuotaServiceConfig holds quota lifecycle settings.
type QuotaServiceConfig struct {
	// Period is the quota period length when no billing period is known.
	Period time.Duration
}

// =============================================================================
// Implementation
// =============================================================================

type quotaService struct {
	quotas QuotaStore
	users  UserStore
	config ConfigService
	period time.Duration
	now    func() time.Time
	logger *slog.Logger
}

// NewQuotaService creates a new QuotaService.
func NewQuotaService(quotas QuotaStore, users UserStore, config ConfigService, cfg QuotaServiceConfig, logger *slog.Logger) QuotaService {
	period := cfg.Period
	if period <= 0 {
		period = domain.DefaultQuotaPeriod
	}
	return &quotaService{
		quotas: quotas,
		users:  users,
		config: config,
		period: period,
		now:    time.Now,
		logger: logger,
	}
}

func (s *quotaService) GetOrCreateUserQuota(ctx context.Context, userID string) (*domain.UserQuota, error) {
	const op = "quota.get_or_create"

	q, err := s.quotas.GetUserQuota(ctx, userID)
	if err == nil {
		return q, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, domain.Internal(err, op, "failed to load user quota")
	}
	return s.CreateInitialQuota(ctx, userID, nil)
}

func (s *quotaService) CreateInitialQuota(ctx context.Context, userID string, periodEnd *time.Time) (*domain.UserQuota, error) {
	const op = "quota.create_initial"

	user, err := s.getUser(ctx, op, userID)
	if err != nil {
		return nil, err
	}
	limits, err := s.tierLimits(ctx, op, user.Tier)
	if err != nil {
		return nil, err
	}

	resetDate := domain.ResetDate(s.now(), periodEnd, s.period)
	q, err := s.quotas.CreateUserQuota(ctx, repository.CreateUserQuotaParams{
		UserID:    userID,
		ResetDate: resetDate,
		PeriodEnd: periodEnd,
		Keys:      limits.Keys(),
	})
	if errors.Is(err, sql.ErrNoRows) {
		// Another request provisioned the quota first.
		q, err = s.quotas.GetUserQuota(ctx, userID)
	}
	if err != nil {
		return nil, domain.Internal(err, op, "failed to create user quota")
	}

	s.logger.Info("User quota created",
		"user_id", userID,
		"tier", user.Tier,
		"services", len(q.Usage),
		"reset_date", q.QuotaResetDate,
	)
	return q, nil
}

func (s *quotaService) GetOrCreateUsage(ctx context.Context, quotaID uuid.UUID, key domain.ServiceKey) (domain.QuotaUsage, error) {
	const op = "quota.get_or_create_usage"

	u, err := s.quotas.GetOrCreateUsage(ctx, quotaID, key)
	if err != nil {
		return domain.QuotaUsage{}, domain.Internal(err, op, "failed to load usage counter")
	}
	return u, nil
}

func (s *quotaService) SetUsage(ctx context.Context, quotaID uuid.UUID, key domain.ServiceKey, count int) (domain.QuotaUsage, error) {
	const op = "quota.set_usage"

	if count < 0 {
		return domain.QuotaUsage{}, domain.Invalid(op, "usage count cannot be negative")
	}
	u, err := s.quotas.SetUsage(ctx, quotaID, key, count)
	if err != nil {
		return domain.QuotaUsage{}, domain.Internal(err, op, "failed to set usage counter")
	}
	return u, nil
}

func (s *quotaService) IncrementUsage(ctx context.Context, quotaID uuid.UUID, key domain.ServiceKey, delta, limit int) (domain.QuotaUsage, bool, error) {
	const op = "quota.increment_usage"

	if delta <= 0 {
		return domain.QuotaUsage{}, false, domain.Invalid(op, "increment must be positive")
	}
	u, err := s.quotas.IncrementUsage(ctx, quotaID, key, delta, limit)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.QuotaUsage{}, false, nil
	}
	if err != nil {
		return domain.QuotaUsage{}, false, err
	}
	return u, true, nil
}

func (s *quotaService) ResetAll(ctx context.Context, userID string, preserve, seed []domain.ServiceKey, resetDate time.Time, periodEnd *time.Time) (*domain.UserQuota, error) {
	const op = "quota.reset_all"

	current, err := s.quotas.GetUserQuota(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.Error{Code: domain.ENOTFOUND, Op: op, Message: "user quota not found", Err: domain.ErrQuotaNotFound}
	}
	if err != nil {
		return nil, domain.Internal(err, op, "failed to load user quota")
	}

	q, err := s.quotas.ResetUserQuota(ctx, repository.ResetUserQuotaParams{
		QuotaID:   current.ID,
		Preserve:  preserve,
		Seed:      seed,
		ResetDate: resetDate,
		PeriodEnd: periodEnd,
	})
	if err != nil {
		return nil, domain.Internal(err, op, "failed to reset user quota")
	}
	return q, nil
}

func (s *quotaService) ResetQuota(ctx context.Context, userID string, tier domain.Tier, periodEnd *time.Time, reason string) (*domain.UserQuota, error) {
	const op = "quota.reset"

	limits, err := s.tierLimits(ctx, op, tier)
	if err != nil {
		return nil, err
	}
	resetDate := domain.ResetDate(s.now(), periodEnd, s.period)

	q, err := s.ResetAll(ctx, userID, domain.PreservedOnReset, limits.Keys(), resetDate, periodEnd)
	if errors.Is(err, domain.ErrQuotaNotFound) {
		// Nothing to reset; provision instead so the new period still applies.
		return s.CreateInitialQuota(ctx, userID, periodEnd)
	}
	if err != nil {
		return nil, err
	}

	metrics.QuotaReset(reason)
	s.logger.Info("User quota reset",
		"user_id", userID,
		"tier", tier,
		"reason", reason,
		"reset_date", resetDate,
	)
	return q, nil
}

func (s *quotaService) DecrementServiceUsage(ctx context.Context, userID string, key domain.ServiceKey, amount int) error {
	const op = "quota.decrement_usage"

	if amount <= 0 {
		return domain.Invalid(op, "decrement must be positive")
	}
	q, err := s.quotas.GetUserQuota(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return &domain.Error{Code: domain.ENOTFOUND, Op: op, Message: "user quota not found", Err: domain.ErrQuotaNotFound}
	}
	if err != nil {
		return domain.Internal(err, op, "failed to load user quota")
	}

	u, err := s.quotas.DecrementUsage(ctx, q.ID, key, amount)
	if errors.Is(err, sql.ErrNoRows) {
		// No counter means nothing was reserved.
		s.logger.Warn("Decrement for missing usage counter", "user_id", userID, "service", key)
		return nil
	}
	if err != nil {
		return domain.Internal(err, op, "failed to decrement usage")
	}

	metrics.Compensation(string(key))
	s.logger.Info("Usage decremented", "user_id", userID, "service", key, "amount", amount, "usage", u.Count)
	return nil
}

func (s *quotaService) CheckQuotaLimits(ctx context.Context, userID string, tier domain.Tier) ([]domain.QuotaNotification, error) {
	const op = "quota.check_limits"

	q, err := s.quotas.GetUserQuota(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.Internal(err, op, "failed to load user quota")
	}
	limits, err := s.tierLimits(ctx, op, tier)
	if err != nil {
		return nil, err
	}

	notifications := domain.CheckNotifications(q, limits)
	if len(notifications) == 0 {
		return nil, nil
	}
	if err := s.quotas.CreateNotifications(ctx, notifications); err != nil {
		return nil, domain.Internal(err, op, "failed to record quota notifications")
	}
	return notifications, nil
}

func (s *quotaService) ListNotifications(ctx context.Context, quotaID uuid.UUID) ([]domain.QuotaNotification, error) {
	const op = "quota.list_notifications"

	n, err := s.quotas.ListNotifications(ctx, quotaID, maxListedNotifications)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to list quota notifications")
	}
	return n, nil
}

func (s *quotaService) ListDueForReset(ctx context.Context, now time.Time, limit int) ([]string, error) {
	const op = "quota.list_due"

	ids, err := s.quotas.ListUserIDsDue(ctx, now, limit)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to list quotas due for reset")
	}
	return ids, nil
}

func (s *quotaService) RecordNotification(ctx context.Context, n domain.QuotaNotification) {
	if err := s.quotas.CreateNotifications(ctx, []domain.QuotaNotification{n}); err != nil {
		s.logger.Warn("Failed to record quota notification", "service", n.Key, "type", n.Type, "error", err)
	}
}

func (s *quotaService) getUser(ctx context.Context, op, userID string) (*domain.User, error) {
	user, err := s.users.GetUser(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.UserNotFound(op, userID)
	}
	if err != nil {
		return nil, domain.Internal(err, op, "failed to load user")
	}
	return user, nil
}

func (s *quotaService) tierLimits(ctx context.Context, op string, tier domain.Tier) (domain.TierLimits, error) {
	cfg, err := s.config.Get(ctx)
	if err != nil {
		return nil, err
	}
	limits, ok := cfg.LimitsFor(tier)
	if !ok {
		s.logger.Error("No tier limits configured", "op", op, "tier", tier)
		return nil, domain.InvalidTierConfiguration(op, tier)
	}
	return limits, nil
}
