// Package service contains the business logic layer.
//
// This file implements reconciliation of cached subscription state with the
// billing provider.
package service

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/DukeRupert/hiretrack/internal/domain"
	"github.com/DukeRupert/hiretrack/internal/metrics"
)

// DefaultReconcileTimeout bounds a single billing provider lookup.
const DefaultReconcileTimeout = 10 * time.Second

// Reconciler keeps a user's tier and subscription fields eventually
// consistent with the billing provider.
type Reconciler interface {
	// Sync reconciles when the cached state is stale. Failures are logged
	// and absorbed; the returned user is the freshest persisted state.
	Sync(ctx context.Context, user *domain.User) *domain.User

	// Reconcile compares against the billing provider unconditionally and
	// returns any failure to the caller. When the subscription change was
	// persisted but the quota reset failed, both the persisted user and the
	// error are returned.
	Reconcile(ctx context.Context, userID string) (*domain.User, error)
}

// ReconcilerConfig holds reconciliation settings.
type ReconcilerConfig struct {
	Policy  domain.ReconcilePolicy
	Timeout time.Duration
}

type reconciler struct {
	users   UserStore
	quotas  QuotaService
	billing SubscriptionFetcher
	policy  domain.ReconcilePolicy
	timeout time.Duration
	now     func() time.Time
	logger  *slog.Logger
}

// NewReconciler creates a new Reconciler. A nil billing fetcher disables
// opportunistic syncs.
func NewReconciler(users UserStore, quotas QuotaService, billing SubscriptionFetcher, cfg ReconcilerConfig, logger *slog.Logger) Reconciler {
	policy := cfg.Policy
	if policy.CheckInterval <= 0 || policy.ExpiryWindow <= 0 {
		policy = domain.DefaultReconcilePolicy()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultReconcileTimeout
	}
	return &reconciler{
		users:   users,
		quotas:  quotas,
		billing: billing,
		policy:  policy,
		timeout: timeout,
		now:     time.Now,
		logger:  logger,
	}
}

func (r *reconciler) Sync(ctx context.Context, user *domain.User) *domain.User {
	if r.billing == nil || !user.NeedsSubscriptionCheck(r.now(), r.policy) {
		return user
	}
	updated, err := r.reconcile(ctx, user)
	if err != nil {
		if updated != nil {
			r.logger.Error("Subscription state saved but quota reset failed",
				"user_id", user.ID,
				"tier", updated.Tier,
				"error", err,
			)
			return updated
		}
		r.logger.Warn("Subscription reconciliation failed, using cached state",
			"user_id", user.ID,
			"subscription_id", user.SubscriptionID,
			"error", err,
		)
		return user
	}
	return updated
}

func (r *reconciler) Reconcile(ctx context.Context, userID string) (*domain.User, error) {
	const op = "reconcile.explicit"

	user, err := r.users.GetUser(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.UserNotFound(op, userID)
	}
	if err != nil {
		return nil, domain.Internal(err, op, "failed to load user")
	}
	if !user.HasSubscription() {
		return user, nil
	}
	if r.billing == nil {
		return nil, domain.Errorf(domain.EUNAVAILABLE, op, "billing is not configured")
	}
	return r.reconcile(ctx, user)
}

func (r *reconciler) reconcile(ctx context.Context, user *domain.User) (*domain.User, error) {
	const op = "reconcile.subscription"

	lookupCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	sub, err := r.billing.RetrieveSubscription(lookupCtx, user.SubscriptionID)
	elapsed := time.Since(start)
	if err != nil {
		metrics.Reconciliation(metrics.ReconcileFailed, elapsed)
		return nil, domain.Wrap(err, domain.EUNAVAILABLE, op, "billing provider unavailable")
	}

	now := r.now()
	periodEnd := sub.CurrentPeriodEnd

	if sub.Lapsed(now) {
		upd := domain.SubscriptionUpdate{
			Tier:              domain.TierFree,
			SubscriptionID:    user.SubscriptionID,
			Status:            sub.Status,
			CurrentPeriodEnd:  &periodEnd,
			CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
			CheckedAt:         &now,
		}
		if sub.Status.Terminal() {
			upd.SubscriptionID = ""
		}
		updated, err := r.users.UpdateSubscription(ctx, user.ID, upd)
		if err != nil {
			return nil, domain.Internal(err, op, "failed to persist subscription state")
		}
		if user.Tier != domain.TierFree {
			if _, err := r.quotas.ResetQuota(ctx, user.ID, domain.TierFree, nil, ResetReasonDowngrade); err != nil {
				return updated, err
			}
		}
		metrics.Reconciliation(metrics.ReconcileDowngrade, elapsed)
		r.logger.Info("Subscription lapsed, downgraded to free",
			"user_id", user.ID,
			"previous_tier", user.Tier,
			"status", sub.Status,
			"period_end", periodEnd,
		)
		return updated, nil
	}

	tier := user.Tier
	if sub.Tier.Valid() {
		tier = sub.Tier
	}

	if !sub.Differs(user) && tier == user.Tier {
		if err := r.users.TouchSubscriptionCheck(ctx, user.ID, now); err != nil {
			return nil, domain.Internal(err, op, "failed to record subscription check")
		}
		metrics.Reconciliation(metrics.ReconcileUnchanged, elapsed)
		checked := *user
		checked.SubscriptionCheckedAt = &now
		return &checked, nil
	}

	updated, err := r.users.UpdateSubscription(ctx, user.ID, domain.SubscriptionUpdate{
		Tier:              tier,
		SubscriptionID:    user.SubscriptionID,
		Status:            sub.Status,
		CurrentPeriodEnd:  &periodEnd,
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		CheckedAt:         &now,
	})
	if err != nil {
		return nil, domain.Internal(err, op, "failed to persist subscription state")
	}

	renewed := user.CurrentPeriodEnd != nil && periodEnd.After(*user.CurrentPeriodEnd)
	switch {
	case tier != user.Tier:
		if _, err := r.quotas.ResetQuota(ctx, user.ID, tier, &periodEnd, ResetReasonTierChange); err != nil {
			return updated, err
		}
	case renewed:
		if _, err := r.quotas.ResetQuota(ctx, user.ID, tier, &periodEnd, ResetReasonRenewal); err != nil {
			return updated, err
		}
	}

	metrics.Reconciliation(metrics.ReconcileUpdated, elapsed)
	r.logger.Info("Subscription state reconciled",
		"user_id", user.ID,
		"tier", tier,
		"status", sub.Status,
		"period_end", periodEnd,
		"cancel_at_period_end", sub.CancelAtPeriodEnd,
		"renewed", renewed,
	)
	return updated, nil
}
