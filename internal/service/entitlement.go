// Package service contains the business logic layer.
//
// This file implements the entitlement gate, the single check every paid
// feature action performs before doing work.
package service

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/DukeRupert/hiretrack/internal/auth"
	"github.com/DukeRupert/hiretrack/internal/domain"
	"github.com/DukeRupert/hiretrack/internal/metrics"
	"github.com/DukeRupert/hiretrack/internal/repository"
	"github.com/sethvargo/go-retry"
)

// =============================================================================
// Interface Definition
// =============================================================================

// EntitlementService gates feature access on tier limits.
//
// A denial is returned as a QuotaCheck with Allowed false; errors are
// reserved for infrastructure faults and missing prerequisite records.
type EntitlementService interface {
	// Verify decides whether userID may use key. For ActionIncrement an
	// allowed decision has already been recorded against the user's quota
	// and reports the post-increment state; checks report the current state.
	Verify(ctx context.Context, userID string, key domain.ServiceKey, action domain.QuotaAction) (domain.QuotaCheck, error)

	// VerifyTierAccess verifies for the principal in ctx. An unauthenticated
	// context is denied without consulting storage.
	VerifyTierAccess(ctx context.Context, key domain.ServiceKey, action domain.QuotaAction) (domain.QuotaCheck, error)

	// DecrementServiceUsage releases usage reserved by an increment whose
	// paid operation then failed.
	DecrementServiceUsage(ctx context.Context, userID string, key domain.ServiceKey, amount int) error
}

// =============================================================================
// Implementation
// =============================================================================

type entitlementService struct {
	users      UserStore
	config     ConfigService
	quotas     QuotaService
	reconciler Reconciler
	jobs       JobCounter
	backoff    func() retry.Backoff
	logger     *slog.Logger
}

// NewEntitlementService creates a new EntitlementService.
func NewEntitlementService(users UserStore, config ConfigService, quotas QuotaService, reconciler Reconciler, jobs JobCounter, logger *slog.Logger) EntitlementService {
	return &entitlementService{
		users:      users,
		config:     config,
		quotas:     quotas,
		reconciler: reconciler,
		jobs:       jobs,
		backoff:    defaultIncrementBackoff,
		logger:     logger,
	}
}

// defaultIncrementBackoff retries transient storage conflicts a few times.
// Each attempt re-evaluates the limit inside the conditional update.
func defaultIncrementBackoff() retry.Backoff {
	return retry.WithMaxRetries(3, retry.WithJitter(5*time.Millisecond, retry.NewExponential(10*time.Millisecond)))
}

func (s *entitlementService) VerifyTierAccess(ctx context.Context, key domain.ServiceKey, action domain.QuotaAction) (domain.QuotaCheck, error) {
	p := auth.GetPrincipal(ctx)
	if p == nil {
		metrics.EntitlementDecision(string(key), string(action), metrics.OutcomeUnauthorized)
		return domain.Deny(domain.DenialUnauthorized), nil
	}
	return s.Verify(ctx, p.ID, key, action)
}

func (s *entitlementService) Verify(ctx context.Context, userID string, key domain.ServiceKey, action domain.QuotaAction) (domain.QuotaCheck, error) {
	const op = "entitlement.verify"

	if userID == "" {
		metrics.EntitlementDecision(string(key), string(action), metrics.OutcomeUnauthorized)
		return domain.Deny(domain.DenialUnauthorized), nil
	}
	if !action.Valid() {
		return domain.QuotaCheck{}, domain.Invalid(op, "action must be check or increment")
	}

	check, err := s.verify(ctx, userID, key, action)
	if err != nil {
		metrics.EntitlementDecision(string(key), string(action), metrics.OutcomeError)
		return domain.QuotaCheck{}, err
	}

	outcome := metrics.OutcomeAllowed
	switch {
	case check.Reason == domain.DenialServiceUnavailable:
		outcome = metrics.OutcomeUnavailable
	case !check.Allowed:
		outcome = metrics.OutcomeDenied
	}
	metrics.EntitlementDecision(string(key), string(action), outcome)
	return check, nil
}

func (s *entitlementService) verify(ctx context.Context, userID string, key domain.ServiceKey, action domain.QuotaAction) (domain.QuotaCheck, error) {
	const op = "entitlement.verify"

	user, err := s.users.GetUser(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.QuotaCheck{}, domain.UserNotFound(op, userID)
	}
	if err != nil {
		return domain.QuotaCheck{}, domain.Internal(err, op, "failed to load user")
	}

	// Opportunistic; a failed sync leaves the cached tier in place.
	user = s.reconciler.Sync(ctx, user)

	cfg, err := s.config.Get(ctx)
	if err != nil {
		return domain.QuotaCheck{}, err
	}

	q, err := s.quotas.GetOrCreateUserQuota(ctx, user.ID)
	if err != nil {
		return domain.QuotaCheck{}, err
	}

	if _, ok := cfg.Service(key); !ok {
		s.logger.Warn("Access to unavailable service", "user_id", user.ID, "service", key)
		return domain.Deny(domain.DenialServiceUnavailable), nil
	}

	limits, ok := cfg.LimitsFor(user.Tier)
	if !ok {
		s.logger.Error("No tier limits configured", "op", op, "user_id", user.ID, "tier", user.Tier)
		return domain.QuotaCheck{}, domain.InvalidTierConfiguration(op, user.Tier)
	}
	limit, ok := limits.Limit(key)
	if !ok {
		s.logger.Warn("Service not offered on tier", "user_id", user.ID, "tier", user.Tier, "service", key)
		return domain.Deny(domain.DenialServiceUnavailable), nil
	}

	usage, err := s.quotas.GetOrCreateUsage(ctx, q.ID, key)
	if err != nil {
		return domain.QuotaCheck{}, err
	}

	current := usage.Count
	if key.LiveCount() {
		current, err = s.syncLiveCount(ctx, user.ID, usage)
		if err != nil {
			return domain.QuotaCheck{}, err
		}
		// Live counts are owned by their collaborator and never consumed here.
		action = domain.ActionCheck
	}

	eval := domain.Evaluate(current, limit, action)
	if action == domain.ActionCheck || !eval.Allowed {
		if !eval.Allowed {
			s.logger.Info("Quota exhausted",
				"user_id", user.ID,
				"tier", user.Tier,
				"service", key,
				"used", eval.Used,
				"limit", eval.Limit,
			)
		}
		return domain.CheckFromEvaluation(eval, false), nil
	}

	updated, applied, err := s.increment(ctx, usage, limit)
	if err != nil {
		return domain.QuotaCheck{}, domain.Internal(err, op, "failed to record usage")
	}
	if !applied {
		// A concurrent request consumed the remaining allowance between the
		// evaluation and the conditional update.
		metrics.IncrementConflict(string(key))
		latest, err := s.quotas.GetOrCreateUsage(ctx, q.ID, key)
		if err != nil {
			return domain.QuotaCheck{}, err
		}
		denied := domain.CheckFromEvaluation(domain.Evaluate(latest.Count, limit, domain.ActionIncrement), false)
		denied.Allowed = false
		denied.Reason = domain.DenialQuotaExceeded
		s.logger.Info("Quota increment lost to concurrent request", "user_id", user.ID, "service", key, "used", latest.Count, "limit", limit)
		return denied, nil
	}

	eval.NewUsage = updated.Count
	if domain.CrossedThreshold(updated.Count-1, updated.Count, limit) {
		if n, ok := domain.NotificationFor(key, updated.Count, limit); ok {
			n.UserQuotaID = q.ID
			s.quotas.RecordNotification(ctx, n)
		}
	}

	s.logger.Debug("Quota consumed", "user_id", user.ID, "service", key, "usage", updated.Count, "limit", limit)
	return domain.CheckFromEvaluation(eval, true), nil
}

// syncLiveCount overwrites the stored counter with the collaborator's live
// count and returns it.
func (s *entitlementService) syncLiveCount(ctx context.Context, userID string, usage domain.QuotaUsage) (int, error) {
	const op = "entitlement.sync_live_count"

	n, err := s.jobs.CountActiveJobs(ctx, userID)
	if err != nil {
		return 0, domain.Internal(err, op, "failed to count active jobs")
	}
	if n != usage.Count {
		if _, err := s.quotas.SetUsage(ctx, usage.UserQuotaID, usage.Key, n); err != nil {
			return 0, err
		}
	}
	return n, nil
}

// increment applies the conditional update, retrying transient conflicts.
func (s *entitlementService) increment(ctx context.Context, usage domain.QuotaUsage, limit int) (domain.QuotaUsage, bool, error) {
	var (
		updated domain.QuotaUsage
		applied bool
	)
	err := retry.Do(ctx, s.backoff(), func(ctx context.Context) error {
		u, ok, err := s.quotas.IncrementUsage(ctx, usage.UserQuotaID, usage.Key, 1, limit)
		if err != nil {
			if repository.IsRetryable(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		updated, applied = u, ok
		return nil
	})
	return updated, applied, err
}

func (s *entitlementService) DecrementServiceUsage(ctx context.Context, userID string, key domain.ServiceKey, amount int) error {
	return s.quotas.DecrementServiceUsage(ctx, userID, key, amount)
}
