// Package service contains the business logic layer.
//
// This file applies verified billing events to users and their quotas.
package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/DukeRupert/hiretrack/internal/domain"
	"github.com/DukeRupert/hiretrack/internal/metrics"
)

// Webhook outcomes, used as metric labels.
const (
	webhookProcessed = "processed"
	webhookDuplicate = "duplicate"
	webhookAbandoned = "abandoned"
	webhookIgnored   = "ignored"
	webhookInFlight  = "in_flight"
	webhookFailed    = "failed"
)

// DefaultWebhookClaimTTL is how long one delivery holds an event before
// another delivery may process it.
const DefaultWebhookClaimTTL = 5 * time.Minute

// SubscriptionService applies billing provider events.
type SubscriptionService interface {
	// HandleEvent applies ev at most once. An error means the event should
	// be redelivered.
	HandleEvent(ctx context.Context, ev *domain.BillingEvent) error
}

type subscriptionService struct {
	users    UserStore
	quotas   QuotaService
	webhooks WebhookStore
	billing  SubscriptionFetcher
	timeout  time.Duration
	claimTTL time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

// NewSubscriptionService creates a new SubscriptionService.
func NewSubscriptionService(users UserStore, quotas QuotaService, webhooks WebhookStore, billing SubscriptionFetcher, logger *slog.Logger) SubscriptionService {
	return &subscriptionService{
		users:    users,
		quotas:   quotas,
		webhooks: webhooks,
		billing:  billing,
		timeout:  DefaultReconcileTimeout,
		claimTTL: DefaultWebhookClaimTTL,
		now:      time.Now,
		logger:   logger,
	}
}

func (s *subscriptionService) HandleEvent(ctx context.Context, ev *domain.BillingEvent) error {
	const op = "subscription.handle_event"

	metadata, _ := json.Marshal(map[string]string{
		"customer_id":     ev.CustomerID,
		"subscription_id": ev.SubscriptionID,
		"user_id":         ev.UserID,
	})
	rec, claimed, err := s.webhooks.BeginWebhook(ctx, ev.ID, string(ev.Type), metadata, s.claimTTL)
	if err != nil {
		return domain.Internal(err, op, "failed to record webhook event")
	}

	logger := s.logger.With("event_id", ev.ID, "event_type", ev.Type)
	if rec.Processed {
		logger.Info("Webhook event already processed")
		metrics.WebhookEvent(string(ev.Type), webhookDuplicate)
		return nil
	}
	if !claimed {
		logger.Warn("Webhook event is being processed by another delivery")
		metrics.WebhookEvent(string(ev.Type), webhookInFlight)
		return domain.Errorf(domain.ECONFLICT, op, "event %s is already being processed", ev.ID)
	}
	if int(rec.RetryCount) > domain.MaxWebhookAttempts {
		logger.Error("Webhook event exceeded retry limit, giving up",
			"attempts", rec.RetryCount,
			"last_error", rec.Error.String,
		)
		if err := s.webhooks.MarkWebhookFailed(ctx, ev.ID, rec.Error.String); err != nil {
			logger.Warn("Failed to release abandoned webhook event", "error", err)
		}
		metrics.WebhookEvent(string(ev.Type), webhookAbandoned)
		return nil
	}

	handled, err := s.apply(ctx, ev)
	if err != nil {
		logger.Error("Webhook event processing failed", "attempt", rec.RetryCount, "error", err)
		if markErr := s.webhooks.MarkWebhookFailed(ctx, ev.ID, err.Error()); markErr != nil {
			logger.Warn("Failed to record webhook failure", "error", markErr)
		}
		metrics.WebhookEvent(string(ev.Type), webhookFailed)
		return err
	}

	if err := s.webhooks.MarkWebhookProcessed(ctx, ev.ID); err != nil {
		return domain.Internal(err, op, "failed to mark webhook event processed")
	}
	outcome := webhookProcessed
	if !handled {
		outcome = webhookIgnored
	}
	metrics.WebhookEvent(string(ev.Type), outcome)
	logger.Info("Webhook event processed", "outcome", outcome)
	return nil
}

// apply dispatches on event type. It reports false for events that carry
// nothing to apply.
func (s *subscriptionService) apply(ctx context.Context, ev *domain.BillingEvent) (bool, error) {
	switch ev.Type {
	case domain.EventCheckoutCompleted:
		return true, s.handleCheckoutCompleted(ctx, ev)
	case domain.EventSubscriptionCreated, domain.EventSubscriptionUpdated:
		return s.handleSubscriptionChanged(ctx, ev)
	case domain.EventSubscriptionDeleted:
		return s.handleSubscriptionDeleted(ctx, ev)
	case domain.EventInvoicePaid:
		return s.handleInvoice(ctx, ev, domain.SubscriptionStatusActive)
	case domain.EventInvoicePaymentFailed:
		return s.handleInvoice(ctx, ev, domain.SubscriptionStatusPastDue)
	default:
		return false, nil
	}
}

func (s *subscriptionService) handleCheckoutCompleted(ctx context.Context, ev *domain.BillingEvent) error {
	const op = "subscription.checkout_completed"

	if ev.UserID == "" {
		return domain.Invalid(op, "checkout session has no user reference")
	}
	if !ev.Tier.Paid() {
		return domain.Invalid(op, "checkout session has no paid tier")
	}
	user, err := s.users.GetUser(ctx, ev.UserID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.UserNotFound(op, ev.UserID)
	}
	if err != nil {
		return domain.Internal(err, op, "failed to load user")
	}

	now := s.now()
	upd := domain.SubscriptionUpdate{
		Tier:           ev.Tier,
		CustomerID:     ev.CustomerID,
		SubscriptionID: ev.SubscriptionID,
		Status:         domain.SubscriptionStatusActive,
		CheckedAt:      &now,
	}

	var periodEnd *time.Time
	if ev.SubscriptionID != "" && s.billing != nil {
		lookupCtx, cancel := context.WithTimeout(ctx, s.timeout)
		sub, err := s.billing.RetrieveSubscription(lookupCtx, ev.SubscriptionID)
		cancel()
		if err != nil {
			return domain.Wrap(err, domain.EUNAVAILABLE, op, "failed to retrieve subscription")
		}
		end := sub.CurrentPeriodEnd
		periodEnd = &end
		upd.Status = sub.Status
		upd.CancelAtPeriodEnd = sub.CancelAtPeriodEnd
	}
	upd.CurrentPeriodEnd = periodEnd

	if _, err := s.users.UpdateSubscription(ctx, user.ID, upd); err != nil {
		return domain.Internal(err, op, "failed to persist subscription")
	}
	if _, err := s.quotas.ResetQuota(ctx, user.ID, ev.Tier, periodEnd, ResetReasonTierChange); err != nil {
		return err
	}

	s.logger.Info("Checkout completed",
		"user_id", user.ID,
		"previous_tier", user.Tier,
		"tier", ev.Tier,
		"subscription_id", ev.SubscriptionID,
	)
	return nil
}

func (s *subscriptionService) handleSubscriptionChanged(ctx context.Context, ev *domain.BillingEvent) (bool, error) {
	const op = "subscription.changed"

	if ev.Subscription == nil {
		return false, domain.Invalid(op, "event carries no subscription")
	}
	user, found, err := s.userForEvent(ctx, op, ev)
	if err != nil || !found {
		return false, err
	}

	sub := ev.Subscription
	if s.superseded(op, user, sub.ID) {
		return false, nil
	}
	tier := user.Tier
	if sub.Tier.Valid() {
		tier = sub.Tier
	}
	if sub.Lapsed(s.now()) {
		tier = domain.TierFree
	}

	now := s.now()
	periodEnd := sub.CurrentPeriodEnd
	upd := domain.SubscriptionUpdate{
		Tier:              tier,
		CustomerID:        ev.CustomerID,
		SubscriptionID:    sub.ID,
		Status:            sub.Status,
		CurrentPeriodEnd:  &periodEnd,
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		CheckedAt:         &now,
	}
	if sub.Status.Terminal() {
		upd.SubscriptionID = ""
	}
	if _, err := s.users.UpdateSubscription(ctx, user.ID, upd); err != nil {
		return false, domain.Internal(err, op, "failed to persist subscription")
	}

	rolledOver := user.CurrentPeriodEnd != nil && periodEnd.After(*user.CurrentPeriodEnd)
	switch {
	case tier != user.Tier:
		var end *time.Time
		if tier.Paid() {
			end = &periodEnd
		}
		if _, err := s.quotas.ResetQuota(ctx, user.ID, tier, end, ResetReasonTierChange); err != nil {
			return false, err
		}
	case rolledOver && tier.Paid():
		if _, err := s.quotas.ResetQuota(ctx, user.ID, tier, &periodEnd, ResetReasonRenewal); err != nil {
			return false, err
		}
	}

	s.logger.Info("Subscription updated",
		"user_id", user.ID,
		"previous_tier", user.Tier,
		"tier", tier,
		"status", sub.Status,
		"cancel_at_period_end", sub.CancelAtPeriodEnd,
		"rolled_over", rolledOver,
	)
	return true, nil
}

func (s *subscriptionService) handleSubscriptionDeleted(ctx context.Context, ev *domain.BillingEvent) (bool, error) {
	const op = "subscription.deleted"

	user, found, err := s.userForEvent(ctx, op, ev)
	if err != nil || !found {
		return false, err
	}
	subID := ev.SubscriptionID
	if subID == "" && ev.Subscription != nil {
		subID = ev.Subscription.ID
	}
	if s.superseded(op, user, subID) {
		return false, nil
	}

	now := s.now()
	upd := domain.SubscriptionUpdate{
		Tier:       domain.TierFree,
		CustomerID: ev.CustomerID,
		Status:     domain.SubscriptionStatusCanceled,
		CheckedAt:  &now,
	}
	if _, err := s.users.UpdateSubscription(ctx, user.ID, upd); err != nil {
		return false, domain.Internal(err, op, "failed to persist subscription")
	}
	if _, err := s.quotas.ResetQuota(ctx, user.ID, domain.TierFree, nil, ResetReasonDowngrade); err != nil {
		return false, err
	}

	s.logger.Info("Subscription deleted, downgraded to free", "user_id", user.ID, "previous_tier", user.Tier)
	return true, nil
}

func (s *subscriptionService) handleInvoice(ctx context.Context, ev *domain.BillingEvent, status domain.SubscriptionStatus) (bool, error) {
	const op = "subscription.invoice"

	if ev.SubscriptionID == "" {
		return false, nil
	}
	user, found, err := s.userForEvent(ctx, op, ev)
	if err != nil || !found {
		return false, err
	}
	if user.SubscriptionID != ev.SubscriptionID {
		s.logger.Warn("Invoice for a subscription the user no longer holds",
			"user_id", user.ID,
			"subscription_id", ev.SubscriptionID,
		)
		return false, nil
	}

	if _, err := s.users.UpdateSubscription(ctx, user.ID, domain.SubscriptionUpdate{
		Tier:              user.Tier,
		SubscriptionID:    user.SubscriptionID,
		Status:            status,
		CurrentPeriodEnd:  user.CurrentPeriodEnd,
		CancelAtPeriodEnd: user.CancelAtPeriodEnd,
	}); err != nil {
		return false, domain.Internal(err, op, "failed to persist subscription status")
	}

	s.logger.Info("Invoice status applied", "user_id", user.ID, "status", status)
	return true, nil
}

// superseded reports whether subscriptionID names a subscription other than
// the one the user currently holds. Such events are acknowledged without
// touching the user.
func (s *subscriptionService) superseded(op string, user *domain.User, subscriptionID string) bool {
	if user.SubscriptionID == "" || subscriptionID == "" || subscriptionID == user.SubscriptionID {
		return false
	}
	s.logger.Warn("Event for a subscription the user no longer holds",
		"op", op,
		"user_id", user.ID,
		"subscription_id", subscriptionID,
		"current_subscription_id", user.SubscriptionID,
	)
	return true
}

// userForEvent resolves the event's user by customer id, falling back to the
// user id in metadata. Unknown customers are acknowledged and skipped.
func (s *subscriptionService) userForEvent(ctx context.Context, op string, ev *domain.BillingEvent) (*domain.User, bool, error) {
	var (
		user *domain.User
		err  error
	)
	if ev.CustomerID != "" {
		user, err = s.users.GetUserByCustomerID(ctx, ev.CustomerID)
	} else {
		err = sql.ErrNoRows
	}
	if errors.Is(err, sql.ErrNoRows) && ev.UserID != "" {
		user, err = s.users.GetUser(ctx, ev.UserID)
	}
	if errors.Is(err, sql.ErrNoRows) {
		s.logger.Warn("Billing event for unknown customer", "op", op, "customer_id", ev.CustomerID)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, domain.Internal(err, op, "failed to load user")
	}
	return user, true, nil
}
