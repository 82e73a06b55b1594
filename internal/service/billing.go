// Package service contains the business logic layer.
//
// This file implements the self-service billing actions. Subscription state
// itself is only changed by webhooks and reconciliation.
package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/DukeRupert/hiretrack/internal/billing"
	"github.com/DukeRupert/hiretrack/internal/domain"
)

// BillingProvider is the subset of the billing collaborator the
// self-service actions use. billing.Service satisfies it.
type BillingProvider interface {
	CreateCustomer(ctx context.Context, userID, email, name string) (string, error)
	CreateCheckoutSession(ctx context.Context, params billing.CheckoutParams) (string, error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error)
	CancelSubscription(ctx context.Context, subscriptionID string) error
	ReactivateSubscription(ctx context.Context, subscriptionID string) error
	PriceIDForTier(tier domain.Tier) (string, bool)
}

// BillingService starts checkouts and changes cancellation for the signed-in user.
type BillingService interface {
	// StartCheckout returns a hosted checkout URL for tier. The user gets a
	// billing customer on first use.
	StartCheckout(ctx context.Context, userID string, tier domain.Tier) (string, error)

	// OpenPortal returns a hosted billing portal URL.
	OpenPortal(ctx context.Context, userID string) (string, error)

	// Cancel schedules the subscription to end at the period end.
	Cancel(ctx context.Context, userID string) (*domain.User, error)

	// Reactivate clears a scheduled cancellation.
	Reactivate(ctx context.Context, userID string) (*domain.User, error)
}

type billingService struct {
	users      UserStore
	provider   BillingProvider
	reconciler Reconciler
	baseURL    string
	logger     *slog.Logger
}

// NewBillingService creates a new BillingService. A nil provider makes every
// action report billing as unavailable.
func NewBillingService(users UserStore, provider BillingProvider, reconciler Reconciler, baseURL string, logger *slog.Logger) BillingService {
	return &billingService{
		users:      users,
		provider:   provider,
		reconciler: reconciler,
		baseURL:    baseURL,
		logger:     logger,
	}
}

func (s *billingService) StartCheckout(ctx context.Context, userID string, tier domain.Tier) (string, error) {
	const op = "billing.start_checkout"

	user, err := s.load(ctx, op, userID)
	if err != nil {
		return "", err
	}
	if !tier.Paid() {
		return "", domain.NewValidationError(op, "tier", "tier must be a paid plan")
	}
	if user.Tier == tier && user.SubscriptionStatus == domain.SubscriptionStatusActive {
		return "", domain.Conflict(op, fmt.Sprintf("already subscribed to %s", tier))
	}
	// A second checkout would open a second subscription. Plan changes on a
	// live subscription go through the billing portal.
	if user.HasSubscription() && !user.SubscriptionStatus.Terminal() {
		return "", domain.Conflict(op, "an active subscription exists, change plans in the billing portal")
	}
	if _, ok := s.provider.PriceIDForTier(tier); !ok {
		return "", domain.NewValidationError(op, "tier", fmt.Sprintf("%s is not for sale", tier))
	}

	customerID := user.StripeCustomerID
	if customerID == "" {
		customerID, err = s.provider.CreateCustomer(ctx, user.ID, user.Email, user.DisplayName())
		if err != nil {
			return "", domain.Wrap(err, domain.EUNAVAILABLE, op, "billing provider unavailable")
		}
		if err := s.users.SetStripeCustomer(ctx, user.ID, customerID); err != nil {
			return "", domain.Internal(err, op, "failed to save billing customer")
		}
	}

	url, err := s.provider.CreateCheckoutSession(ctx, billing.CheckoutParams{
		UserID:     user.ID,
		CustomerID: customerID,
		Tier:       tier,
		SuccessURL: s.baseURL + "/billing/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:  s.baseURL + "/billing",
	})
	if err != nil {
		return "", domain.Wrap(err, domain.EUNAVAILABLE, op, "billing provider unavailable")
	}

	s.logger.Info("checkout started", "user_id", user.ID, "tier", tier)
	return url, nil
}

func (s *billingService) OpenPortal(ctx context.Context, userID string) (string, error) {
	const op = "billing.open_portal"

	user, err := s.load(ctx, op, userID)
	if err != nil {
		return "", err
	}
	if user.StripeCustomerID == "" {
		return "", domain.Invalid(op, "no billing account exists yet")
	}

	url, err := s.provider.CreatePortalSession(ctx, user.StripeCustomerID, s.baseURL+"/billing")
	if err != nil {
		return "", domain.Wrap(err, domain.EUNAVAILABLE, op, "billing provider unavailable")
	}
	return url, nil
}

func (s *billingService) Cancel(ctx context.Context, userID string) (*domain.User, error) {
	const op = "billing.cancel"
	return s.setCancellation(ctx, op, userID, true)
}

func (s *billingService) Reactivate(ctx context.Context, userID string) (*domain.User, error) {
	const op = "billing.reactivate"
	return s.setCancellation(ctx, op, userID, false)
}

func (s *billingService) setCancellation(ctx context.Context, op, userID string, cancel bool) (*domain.User, error) {
	user, err := s.load(ctx, op, userID)
	if err != nil {
		return nil, err
	}
	if !user.HasSubscription() {
		return nil, domain.Invalid(op, "no active subscription")
	}
	if user.CancelAtPeriodEnd == cancel {
		return user, nil
	}

	if cancel {
		err = s.provider.CancelSubscription(ctx, user.SubscriptionID)
	} else {
		err = s.provider.ReactivateSubscription(ctx, user.SubscriptionID)
	}
	if err != nil {
		return nil, domain.Wrap(err, domain.EUNAVAILABLE, op, "billing provider unavailable")
	}

	s.logger.Info("subscription cancellation changed",
		"user_id", user.ID, "subscription_id", user.SubscriptionID, "cancel_at_period_end", cancel)

	// The webhook will deliver the same change; refresh now so the caller
	// sees it immediately.
	fresh, err := s.reconciler.Reconcile(ctx, user.ID)
	if err != nil {
		s.logger.Warn("reconcile after cancellation change failed", "user_id", user.ID, "error", err)
		if fresh != nil {
			return fresh, nil
		}
		user.CancelAtPeriodEnd = cancel
		return user, nil
	}
	return fresh, nil
}

func (s *billingService) load(ctx context.Context, op, userID string) (*domain.User, error) {
	if s.provider == nil {
		return nil, domain.Errorf(domain.EUNAVAILABLE, op, "billing is not configured")
	}
	user, err := s.users.GetUser(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.UserNotFound(op, userID)
	}
	if err != nil {
		return nil, domain.Internal(err, op, "failed to load user")
	}
	return user, nil
}
