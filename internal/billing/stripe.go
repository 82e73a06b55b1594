// Package billing provides Stripe billing integration for subscription management.
package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/DukeRupert/hiretrack/internal/domain"
	"github.com/stripe/stripe-go/v79"
	billingportalsession "github.com/stripe/stripe-go/v79/billingportal/session"
	checkoutsession "github.com/stripe/stripe-go/v79/checkout/session"
	"github.com/stripe/stripe-go/v79/customer"
	"github.com/stripe/stripe-go/v79/subscription"
	"github.com/stripe/stripe-go/v79/webhook"
)

// Checkout metadata keys read back by the webhook handler.
const (
	MetadataUserID = "user_id"
	MetadataTier   = "tier"
)

// Service defines the interface for billing operations.
type Service interface {
	// CreateCustomer creates a new Stripe customer for the given user.
	CreateCustomer(ctx context.Context, userID, email, name string) (string, error)

	// CreateCheckoutSession creates a Stripe Checkout session subscribing
	// the customer to tier. Returns the checkout URL to redirect the user to.
	CreateCheckoutSession(ctx context.Context, params CheckoutParams) (string, error)

	// CreatePortalSession creates a Stripe Customer Portal session.
	// Returns the portal URL to redirect the user to.
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error)

	// RetrieveSubscription returns the authoritative subscription state.
	RetrieveSubscription(ctx context.Context, subscriptionID string) (*domain.ExternalSubscription, error)

	// CancelSubscription sets a subscription to cancel at period end.
	CancelSubscription(ctx context.Context, subscriptionID string) error

	// ReactivateSubscription removes the cancel_at_period_end flag.
	ReactivateSubscription(ctx context.Context, subscriptionID string) error

	// VerifyWebhookSignature verifies the Stripe webhook signature and returns the event.
	VerifyWebhookSignature(payload []byte, signature string) (stripe.Event, error)

	// ParseEvent reduces a verified event to a domain.BillingEvent.
	ParseEvent(event stripe.Event) (*domain.BillingEvent, error)

	// TierForPriceID returns the tier for a Stripe price ID.
	TierForPriceID(priceID string) (domain.Tier, bool)

	// PriceIDForTier returns the Stripe price ID that sells tier.
	PriceIDForTier(tier domain.Tier) (string, bool)
}

// PriceConfig holds the Stripe price IDs for each paid tier.
type PriceConfig struct {
	ProPriceID   string
	PowerPriceID string
}

// CheckoutParams describes a subscription checkout.
type CheckoutParams struct {
	UserID     string
	CustomerID string
	Tier       domain.Tier
	SuccessURL string
	CancelURL  string
}

// stripeService is the concrete implementation of Service.
type stripeService struct {
	webhookSecret string
	priceToTier   map[string]domain.Tier
	tierToPrice   map[domain.Tier]string
}

// NewStripeService creates a new Stripe billing service.
//
// The secretKey is used to authenticate Stripe API calls.
// The webhookSecret is used to verify incoming webhook signatures.
// The prices configure which Stripe price IDs map to which tiers.
func NewStripeService(secretKey, webhookSecret string, prices PriceConfig) Service {
	stripe.Key = secretKey

	s := &stripeService{
		webhookSecret: webhookSecret,
		priceToTier:   make(map[string]domain.Tier),
		tierToPrice:   make(map[domain.Tier]string),
	}
	if prices.ProPriceID != "" {
		s.priceToTier[prices.ProPriceID] = domain.TierPro
		s.tierToPrice[domain.TierPro] = prices.ProPriceID
	}
	if prices.PowerPriceID != "" {
		s.priceToTier[prices.PowerPriceID] = domain.TierPower
		s.tierToPrice[domain.TierPower] = prices.PowerPriceID
	}
	return s
}

func (s *stripeService) CreateCustomer(ctx context.Context, userID, email, name string) (string, error) {
	params := &stripe.CustomerParams{
		Email: stripe.String(email),
		Name:  stripe.String(name),
	}
	params.Context = ctx
	params.AddMetadata(MetadataUserID, userID)
	c, err := customer.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe create customer: %w", err)
	}
	return c.ID, nil
}

func (s *stripeService) CreateCheckoutSession(ctx context.Context, p CheckoutParams) (string, error) {
	priceID, ok := s.PriceIDForTier(p.Tier)
	if !ok {
		return "", fmt.Errorf("no price configured for tier %q", p.Tier)
	}
	metadata := map[string]string{
		MetadataUserID: p.UserID,
		MetadataTier:   string(p.Tier),
	}
	params := &stripe.CheckoutSessionParams{
		Customer:          stripe.String(p.CustomerID),
		ClientReferenceID: stripe.String(p.UserID),
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: metadata,
		},
		SuccessURL: stripe.String(p.SuccessURL),
		CancelURL:  stripe.String(p.CancelURL),
	}
	params.Context = ctx
	params.Metadata = metadata
	sess, err := checkoutsession.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe create checkout session: %w", err)
	}
	return sess.URL, nil
}

func (s *stripeService) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx
	sess, err := billingportalsession.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe create portal session: %w", err)
	}
	return sess.URL, nil
}

func (s *stripeService) RetrieveSubscription(ctx context.Context, subscriptionID string) (*domain.ExternalSubscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	sub, err := subscription.Get(subscriptionID, params)
	if err != nil {
		return nil, fmt.Errorf("stripe get subscription: %w", err)
	}
	return s.toExternal(sub), nil
}

func (s *stripeService) CancelSubscription(ctx context.Context, subscriptionID string) error {
	params := &stripe.SubscriptionParams{
		CancelAtPeriodEnd: stripe.Bool(true),
	}
	params.Context = ctx
	_, err := subscription.Update(subscriptionID, params)
	if err != nil {
		return fmt.Errorf("stripe cancel subscription: %w", err)
	}
	return nil
}

func (s *stripeService) ReactivateSubscription(ctx context.Context, subscriptionID string) error {
	params := &stripe.SubscriptionParams{
		CancelAtPeriodEnd: stripe.Bool(false),
	}
	params.Context = ctx
	_, err := subscription.Update(subscriptionID, params)
	if err != nil {
		return fmt.Errorf("stripe reactivate subscription: %w", err)
	}
	return nil
}

func (s *stripeService) VerifyWebhookSignature(payload []byte, signature string) (stripe.Event, error) {
	event, err := webhook.ConstructEvent(payload, signature, s.webhookSecret)
	if err != nil {
		return stripe.Event{}, fmt.Errorf("stripe webhook signature verification failed: %w", err)
	}
	return event, nil
}

func (s *stripeService) TierForPriceID(priceID string) (domain.Tier, bool) {
	tier, ok := s.priceToTier[priceID]
	return tier, ok
}

func (s *stripeService) PriceIDForTier(tier domain.Tier) (string, bool) {
	priceID, ok := s.tierToPrice[tier]
	return priceID, ok
}

// toExternal maps a Stripe subscription to the domain view.
func (s *stripeService) toExternal(sub *stripe.Subscription) *domain.ExternalSubscription {
	ext := &domain.ExternalSubscription{
		ID:                sub.ID,
		Status:            domain.SubscriptionStatus(sub.Status),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
	}
	if sub.CurrentPeriodEnd > 0 {
		ext.CurrentPeriodEnd = time.Unix(sub.CurrentPeriodEnd, 0).UTC()
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
		ext.PriceID = sub.Items.Data[0].Price.ID
		if tier, ok := s.TierForPriceID(ext.PriceID); ok {
			ext.Tier = tier
		}
	}
	return ext
}
