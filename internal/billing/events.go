package billing

import (
	"encoding/json"
	"fmt"

	"github.com/DukeRupert/hiretrack/internal/domain"
	"github.com/stripe/stripe-go/v79"
)

func (s *stripeService) ParseEvent(event stripe.Event) (*domain.BillingEvent, error) {
	ev := &domain.BillingEvent{
		ID:   event.ID,
		Type: domain.BillingEventType(event.Type),
	}
	if event.Data == nil {
		return nil, fmt.Errorf("event %s has no data", event.ID)
	}

	switch ev.Type {
	case domain.EventCheckoutCompleted:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return nil, fmt.Errorf("parse checkout session: %w", err)
		}
		if sess.Customer != nil {
			ev.CustomerID = sess.Customer.ID
		}
		if sess.Subscription != nil {
			ev.SubscriptionID = sess.Subscription.ID
		}
		ev.UserID = sess.Metadata[MetadataUserID]
		if ev.UserID == "" {
			ev.UserID = sess.ClientReferenceID
		}
		ev.Tier = domain.Tier(sess.Metadata[MetadataTier])

	case domain.EventSubscriptionCreated, domain.EventSubscriptionUpdated, domain.EventSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return nil, fmt.Errorf("parse subscription: %w", err)
		}
		if sub.Customer != nil {
			ev.CustomerID = sub.Customer.ID
		}
		ev.SubscriptionID = sub.ID
		ev.Subscription = s.toExternal(&sub)
		ev.Tier = ev.Subscription.Tier
		ev.UserID = sub.Metadata[MetadataUserID]

	case domain.EventInvoicePaid, domain.EventInvoicePaymentFailed:
		var inv stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			return nil, fmt.Errorf("parse invoice: %w", err)
		}
		if inv.Customer != nil {
			ev.CustomerID = inv.Customer.ID
		}
		if inv.Subscription != nil {
			ev.SubscriptionID = inv.Subscription.ID
		}
	}

	return ev, nil
}
