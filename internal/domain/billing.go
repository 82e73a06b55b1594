package domain

// BillingEventType identifies a billing provider event the application handles.
type BillingEventType string

const (
	EventCheckoutCompleted    BillingEventType = "checkout.session.completed"
	EventSubscriptionCreated  BillingEventType = "customer.subscription.created"
	EventSubscriptionUpdated  BillingEventType = "customer.subscription.updated"
	EventSubscriptionDeleted  BillingEventType = "customer.subscription.deleted"
	EventInvoicePaid          BillingEventType = "invoice.payment_succeeded"
	EventInvoicePaymentFailed BillingEventType = "invoice.payment_failed"
)

// MaxWebhookAttempts is the number of deliveries of one event the
// application processes before giving up on it.
const MaxWebhookAttempts = 3

// BillingEvent is a verified billing provider event reduced to the fields
// subscription handling needs.
type BillingEvent struct {
	ID             string
	Type           BillingEventType
	CustomerID     string
	SubscriptionID string

	// UserID and Tier come from checkout session metadata.
	UserID string
	Tier   Tier

	// Subscription is set for subscription events.
	Subscription *ExternalSubscription
}
