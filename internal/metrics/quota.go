package metrics

import "time"

// Entitlement outcomes
const (
	OutcomeAllowed      = "allowed"
	OutcomeDenied       = "denied"
	OutcomeUnavailable  = "unavailable"
	OutcomeUnauthorized = "unauthorized"
	OutcomeError        = "error"
)

// Reconciliation outcomes
const (
	ReconcileUnchanged = "unchanged"
	ReconcileUpdated   = "updated"
	ReconcileDowngrade = "downgraded"
	ReconcileFailed    = "failed"
)

// EntitlementDecision records one gate decision.
func EntitlementDecision(service, action, outcome string) {
	EntitlementDecisions.WithLabelValues(service, action, outcome).Inc()
}

// IncrementConflict records an increment lost to a concurrent caller.
func IncrementConflict(service string) {
	QuotaIncrementConflicts.WithLabelValues(service).Inc()
}

// Compensation records a compensating decrement.
func Compensation(service string) {
	QuotaCompensations.WithLabelValues(service).Inc()
}

// QuotaReset records a quota reset for reason.
func QuotaReset(reason string) {
	QuotaResets.WithLabelValues(reason).Inc()
}

// Reconciliation records a reconciliation outcome and the lookup latency.
func Reconciliation(outcome string, duration time.Duration) {
	Reconciliations.WithLabelValues(outcome).Inc()
	ReconciliationDuration.Observe(duration.Seconds())
}

// WebhookEvent records a processed webhook event.
func WebhookEvent(eventType, outcome string) {
	WebhookEvents.WithLabelValues(eventType, outcome).Inc()
}

// NotificationSent records a delivered quota notification.
func NotificationSent(notificationType string) {
	NotificationsSent.WithLabelValues(notificationType).Inc()
}
