// Package domain contains core business types and interfaces.
//
// This file defines per-user quota records and the decision returned by the
// entitlement gate.
package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultQuotaPeriod is the length of a quota period when no billing period
// end is known.
const DefaultQuotaPeriod = 30 * 24 * time.Hour

// UserQuota is the per-user quota record. It owns one QuotaUsage per service.
type UserQuota struct {
	ID                     uuid.UUID
	UserID                 string
	QuotaResetDate         time.Time
	StripeCurrentPeriodEnd *time.Time
	Usage                  []QuotaUsage
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// UsageFor returns the counter for key if one exists.
func (q *UserQuota) UsageFor(key ServiceKey) (QuotaUsage, bool) {
	for _, u := range q.Usage {
		if u.Key == key {
			return u, true
		}
	}
	return QuotaUsage{}, false
}

// QuotaUsage is a single (quota, service) counter.
type QuotaUsage struct {
	ID          uuid.UUID
	UserQuotaID uuid.UUID
	Key         ServiceKey
	Count       int
	UpdatedAt   time.Time
}

// ResetDate returns the quota reset date for a new period: the billing
// period end when known, otherwise now plus period.
func ResetDate(now time.Time, periodEnd *time.Time, period time.Duration) time.Time {
	if periodEnd != nil && periodEnd.After(now) {
		return *periodEnd
	}
	return now.Add(period)
}

// DenialReason explains why a QuotaCheck was not allowed.
type DenialReason string

const (
	DenialUnauthorized       DenialReason = "unauthorized"
	DenialServiceUnavailable DenialReason = "service_unavailable"
	DenialQuotaExceeded      DenialReason = "quota_exceeded"
)

// QuotaCheck is the entitlement decision returned to feature actions.
// A denial is a value, not an error.
type QuotaCheck struct {
	Allowed   bool         `json:"allowed"`
	Remaining int          `json:"remaining"`
	Limit     int          `json:"limit"`
	Used      int          `json:"used"`
	Reason    DenialReason `json:"reason,omitempty"`
}

// Deny returns a denial that carries no usage information.
func Deny(reason DenialReason) QuotaCheck {
	return QuotaCheck{Reason: reason}
}

// CheckFromEvaluation converts an evaluation into the returned decision.
// When applied is true the increment was persisted and the decision reports
// the post-increment state; otherwise it reports the pre-state.
func CheckFromEvaluation(e Evaluation, applied bool) QuotaCheck {
	c := QuotaCheck{
		Allowed:   e.Allowed,
		Used:      e.Used,
		Limit:     e.Limit,
		Remaining: e.Remaining,
	}
	if applied {
		c.Used = e.NewUsage
		c.Remaining = remaining(e.NewUsage, e.Limit)
	}
	if !c.Allowed {
		c.Reason = DenialQuotaExceeded
	}
	return c
}

// NotificationType classifies an advisory quota notification.
type NotificationType string

const (
	NotificationWarning  NotificationType = "warning"
	NotificationExceeded NotificationType = "exceeded"
)

// Notification thresholds in percent of the limit.
const (
	WarningThreshold  = 80
	ExceededThreshold = 100
)

// QuotaNotification is an advisory record. It never blocks access.
type QuotaNotification struct {
	ID           uuid.UUID        `json:"id"`
	UserQuotaID  uuid.UUID        `json:"-"`
	Type         NotificationType `json:"type"`
	Key          ServiceKey       `json:"quotaKey"`
	CurrentUsage int              `json:"currentUsage"`
	Limit        int              `json:"limit"`
	Message      string           `json:"message"`
	CreatedAt    time.Time        `json:"createdAt"`
	SentAt       *time.Time       `json:"sentAt,omitempty"`
}

// NotificationFor returns the notification warranted by usage against limit.
// Unlimited and zero limits never produce notifications.
func NotificationFor(key ServiceKey, usage, limit int) (QuotaNotification, bool) {
	if limit <= 0 {
		return QuotaNotification{}, false
	}
	n := QuotaNotification{Key: key, CurrentUsage: usage, Limit: limit}
	pct := float64(usage) / float64(limit) * 100
	switch {
	case pct >= ExceededThreshold:
		n.Type = NotificationExceeded
		n.Message = fmt.Sprintf("You have reached your %s quota limit.", key)
	case pct >= WarningThreshold:
		n.Type = NotificationWarning
		n.Message = fmt.Sprintf("You are approaching your %s quota limit (%.1f%% used).", key, pct)
	default:
		return QuotaNotification{}, false
	}
	return n, true
}

// CrossedThreshold reports whether moving a counter from before to after
// changes the notification level.
func CrossedThreshold(before, after, limit int) bool {
	b, bok := NotificationFor("", before, limit)
	a, aok := NotificationFor("", after, limit)
	if !aok {
		return false
	}
	return !bok || a.Type != b.Type
}

// CheckNotifications returns the notifications warranted by the quota's
// counters under limits.
func CheckNotifications(q *UserQuota, limits TierLimits) []QuotaNotification {
	var out []QuotaNotification
	for _, u := range q.Usage {
		limit, ok := limits.Limit(u.Key)
		if !ok {
			continue
		}
		if n, ok := NotificationFor(u.Key, u.Count, limit); ok {
			n.UserQuotaID = q.ID
			out = append(out, n)
		}
	}
	return out
}

// ServiceUsage summarizes one counter for display.
type ServiceUsage struct {
	Key       ServiceKey `json:"key"`
	Name      string     `json:"name"`
	Used      int        `json:"used"`
	Limit     int        `json:"limit"`
	Remaining int        `json:"remaining"`
}

// SummarizeUsage lists every service of the tier with its current usage.
func SummarizeUsage(q *UserQuota, cfg *QuotaConfig, limits TierLimits) []ServiceUsage {
	out := make([]ServiceUsage, 0, len(limits))
	for _, key := range limits.Keys() {
		def, ok := cfg.Service(key)
		if !ok {
			continue
		}
		limit, _ := limits.Limit(key)
		used := 0
		if u, ok := q.UsageFor(key); ok {
			used = u.Count
		}
		out = append(out, ServiceUsage{
			Key:       key,
			Name:      def.Name,
			Used:      used,
			Limit:     limit,
			Remaining: remaining(used, limit),
		})
	}
	return out
}
