// Package domain contains core business types and interfaces.
//
// This file defines the User domain type and the cached subscription state
// that reconciliation compares against the billing provider.
package domain

import (
	"time"
)

// SubscriptionStatus represents the possible states of a user's subscription.
type SubscriptionStatus string

const (
	SubscriptionStatusInactive          SubscriptionStatus = "inactive"
	SubscriptionStatusTrialing          SubscriptionStatus = "trialing"
	SubscriptionStatusActive            SubscriptionStatus = "active"
	SubscriptionStatusPastDue           SubscriptionStatus = "past_due"
	SubscriptionStatusCanceled          SubscriptionStatus = "canceled"
	SubscriptionStatusUnpaid            SubscriptionStatus = "unpaid"
	SubscriptionStatusIncomplete        SubscriptionStatus = "incomplete"
	SubscriptionStatusIncompleteExpired SubscriptionStatus = "incomplete_expired"
)

// Terminal reports whether the subscription can never become active again.
func (s SubscriptionStatus) Terminal() bool {
	return s == SubscriptionStatusCanceled || s == SubscriptionStatusIncompleteExpired
}

// Role is the authorization role of a user.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// User represents an account holder. Identity is owned by the external auth
// provider; ID is the provider's subject.
type User struct {
	ID                    string
	Email                 string
	Name                  string
	Role                  Role
	Tier                  Tier
	StripeCustomerID      string
	SubscriptionID        string
	SubscriptionStatus    SubscriptionStatus
	CurrentPeriodEnd      *time.Time
	CancelAtPeriodEnd     bool
	SubscriptionCheckedAt *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// IsAdmin returns true if the user holds the admin role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// HasSubscription returns true if the user references an external subscription.
func (u *User) HasSubscription() bool {
	return u.SubscriptionID != ""
}

// DisplayName returns the user's name or email if name is empty.
func (u *User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}

// ReconcilePolicy bounds how often cached subscription state is compared
// against the billing provider.
type ReconcilePolicy struct {
	CheckInterval time.Duration // recheck when the last check is older than this
	ExpiryWindow  time.Duration // recheck when the period ends within this window
}

// DefaultReconcilePolicy returns the standard cadence of one hour, or when
// the billing period ends within a day.
func DefaultReconcilePolicy() ReconcilePolicy {
	return ReconcilePolicy{
		CheckInterval: time.Hour,
		ExpiryWindow:  24 * time.Hour,
	}
}

// NeedsSubscriptionCheck reports whether the cached subscription state is
// stale enough to warrant a call to the billing provider.
func (u *User) NeedsSubscriptionCheck(now time.Time, p ReconcilePolicy) bool {
	if !u.HasSubscription() {
		return false
	}
	if u.SubscriptionCheckedAt == nil {
		return true
	}
	if now.Sub(*u.SubscriptionCheckedAt) > p.CheckInterval {
		return true
	}
	if u.CurrentPeriodEnd != nil && u.CurrentPeriodEnd.Sub(now) < p.ExpiryWindow {
		return true
	}
	return u.SubscriptionStatus != SubscriptionStatusActive
}

// ExternalSubscription is the billing provider's authoritative view of a
// subscription.
type ExternalSubscription struct {
	ID                string
	Status            SubscriptionStatus
	CurrentPeriodEnd  time.Time
	CancelAtPeriodEnd bool
	PriceID           string
	// Tier is the tier the price maps to, empty when the price is unknown.
	Tier              Tier
}

// Differs reports whether the cached state on u disagrees with s.
func (s ExternalSubscription) Differs(u *User) bool {
	if u.SubscriptionStatus != s.Status || u.CancelAtPeriodEnd != s.CancelAtPeriodEnd {
		return true
	}
	return u.CurrentPeriodEnd == nil || !u.CurrentPeriodEnd.Equal(s.CurrentPeriodEnd)
}

// Lapsed reports whether the subscription no longer grants paid access at now.
func (s ExternalSubscription) Lapsed(now time.Time) bool {
	if s.Status != SubscriptionStatusActive {
		return true
	}
	return !s.CurrentPeriodEnd.IsZero() && !s.CurrentPeriodEnd.After(now)
}

// SubscriptionUpdate carries the subscription fields written back to a user.
type SubscriptionUpdate struct {
	Tier              Tier
	CustomerID        string
	SubscriptionID    string
	Status            SubscriptionStatus
	CurrentPeriodEnd  *time.Time
	CancelAtPeriodEnd bool
	CheckedAt         *time.Time
}
