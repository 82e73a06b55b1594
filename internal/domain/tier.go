// Package domain contains core business types and interfaces.
//
// This file defines the closed set of subscription tiers.
package domain

import (
	"fmt"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Tier identifies a subscription level. Higher tiers imply broader limits by
// convention only; the engine never compares tiers numerically.
type Tier string

const (
	TierFree  Tier = "free"
	TierPro   Tier = "pro"
	TierPower Tier = "power"
)

// Tiers lists every known tier in display order.
var Tiers = []Tier{TierFree, TierPro, TierPower}

// Valid reports whether t is one of the known tiers.
func (t Tier) Valid() bool {
	switch t {
	case TierFree, TierPro, TierPower:
		return true
	}
	return false
}

func (t Tier) String() string {
	return string(t)
}

// Paid reports whether the tier is backed by a billing subscription.
func (t Tier) Paid() bool {
	return t == TierPro || t == TierPower
}

// ParseTier converts a raw value into a Tier.
func ParseTier(s string) (Tier, error) {
	t := Tier(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown tier %q", s)
	}
	return t, nil
}

var titleCaser = cases.Title(language.English)

// TierDisplayName renders the tier for the account header, e.g.
// "Pro (Cancels on Jan 2, 2026)" when a cancellation is scheduled.
func TierDisplayName(t Tier, cancelAtPeriodEnd bool, periodEnd *time.Time) string {
	name := titleCaser.String(string(t))
	if name == "" {
		name = titleCaser.String(string(TierFree))
	}
	if cancelAtPeriodEnd && periodEnd != nil && t.Paid() {
		return fmt.Sprintf("%s (Cancels on %s)", name, periodEnd.Format("Jan 2, 2006"))
	}
	return name
}
