package domain

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Unlimited is the limit value that disables the ceiling for a service.
const Unlimited = -1

// MaxLimit is the largest finite limit. Counters and limits are stored as
// 32-bit integers.
const MaxLimit = math.MaxInt32

// ServiceLimit is the cap a tier places on one service.
type ServiceLimit struct {
	Limit int `json:"limit"`
}

// TierLimits maps service keys to their cap for a single tier.
type TierLimits map[ServiceKey]ServiceLimit

// Limit returns the cap for key and whether the tier defines one.
func (l TierLimits) Limit(key ServiceKey) (int, bool) {
	sl, ok := l[key]
	return sl.Limit, ok
}

// Keys returns the tier's service keys in sorted order.
func (l TierLimits) Keys() []ServiceKey {
	keys := make([]ServiceKey, 0, len(l))
	for k := range l {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// QuotaConfig is the singleton tier and service configuration. It is
// validated once when read from or written to the store; consumers may
// assume the invariants checked by Validate.
type QuotaConfig struct {
	TierLimits map[Tier]TierLimits              `json:"tierLimits"`
	Services   map[ServiceKey]ServiceDefinition `json:"services"`
	CreatedAt  time.Time                        `json:"createdAt"`
	UpdatedAt  time.Time                        `json:"updatedAt"`
}

// LimitsFor returns the limits configured for tier.
func (c *QuotaConfig) LimitsFor(tier Tier) (TierLimits, bool) {
	l, ok := c.TierLimits[tier]
	return l, ok
}

// Service returns the definition for key if it exists and is active.
func (c *QuotaConfig) Service(key ServiceKey) (ServiceDefinition, bool) {
	def, ok := c.Services[key]
	if !ok || !def.Active {
		return ServiceDefinition{}, false
	}
	return def, true
}

// Validate checks the structural invariants of the configuration.
func (c *QuotaConfig) Validate() error {
	const op = "config.validate"
	var ve *ValidationError
	add := func(field, msg string) {
		if ve == nil {
			ve = NewValidationError(op, field, msg)
			return
		}
		ve.Fields[field] = msg
	}

	for key := range c.Services {
		if !key.Valid() {
			add("services."+string(key), "invalid service key")
		}
	}
	for tier, limits := range c.TierLimits {
		if !tier.Valid() {
			add("tierLimits."+string(tier), "unknown tier")
			continue
		}
		for key, sl := range limits {
			field := fmt.Sprintf("tierLimits.%s.%s", tier, key)
			if sl.Limit < Unlimited {
				add(field, "limit must be -1 (unlimited) or non-negative")
			} else if sl.Limit > MaxLimit {
				add(field, fmt.Sprintf("limit must not exceed %d", MaxLimit))
			} else if _, ok := c.Services[key]; !ok {
				add(field, "no service definition for key")
			}
		}
	}
	if ve != nil {
		return ve
	}
	return nil
}

// Clone returns a deep copy so mutations never alias cached values.
func (c *QuotaConfig) Clone() *QuotaConfig {
	out := &QuotaConfig{
		TierLimits: make(map[Tier]TierLimits, len(c.TierLimits)),
		Services:   make(map[ServiceKey]ServiceDefinition, len(c.Services)),
		CreatedAt:  c.CreatedAt,
		UpdatedAt:  c.UpdatedAt,
	}
	for tier, limits := range c.TierLimits {
		cp := make(TierLimits, len(limits))
		for k, v := range limits {
			cp[k] = v
		}
		out.TierLimits[tier] = cp
	}
	for k, v := range c.Services {
		out.Services[k] = v
	}
	return out
}

// AddService registers key as active with a zero limit on every configured
// tier, so the new service is denied until an administrator sets limits.
func (c *QuotaConfig) AddService(key ServiceKey, def ServiceDefinition) {
	def.Active = true
	c.Services[key] = def
	for tier, limits := range c.TierLimits {
		if limits == nil {
			limits = TierLimits{}
			c.TierLimits[tier] = limits
		}
		limits[key] = ServiceLimit{Limit: 0}
	}
}

// RemoveService deletes key from the services map and from every tier.
func (c *QuotaConfig) RemoveService(key ServiceKey) {
	delete(c.Services, key)
	for tier := range c.TierLimits {
		delete(c.TierLimits[tier], key)
	}
}

// DefaultQuotaConfig returns the configuration seeded on first access.
func DefaultQuotaConfig() *QuotaConfig {
	return &QuotaConfig{
		TierLimits: map[Tier]TierLimits{
			TierFree: {
				ServiceJobsCount:         {Limit: 10},
				ServiceJobsSaved:         {Limit: 10},
				ServiceAIResume:          {Limit: 1},
				ServiceAICoverLetter:     {Limit: 5},
				ServiceAIJobMatch:        {Limit: 3},
				ServiceHunterEmailSearch: {Limit: 2},
				ServiceResumeUpload:      {Limit: 3},
			},
			TierPro: {
				ServiceJobsCount:         {Limit: 50},
				ServiceJobsSaved:         {Limit: 100},
				ServiceAIResume:          {Limit: 25},
				ServiceAICoverLetter:     {Limit: 25},
				ServiceAIJobMatch:        {Limit: 50},
				ServiceHunterEmailSearch: {Limit: 50},
				ServiceResumeUpload:      {Limit: 20},
			},
			TierPower: {
				ServiceJobsCount:         {Limit: Unlimited},
				ServiceJobsSaved:         {Limit: Unlimited},
				ServiceAIResume:          {Limit: Unlimited},
				ServiceAICoverLetter:     {Limit: Unlimited},
				ServiceAIJobMatch:        {Limit: Unlimited},
				ServiceHunterEmailSearch: {Limit: 100},
				ServiceResumeUpload:      {Limit: Unlimited},
			},
		},
		Services: map[ServiceKey]ServiceDefinition{
			ServiceJobsCount:         {Name: "Tracked jobs", Description: "Non-archived job applications", Active: true},
			ServiceJobsSaved:         {Name: "Saved jobs", Description: "Jobs saved from listings", Active: true},
			ServiceAIResume:          {Name: "AI resume", Description: "AI-tailored resume generation", Active: true},
			ServiceAICoverLetter:     {Name: "AI cover letter", Description: "AI cover letter generation", Active: true},
			ServiceAIJobMatch:        {Name: "AI job match", Description: "Resume to job description matching", Active: true},
			ServiceHunterEmailSearch: {Name: "Contact search", Description: "Company contact email lookup", Active: true},
			ServiceResumeUpload:      {Name: "Resume upload", Description: "Stored resume documents", Active: true},
		},
	}
}

// ConfigUpdate replaces whole sections of the configuration. Nil fields are
// left untouched.
type ConfigUpdate struct {
	TierLimits map[Tier]TierLimits              `json:"tierLimits,omitempty"`
	Services   map[ServiceKey]ServiceDefinition `json:"services,omitempty"`
}

// Empty reports whether the update changes nothing.
func (u ConfigUpdate) Empty() bool {
	return u.TierLimits == nil && u.Services == nil
}
