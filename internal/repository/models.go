package repository

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

type User struct {
	ID                    string
	Email                 string
	Name                  string
	Role                  string
	Tier                  string
	StripeCustomerID      sql.NullString
	SubscriptionID        sql.NullString
	SubscriptionStatus    string
	CurrentPeriodEnd      sql.NullTime
	CancelAtPeriodEnd     bool
	SubscriptionCheckedAt sql.NullTime
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

type QuotaConfig struct {
	ID         int16
	TierLimits json.RawMessage
	Services   json.RawMessage
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type UserQuota struct {
	ID                     uuid.UUID
	UserID                 string
	QuotaResetDate         time.Time
	StripeCurrentPeriodEnd sql.NullTime
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

type QuotaUsage struct {
	ID          uuid.UUID
	UserQuotaID uuid.UUID
	QuotaKey    string
	UsageCount  int32
	UpdatedAt   time.Time
}

type QuotaNotification struct {
	ID           uuid.UUID
	UserQuotaID  uuid.UUID
	Type         string
	QuotaKey     string
	CurrentUsage int32
	UsageLimit   int32
	Message      string
	CreatedAt    time.Time
	SentAt       sql.NullTime
}

type WebhookEvent struct {
	EventID      string
	Type         string
	Processed    bool
	RetryCount   int32
	LastAttempt  sql.NullTime
	Error        sql.NullString
	Metadata     pqtype.NullRawMessage
	ClaimToken   uuid.NullUUID
	ClaimedUntil sql.NullTime
	CreatedAt    time.Time
}
