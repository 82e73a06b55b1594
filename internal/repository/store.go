package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/DukeRupert/hiretrack/internal/domain"
	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

// Store wraps Queries with transactions and converts rows to domain types.
type Store struct {
	db *sql.DB
	*Queries
}

func NewStore(db *sql.DB) *Store {
	return &Store{
		db:      db,
		Queries: New(db),
	}
}

// ExecTx runs fn inside a transaction, rolling back on error.
func (s *Store) ExecTx(ctx context.Context, fn func(*Queries) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(s.WithTx(tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("tx err: %v, rollback err: %w", err, rbErr)
		}
		return err
	}
	return tx.Commit()
}

// =============================================================================
// Configuration
// =============================================================================

func (s *Store) GetConfig(ctx context.Context) (*domain.QuotaConfig, error) {
	row, err := s.Queries.GetQuotaConfig(ctx)
	if err != nil {
		return nil, err
	}
	return decodeConfig(row)
}

func (s *Store) InsertConfigIfAbsent(ctx context.Context, cfg *domain.QuotaConfig) (bool, error) {
	if err := cfg.Validate(); err != nil {
		return false, err
	}
	tierLimits, services, err := encodeConfig(cfg)
	if err != nil {
		return false, err
	}
	return s.InsertQuotaConfigIfAbsent(ctx, tierLimits, services)
}

// UpdateConfig locks the configuration row, applies fn to a copy and writes
// the result if it validates.
func (s *Store) UpdateConfig(ctx context.Context, fn func(*domain.QuotaConfig) error) (*domain.QuotaConfig, error) {
	var out *domain.QuotaConfig
	err := s.ExecTx(ctx, func(q *Queries) error {
		row, err := q.GetQuotaConfigForUpdate(ctx)
		if err != nil {
			return err
		}
		current, err := decodeConfig(row)
		if err != nil {
			return err
		}
		next := current.Clone()
		if err := fn(next); err != nil {
			return err
		}
		if err := next.Validate(); err != nil {
			return err
		}
		tierLimits, services, err := encodeConfig(next)
		if err != nil {
			return err
		}
		updated, err := q.UpdateQuotaConfig(ctx, tierLimits, services)
		if err != nil {
			return err
		}
		out, err = decodeConfig(updated)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func decodeConfig(row QuotaConfig) (*domain.QuotaConfig, error) {
	cfg := &domain.QuotaConfig{
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
	if err := json.Unmarshal(row.TierLimits, &cfg.TierLimits); err != nil {
		return nil, fmt.Errorf("decode tier limits: %w", err)
	}
	if err := json.Unmarshal(row.Services, &cfg.Services); err != nil {
		return nil, fmt.Errorf("decode services: %w", err)
	}
	if cfg.TierLimits == nil {
		cfg.TierLimits = map[domain.Tier]domain.TierLimits{}
	}
	if cfg.Services == nil {
		cfg.Services = map[domain.ServiceKey]domain.ServiceDefinition{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("stored quota config is invalid: %w", err)
	}
	return cfg, nil
}

func encodeConfig(cfg *domain.QuotaConfig) (json.RawMessage, json.RawMessage, error) {
	tierLimits, err := json.Marshal(cfg.TierLimits)
	if err != nil {
		return nil, nil, err
	}
	services, err := json.Marshal(cfg.Services)
	if err != nil {
		return nil, nil, err
	}
	return tierLimits, services, nil
}

// =============================================================================
// Quota records
// =============================================================================

// CreateUserQuotaParams describes a new quota and its zero counters.
type CreateUserQuotaParams struct {
	UserID    string
	ResetDate time.Time
	PeriodEnd *time.Time
	Keys      []domain.ServiceKey
}

// ResetUserQuotaParams describes a quota reset. Counters in Preserve keep
// their value; every other counter is removed and Seed counters are
// recreated at zero.
type ResetUserQuotaParams struct {
	QuotaID   uuid.UUID
	Preserve  []domain.ServiceKey
	Seed      []domain.ServiceKey
	ResetDate time.Time
	PeriodEnd *time.Time
}

// PendingNotification is a notification awaiting delivery to its owner.
type PendingNotification struct {
	Notification domain.QuotaNotification
	Email        string
	Name         string
}

func (s *Store) GetUserQuota(ctx context.Context, userID string) (*domain.UserQuota, error) {
	row, err := s.GetUserQuotaByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	usage, err := s.ListQuotaUsage(ctx, row.ID)
	if err != nil {
		return nil, err
	}
	return toDomainQuota(row, usage), nil
}

// CreateUserQuota returns sql.ErrNoRows when another caller created the
// user's quota first.
func (s *Store) CreateUserQuota(ctx context.Context, arg CreateUserQuotaParams) (*domain.UserQuota, error) {
	var out *domain.UserQuota
	err := s.ExecTx(ctx, func(q *Queries) error {
		row, err := q.InsertUserQuota(ctx, InsertUserQuotaParams{
			ID:                     uuid.New(),
			UserID:                 arg.UserID,
			QuotaResetDate:         arg.ResetDate,
			StripeCurrentPeriodEnd: toNullTime(arg.PeriodEnd),
		})
		if err != nil {
			return err
		}
		for _, key := range arg.Keys {
			if err := q.InsertQuotaUsageIfAbsent(ctx, uuid.New(), row.ID, string(key), 0); err != nil {
				return err
			}
		}
		usage, err := q.ListQuotaUsage(ctx, row.ID)
		if err != nil {
			return err
		}
		out = toDomainQuota(row, usage)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) GetOrCreateUsage(ctx context.Context, quotaID uuid.UUID, key domain.ServiceKey) (domain.QuotaUsage, error) {
	if err := s.InsertQuotaUsageIfAbsent(ctx, uuid.New(), quotaID, string(key), 0); err != nil {
		return domain.QuotaUsage{}, err
	}
	row, err := s.GetQuotaUsage(ctx, quotaID, string(key))
	if err != nil {
		return domain.QuotaUsage{}, err
	}
	return toDomainUsage(row), nil
}

func (s *Store) SetUsage(ctx context.Context, quotaID uuid.UUID, key domain.ServiceKey, count int) (domain.QuotaUsage, error) {
	row, err := s.SetQuotaUsage(ctx, uuid.New(), quotaID, string(key), int32(count))
	if err != nil {
		return domain.QuotaUsage{}, err
	}
	return toDomainUsage(row), nil
}

// IncrementUsage returns sql.ErrNoRows when the increment would exceed limit.
func (s *Store) IncrementUsage(ctx context.Context, quotaID uuid.UUID, key domain.ServiceKey, delta, limit int) (domain.QuotaUsage, error) {
	if limit < domain.Unlimited || limit > domain.MaxLimit {
		return domain.QuotaUsage{}, fmt.Errorf("limit %d out of range", limit)
	}
	if delta < 0 || delta > domain.MaxLimit {
		return domain.QuotaUsage{}, fmt.Errorf("delta %d out of range", delta)
	}
	row, err := s.IncrementQuotaUsage(ctx, IncrementQuotaUsageParams{
		UserQuotaID: quotaID,
		QuotaKey:    string(key),
		Delta:       int32(delta),
		Limit:       int64(limit),
	})
	if err != nil {
		return domain.QuotaUsage{}, err
	}
	return toDomainUsage(row), nil
}

func (s *Store) DecrementUsage(ctx context.Context, quotaID uuid.UUID, key domain.ServiceKey, amount int) (domain.QuotaUsage, error) {
	row, err := s.DecrementQuotaUsage(ctx, quotaID, string(key), int32(amount))
	if err != nil {
		return domain.QuotaUsage{}, err
	}
	return toDomainUsage(row), nil
}

func (s *Store) ResetUserQuota(ctx context.Context, arg ResetUserQuotaParams) (*domain.UserQuota, error) {
	preserve := make([]string, len(arg.Preserve))
	for i, k := range arg.Preserve {
		preserve[i] = string(k)
	}

	var out *domain.UserQuota
	err := s.ExecTx(ctx, func(q *Queries) error {
		if err := q.DeleteQuotaUsageExcept(ctx, arg.QuotaID, preserve); err != nil {
			return err
		}
		for _, key := range arg.Seed {
			if err := q.InsertQuotaUsageIfAbsent(ctx, uuid.New(), arg.QuotaID, string(key), 0); err != nil {
				return err
			}
		}
		row, err := q.UpdateUserQuotaPeriod(ctx, arg.QuotaID, arg.ResetDate, toNullTime(arg.PeriodEnd))
		if err != nil {
			return err
		}
		usage, err := q.ListQuotaUsage(ctx, arg.QuotaID)
		if err != nil {
			return err
		}
		out = toDomainQuota(row, usage)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) ListUserIDsDue(ctx context.Context, before time.Time, limit int) ([]string, error) {
	return s.ListUserIDsDueForReset(ctx, before, int32(limit))
}

func (s *Store) CreateNotifications(ctx context.Context, notifications []domain.QuotaNotification) error {
	return s.ExecTx(ctx, func(q *Queries) error {
		for _, n := range notifications {
			id := n.ID
			if id == uuid.Nil {
				id = uuid.New()
			}
			if err := q.InsertQuotaNotification(ctx, InsertQuotaNotificationParams{
				ID:           id,
				UserQuotaID:  n.UserQuotaID,
				Type:         string(n.Type),
				QuotaKey:     string(n.Key),
				CurrentUsage: int32(n.CurrentUsage),
				UsageLimit:   int32(n.Limit),
				Message:      n.Message,
			}); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) ListNotifications(ctx context.Context, quotaID uuid.UUID, limit int) ([]domain.QuotaNotification, error) {
	rows, err := s.ListQuotaNotifications(ctx, quotaID, int32(limit))
	if err != nil {
		return nil, err
	}
	out := make([]domain.QuotaNotification, len(rows))
	for i, r := range rows {
		out[i] = toDomainNotification(r)
	}
	return out, nil
}

func (s *Store) ListUnsentNotifications(ctx context.Context, limit int) ([]PendingNotification, error) {
	rows, err := s.ListUnsentQuotaNotifications(ctx, int32(limit))
	if err != nil {
		return nil, err
	}
	out := make([]PendingNotification, len(rows))
	for i, r := range rows {
		out[i] = PendingNotification{
			Notification: toDomainNotification(r.QuotaNotification),
			Email:        r.Email,
			Name:         r.Name,
		}
	}
	return out, nil
}

func (s *Store) MarkNotificationSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	return s.MarkQuotaNotificationSent(ctx, id, at)
}

// =============================================================================
// Users
// =============================================================================

func (s *Store) GetUser(ctx context.Context, id string) (*domain.User, error) {
	row, err := s.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return toDomainUser(row), nil
}

func (s *Store) GetUserByCustomerID(ctx context.Context, customerID string) (*domain.User, error) {
	row, err := s.GetUserByStripeCustomerID(ctx, customerID)
	if err != nil {
		return nil, err
	}
	return toDomainUser(row), nil
}

func (s *Store) EnsureUser(ctx context.Context, id, email, name string) (*domain.User, error) {
	row, err := s.UpsertUser(ctx, UpsertUserParams{ID: id, Email: email, Name: name})
	if err != nil {
		return nil, err
	}
	return toDomainUser(row), nil
}

func (s *Store) UpdateSubscription(ctx context.Context, id string, upd domain.SubscriptionUpdate) (*domain.User, error) {
	status := upd.Status
	if status == "" {
		status = domain.SubscriptionStatusInactive
	}
	row, err := s.UpdateUserSubscription(ctx, UpdateUserSubscriptionParams{
		ID:                    id,
		Tier:                  string(upd.Tier),
		StripeCustomerID:      toNullString(upd.CustomerID),
		SubscriptionID:        toNullString(upd.SubscriptionID),
		SubscriptionStatus:    string(status),
		CurrentPeriodEnd:      toNullTime(upd.CurrentPeriodEnd),
		CancelAtPeriodEnd:     upd.CancelAtPeriodEnd,
		SubscriptionCheckedAt: toNullTime(upd.CheckedAt),
	})
	if err != nil {
		return nil, err
	}
	return toDomainUser(row), nil
}

func (s *Store) SetStripeCustomer(ctx context.Context, id, customerID string) error {
	return s.UpdateUserStripeCustomer(ctx, id, customerID)
}

// CountActiveJobs returns the number of non-archived job applications.
func (s *Store) CountActiveJobs(ctx context.Context, userID string) (int, error) {
	n, err := s.CountActiveJobApplications(ctx, userID)
	return int(n), err
}

// =============================================================================
// Webhook events
// =============================================================================

// BeginWebhook records a delivery of eventID and claims it for claimTTL. It
// reports false when the event is processed or another delivery holds an
// unexpired claim.
func (s *Store) BeginWebhook(ctx context.Context, eventID, eventType string, metadata []byte, claimTTL time.Duration) (WebhookEvent, bool, error) {
	meta := pqtype.NullRawMessage{}
	if len(metadata) > 0 {
		meta = pqtype.NullRawMessage{RawMessage: metadata, Valid: true}
	}
	token := uuid.New()
	ev, err := s.BeginWebhookEvent(ctx, BeginWebhookEventParams{
		EventID:      eventID,
		Type:         eventType,
		Metadata:     meta,
		ClaimToken:   token,
		ClaimSeconds: claimTTL.Seconds(),
	})
	if err != nil {
		return WebhookEvent{}, false, err
	}
	claimed := !ev.Processed && ev.ClaimToken.Valid && ev.ClaimToken.UUID == token
	return ev, claimed, nil
}

func (s *Store) MarkWebhookProcessed(ctx context.Context, eventID string) error {
	return s.MarkWebhookEventProcessed(ctx, eventID)
}

func (s *Store) MarkWebhookFailed(ctx context.Context, eventID, message string) error {
	return s.MarkWebhookEventFailed(ctx, eventID, message)
}

// =============================================================================
// Conversion helpers
// =============================================================================

func toDomainUser(u User) *domain.User {
	return &domain.User{
		ID:                    u.ID,
		Email:                 u.Email,
		Name:                  u.Name,
		Role:                  domain.Role(u.Role),
		Tier:                  domain.Tier(u.Tier),
		StripeCustomerID:      nullStringValue(u.StripeCustomerID),
		SubscriptionID:        nullStringValue(u.SubscriptionID),
		SubscriptionStatus:    domain.SubscriptionStatus(u.SubscriptionStatus),
		CurrentPeriodEnd:      nullTimeValue(u.CurrentPeriodEnd),
		CancelAtPeriodEnd:     u.CancelAtPeriodEnd,
		SubscriptionCheckedAt: nullTimeValue(u.SubscriptionCheckedAt),
		CreatedAt:             u.CreatedAt,
		UpdatedAt:             u.UpdatedAt,
	}
}

func toDomainQuota(q UserQuota, usage []QuotaUsage) *domain.UserQuota {
	out := &domain.UserQuota{
		ID:                     q.ID,
		UserID:                 q.UserID,
		QuotaResetDate:         q.QuotaResetDate,
		StripeCurrentPeriodEnd: nullTimeValue(q.StripeCurrentPeriodEnd),
		Usage:                  make([]domain.QuotaUsage, len(usage)),
		CreatedAt:              q.CreatedAt,
		UpdatedAt:              q.UpdatedAt,
	}
	for i, u := range usage {
		out.Usage[i] = toDomainUsage(u)
	}
	return out
}

func toDomainUsage(u QuotaUsage) domain.QuotaUsage {
	return domain.QuotaUsage{
		ID:          u.ID,
		UserQuotaID: u.UserQuotaID,
		Key:         domain.ServiceKey(u.QuotaKey),
		Count:       int(u.UsageCount),
		UpdatedAt:   u.UpdatedAt,
	}
}

func toDomainNotification(n QuotaNotification) domain.QuotaNotification {
	return domain.QuotaNotification{
		ID:           n.ID,
		UserQuotaID:  n.UserQuotaID,
		Type:         domain.NotificationType(n.Type),
		Key:          domain.ServiceKey(n.QuotaKey),
		CurrentUsage: int(n.CurrentUsage),
		Limit:        int(n.UsageLimit),
		Message:      n.Message,
		CreatedAt:    n.CreatedAt,
		SentAt:       nullTimeValue(n.SentAt),
	}
}

func nullStringValue(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

func nullTimeValue(nt sql.NullTime) *time.Time {
	if nt.Valid {
		t := nt.Time
		return &t
	}
	return nil
}

func toNullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: s, Valid: true}
}

func toNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{Valid: false}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
