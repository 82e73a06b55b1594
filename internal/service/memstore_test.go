package service

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/DukeRupert/hiretrack/internal/domain"
	"github.com/DukeRupert/hiretrack/internal/repository"
	"github.com/google/uuid"
)

// memStore is an in-memory implementation of every store interface with the
// same conditional semantics as the Postgres queries.
type memStore struct {
	mu sync.Mutex

	config        *domain.QuotaConfig
	users         map[string]*domain.User
	quotas        map[string]*domain.UserQuota // by user id
	usage         map[uuid.UUID]map[domain.ServiceKey]*domain.QuotaUsage
	notifications []domain.QuotaNotification
	webhooks      map[string]*repository.WebhookEvent
	jobs          map[string]int

	// incrementErrs are returned, in order, by IncrementUsage before it
	// starts applying increments.
	incrementErrs []error
	configErr     error
}

var (
	_ ConfigStore  = (*memStore)(nil)
	_ QuotaStore   = (*memStore)(nil)
	_ UserStore    = (*memStore)(nil)
	_ WebhookStore = (*memStore)(nil)
	_ JobCounter   = (*memStore)(nil)
)

func newMemStore() *memStore {
	return &memStore{
		users:    make(map[string]*domain.User),
		quotas:   make(map[string]*domain.UserQuota),
		usage:    make(map[uuid.UUID]map[domain.ServiceKey]*domain.QuotaUsage),
		webhooks: make(map[string]*repository.WebhookEvent),
		jobs:     make(map[string]int),
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// addUser seeds a user and returns it.
func (m *memStore) addUser(u domain.User) *domain.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.Role == "" {
		u.Role = domain.RoleUser
	}
	if u.Tier == "" {
		u.Tier = domain.TierFree
	}
	if u.SubscriptionStatus == "" {
		u.SubscriptionStatus = domain.SubscriptionStatusInactive
	}
	cp := u
	m.users[u.ID] = &cp
	return &u
}

func (m *memStore) user(id string) *domain.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil
	}
	cp := *u
	return &cp
}

func (m *memStore) count(userID string, key domain.ServiceKey) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.quotas[userID]
	if !ok {
		return 0, false
	}
	u, ok := m.usage[q.ID][key]
	if !ok {
		return 0, false
	}
	return u.Count, true
}

// =============================================================================
// ConfigStore
// =============================================================================

func (m *memStore) GetConfig(ctx context.Context) (*domain.QuotaConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.configErr != nil {
		return nil, m.configErr
	}
	if m.config == nil {
		return nil, sql.ErrNoRows
	}
	return m.config.Clone(), nil
}

func (m *memStore) InsertConfigIfAbsent(ctx context.Context, cfg *domain.QuotaConfig) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.configErr != nil {
		return false, m.configErr
	}
	if m.config != nil {
		return false, nil
	}
	m.config = cfg.Clone()
	return true, nil
}

func (m *memStore) UpdateConfig(ctx context.Context, fn func(*domain.QuotaConfig) error) (*domain.QuotaConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.config == nil {
		return nil, sql.ErrNoRows
	}
	next := m.config.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	if err := next.Validate(); err != nil {
		return nil, err
	}
	m.config = next
	return next.Clone(), nil
}

// =============================================================================
// QuotaStore
// =============================================================================

func (m *memStore) snapshot(q *domain.UserQuota) *domain.UserQuota {
	cp := *q
	cp.Usage = nil
	for _, u := range m.usage[q.ID] {
		cp.Usage = append(cp.Usage, *u)
	}
	sort.Slice(cp.Usage, func(i, j int) bool { return cp.Usage[i].Key < cp.Usage[j].Key })
	return &cp
}

func (m *memStore) quotaByID(id uuid.UUID) (*domain.UserQuota, bool) {
	for _, q := range m.quotas {
		if q.ID == id {
			return q, true
		}
	}
	return nil, false
}

func (m *memStore) ensureUsage(quotaID uuid.UUID, key domain.ServiceKey) *domain.QuotaUsage {
	counters, ok := m.usage[quotaID]
	if !ok {
		counters = make(map[domain.ServiceKey]*domain.QuotaUsage)
		m.usage[quotaID] = counters
	}
	u, ok := counters[key]
	if !ok {
		u = &domain.QuotaUsage{ID: uuid.New(), UserQuotaID: quotaID, Key: key, UpdatedAt: time.Now()}
		counters[key] = u
	}
	return u
}

func (m *memStore) GetUserQuota(ctx context.Context, userID string) (*domain.UserQuota, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.quotas[userID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return m.snapshot(q), nil
}

func (m *memStore) CreateUserQuota(ctx context.Context, arg repository.CreateUserQuotaParams) (*domain.UserQuota, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.quotas[arg.UserID]; exists {
		return nil, sql.ErrNoRows
	}
	now := time.Now()
	q := &domain.UserQuota{
		ID:                     uuid.New(),
		UserID:                 arg.UserID,
		QuotaResetDate:         arg.ResetDate,
		StripeCurrentPeriodEnd: arg.PeriodEnd,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	m.quotas[arg.UserID] = q
	for _, key := range arg.Keys {
		m.ensureUsage(q.ID, key)
	}
	return m.snapshot(q), nil
}

func (m *memStore) GetOrCreateUsage(ctx context.Context, quotaID uuid.UUID, key domain.ServiceKey) (domain.QuotaUsage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.ensureUsage(quotaID, key), nil
}

func (m *memStore) SetUsage(ctx context.Context, quotaID uuid.UUID, key domain.ServiceKey, count int) (domain.QuotaUsage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.ensureUsage(quotaID, key)
	u.Count = count
	return *u, nil
}

func (m *memStore) IncrementUsage(ctx context.Context, quotaID uuid.UUID, key domain.ServiceKey, delta, limit int) (domain.QuotaUsage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.incrementErrs) > 0 {
		err := m.incrementErrs[0]
		m.incrementErrs = m.incrementErrs[1:]
		return domain.QuotaUsage{}, err
	}
	u, ok := m.usage[quotaID][key]
	if !ok {
		return domain.QuotaUsage{}, sql.ErrNoRows
	}
	if limit != domain.Unlimited && u.Count+delta > limit {
		return domain.QuotaUsage{}, sql.ErrNoRows
	}
	u.Count += delta
	u.UpdatedAt = time.Now()
	return *u, nil
}

func (m *memStore) DecrementUsage(ctx context.Context, quotaID uuid.UUID, key domain.ServiceKey, amount int) (domain.QuotaUsage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.usage[quotaID][key]
	if !ok {
		return domain.QuotaUsage{}, sql.ErrNoRows
	}
	u.Count -= amount
	if u.Count < 0 {
		u.Count = 0
	}
	return *u, nil
}

func (m *memStore) ResetUserQuota(ctx context.Context, arg repository.ResetUserQuotaParams) (*domain.UserQuota, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.quotaByID(arg.QuotaID)
	if !ok {
		return nil, sql.ErrNoRows
	}
	keep := make(map[domain.ServiceKey]bool, len(arg.Preserve))
	for _, k := range arg.Preserve {
		keep[k] = true
	}
	for key := range m.usage[q.ID] {
		if !keep[key] {
			delete(m.usage[q.ID], key)
		}
	}
	for _, key := range arg.Seed {
		m.ensureUsage(q.ID, key)
	}
	q.QuotaResetDate = arg.ResetDate
	q.StripeCurrentPeriodEnd = arg.PeriodEnd
	q.UpdatedAt = time.Now()
	return m.snapshot(q), nil
}

func (m *memStore) ListUserIDsDue(ctx context.Context, before time.Time, limit int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for userID, q := range m.quotas {
		if q.QuotaResetDate.Before(before) {
			ids = append(ids, userID)
		}
	}
	sort.Strings(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (m *memStore) CreateNotifications(ctx context.Context, notifications []domain.QuotaNotification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range notifications {
		if n.ID == uuid.Nil {
			n.ID = uuid.New()
		}
		n.CreatedAt = time.Now()
		m.notifications = append(m.notifications, n)
	}
	return nil
}

func (m *memStore) ListNotifications(ctx context.Context, quotaID uuid.UUID, limit int) ([]domain.QuotaNotification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.QuotaNotification
	for i := len(m.notifications) - 1; i >= 0 && len(out) < limit; i-- {
		if m.notifications[i].UserQuotaID == quotaID {
			out = append(out, m.notifications[i])
		}
	}
	return out, nil
}

func (m *memStore) ListUnsentNotifications(ctx context.Context, limit int) ([]repository.PendingNotification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []repository.PendingNotification
	for _, n := range m.notifications {
		if n.SentAt != nil || len(out) >= limit {
			continue
		}
		p := repository.PendingNotification{Notification: n}
		for userID, q := range m.quotas {
			if q.ID == n.UserQuotaID {
				if u, ok := m.users[userID]; ok {
					p.Email, p.Name = u.Email, u.Name
				}
			}
		}
		out = append(out, p)
	}
	return out, nil
}

func (m *memStore) MarkNotificationSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.notifications {
		if m.notifications[i].ID == id {
			m.notifications[i].SentAt = &at
			return nil
		}
	}
	return sql.ErrNoRows
}

// =============================================================================
// UserStore
// =============================================================================

func (m *memStore) GetUser(ctx context.Context, id string) (*domain.User, error) {
	if u := m.user(id); u != nil {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func (m *memStore) GetUserByCustomerID(ctx context.Context, customerID string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.StripeCustomerID == customerID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memStore) EnsureUser(ctx context.Context, id, email, name string) (*domain.User, error) {
	m.mu.Lock()
	u, ok := m.users[id]
	if ok {
		u.Email = email
		if name != "" {
			u.Name = name
		}
		cp := *u
		m.mu.Unlock()
		return &cp, nil
	}
	m.mu.Unlock()
	return m.addUser(domain.User{ID: id, Email: email, Name: name}), nil
}

func (m *memStore) UpdateSubscription(ctx context.Context, id string, upd domain.SubscriptionUpdate) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	u.Tier = upd.Tier
	if upd.CustomerID != "" {
		u.StripeCustomerID = upd.CustomerID
	}
	u.SubscriptionID = upd.SubscriptionID
	u.SubscriptionStatus = upd.Status
	if u.SubscriptionStatus == "" {
		u.SubscriptionStatus = domain.SubscriptionStatusInactive
	}
	u.CurrentPeriodEnd = upd.CurrentPeriodEnd
	u.CancelAtPeriodEnd = upd.CancelAtPeriodEnd
	if upd.CheckedAt != nil {
		u.SubscriptionCheckedAt = upd.CheckedAt
	}
	cp := *u
	return &cp, nil
}

func (m *memStore) TouchSubscriptionCheck(ctx context.Context, id string, checkedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return sql.ErrNoRows
	}
	u.SubscriptionCheckedAt = &checkedAt
	return nil
}

func (m *memStore) SetStripeCustomer(ctx context.Context, id, customerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return sql.ErrNoRows
	}
	u.StripeCustomerID = customerID
	return nil
}

// =============================================================================
// WebhookStore / JobCounter
// =============================================================================

func (m *memStore) BeginWebhook(ctx context.Context, eventID, eventType string, metadata []byte, claimTTL time.Duration) (repository.WebhookEvent, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	ev, ok := m.webhooks[eventID]
	if !ok {
		ev = &repository.WebhookEvent{EventID: eventID, Type: eventType, CreatedAt: now}
		m.webhooks[eventID] = ev
	}
	held := ev.ClaimedUntil.Valid && ev.ClaimedUntil.Time.After(now)
	if ev.Processed || held {
		return *ev, false, nil
	}
	ev.RetryCount++
	ev.ClaimToken = uuid.NullUUID{UUID: uuid.New(), Valid: true}
	ev.ClaimedUntil = sql.NullTime{Time: now.Add(claimTTL), Valid: true}
	return *ev, true, nil
}

func (m *memStore) MarkWebhookProcessed(ctx context.Context, eventID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ev, ok := m.webhooks[eventID]; ok {
		ev.Processed = true
		ev.Error = sql.NullString{}
		ev.ClaimedUntil = sql.NullTime{}
	}
	return nil
}

func (m *memStore) MarkWebhookFailed(ctx context.Context, eventID, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ev, ok := m.webhooks[eventID]; ok {
		ev.Error = sql.NullString{String: message, Valid: true}
		ev.ClaimedUntil = sql.NullTime{}
	}
	return nil
}

func (m *memStore) CountActiveJobs(ctx context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.jobs[userID], nil
}

func (m *memStore) setJobs(userID string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[userID] = n
}
