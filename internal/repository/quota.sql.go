package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const getUserQuotaByUserID = `
SELECT id, user_id, quota_reset_date, stripe_current_period_end, created_at, updated_at
FROM user_quotas WHERE user_id = $1
`

func (q *Queries) GetUserQuotaByUserID(ctx context.Context, userID string) (UserQuota, error) {
	row := q.db.QueryRowContext(ctx, getUserQuotaByUserID, userID)
	var i UserQuota
	err := row.Scan(&i.ID, &i.UserID, &i.QuotaResetDate, &i.StripeCurrentPeriodEnd, &i.CreatedAt, &i.UpdatedAt)
	return i, err
}

const insertUserQuota = `
INSERT INTO user_quotas (id, user_id, quota_reset_date, stripe_current_period_end)
VALUES ($1, $2, $3, $4)
ON CONFLICT (user_id) DO NOTHING
RETURNING id, user_id, quota_reset_date, stripe_current_period_end, created_at, updated_at
`

type InsertUserQuotaParams struct {
	ID                     uuid.UUID
	UserID                 string
	QuotaResetDate         time.Time
	StripeCurrentPeriodEnd sql.NullTime
}

// InsertUserQuota returns sql.ErrNoRows when the user already has a quota.
func (q *Queries) InsertUserQuota(ctx context.Context, arg InsertUserQuotaParams) (UserQuota, error) {
	row := q.db.QueryRowContext(ctx, insertUserQuota, arg.ID, arg.UserID, arg.QuotaResetDate, arg.StripeCurrentPeriodEnd)
	var i UserQuota
	err := row.Scan(&i.ID, &i.UserID, &i.QuotaResetDate, &i.StripeCurrentPeriodEnd, &i.CreatedAt, &i.UpdatedAt)
	return i, err
}

const updateUserQuotaPeriod = `
UPDATE user_quotas
SET quota_reset_date = $2, stripe_current_period_end = $3, updated_at = NOW()
WHERE id = $1
RETURNING id, user_id, quota_reset_date, stripe_current_period_end, created_at, updated_at
`

func (q *Queries) UpdateUserQuotaPeriod(ctx context.Context, id uuid.UUID, resetDate time.Time, periodEnd sql.NullTime) (UserQuota, error) {
	row := q.db.QueryRowContext(ctx, updateUserQuotaPeriod, id, resetDate, periodEnd)
	var i UserQuota
	err := row.Scan(&i.ID, &i.UserID, &i.QuotaResetDate, &i.StripeCurrentPeriodEnd, &i.CreatedAt, &i.UpdatedAt)
	return i, err
}

const listUserIDsDueForReset = `
SELECT user_id FROM user_quotas WHERE quota_reset_date <= $1 ORDER BY quota_reset_date LIMIT $2
`

func (q *Queries) ListUserIDsDueForReset(ctx context.Context, before time.Time, limit int32) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, listUserIDsDueForReset, before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		items = append(items, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const usageColumns = `id, user_quota_id, quota_key, usage_count, updated_at`

func scanUsage(row interface{ Scan(...interface{}) error }) (QuotaUsage, error) {
	var i QuotaUsage
	err := row.Scan(&i.ID, &i.UserQuotaID, &i.QuotaKey, &i.UsageCount, &i.UpdatedAt)
	return i, err
}

const listQuotaUsage = `SELECT ` + usageColumns + ` FROM quota_usage WHERE user_quota_id = $1 ORDER BY quota_key`

func (q *Queries) ListQuotaUsage(ctx context.Context, userQuotaID uuid.UUID) ([]QuotaUsage, error) {
	rows, err := q.db.QueryContext(ctx, listQuotaUsage, userQuotaID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []QuotaUsage
	for rows.Next() {
		i, err := scanUsage(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getQuotaUsage = `SELECT ` + usageColumns + ` FROM quota_usage WHERE user_quota_id = $1 AND quota_key = $2`

func (q *Queries) GetQuotaUsage(ctx context.Context, userQuotaID uuid.UUID, key string) (QuotaUsage, error) {
	return scanUsage(q.db.QueryRowContext(ctx, getQuotaUsage, userQuotaID, key))
}

const insertQuotaUsageIfAbsent = `
INSERT INTO quota_usage (id, user_quota_id, quota_key, usage_count)
VALUES ($1, $2, $3, $4)
ON CONFLICT (user_quota_id, quota_key) DO NOTHING
`

func (q *Queries) InsertQuotaUsageIfAbsent(ctx context.Context, id, userQuotaID uuid.UUID, key string, count int32) error {
	_, err := q.db.ExecContext(ctx, insertQuotaUsageIfAbsent, id, userQuotaID, key, count)
	return err
}

const setQuotaUsage = `
INSERT INTO quota_usage (id, user_quota_id, quota_key, usage_count)
VALUES ($1, $2, $3, $4)
ON CONFLICT (user_quota_id, quota_key) DO UPDATE
SET usage_count = EXCLUDED.usage_count, updated_at = NOW()
RETURNING ` + usageColumns

func (q *Queries) SetQuotaUsage(ctx context.Context, id, userQuotaID uuid.UUID, key string, count int32) (QuotaUsage, error) {
	return scanUsage(q.db.QueryRowContext(ctx, setQuotaUsage, id, userQuotaID, key, count))
}

// The limit is re-evaluated by the statement itself, so concurrent callers
// can never push usage_count past it. A limit of -1 disables the ceiling.
const incrementQuotaUsage = `
UPDATE quota_usage
SET usage_count = usage_count + $3, updated_at = NOW()
WHERE user_quota_id = $1
  AND quota_key = $2
  AND ($4::bigint = -1 OR usage_count::bigint + $3 <= $4::bigint)
RETURNING ` + usageColumns

type IncrementQuotaUsageParams struct {
	UserQuotaID uuid.UUID
	QuotaKey    string
	Delta       int32
	Limit       int64
}

// IncrementQuotaUsage returns sql.ErrNoRows when the increment would exceed
// the limit or the counter does not exist.
func (q *Queries) IncrementQuotaUsage(ctx context.Context, arg IncrementQuotaUsageParams) (QuotaUsage, error) {
	return scanUsage(q.db.QueryRowContext(ctx, incrementQuotaUsage, arg.UserQuotaID, arg.QuotaKey, arg.Delta, arg.Limit))
}

const decrementQuotaUsage = `
UPDATE quota_usage
SET usage_count = GREATEST(usage_count - $3, 0), updated_at = NOW()
WHERE user_quota_id = $1 AND quota_key = $2
RETURNING ` + usageColumns

func (q *Queries) DecrementQuotaUsage(ctx context.Context, userQuotaID uuid.UUID, key string, amount int32) (QuotaUsage, error) {
	return scanUsage(q.db.QueryRowContext(ctx, decrementQuotaUsage, userQuotaID, key, amount))
}

const deleteQuotaUsageExcept = `
DELETE FROM quota_usage WHERE user_quota_id = $1 AND NOT (quota_key = ANY($2::text[]))
`

func (q *Queries) DeleteQuotaUsageExcept(ctx context.Context, userQuotaID uuid.UUID, preserve []string) error {
	if preserve == nil {
		preserve = []string{}
	}
	_, err := q.db.ExecContext(ctx, deleteQuotaUsageExcept, userQuotaID, pq.Array(preserve))
	return err
}
