package repository

import (
	"context"
	"encoding/json"
)

const getQuotaConfig = `
SELECT id, tier_limits, services, created_at, updated_at FROM quota_config WHERE id = 1
`

func (q *Queries) GetQuotaConfig(ctx context.Context) (QuotaConfig, error) {
	row := q.db.QueryRowContext(ctx, getQuotaConfig)
	var i QuotaConfig
	err := row.Scan(&i.ID, &i.TierLimits, &i.Services, &i.CreatedAt, &i.UpdatedAt)
	return i, err
}

const getQuotaConfigForUpdate = `
SELECT id, tier_limits, services, created_at, updated_at FROM quota_config WHERE id = 1 FOR UPDATE
`

func (q *Queries) GetQuotaConfigForUpdate(ctx context.Context) (QuotaConfig, error) {
	row := q.db.QueryRowContext(ctx, getQuotaConfigForUpdate)
	var i QuotaConfig
	err := row.Scan(&i.ID, &i.TierLimits, &i.Services, &i.CreatedAt, &i.UpdatedAt)
	return i, err
}

const insertQuotaConfigIfAbsent = `
INSERT INTO quota_config (id, tier_limits, services) VALUES (1, $1, $2)
ON CONFLICT (id) DO NOTHING
`

// InsertQuotaConfigIfAbsent reports whether a row was inserted.
func (q *Queries) InsertQuotaConfigIfAbsent(ctx context.Context, tierLimits, services json.RawMessage) (bool, error) {
	res, err := q.db.ExecContext(ctx, insertQuotaConfigIfAbsent, tierLimits, services)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

const updateQuotaConfig = `
UPDATE quota_config SET tier_limits = $1, services = $2, updated_at = NOW() WHERE id = 1
RETURNING id, tier_limits, services, created_at, updated_at
`

func (q *Queries) UpdateQuotaConfig(ctx context.Context, tierLimits, services json.RawMessage) (QuotaConfig, error) {
	row := q.db.QueryRowContext(ctx, updateQuotaConfig, tierLimits, services)
	var i QuotaConfig
	err := row.Scan(&i.ID, &i.TierLimits, &i.Services, &i.CreatedAt, &i.UpdatedAt)
	return i, err
}
