package repository

import (
	"context"
	"database/sql"
	"time"
)

const userColumns = `id, email, name, role, tier, stripe_customer_id, subscription_id, subscription_status,
    current_period_end, cancel_at_period_end, subscription_checked_at, created_at, updated_at`

func scanUser(row interface{ Scan(...interface{}) error }) (User, error) {
	var i User
	err := row.Scan(
		&i.ID,
		&i.Email,
		&i.Name,
		&i.Role,
		&i.Tier,
		&i.StripeCustomerID,
		&i.SubscriptionID,
		&i.SubscriptionStatus,
		&i.CurrentPeriodEnd,
		&i.CancelAtPeriodEnd,
		&i.SubscriptionCheckedAt,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const getUserByID = `SELECT ` + userColumns + ` FROM users WHERE id = $1`

func (q *Queries) GetUserByID(ctx context.Context, id string) (User, error) {
	return scanUser(q.db.QueryRowContext(ctx, getUserByID, id))
}

const getUserByStripeCustomerID = `SELECT ` + userColumns + ` FROM users WHERE stripe_customer_id = $1`

func (q *Queries) GetUserByStripeCustomerID(ctx context.Context, customerID string) (User, error) {
	return scanUser(q.db.QueryRowContext(ctx, getUserByStripeCustomerID, customerID))
}

const upsertUser = `
INSERT INTO users (id, email, name)
VALUES ($1, $2, $3)
ON CONFLICT (id) DO UPDATE
SET email = EXCLUDED.email,
    name = CASE WHEN EXCLUDED.name = '' THEN users.name ELSE EXCLUDED.name END,
    updated_at = NOW()
RETURNING ` + userColumns

type UpsertUserParams struct {
	ID    string
	Email string
	Name  string
}

func (q *Queries) UpsertUser(ctx context.Context, arg UpsertUserParams) (User, error) {
	return scanUser(q.db.QueryRowContext(ctx, upsertUser, arg.ID, arg.Email, arg.Name))
}

const updateUserSubscription = `
UPDATE users
SET tier = $2,
    stripe_customer_id = COALESCE($3, stripe_customer_id),
    subscription_id = $4,
    subscription_status = $5,
    current_period_end = $6,
    cancel_at_period_end = $7,
    subscription_checked_at = COALESCE($8, subscription_checked_at),
    updated_at = NOW()
WHERE id = $1
RETURNING ` + userColumns

type UpdateUserSubscriptionParams struct {
	ID                    string
	Tier                  string
	StripeCustomerID      sql.NullString
	SubscriptionID        sql.NullString
	SubscriptionStatus    string
	CurrentPeriodEnd      sql.NullTime
	CancelAtPeriodEnd     bool
	SubscriptionCheckedAt sql.NullTime
}

func (q *Queries) UpdateUserSubscription(ctx context.Context, arg UpdateUserSubscriptionParams) (User, error) {
	return scanUser(q.db.QueryRowContext(ctx, updateUserSubscription,
		arg.ID,
		arg.Tier,
		arg.StripeCustomerID,
		arg.SubscriptionID,
		arg.SubscriptionStatus,
		arg.CurrentPeriodEnd,
		arg.CancelAtPeriodEnd,
		arg.SubscriptionCheckedAt,
	))
}

const touchSubscriptionCheck = `
UPDATE users SET subscription_checked_at = $2 WHERE id = $1
`

func (q *Queries) TouchSubscriptionCheck(ctx context.Context, id string, checkedAt time.Time) error {
	_, err := q.db.ExecContext(ctx, touchSubscriptionCheck, id, checkedAt)
	return err
}

const updateUserStripeCustomer = `
UPDATE users SET stripe_customer_id = $2, updated_at = NOW() WHERE id = $1
`

func (q *Queries) UpdateUserStripeCustomer(ctx context.Context, id, customerID string) error {
	_, err := q.db.ExecContext(ctx, updateUserStripeCustomer, id, customerID)
	return err
}

const countActiveJobApplications = `
SELECT COUNT(*) FROM job_applications WHERE user_id = $1 AND NOT archived
`

func (q *Queries) CountActiveJobApplications(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := q.db.QueryRowContext(ctx, countActiveJobApplications, userID).Scan(&count)
	return count, err
}
