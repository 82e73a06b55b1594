package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const insertQuotaNotification = `
INSERT INTO quota_notifications (id, user_quota_id, type, quota_key, current_usage, usage_limit, message)
VALUES ($1, $2, $3, $4, $5, $6, $7)
`

type InsertQuotaNotificationParams struct {
	ID           uuid.UUID
	UserQuotaID  uuid.UUID
	Type         string
	QuotaKey     string
	CurrentUsage int32
	UsageLimit   int32
	Message      string
}

func (q *Queries) InsertQuotaNotification(ctx context.Context, arg InsertQuotaNotificationParams) error {
	_, err := q.db.ExecContext(ctx, insertQuotaNotification,
		arg.ID,
		arg.UserQuotaID,
		arg.Type,
		arg.QuotaKey,
		arg.CurrentUsage,
		arg.UsageLimit,
		arg.Message,
	)
	return err
}

const notificationColumns = `id, user_quota_id, type, quota_key, current_usage, usage_limit, message, created_at, sent_at`

func scanNotification(row interface{ Scan(...interface{}) error }) (QuotaNotification, error) {
	var i QuotaNotification
	err := row.Scan(
		&i.ID,
		&i.UserQuotaID,
		&i.Type,
		&i.QuotaKey,
		&i.CurrentUsage,
		&i.UsageLimit,
		&i.Message,
		&i.CreatedAt,
		&i.SentAt,
	)
	return i, err
}

const listQuotaNotifications = `
SELECT ` + notificationColumns + ` FROM quota_notifications
WHERE user_quota_id = $1 ORDER BY created_at DESC LIMIT $2
`

func (q *Queries) ListQuotaNotifications(ctx context.Context, userQuotaID uuid.UUID, limit int32) ([]QuotaNotification, error) {
	rows, err := q.db.QueryContext(ctx, listQuotaNotifications, userQuotaID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []QuotaNotification
	for rows.Next() {
		i, err := scanNotification(rows)
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

const listUnsentQuotaNotifications = `
SELECT n.id, n.user_quota_id, n.type, n.quota_key, n.current_usage, n.usage_limit, n.message, n.created_at, n.sent_at,
       u.email, u.name
FROM quota_notifications n
JOIN user_quotas q ON q.id = n.user_quota_id
JOIN users u ON u.id = q.user_id
WHERE n.sent_at IS NULL
ORDER BY n.created_at
LIMIT $1
`

type ListUnsentQuotaNotificationsRow struct {
	QuotaNotification
	Email string
	Name  string
}

func (q *Queries) ListUnsentQuotaNotifications(ctx context.Context, limit int32) ([]ListUnsentQuotaNotificationsRow, error) {
	rows, err := q.db.QueryContext(ctx, listUnsentQuotaNotifications, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ListUnsentQuotaNotificationsRow
	for rows.Next() {
		var i ListUnsentQuotaNotificationsRow
		if err := rows.Scan(
			&i.ID,
			&i.UserQuotaID,
			&i.Type,
			&i.QuotaKey,
			&i.CurrentUsage,
			&i.UsageLimit,
			&i.Message,
			&i.CreatedAt,
			&i.SentAt,
			&i.Email,
			&i.Name,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const markQuotaNotificationSent = `
UPDATE quota_notifications SET sent_at = $2 WHERE id = $1
`

func (q *Queries) MarkQuotaNotificationSent(ctx context.Context, id uuid.UUID, sentAt time.Time) error {
	_, err := q.db.ExecContext(ctx, markQuotaNotificationSent, id, sentAt)
	return err
}
