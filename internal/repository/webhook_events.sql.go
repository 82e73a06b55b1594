package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

const webhookEventColumns = `event_id, type, processed, retry_count, last_attempt, error, metadata, claim_token, claimed_until, created_at`

func scanWebhookEvent(row interface{ Scan(...interface{}) error }) (WebhookEvent, error) {
	var i WebhookEvent
	err := row.Scan(
		&i.EventID,
		&i.Type,
		&i.Processed,
		&i.RetryCount,
		&i.LastAttempt,
		&i.Error,
		&i.Metadata,
		&i.ClaimToken,
		&i.ClaimedUntil,
		&i.CreatedAt,
	)
	return i, err
}

// Every claimed delivery counts as one attempt, including the first. A
// delivery made while another holds an unexpired claim, or after the event
// was processed, leaves the row untouched apart from last_attempt.
const beginWebhookEvent = `
INSERT INTO webhook_events (event_id, type, retry_count, last_attempt, metadata, claim_token, claimed_until)
VALUES ($1, $2, 1, NOW(), $3, $4, NOW() + make_interval(secs => $5::double precision))
ON CONFLICT (event_id) DO UPDATE
SET retry_count = webhook_events.retry_count + CASE
        WHEN webhook_events.processed OR webhook_events.claimed_until > NOW() THEN 0 ELSE 1 END,
    last_attempt = NOW(),
    claim_token = CASE
        WHEN webhook_events.processed OR webhook_events.claimed_until > NOW() THEN webhook_events.claim_token
        ELSE EXCLUDED.claim_token END,
    claimed_until = CASE
        WHEN webhook_events.processed OR webhook_events.claimed_until > NOW() THEN webhook_events.claimed_until
        ELSE EXCLUDED.claimed_until END
RETURNING ` + webhookEventColumns

type BeginWebhookEventParams struct {
	EventID      string
	Type         string
	Metadata     pqtype.NullRawMessage
	ClaimToken   uuid.UUID
	ClaimSeconds float64
}

// BeginWebhookEvent records a delivery and tries to claim the event. The
// caller holds the claim when the returned claim_token equals its own.
func (q *Queries) BeginWebhookEvent(ctx context.Context, arg BeginWebhookEventParams) (WebhookEvent, error) {
	return scanWebhookEvent(q.db.QueryRowContext(ctx, beginWebhookEvent,
		arg.EventID, arg.Type, arg.Metadata, arg.ClaimToken, arg.ClaimSeconds))
}

const markWebhookEventProcessed = `
UPDATE webhook_events SET processed = TRUE, error = NULL, claimed_until = NULL WHERE event_id = $1
`

func (q *Queries) MarkWebhookEventProcessed(ctx context.Context, eventID string) error {
	_, err := q.db.ExecContext(ctx, markWebhookEventProcessed, eventID)
	return err
}

const markWebhookEventFailed = `
UPDATE webhook_events SET error = $2, claimed_until = NULL WHERE event_id = $1
`

func (q *Queries) MarkWebhookEventFailed(ctx context.Context, eventID, message string) error {
	_, err := q.db.ExecContext(ctx, markWebhookEventFailed, eventID, message)
	return err
}
