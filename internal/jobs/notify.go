package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/DukeRupert/hiretrack/internal/email"
	"github.com/DukeRupert/hiretrack/internal/metrics"
	"github.com/DukeRupert/hiretrack/internal/repository"
	"github.com/DukeRupert/hiretrack/internal/worker"
)

// TaskNameNotify identifies the notification dispatch in logs and metrics.
const TaskNameNotify = "quota_notification_dispatch"

const defaultNotifyBatch = 100

// NotificationStore reads pending notifications and records delivery.
type NotificationStore interface {
	ListUnsentNotifications(ctx context.Context, limit int) ([]repository.PendingNotification, error)
	MarkNotificationSent(ctx context.Context, id uuid.UUID, at time.Time) error
}

// NotifyTask emails unsent quota notifications to their owners.
type NotifyTask struct {
	store    NotificationStore
	mailer   email.EmailService
	interval time.Duration
	batch    int
	now      func() time.Time
	logger   *slog.Logger
}

// NewNotifyTask creates the notification dispatch task.
func NewNotifyTask(store NotificationStore, mailer email.EmailService, interval time.Duration, batch int, logger *slog.Logger) *NotifyTask {
	if batch <= 0 {
		batch = defaultNotifyBatch
	}
	return &NotifyTask{
		store:    store,
		mailer:   mailer,
		interval: interval,
		batch:    batch,
		now:      time.Now,
		logger:   logger,
	}
}

func (t *NotifyTask) Name() string            { return TaskNameNotify }
func (t *NotifyTask) Interval() time.Duration { return t.interval }

// Run delivers one batch. A notification whose delivery fails stays unsent
// and is retried on the next run.
func (t *NotifyTask) Run(ctx context.Context) error {
	pending, err := t.store.ListUnsentNotifications(ctx, t.batch)
	if err != nil {
		return fmt.Errorf("list unsent notifications: %w", err)
	}

	var failed int
	for _, p := range pending {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := p.Notification
		logger := t.logger.With("notification_id", n.ID, "service", n.Key, "type", n.Type)

		if p.Email == "" {
			logger.Warn("Notification owner has no email, marking as sent")
		} else if err := t.mailer.SendQuotaNotification(ctx, p.Email, p.Name, n); err != nil {
			logger.Warn("Failed to deliver quota notification", "error", err)
			failed++
			continue
		}

		if err := t.store.MarkNotificationSent(ctx, n.ID, t.now()); err != nil {
			logger.Error("Failed to mark notification sent", "error", err)
			failed++
			continue
		}
		metrics.NotificationSent(string(n.Type))
	}

	if len(pending) > 0 {
		t.logger.Info("Quota notifications dispatched", "pending", len(pending), "failed", failed)
	}
	if failed > 0 {
		return fmt.Errorf("notify: %d of %d notifications failed", failed, len(pending))
	}
	return nil
}

var _ worker.Task = (*NotifyTask)(nil)
