// Package jobs holds the periodic background tasks run by the worker.
package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/DukeRupert/hiretrack/internal/domain"
	"github.com/DukeRupert/hiretrack/internal/service"
	"github.com/DukeRupert/hiretrack/internal/worker"
)

// TaskNameResetSweep identifies the reset sweep in logs and metrics.
const TaskNameResetSweep = "quota_reset_sweep"

const defaultSweepBatch = 200

// QuotaResetter lists and resets expired quota periods.
type QuotaResetter interface {
	ListDueForReset(ctx context.Context, now time.Time, limit int) ([]string, error)
	GetOrCreateUserQuota(ctx context.Context, userID string) (*domain.UserQuota, error)
	ResetQuota(ctx context.Context, userID string, tier domain.Tier, periodEnd *time.Time, reason string) (*domain.UserQuota, error)
}

// UserGetter loads a user by id, returning sql.ErrNoRows when missing.
type UserGetter interface {
	GetUser(ctx context.Context, id string) (*domain.User, error)
}

// SubscriptionSyncer refreshes a subscribed user's cached billing state.
type SubscriptionSyncer interface {
	Sync(ctx context.Context, user *domain.User) *domain.User
}

// ResetSweepTask starts a new quota period for users whose reset date has
// passed. Users without a subscription get a fresh allowance for their
// tier. Subscribed users are synced with the billing provider first, which
// resets the quota when it reports a renewal or lapse; if the quota is still
// due afterwards it is reset for the synced tier.
type ResetSweepTask struct {
	quotas     QuotaResetter
	users      UserGetter
	reconciler SubscriptionSyncer
	interval   time.Duration
	batch      int
	now        func() time.Time
	logger     *slog.Logger
}

// NewResetSweepTask creates the reset sweep. batch caps the users handled
// per run; zero uses the default.
func NewResetSweepTask(
	quotas QuotaResetter,
	users UserGetter,
	reconciler SubscriptionSyncer,
	interval time.Duration,
	batch int,
	logger *slog.Logger,
) *ResetSweepTask {
	if batch <= 0 {
		batch = defaultSweepBatch
	}
	return &ResetSweepTask{
		quotas:     quotas,
		users:      users,
		reconciler: reconciler,
		interval:   interval,
		batch:      batch,
		now:        time.Now,
		logger:     logger,
	}
}

func (t *ResetSweepTask) Name() string            { return TaskNameResetSweep }
func (t *ResetSweepTask) Interval() time.Duration { return t.interval }

// Run handles one batch of due quotas. Individual user failures are logged
// and reported together once the batch is done.
func (t *ResetSweepTask) Run(ctx context.Context) error {
	now := t.now()
	ids, err := t.quotas.ListDueForReset(ctx, now, t.batch)
	if err != nil {
		return fmt.Errorf("list due quotas: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}

	var reset, synced, failed int
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}

		user, err := t.users.GetUser(ctx, id)
		if errors.Is(err, sql.ErrNoRows) {
			t.logger.Warn("Quota due for reset has no user", "user_id", id)
			continue
		}
		if err != nil {
			t.logger.Error("Failed to load user for quota reset", "user_id", id, "error", err)
			failed++
			continue
		}

		var periodEnd *time.Time
		if user.HasSubscription() {
			user = t.reconciler.Sync(ctx, user)
			q, err := t.quotas.GetOrCreateUserQuota(ctx, user.ID)
			if err != nil {
				t.logger.Error("Failed to reload quota after sync", "user_id", user.ID, "error", err)
				failed++
				continue
			}
			if q.QuotaResetDate.After(now) {
				synced++
				continue
			}
			if user.CurrentPeriodEnd != nil && user.CurrentPeriodEnd.After(now) {
				periodEnd = user.CurrentPeriodEnd
			}
		}

		if _, err := t.quotas.ResetQuota(ctx, user.ID, user.Tier, periodEnd, service.ResetReasonPeriodEnd); err != nil {
			t.logger.Error("Failed to reset quota", "user_id", user.ID, "tier", user.Tier, "error", err)
			failed++
			continue
		}
		reset++
	}

	t.logger.Info("Quota reset sweep finished",
		"due", len(ids),
		"reset", reset,
		"synced", synced,
		"failed", failed,
	)

	if failed > 0 {
		return fmt.Errorf("reset sweep: %d of %d users failed", failed, len(ids))
	}
	return nil
}

var _ worker.Task = (*ResetSweepTask)(nil)
