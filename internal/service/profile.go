// Package service contains the business logic layer.
//
// This file assembles the account summary shown in the application header.
package service

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/DukeRupert/hiretrack/internal/domain"
)

// HeaderData is the account summary for the signed-in user.
type HeaderData struct {
	UserID            string                     `json:"userId"`
	Email             string                     `json:"email"`
	Name              string                     `json:"name"`
	IsAdmin           bool                       `json:"isAdmin"`
	Tier              domain.Tier                `json:"tier"`
	TierName          string                     `json:"tierName"`
	CancelAtPeriodEnd bool                       `json:"cancelAtPeriodEnd"`
	CurrentPeriodEnd  *time.Time                 `json:"currentPeriodEnd,omitempty"`
	QuotaResetDate    time.Time                  `json:"quotaResetDate"`
	Usage             []domain.ServiceUsage      `json:"usage"`
	Notifications     []domain.QuotaNotification `json:"notifications"`
}

// ProfileService provides account-level reads for the signed-in user.
type ProfileService interface {
	// EnsureUser provisions the user row for an authenticated subject.
	EnsureUser(ctx context.Context, id, email, name string) (*domain.User, error)

	// GetHeaderData syncs the subscription if stale and summarizes the
	// user's tier and quota.
	GetHeaderData(ctx context.Context, userID string) (*HeaderData, error)
}

type profileService struct {
	users      UserStore
	config     ConfigService
	quotas     QuotaService
	reconciler Reconciler
	logger     *slog.Logger
}

// NewProfileService creates a new ProfileService.
func NewProfileService(users UserStore, config ConfigService, quotas QuotaService, reconciler Reconciler, logger *slog.Logger) ProfileService {
	return &profileService{
		users:      users,
		config:     config,
		quotas:     quotas,
		reconciler: reconciler,
		logger:     logger,
	}
}

func (s *profileService) EnsureUser(ctx context.Context, id, email, name string) (*domain.User, error) {
	const op = "profile.ensure_user"

	id = strings.TrimSpace(id)
	if id == "" {
		return nil, domain.Invalid(op, "user id is required")
	}
	user, err := s.users.EnsureUser(ctx, id, strings.ToLower(strings.TrimSpace(email)), strings.TrimSpace(name))
	if err != nil {
		return nil, domain.Internal(err, op, "failed to provision user")
	}
	return user, nil
}

func (s *profileService) GetHeaderData(ctx context.Context, userID string) (*HeaderData, error) {
	const op = "profile.header_data"

	user, err := s.users.GetUser(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.UserNotFound(op, userID)
	}
	if err != nil {
		return nil, domain.Internal(err, op, "failed to load user")
	}
	user = s.reconciler.Sync(ctx, user)

	cfg, err := s.config.Get(ctx)
	if err != nil {
		return nil, err
	}
	limits, ok := cfg.LimitsFor(user.Tier)
	if !ok {
		s.logger.Error("No tier limits configured", "op", op, "tier", user.Tier, "user_id", user.ID)
		return nil, domain.InvalidTierConfiguration(op, user.Tier)
	}

	q, err := s.quotas.GetOrCreateUserQuota(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	notifications, err := s.quotas.ListNotifications(ctx, q.ID)
	if err != nil {
		// Notifications are advisory; the summary is still useful without them.
		s.logger.Warn("Failed to list quota notifications", "user_id", user.ID, "error", err)
	}
	if notifications == nil {
		notifications = []domain.QuotaNotification{}
	}

	return &HeaderData{
		UserID:            user.ID,
		Email:             user.Email,
		Name:              user.DisplayName(),
		IsAdmin:           user.IsAdmin(),
		Tier:              user.Tier,
		TierName:          domain.TierDisplayName(user.Tier, user.CancelAtPeriodEnd, user.CurrentPeriodEnd),
		CancelAtPeriodEnd: user.CancelAtPeriodEnd,
		CurrentPeriodEnd:  user.CurrentPeriodEnd,
		QuotaResetDate:    q.QuotaResetDate,
		Usage:             domain.SummarizeUsage(q, cfg, limits),
		Notifications:     notifications,
	}, nil
}
