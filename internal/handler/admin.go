package handler

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/DukeRupert/hiretrack/internal/auth"
	"github.com/DukeRupert/hiretrack/internal/domain"
	"github.com/DukeRupert/hiretrack/internal/service"
)

// UserReader loads a stored user.
type UserReader interface {
	GetUser(ctx context.Context, id string) (*domain.User, error)
}

// AdminHandler handles operator requests on configuration and users.
type AdminHandler struct {
	config     service.ConfigService
	quotas     service.QuotaService
	reconciler service.Reconciler
	users      UserReader
	logger     *slog.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(config service.ConfigService, quotas service.QuotaService, reconciler service.Reconciler, users UserReader, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		config:     config,
		quotas:     quotas,
		reconciler: reconciler,
		users:      users,
		logger:     logger,
	}
}

// RegisterRoutes registers admin routes with the provided middleware.
func (h *AdminHandler) RegisterRoutes(mux *http.ServeMux, requireAdmin func(http.Handler) http.Handler) {
	mux.Handle("GET /api/admin/config", requireAdmin(http.HandlerFunc(h.GetConfig)))
	mux.Handle("PATCH /api/admin/config", requireAdmin(http.HandlerFunc(h.UpdateConfig)))
	mux.Handle("POST /api/admin/services", requireAdmin(http.HandlerFunc(h.AddService)))
	mux.Handle("PATCH /api/admin/services/{key}", requireAdmin(http.HandlerFunc(h.SetServiceActive)))
	mux.Handle("DELETE /api/admin/services/{key}", requireAdmin(http.HandlerFunc(h.RemoveService)))
	mux.Handle("POST /api/admin/users/{id}/reconcile", requireAdmin(http.HandlerFunc(h.ReconcileUser)))
	mux.Handle("POST /api/admin/users/{id}/quota/reset", requireAdmin(http.HandlerFunc(h.ResetUserQuota)))
}

// GetConfig returns the full quota configuration.
func (h *AdminHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.config.Get(r.Context())
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, cfg)
}

// UpdateConfig replaces the sections present in the body.
func (h *AdminHandler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	const op = "handler.update_config"

	var upd domain.ConfigUpdate
	if err := decodeJSON(r, op, &upd); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	if upd.Empty() {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "tierLimits or services is required"))
		return
	}

	cfg, err := h.config.Update(r.Context(), actor(r), upd)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, cfg)
}

type addServiceRequest struct {
	Key         domain.ServiceKey `json:"key"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
}

// AddService registers a new service with a zero limit on every tier.
func (h *AdminHandler) AddService(w http.ResponseWriter, r *http.Request) {
	const op = "handler.add_service"

	var req addServiceRequest
	if err := decodeJSON(r, op, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	cfg, err := h.config.AddService(r.Context(), actor(r), req.Key, req.Name, req.Description)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusCreated, cfg)
}

type setActiveRequest struct {
	Active *bool `json:"active"`
}

// SetServiceActive enables or disables a service.
func (h *AdminHandler) SetServiceActive(w http.ResponseWriter, r *http.Request) {
	const op = "handler.set_service_active"

	var req setActiveRequest
	if err := decodeJSON(r, op, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	if req.Active == nil {
		ErrorResponse(w, r, h.logger, domain.NewValidationError(op, "active", "active is required"))
		return
	}

	key := domain.ServiceKey(r.PathValue("key"))
	cfg, err := h.config.SetServiceActive(r.Context(), actor(r), key, *req.Active)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, cfg)
}

// RemoveService deletes a service from the configuration.
func (h *AdminHandler) RemoveService(w http.ResponseWriter, r *http.Request) {
	key := domain.ServiceKey(r.PathValue("key"))
	cfg, err := h.config.RemoveService(r.Context(), actor(r), key)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, cfg)
}

type adminUserResponse struct {
	ID                    string                    `json:"id"`
	Email                 string                    `json:"email"`
	Tier                  domain.Tier               `json:"tier"`
	SubscriptionID        string                    `json:"subscriptionId,omitempty"`
	SubscriptionStatus    domain.SubscriptionStatus `json:"subscriptionStatus"`
	CurrentPeriodEnd      *time.Time                `json:"currentPeriodEnd,omitempty"`
	CancelAtPeriodEnd     bool                      `json:"cancelAtPeriodEnd"`
	SubscriptionCheckedAt *time.Time                `json:"subscriptionCheckedAt,omitempty"`
}

// ReconcileUser compares the user's subscription with the billing provider now.
func (h *AdminHandler) ReconcileUser(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	user, err := h.reconciler.Reconcile(r.Context(), id)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	h.logger.Info("admin reconciled user", "actor", actor(r), "user_id", id, "tier", user.Tier)
	WriteJSON(w, http.StatusOK, adminUserResponse{
		ID:                    user.ID,
		Email:                 user.Email,
		Tier:                  user.Tier,
		SubscriptionID:        user.SubscriptionID,
		SubscriptionStatus:    user.SubscriptionStatus,
		CurrentPeriodEnd:      user.CurrentPeriodEnd,
		CancelAtPeriodEnd:     user.CancelAtPeriodEnd,
		SubscriptionCheckedAt: user.SubscriptionCheckedAt,
	})
}

type quotaResponse struct {
	UserID         string         `json:"userId"`
	QuotaResetDate time.Time      `json:"quotaResetDate"`
	Usage          map[string]int `json:"usage"`
}

// ResetUserQuota starts a new quota period on the user's current tier.
func (h *AdminHandler) ResetUserQuota(w http.ResponseWriter, r *http.Request) {
	const op = "handler.reset_user_quota"

	id := r.PathValue("id")
	user, err := h.users.GetUser(r.Context(), id)
	if errors.Is(err, sql.ErrNoRows) {
		ErrorResponse(w, r, h.logger, domain.UserNotFound(op, id))
		return
	}
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.Internal(err, op, "failed to load user"))
		return
	}

	q, err := h.quotas.ResetQuota(r.Context(), user.ID, user.Tier, user.CurrentPeriodEnd, service.ResetReasonAdmin)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	h.logger.Info("admin reset quota", "actor", actor(r), "user_id", user.ID, "tier", user.Tier)
	resp := quotaResponse{
		UserID:         q.UserID,
		QuotaResetDate: q.QuotaResetDate,
		Usage:          make(map[string]int, len(q.Usage)),
	}
	for _, u := range q.Usage {
		resp.Usage[string(u.Key)] = u.Count
	}
	WriteJSON(w, http.StatusOK, resp)
}

// actor names the admin for audit logs.
func actor(r *http.Request) string {
	p := auth.GetPrincipal(r.Context())
	if p == nil {
		return "unknown"
	}
	if p.Email != "" {
		return p.Email
	}
	return p.ID
}
