// Package handler contains the JSON HTTP handlers for the hiretrack API.
//
// This file implements the self-service billing endpoints.
//
// Routes:
//   - POST /api/billing/checkout   -> CreateCheckout {"tier": "pro"}
//   - POST /api/billing/portal     -> OpenPortal
//   - POST /api/billing/cancel     -> CancelSubscription
//   - POST /api/billing/reactivate -> ReactivateSubscription
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/DukeRupert/hiretrack/internal/auth"
	"github.com/DukeRupert/hiretrack/internal/domain"
	"github.com/DukeRupert/hiretrack/internal/service"
)

// BillingHandler handles billing and subscription management requests.
type BillingHandler struct {
	billing service.BillingService
	logger  *slog.Logger
}

// NewBillingHandler creates a new BillingHandler.
func NewBillingHandler(billing service.BillingService, logger *slog.Logger) *BillingHandler {
	return &BillingHandler{
		billing: billing,
		logger:  logger,
	}
}

// RegisterRoutes registers billing routes on the provided mux.
func (h *BillingHandler) RegisterRoutes(mux *http.ServeMux, requireUser func(http.Handler) http.Handler) {
	mux.Handle("POST /api/billing/checkout", requireUser(http.HandlerFunc(h.CreateCheckout)))
	mux.Handle("POST /api/billing/portal", requireUser(http.HandlerFunc(h.OpenPortal)))
	mux.Handle("POST /api/billing/cancel", requireUser(http.HandlerFunc(h.CancelSubscription)))
	mux.Handle("POST /api/billing/reactivate", requireUser(http.HandlerFunc(h.ReactivateSubscription)))
}

type checkoutRequest struct {
	Tier string `json:"tier"`
}

type redirectResponse struct {
	URL string `json:"url"`
}

type subscriptionResponse struct {
	Tier              domain.Tier               `json:"tier"`
	Status            domain.SubscriptionStatus `json:"status"`
	CancelAtPeriodEnd bool                      `json:"cancelAtPeriodEnd"`
	TierName          string                    `json:"tierName"`
}

// CreateCheckout returns the hosted checkout URL for the requested tier.
func (h *BillingHandler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	const op = "handler.create_checkout"

	p := auth.GetPrincipal(r.Context())
	if p == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	var req checkoutRequest
	if err := decodeJSON(r, op, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	tier, err := domain.ParseTier(req.Tier)
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.NewValidationError(op, "tier", "unknown tier"))
		return
	}

	url, err := h.billing.StartCheckout(r.Context(), p.ID, tier)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, redirectResponse{URL: url})
}

// OpenPortal returns the hosted billing portal URL.
func (h *BillingHandler) OpenPortal(w http.ResponseWriter, r *http.Request) {
	p := auth.GetPrincipal(r.Context())
	if p == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	url, err := h.billing.OpenPortal(r.Context(), p.ID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, redirectResponse{URL: url})
}

// CancelSubscription schedules cancellation at the period end.
func (h *BillingHandler) CancelSubscription(w http.ResponseWriter, r *http.Request) {
	h.changeCancellation(w, r, h.billing.Cancel)
}

// ReactivateSubscription clears a scheduled cancellation.
func (h *BillingHandler) ReactivateSubscription(w http.ResponseWriter, r *http.Request) {
	h.changeCancellation(w, r, h.billing.Reactivate)
}

func (h *BillingHandler) changeCancellation(w http.ResponseWriter, r *http.Request, change func(ctx context.Context, userID string) (*domain.User, error)) {
	p := auth.GetPrincipal(r.Context())
	if p == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	user, err := change(r.Context(), p.ID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, subscriptionResponse{
		Tier:              user.Tier,
		Status:            user.SubscriptionStatus,
		CancelAtPeriodEnd: user.CancelAtPeriodEnd,
		TierName:          domain.TierDisplayName(user.Tier, user.CancelAtPeriodEnd, user.CurrentPeriodEnd),
	})
}
