// Package handler contains the JSON HTTP handlers for the hiretrack API.
//
// This file implements the Stripe webhook handler.
//
// Route:
//   - POST /webhooks/stripe -> HandleStripeWebhook
//
// This route is PUBLIC (no auth middleware) because Stripe calls it directly.
// Authentication is via the Stripe webhook signature.
package handler

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/DukeRupert/hiretrack/internal/domain"
	"github.com/DukeRupert/hiretrack/internal/service"
	"github.com/stripe/stripe-go/v79"
)

// maxWebhookBody bounds the webhook payload.
const maxWebhookBody = 64 << 10

// EventVerifier authenticates and decodes billing provider events.
// billing.Service satisfies it.
type EventVerifier interface {
	VerifyWebhookSignature(payload []byte, signature string) (stripe.Event, error)
	ParseEvent(event stripe.Event) (*domain.BillingEvent, error)
}

// WebhookHandler handles incoming webhook events from Stripe.
type WebhookHandler struct {
	verifier      EventVerifier
	subscriptions service.SubscriptionService
	logger        *slog.Logger
}

// NewWebhookHandler creates a new WebhookHandler.
// verifier may be nil when Stripe is not configured.
func NewWebhookHandler(verifier EventVerifier, subscriptions service.SubscriptionService, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		verifier:      verifier,
		subscriptions: subscriptions,
		logger:        logger,
	}
}

// RegisterRoutes registers webhook routes on the provided mux.
func (h *WebhookHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /webhooks/stripe", h.HandleStripeWebhook)
}

// HandleStripeWebhook verifies the event and applies it. A 5xx response
// makes Stripe redeliver; 2xx acknowledges, including events that are
// ignored or duplicates.
func (h *WebhookHandler) HandleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	if h.verifier == nil {
		h.logger.Warn("stripe webhook received but billing is not configured")
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		h.logger.Error("failed to read webhook body", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	event, err := h.verifier.VerifyWebhookSignature(body, r.Header.Get("Stripe-Signature"))
	if err != nil {
		h.logger.Warn("webhook signature verification failed", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	ev, err := h.verifier.ParseEvent(event)
	if err != nil {
		// Redelivery cannot fix a payload we cannot decode.
		h.logger.Error("failed to parse webhook event", "error", err, "type", event.Type, "event_id", event.ID)
		w.WriteHeader(http.StatusOK)
		return
	}

	if err := h.subscriptions.HandleEvent(r.Context(), ev); err != nil {
		h.logger.Error("webhook processing failed", "error", err, "type", ev.Type, "event_id", ev.ID)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}
