// Package handler contains the JSON HTTP handlers for the hiretrack API.
//
// This file implements the signed-in user's account reads.
//
// Routes:
//   - GET /api/tiers            -> ListTiers (public)
//   - GET /api/me               -> Me
//   - GET /api/quota/{service}  -> CheckQuota
package handler

import (
	"log/slog"
	"net/http"

	"github.com/DukeRupert/hiretrack/internal/auth"
	"github.com/DukeRupert/hiretrack/internal/domain"
	"github.com/DukeRupert/hiretrack/internal/service"
)

// AccountHandler serves tier and quota information.
type AccountHandler struct {
	profiles     service.ProfileService
	entitlements service.EntitlementService
	config       service.ConfigService
	logger       *slog.Logger
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(profiles service.ProfileService, entitlements service.EntitlementService, config service.ConfigService, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{
		profiles:     profiles,
		entitlements: entitlements,
		config:       config,
		logger:       logger,
	}
}

// RegisterRoutes registers account routes on the provided mux.
func (h *AccountHandler) RegisterRoutes(mux *http.ServeMux, requireUser func(http.Handler) http.Handler) {
	mux.HandleFunc("GET /api/tiers", h.ListTiers)
	mux.Handle("GET /api/me", requireUser(http.HandlerFunc(h.Me)))
	mux.Handle("GET /api/quota/{service}", requireUser(http.HandlerFunc(h.CheckQuota)))
}

// tierInfo is one tier as listed by ListTiers.
type tierInfo struct {
	Tier   domain.Tier                       `json:"tier"`
	Name   string                            `json:"name"`
	Limits map[domain.ServiceKey]tierService `json:"limits"`
}

type tierService struct {
	Name  string `json:"name"`
	Limit int    `json:"limit"`
}

// ListTiers returns the limits of every tier for active services.
func (h *AccountHandler) ListTiers(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.config.Get(r.Context())
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	tiers := make([]tierInfo, 0, len(domain.Tiers))
	for _, t := range domain.Tiers {
		limits, ok := cfg.LimitsFor(t)
		if !ok {
			continue
		}
		info := tierInfo{
			Tier:   t,
			Name:   domain.TierDisplayName(t, false, nil),
			Limits: make(map[domain.ServiceKey]tierService, len(limits)),
		}
		for _, key := range limits.Keys() {
			def, ok := cfg.Service(key)
			if !ok {
				continue
			}
			limit, _ := limits.Limit(key)
			info.Limits[key] = tierService{Name: def.Name, Limit: limit}
		}
		tiers = append(tiers, info)
	}

	WriteJSON(w, http.StatusOK, map[string]any{"tiers": tiers})
}

// Me provisions the user on first sight and returns the header data.
func (h *AccountHandler) Me(w http.ResponseWriter, r *http.Request) {
	p := auth.GetPrincipal(r.Context())
	if p == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	if _, err := h.profiles.EnsureUser(r.Context(), p.ID, p.Email, p.Name); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	data, err := h.profiles.GetHeaderData(r.Context(), p.ID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	WriteJSON(w, http.StatusOK, data)
}

// CheckQuota reports whether the principal may use a service, without
// consuming it. Denials are 200 responses carrying the decision.
func (h *AccountHandler) CheckQuota(w http.ResponseWriter, r *http.Request) {
	const op = "handler.check_quota"

	key := domain.ServiceKey(r.PathValue("service"))
	if !key.Valid() {
		ErrorResponse(w, r, h.logger, domain.NewValidationError(op, "service", "unknown service key format"))
		return
	}

	check, err := h.entitlements.VerifyTierAccess(r.Context(), key, domain.ActionCheck)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"service": key,
		"quota":   check,
	})
}
