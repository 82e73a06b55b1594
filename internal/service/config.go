// Package service contains the business logic layer.
//
// This file implements the tier and service configuration store.
package service

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/DukeRupert/hiretrack/internal/cache"
	"github.com/DukeRupert/hiretrack/internal/domain"
)

// =============================================================================
// Interface Definition
// =============================================================================

// ConfigService reads and administers the singleton quota configuration.
type ConfigService interface {
	// Get returns the configuration, creating it with defaults if absent.
	Get(ctx context.Context) (*domain.QuotaConfig, error)

	// EnsureExists creates the default configuration if no row exists.
	// Concurrent callers never create more than one row.
	EnsureExists(ctx context.Context) error

	// Update replaces the sections present in upd.
	Update(ctx context.Context, actor string, upd domain.ConfigUpdate) (*domain.QuotaConfig, error)

	// AddService registers a new active service with a zero limit on every tier.
	AddService(ctx context.Context, actor string, key domain.ServiceKey, name, description string) (*domain.QuotaConfig, error)

	// SetServiceActive enables or disables a service without touching limits.
	SetServiceActive(ctx context.Context, actor string, key domain.ServiceKey, active bool) (*domain.QuotaConfig, error)

	// RemoveService deletes key from the services map and every tier.
	// Existing usage counters for the key are left in place.
	RemoveService(ctx context.Context, actor string, key domain.ServiceKey) (*domain.QuotaConfig, error)
}

// =============================================================================
// Implementation
// =============================================================================

type configService struct {
	store  ConfigStore
	cache  cache.ConfigCache
	logger *slog.Logger
}

// NewConfigService creates a new ConfigService. A nil cache disables caching.
func NewConfigService(store ConfigStore, c cache.ConfigCache, logger *slog.Logger) ConfigService {
	if c == nil {
		c = cache.Nop{}
	}
	return &configService{
		store:  store,
		cache:  c,
		logger: logger,
	}
}

func (s *configService) Get(ctx context.Context) (*domain.QuotaConfig, error) {
	const op = "config.get"

	cfg, err := s.cache.Get(ctx)
	if err != nil {
		s.logger.Warn("Config cache read failed", "error", err)
	} else if cfg != nil {
		return cfg, nil
	}

	cfg, err = s.store.GetConfig(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		if err := s.EnsureExists(ctx); err != nil {
			return nil, err
		}
		cfg, err = s.store.GetConfig(ctx)
	}
	if errors.Is(err, sql.ErrNoRows) {
		s.logger.Error("Quota configuration missing after initialization", "op", op)
		return nil, &domain.Error{
			Code:    domain.ENOTFOUND,
			Op:      op,
			Message: "quota configuration not found",
			Err:     domain.ErrConfigNotFound,
		}
	}
	if err != nil {
		return nil, configUnavailable(op, err)
	}

	if err := s.cache.Set(ctx, cfg); err != nil {
		s.logger.Warn("Config cache write failed", "error", err)
	}
	return cfg, nil
}

func (s *configService) EnsureExists(ctx context.Context) error {
	const op = "config.ensure_exists"

	inserted, err := s.store.InsertConfigIfAbsent(ctx, domain.DefaultQuotaConfig())
	if err != nil {
		return configUnavailable(op, err)
	}
	if inserted {
		s.logger.Info("Initialized default quota configuration", "action", "CONFIG_CREATION")
	}
	return nil
}

func (s *configService) Update(ctx context.Context, actor string, upd domain.ConfigUpdate) (*domain.QuotaConfig, error) {
	const op = "config.update"

	if upd.Empty() {
		return nil, domain.Invalid(op, "update must include tierLimits or services")
	}

	cfg, err := s.mutate(ctx, op, func(c *domain.QuotaConfig) error {
		if upd.TierLimits != nil {
			c.TierLimits = upd.TierLimits
		}
		if upd.Services != nil {
			c.Services = upd.Services
		}
		return nil
	})
	if err != nil {
		s.logger.Warn("Quota configuration update rejected", "action", "CONFIG_UPDATE", "actor", actor, "error", err)
		return nil, err
	}

	s.logger.Info("Quota configuration updated",
		"action", "CONFIG_UPDATE",
		"actor", actor,
		"tier_limits_changed", upd.TierLimits != nil,
		"services_changed", upd.Services != nil,
	)
	return cfg, nil
}

func (s *configService) AddService(ctx context.Context, actor string, key domain.ServiceKey, name, description string) (*domain.QuotaConfig, error) {
	const op = "config.add_service"

	if !key.Valid() {
		return nil, domain.Invalid(op, "service key must be upper case letters, digits and underscores")
	}
	if name == "" {
		return nil, domain.Invalid(op, "service name is required")
	}

	cfg, err := s.mutate(ctx, op, func(c *domain.QuotaConfig) error {
		if _, exists := c.Services[key]; exists {
			return domain.Conflict(op, "service "+string(key)+" already exists")
		}
		c.AddService(key, domain.ServiceDefinition{Name: name, Description: description})
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Service added", "action", "SERVICE_ADD", "actor", actor, "service", key)
	return cfg, nil
}

func (s *configService) SetServiceActive(ctx context.Context, actor string, key domain.ServiceKey, active bool) (*domain.QuotaConfig, error) {
	const op = "config.set_service_active"

	cfg, err := s.mutate(ctx, op, func(c *domain.QuotaConfig) error {
		def, ok := c.Services[key]
		if !ok {
			return serviceNotFound(op, key)
		}
		def.Active = active
		c.Services[key] = def
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Service toggled", "action", "SERVICE_TOGGLE", "actor", actor, "service", key, "active", active)
	return cfg, nil
}

func (s *configService) RemoveService(ctx context.Context, actor string, key domain.ServiceKey) (*domain.QuotaConfig, error) {
	const op = "config.remove_service"

	cfg, err := s.mutate(ctx, op, func(c *domain.QuotaConfig) error {
		if _, ok := c.Services[key]; !ok {
			return serviceNotFound(op, key)
		}
		c.RemoveService(key)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Service removed", "action", "SERVICE_REMOVE", "actor", actor, "service", key)
	return cfg, nil
}

// mutate applies fn under the configuration row lock and drops the cached copy.
func (s *configService) mutate(ctx context.Context, op string, fn func(*domain.QuotaConfig) error) (*domain.QuotaConfig, error) {
	if err := s.EnsureExists(ctx); err != nil {
		return nil, err
	}

	cfg, err := s.store.UpdateConfig(ctx, fn)
	if err != nil {
		var de *domain.Error
		var ve *domain.ValidationError
		if errors.As(err, &de) || errors.As(err, &ve) {
			return nil, err
		}
		return nil, domain.Internal(err, op, "failed to update quota configuration")
	}

	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.Warn("Config cache invalidation failed", "error", err)
	}
	return cfg, nil
}

func configUnavailable(op string, err error) *domain.Error {
	return &domain.Error{
		Code:    domain.EUNAVAILABLE,
		Op:      op,
		Message: "quota configuration unavailable",
		Err:     errors.Join(domain.ErrConfigUnavailable, err),
	}
}

func serviceNotFound(op string, key domain.ServiceKey) *domain.Error {
	return &domain.Error{
		Code:    domain.ENOTFOUND,
		Op:      op,
		Message: "service " + string(key) + " not found",
		Err:     domain.ErrServiceNotFound,
	}
}
