package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/DukeRupert/hiretrack/internal"
	"github.com/DukeRupert/hiretrack/internal/auth"
	"github.com/DukeRupert/hiretrack/internal/billing"
	"github.com/DukeRupert/hiretrack/internal/cache"
	"github.com/DukeRupert/hiretrack/internal/domain"
	"github.com/DukeRupert/hiretrack/internal/email"
	"github.com/DukeRupert/hiretrack/internal/handler"
	"github.com/DukeRupert/hiretrack/internal/jobs"
	"github.com/DukeRupert/hiretrack/internal/metrics"
	"github.com/DukeRupert/hiretrack/internal/middleware"
	"github.com/DukeRupert/hiretrack/internal/repository"
	"github.com/DukeRupert/hiretrack/internal/service"
	"github.com/DukeRupert/hiretrack/internal/storage"
	"github.com/DukeRupert/hiretrack/internal/worker"
)

func run() error {
	ctx := context.Background()

	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	// Configure logger
	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	// Initialize database connection
	db, err := sql.Open("pgx", cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	// Run migrations
	if err := internal.RunMigrations(db, logger); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	logger.Info("Database ready")

	store := repository.NewStore(db)

	// Redis is optional: without it each replica caches nothing and rate
	// limits are per process.
	var (
		configCache cache.ConfigCache = cache.Nop{}
		limiter     middleware.Limiter
		redisClient *redis.Client
	)
	if cfg.RedisURL != "" {
		redisClient, err = cache.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis connection failed: %w", err)
		}
		defer redisClient.Close()
		configCache = cache.NewRedisConfigCache(redisClient, cfg.ConfigCacheTTL)
		limiter = middleware.NewRedisLimiter(redisClient, "api", cfg.RateLimitRequests, cfg.RateLimitWindow)
		logger.Info("Redis ready")
	} else {
		limiter = middleware.NewMemoryLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow)
	}

	// Billing stays a nil interface when Stripe is not configured.
	var stripeService billing.Service
	if cfg.BillingEnabled() {
		stripeService = billing.NewStripeService(cfg.StripeSecretKey, cfg.StripeWebhookSecret, billing.PriceConfig{
			ProPriceID:   cfg.StripeProPriceID,
			PowerPriceID: cfg.StripePowerPriceID,
		})
		logger.Info("Stripe billing enabled")
	} else {
		logger.Warn("Stripe billing disabled, paid tiers are served from cached state")
	}

	verifier, err := auth.NewTokenVerifier(auth.VerifierConfig{
		Secret:       cfg.AuthJWTSecret,
		PublicKeyPEM: cfg.AuthJWTPublicKey,
		Issuer:       cfg.AuthJWTIssuer,
	})
	if err != nil {
		return fmt.Errorf("auth initialization failed: %w", err)
	}

	fileStorage, err := storage.New(storage.Config{
		Provider: cfg.StorageProvider,
		Local: storage.LocalConfig{
			BasePath: cfg.LocalStoragePath,
			BaseURL:  cfg.LocalStorageURL,
		},
		R2: storage.R2Config{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			BucketName:      cfg.R2BucketName,
			PublicURL:       cfg.R2PublicURL,
		},
	}, logger)
	if err != nil {
		return fmt.Errorf("storage initialization failed: %w", err)
	}

	// Services
	configService := service.NewConfigService(store, configCache, logger)
	if err := configService.EnsureExists(ctx); err != nil {
		return fmt.Errorf("quota config initialization failed: %w", err)
	}

	quotaService := service.NewQuotaService(store, store, configService, service.QuotaServiceConfig{
		Period: cfg.QuotaPeriod,
	}, logger)
	reconciler := service.NewReconciler(store, quotaService, stripeService, service.ReconcilerConfig{
		Policy: domain.ReconcilePolicy{
			CheckInterval: cfg.ReconcileCheckInterval,
			ExpiryWindow:  cfg.ReconcileExpiryWindow,
		},
		Timeout: cfg.ReconcileTimeout,
	}, logger)
	entitlementService := service.NewEntitlementService(store, configService, quotaService, reconciler, store, logger)
	profileService := service.NewProfileService(store, configService, quotaService, reconciler, logger)
	subscriptionService := service.NewSubscriptionService(store, quotaService, store, stripeService, logger)
	billingService := service.NewBillingService(store, stripeService, reconciler, cfg.BaseURL, logger)
	resumeService := service.NewResumeService(entitlementService, fileStorage, cfg.MaxResumeBytes, logger)

	// Middleware
	isSecure := cfg.Env != "development"
	securityMw := middleware.NewSecurityHeadersMiddleware(isSecure)
	principalMw := middleware.NewPrincipalMiddleware(verifier, store, cfg.AdminEmails, logger)
	loggingMw := middleware.NewRequestLoggingMiddleware(logger)
	rateLimitMw := middleware.NewRateLimitMiddleware(limiter, logger)
	metricsAuthMw := middleware.NewMetricsAuthMiddleware(cfg.MetricsUsername, cfg.MetricsPassword)
	csrfMw := middleware.NewCSRFMiddleware(isSecure, logger)

	requireUser := middleware.Stack(principalMw.RequirePrincipal, rateLimitMw.Limit)
	requireAdmin := middleware.Stack(principalMw.RequirePrincipal, principalMw.RequireAdmin)

	// Routes
	mux := http.NewServeMux()

	handler.NewHealthHandler(db, logger).RegisterRoutes(mux)
	mux.Handle("GET /metrics", metricsAuthMw.Handler(promhttp.Handler()))

	handler.NewAccountHandler(profileService, entitlementService, configService, logger).RegisterRoutes(mux, requireUser)
	handler.NewResumeHandler(resumeService, cfg.MaxResumeBytes, logger).RegisterRoutes(mux, requireUser)
	handler.NewBillingHandler(billingService, logger).RegisterRoutes(mux, requireUser)
	handler.NewAdminHandler(configService, quotaService, reconciler, store, logger).RegisterRoutes(mux, requireAdmin)
	handler.NewWebhookHandler(stripeService, subscriptionService, logger).RegisterRoutes(mux)

	if cfg.MetricsUsername == "" && cfg.MetricsPassword == "" {
		logger.Warn("Metrics endpoint is unprotected")
	}

	// Principal resolution runs outermost so request logs and rate limits
	// see the caller.
	root := middleware.Stack(
		securityMw.Handler,
		principalMw.WithPrincipal,
		loggingMw.Handler,
		metrics.Middleware,
		csrfMw.Handler,
	)(mux)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           root,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Background tasks
	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()

	var bg *worker.Worker
	if cfg.WorkerEnabled {
		bg, err = startWorker(workerCtx, cfg, store, quotaService, reconciler, logger)
		if err != nil {
			return fmt.Errorf("worker initialization failed: %w", err)
		}
	}

	// Channel to listen for interrupt signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Server started", "address", server.Addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal or a listener failure
	select {
	case <-sigChan:
		logger.Info("Shutdown signal received, initiating graceful shutdown...")
	case err := <-serverErr:
		logger.Error("Server failed", "error", err)
	}

	// Create shutdown context with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}

	if bg != nil {
		bg.Stop()
	}
	stopWorker()

	logger.Info("Graceful shutdown complete")
	return nil
}

// startWorker registers the periodic quota tasks and starts them.
func startWorker(
	ctx context.Context,
	cfg *internal.Config,
	store *repository.Store,
	quotas service.QuotaService,
	reconciler service.Reconciler,
	logger *slog.Logger,
) (*worker.Worker, error) {
	workerConfig := worker.DefaultConfig()
	workerConfig.TaskTimeout = cfg.WorkerTaskTimeout

	w, err := worker.New(workerConfig, logger.With("component", "worker"))
	if err != nil {
		return nil, err
	}

	var mailer email.EmailService
	if cfg.SMTPHost != "" {
		mailer, err = email.NewSMTPEmailService(email.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			FromName: cfg.SMTPFromName,
		}, cfg.BaseURL, logger)
		if err != nil {
			return nil, fmt.Errorf("email initialization failed: %w", err)
		}
	} else {
		logger.Warn("SMTP not configured, quota notifications will only be logged")
		mailer = email.NewLogEmailService(logger)
	}

	tasks := []worker.Task{
		jobs.NewResetSweepTask(quotas, store, reconciler, cfg.WorkerResetInterval, 0, logger),
		jobs.NewNotifyTask(store, mailer, cfg.WorkerNotifyInterval, 0, logger),
	}
	for _, task := range tasks {
		if err := w.Register(task); err != nil {
			return nil, err
		}
	}

	w.Start(ctx)
	return w, nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
