package internal

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env         string
	Port        int
	LogLevel    string
	DatabaseUrl string

	// Redis is optional. When set it backs the quota config cache and the
	// shared rate limiter.
	RedisURL       string
	ConfigCacheTTL time.Duration

	// Bearer token verification. Exactly one of secret or public key.
	AuthJWTSecret    string
	AuthJWTPublicKey string
	AuthJWTIssuer    string

	// Admin access control
	AdminEmails []string // List of email addresses with admin access

	// Stripe Billing Configuration
	// Billing endpoints and webhooks are disabled when the secret key is empty.
	StripeSecretKey     string // Stripe API secret key (sk_test_... or sk_live_...)
	StripeWebhookSecret string // Stripe webhook signing secret (whsec_...)
	StripeProPriceID    string
	StripePowerPriceID  string

	// Application base URL (for billing redirects and email links)
	BaseURL string

	// Subscription reconciliation
	ReconcileCheckInterval time.Duration
	ReconcileExpiryWindow  time.Duration
	ReconcileTimeout       time.Duration

	// QuotaPeriod is the quota period length when no billing period is known.
	QuotaPeriod time.Duration

	// Worker Configuration
	WorkerEnabled        bool
	WorkerResetInterval  time.Duration
	WorkerNotifyInterval time.Duration
	WorkerTaskTimeout    time.Duration

	// SMTP Configuration. Notifications are only logged when SMTPHost is empty.
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
	SMTPFromName string

	// Storage Configuration
	StorageProvider string // "local" or "r2"

	// Local Storage (development)
	LocalStoragePath string // Base directory for local file storage
	LocalStorageURL  string // Base URL for accessing local files

	// R2 Storage (production)
	R2AccountID       string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2BucketName      string
	R2PublicURL       string // Optional custom domain URL

	MaxResumeBytes int64

	// Per-user (or per-IP) request limit on authenticated API routes
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Metrics endpoint authentication
	// If both are empty, the /metrics endpoint will be unprotected (not recommended)
	MetricsUsername string
	MetricsPassword string
}

func NewConfig() (*Config, error) {
	// Load .env file if it exists (ignored in production)
	_ = godotenv.Load()

	cfg := &Config{
		Env:      getEnv("ENV", "development"),
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "debug"),

		RedisURL:       getEnv("REDIS_URL", ""),
		ConfigCacheTTL: getEnvDuration("CONFIG_CACHE_TTL", 5*time.Minute),

		AuthJWTSecret:    getEnv("AUTH_JWT_SECRET", ""),
		AuthJWTPublicKey: getEnv("AUTH_JWT_PUBLIC_KEY", ""),
		AuthJWTIssuer:    getEnv("AUTH_JWT_ISSUER", ""),

		AdminEmails: getEnvList("ADMIN_EMAILS"),

		// Stripe billing (optional)
		StripeSecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
		StripeProPriceID:    getEnv("STRIPE_PRO_PRICE_ID", ""),
		StripePowerPriceID:  getEnv("STRIPE_POWER_PRICE_ID", ""),

		// Base URL defaults to localhost for development
		BaseURL: strings.TrimSuffix(getEnv("BASE_URL", "http://localhost:8080"), "/"),

		ReconcileCheckInterval: getEnvDuration("RECONCILE_CHECK_INTERVAL", time.Hour),
		ReconcileExpiryWindow:  getEnvDuration("RECONCILE_EXPIRY_WINDOW", 24*time.Hour),
		ReconcileTimeout:       getEnvDuration("RECONCILE_TIMEOUT", 10*time.Second),
		QuotaPeriod:            getEnvDuration("QUOTA_PERIOD", 30*24*time.Hour),

		// Worker defaults
		WorkerEnabled:        getEnvBool("WORKER_ENABLED", true),
		WorkerResetInterval:  getEnvDuration("WORKER_RESET_INTERVAL", 15*time.Minute),
		WorkerNotifyInterval: getEnvDuration("WORKER_NOTIFY_INTERVAL", time.Minute),
		WorkerTaskTimeout:    getEnvDuration("WORKER_TASK_TIMEOUT", 2*time.Minute),

		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     getEnvInt("SMTP_PORT", 1025),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		SMTPFrom:     getEnv("SMTP_FROM", "noreply@hiretrack.app"),
		SMTPFromName: getEnv("SMTP_FROM_NAME", "HireTrack"),

		// Storage defaults to local filesystem for development
		StorageProvider:  getEnv("STORAGE_PROVIDER", "local"),
		LocalStoragePath: getEnv("LOCAL_STORAGE_PATH", "./storage"),
		LocalStorageURL:  getEnv("LOCAL_STORAGE_URL", "http://localhost:8080/files"),

		// R2 configuration (production only)
		R2AccountID:       getEnv("R2_ACCOUNT_ID", ""),
		R2AccessKeyID:     getEnv("R2_ACCESS_KEY_ID", ""),
		R2SecretAccessKey: getEnv("R2_SECRET_ACCESS_KEY", ""),
		R2BucketName:      getEnv("R2_BUCKET_NAME", ""),
		R2PublicURL:       getEnv("R2_PUBLIC_URL", ""),

		MaxResumeBytes: int64(getEnvInt("MAX_RESUME_BYTES", 5<<20)),

		RateLimitRequests: getEnvInt("RATE_LIMIT_REQUESTS", 120),
		RateLimitWindow:   getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),

		// Metrics authentication
		MetricsUsername: getEnv("METRICS_USERNAME", ""),
		MetricsPassword: getEnv("METRICS_PASSWORD", ""),
	}

	// Required
	cfg.DatabaseUrl = os.Getenv("DATABASE_URL")
	if cfg.DatabaseUrl == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.AuthJWTSecret == "" && cfg.AuthJWTPublicKey == "" {
		return nil, fmt.Errorf("one of AUTH_JWT_SECRET or AUTH_JWT_PUBLIC_KEY is required")
	}
	if cfg.AuthJWTSecret != "" && cfg.AuthJWTPublicKey != "" {
		return nil, fmt.Errorf("AUTH_JWT_SECRET and AUTH_JWT_PUBLIC_KEY are mutually exclusive")
	}

	// Validate storage configuration
	if cfg.StorageProvider == "r2" {
		if cfg.R2AccountID == "" {
			return nil, fmt.Errorf("R2_ACCOUNT_ID is required when STORAGE_PROVIDER is 'r2'")
		}
		if cfg.R2AccessKeyID == "" {
			return nil, fmt.Errorf("R2_ACCESS_KEY_ID is required when STORAGE_PROVIDER is 'r2'")
		}
		if cfg.R2SecretAccessKey == "" {
			return nil, fmt.Errorf("R2_SECRET_ACCESS_KEY is required when STORAGE_PROVIDER is 'r2'")
		}
		if cfg.R2BucketName == "" {
			return nil, fmt.Errorf("R2_BUCKET_NAME is required when STORAGE_PROVIDER is 'r2'")
		}
	} else if cfg.StorageProvider != "local" {
		return nil, fmt.Errorf("STORAGE_PROVIDER must be either 'local' or 'r2', got: %s", cfg.StorageProvider)
	}

	// Price IDs are what map subscriptions back to tiers.
	if cfg.StripeSecretKey != "" && (cfg.StripeProPriceID == "" || cfg.StripePowerPriceID == "") {
		return nil, fmt.Errorf("STRIPE_PRO_PRICE_ID and STRIPE_POWER_PRICE_ID are required when STRIPE_SECRET_KEY is set")
	}

	if cfg.MaxResumeBytes <= 0 {
		return nil, fmt.Errorf("MAX_RESUME_BYTES must be positive, got: %d", cfg.MaxResumeBytes)
	}
	if cfg.QuotaPeriod <= 0 {
		return nil, fmt.Errorf("QUOTA_PERIOD must be positive, got: %v", cfg.QuotaPeriod)
	}

	return cfg, nil
}

// BillingEnabled reports whether Stripe is configured.
func (c *Config) BillingEnabled() bool {
	return c.StripeSecretKey != ""
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

// getEnvList splits a comma-separated variable into lowercased, trimmed entries.
func getEnvList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if trimmed := strings.TrimSpace(strings.ToLower(item)); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
