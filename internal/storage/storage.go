// Package storage stores uploaded resume files.
//
// Two providers are available: LocalStorage for development and R2Storage
// (Cloudflare R2, S3-compatible) for production.
package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Storage is a write-mostly object store.
type Storage interface {
	// Put stores data at key. It fails with ErrKeyExists when the key is
	// taken and ErrTooLarge when data exceeds opts.MaxSize.
	Put(ctx context.Context, key string, data io.Reader, opts PutOptions) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// URL returns a link to key. Private objects get a link valid for expires.
	URL(ctx context.Context, key string, expires time.Duration) (string, error)
}

// PutOptions configures a single Put.
type PutOptions struct {
	ContentType string
	// MaxSize in bytes; zero means unlimited.
	MaxSize int64
}

// Provider names accepted by New.
const (
	ProviderLocal = "local"
	ProviderR2    = "r2"
)

// Config selects and configures a provider.
type Config struct {
	Provider string
	Local    LocalConfig
	R2       R2Config
}

// LocalConfig configures filesystem storage.
type LocalConfig struct {
	BasePath string
	BaseURL  string
}

// R2Config configures Cloudflare R2 storage.
type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	// PublicURL serves objects directly when set; otherwise links are presigned.
	PublicURL string
	Region    string
}

// New returns the configured provider.
func New(cfg Config, logger *slog.Logger) (Storage, error) {
	switch cfg.Provider {
	case "", ProviderLocal:
		return NewLocalStorage(cfg.Local, logger)
	case ProviderR2:
		return NewR2Storage(cfg.R2, logger)
	default:
		return nil, fmt.Errorf("unknown storage provider %q", cfg.Provider)
	}
}

// ResumeKey returns a fresh key for a user's resume.
// Format: resumes/{userID}/{uuid}{ext}
func ResumeKey(userID, contentType string) string {
	return fmt.Sprintf("resumes/%s/%s%s", userID, uuid.New(), ExtensionFor(contentType))
}
