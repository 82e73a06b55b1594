// Package email delivers transactional email for quota notifications.
package email

import (
	"context"

	"github.com/DukeRupert/hiretrack/internal/domain"
)

// EmailService sends transactional emails.
type EmailService interface {
	// SendQuotaNotification tells a user they are approaching or have
	// reached a quota limit.
	SendQuotaNotification(ctx context.Context, to, name string, n domain.QuotaNotification) error
}

// Email represents a single email message.
type Email struct {
	To       string // Recipient email address
	Subject  string // Email subject line
	HTMLBody string // HTML content of the email
	TextBody string // Plain text fallback content
}

// SMTPConfig holds SMTP server configuration.
type SMTPConfig struct {
	Host     string // SMTP server hostname (e.g., "localhost" for Mailhog)
	Port     int    // SMTP server port (e.g., 1025 for Mailhog)
	Username string // SMTP authentication username (empty for Mailhog)
	Password string // SMTP authentication password (empty for Mailhog)
	From     string // Default sender email address
	FromName string // Default sender display name
}

const (
	// DefaultFromEmail is the default sender email for transactional emails.
	DefaultFromEmail = "noreply@hiretrack.app"

	// DefaultFromName is the default sender display name.
	DefaultFromName = "HireTrack"
)
