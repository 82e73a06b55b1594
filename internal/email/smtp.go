package email

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"net/smtp"
	"strings"
	"time"

	"github.com/DukeRupert/hiretrack/internal/domain"
)

// SMTPEmailService sends emails via SMTP.
//
// Works with Mailhog in development (no authentication) and any standard
// SMTP relay in production.
type SMTPEmailService struct {
	config    SMTPConfig
	baseURL   string
	templates *template.Template
	logger    *slog.Logger

	// sendMail is smtp.SendMail, replaced in tests.
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

const quotaNotificationHTML = `<!DOCTYPE html>
<html>
<body style="font-family: sans-serif; color: #1f2937;">
  <p>Hi {{.Name}},</p>
  <p>{{.Message}}</p>
  <p>You have used <strong>{{.Usage}}</strong> of <strong>{{.Limit}}</strong> for {{.Service}} this period.</p>
  {{if .Exceeded}}<p>Upgrade your plan to keep going without waiting for your next reset.</p>{{end}}
  <p><a href="{{.UpgradeURL}}">Manage your plan</a></p>
  <p style="color: #6b7280; font-size: 12px;">&copy; {{currentYear}} HireTrack</p>
</body>
</html>
`

// NewSMTPEmailService creates a new SMTP-based email service.
// baseURL is the application's public URL used for links in messages.
func NewSMTPEmailService(config SMTPConfig, baseURL string, logger *slog.Logger) (*SMTPEmailService, error) {
	if config.Host == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	if config.From == "" {
		config.From = DefaultFromEmail
	}
	if config.FromName == "" {
		config.FromName = DefaultFromName
	}

	templates, err := template.New("email").Funcs(emailTemplateFuncs()).Parse(quotaNotificationHTML)
	if err != nil {
		return nil, fmt.Errorf("failed to parse email templates: %w", err)
	}

	return &SMTPEmailService{
		config:    config,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		templates: templates,
		logger:    logger,
		sendMail:  smtp.SendMail,
	}, nil
}

// SendQuotaNotification emails an advisory quota notification.
func (s *SMTPEmailService) SendQuotaNotification(ctx context.Context, to, name string, n domain.QuotaNotification) error {
	if name == "" {
		name = "there"
	}
	exceeded := n.Type == domain.NotificationExceeded
	upgradeURL := s.baseURL + "/billing"

	data := map[string]interface{}{
		"Name":       name,
		"Message":    n.Message,
		"Usage":      n.CurrentUsage,
		"Limit":      n.Limit,
		"Service":    n.Key.String(),
		"Exceeded":   exceeded,
		"UpgradeURL": upgradeURL,
	}

	htmlBody, err := s.renderTemplate(data)
	if err != nil {
		return fmt.Errorf("failed to render quota notification template: %w", err)
	}

	textBody := fmt.Sprintf(`Hi %s,

%s

You have used %d of %d for %s this period.

Manage your plan: %s

Thanks,
The HireTrack Team
`, name, n.Message, n.CurrentUsage, n.Limit, n.Key, upgradeURL)

	subject := fmt.Sprintf("You're approaching your %s limit", n.Key)
	if exceeded {
		subject = fmt.Sprintf("You've reached your %s limit", n.Key)
	}

	return s.send(ctx, Email{
		To:       to,
		Subject:  subject,
		HTMLBody: htmlBody,
		TextBody: textBody,
	})
}

// send sends an email via SMTP.
func (s *SMTPEmailService) send(ctx context.Context, email Email) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := s.buildMessage(email)
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	// Mailhog needs no auth.
	var auth smtp.Auth
	if s.config.Username != "" && s.config.Password != "" {
		auth = smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.Host)
	}

	if err := s.sendMail(addr, auth, s.config.From, []string{email.To}, msg); err != nil {
		s.logger.Error("Failed to send email",
			"to", email.To,
			"subject", email.Subject,
			"error", err,
		)
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Info("Email sent",
		"to", email.To,
		"subject", email.Subject,
	)
	return nil
}

// buildMessage constructs the raw email message with headers.
func (s *SMTPEmailService) buildMessage(email Email) []byte {
	var buf bytes.Buffer

	fromHeader := fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)

	buf.WriteString(fmt.Sprintf("From: %s\r\n", fromHeader))
	buf.WriteString(fmt.Sprintf("To: %s\r\n", email.To))
	buf.WriteString(fmt.Sprintf("Subject: %s\r\n", email.Subject))
	buf.WriteString("MIME-Version: 1.0\r\n")

	boundary := "===============HIRETRACK_BOUNDARY==============="
	buf.WriteString(fmt.Sprintf("Content-Type: multipart/alternative; boundary=\"%s\"\r\n", boundary))
	buf.WriteString("\r\n")

	buf.WriteString(fmt.Sprintf("--%s\r\n", boundary))
	buf.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	buf.WriteString("\r\n")
	buf.WriteString(email.TextBody)
	buf.WriteString("\r\n")

	buf.WriteString(fmt.Sprintf("--%s\r\n", boundary))
	buf.WriteString("Content-Type: text/html; charset=utf-8\r\n")
	buf.WriteString("\r\n")
	buf.WriteString(email.HTMLBody)
	buf.WriteString("\r\n")

	buf.WriteString(fmt.Sprintf("--%s--\r\n", boundary))

	return buf.Bytes()
}

func (s *SMTPEmailService) renderTemplate(data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := s.templates.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func emailTemplateFuncs() template.FuncMap {
	return template.FuncMap{
		"currentYear": func() int {
			return time.Now().Year()
		},
	}
}

// LogEmailService logs notifications instead of sending them. Used when
// SMTP is not configured.
type LogEmailService struct {
	logger *slog.Logger
}

// NewLogEmailService creates an EmailService that only logs.
func NewLogEmailService(logger *slog.Logger) *LogEmailService {
	return &LogEmailService{logger: logger}
}

func (s *LogEmailService) SendQuotaNotification(ctx context.Context, to, name string, n domain.QuotaNotification) error {
	s.logger.Info("Quota notification (email disabled)",
		"to", to,
		"service", n.Key,
		"type", n.Type,
		"usage", n.CurrentUsage,
		"limit", n.Limit,
	)
	return nil
}

var (
	_ EmailService = (*SMTPEmailService)(nil)
	_ EmailService = (*LogEmailService)(nil)
)
