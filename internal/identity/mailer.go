package identity

import (
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"

	"github.com/gatehouseio/gatehouse/internal/config"
)

// Mailer delivers the lifecycle emails the identity service produces:
// password resets, email-change confirmations, and account-deletion notices.
type Mailer interface {
	Send(to, subject, body string) error
}

// NewMailer returns an SMTP mailer when credentials are configured, or a
// log-only mailer otherwise so local development works without a mail
// provider.
func NewMailer(cfg config.SMTPConfig, logger *slog.Logger) Mailer {
	if cfg.Configured() {
		return &smtpMailer{cfg: cfg}
	}
	logger.Warn("smtp not configured, emails will be logged instead of sent")
	return &logMailer{logger: logger}
}

type smtpMailer struct {
	cfg config.SMTPConfig
}

func (m *smtpMailer) Send(to, subject, body string) error {
	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)

	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	msg := strings.Join([]string{
		"From: " + m.cfg.From,
		"To: " + to,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=utf-8",
		"",
		body,
	}, "\r\n")

	if err := smtp.SendMail(addr, auth, m.cfg.From, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("send mail to %s: %w", to, err)
	}
	return nil
}

type logMailer struct {
	logger *slog.Logger
}

func (m *logMailer) Send(to, subject, body string) error {
	m.logger.Info("mail (not sent)", "to", to, "subject", subject, "body", body)
	return nil
}
