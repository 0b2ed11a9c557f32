package digest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"agentsdr/internal/config"
)

// Sender delivers a rendered digest to its recipients.
type Sender interface {
	Send(ctx context.Context, recipients []string, content Content) error
}

// SendGridSender delivers digests through SendGrid. Without an API key it
// logs the digest instead of sending, which keeps local development free
// of real deliveries.
type SendGridSender struct {
	apiKey    string
	fromEmail string
	fromName  string
	log       *slog.Logger
}

func NewSendGridSender(cfg config.SendGridConfig, log *slog.Logger) *SendGridSender {
	if log == nil {
		log = slog.Default()
	}
	return &SendGridSender{
		apiKey:    cfg.APIKey,
		fromEmail: cfg.FromEmail,
		fromName:  cfg.FromName,
		log:       log,
	}
}

func (s *SendGridSender) Send(ctx context.Context, recipients []string, content Content) error {
	if len(recipients) == 0 {
		return fmt.Errorf("%w: no recipients", ErrInvalidArgument)
	}
	if s.apiKey == "" {
		s.log.Info("email delivery disabled, digest not sent",
			"subject", content.Subject, "recipients", len(recipients))
		return nil
	}

	m := mail.NewV3Mail()
	m.SetFrom(mail.NewEmail(s.fromName, s.fromEmail))
	m.Subject = content.Subject

	p := mail.NewPersonalization()
	for _, rcpt := range recipients {
		p.AddTos(mail.NewEmail("", rcpt))
	}
	m.AddPersonalizations(p)
	m.AddContent(mail.NewContent("text/plain", content.Text))
	m.AddContent(mail.NewContent("text/html", content.HTML))

	client := sendgrid.NewSendClient(s.apiKey)
	resp, err := client.SendWithContext(ctx, m)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("sendgrid send: status %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}
