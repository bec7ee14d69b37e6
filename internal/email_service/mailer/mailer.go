package mailer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/wneessen/go-mail"
)

// Message is the structured payload handed to the transport.
type Message struct {
	To      string
	Subject string
	Body    string
	HTML    string
}

// SMTPConfig configures the outbound SMTP transport.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration
}

// SMTPTransport sends messages over authenticated, TLS-enforced SMTP.
// Callers bound each send with the context they pass to Send.
type SMTPTransport struct {
	client *mail.Client
	from   string
	logger *slog.Logger
}

func NewSMTPTransport(cfg SMTPConfig, logger *slog.Logger) (*SMTPTransport, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	client, err := mail.NewClient(cfg.Host,
		mail.WithPort(cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(cfg.Username),
		mail.WithPassword(cfg.Password),
		mail.WithTLSPolicy(mail.TLSMandatory),
		mail.WithTimeout(cfg.Timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("create smtp client: %w", err)
	}
	return &SMTPTransport{client: client, from: cfg.From, logger: logger}, nil
}

func (t *SMTPTransport) Send(ctx context.Context, m Message) error {
	msg := mail.NewMsg()
	if err := msg.From(t.from); err != nil {
		return fmt.Errorf("invalid from address: %w", err)
	}
	if err := msg.To(m.To); err != nil {
		return fmt.Errorf("invalid recipient address: %w", err)
	}
	msg.Subject(m.Subject)
	msg.SetBodyString(mail.TypeTextPlain, m.Body)
	if m.HTML != "" {
		msg.AddAlternativeString(mail.TypeTextHTML, m.HTML)
	}

	if err := t.client.DialAndSendWithContext(ctx, msg); err != nil {
		t.logger.ErrorContext(ctx, "SMTP send failed", "error", err, "to", m.To, "subject", m.Subject)
		return fmt.Errorf("smtp send: %w", err)
	}

	t.logger.InfoContext(ctx, "Email sent", "to", m.To, "subject", m.Subject)
	return nil
}
