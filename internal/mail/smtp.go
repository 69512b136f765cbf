// Package mail delivers report emails over SMTP.
package mail

import (
	"bytes"
	"context"
	"fmt"

	gomail "github.com/wneessen/go-mail"

	"github.com/dannoetc/raterhub-tracker/internal/config"
	"github.com/dannoetc/raterhub-tracker/internal/service"
)

// Compile-time interface assertion.
var _ service.Mailer = (*SMTPMailer)(nil)

// SMTPMailer implements service.Mailer over SMTP with STARTTLS.
type SMTPMailer struct {
	host     string
	port     int
	username string
	password string
	from     string
}

// NewSMTPMailer creates a mailer from config.
func NewSMTPMailer(cfg config.Config) *SMTPMailer {
	return &SMTPMailer{
		host:     cfg.SMTPHost,
		port:     cfg.SMTPPort,
		username: cfg.SMTPUsername,
		password: cfg.SMTPPassword,
		from:     cfg.EmailFromAddress,
	}
}

// Send delivers one message with optional attachments.
func (m *SMTPMailer) Send(ctx context.Context, to, subject, body string, attachments []service.Attachment) error {
	if m.host == "" {
		return fmt.Errorf("smtp host is not configured")
	}

	msg := gomail.NewMsg()
	if err := msg.From(m.from); err != nil {
		return fmt.Errorf("set from address: %w", err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("set to address: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextPlain, body)

	for _, attachment := range attachments {
		if err := msg.AttachReader(attachment.Filename, bytes.NewReader(attachment.Content),
			gomail.WithFileContentType(gomail.ContentType(attachment.MIMEType))); err != nil {
			return fmt.Errorf("attach %s: %w", attachment.Filename, err)
		}
	}

	opts := []gomail.Option{
		gomail.WithPort(m.port),
		gomail.WithTLSPolicy(gomail.TLSOpportunistic),
	}
	if m.username != "" && m.password != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(m.username),
			gomail.WithPassword(m.password),
		)
	}

	client, err := gomail.NewClient(m.host, opts...)
	if err != nil {
		return fmt.Errorf("create smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}
