// Package mail delivers invoice mails.
package mail

import (
	"bytes"
	"context"
	"fmt"

	"housing-backend/internal/config"
	"housing-backend/internal/logger"

	"github.com/rs/zerolog"
	gomail "github.com/wneessen/go-mail"
)

type Attachment struct {
	Name        string
	ContentType string
	Data        []byte
}

type Message struct {
	To          []string
	BCC         []string
	Subject     string
	Body        string
	Attachments []Attachment
}

// Mailer sends a message.
type Mailer interface {
	Send(ctx context.Context, msg *Message) error
}

// New returns the SMTP mailer, or a LogMailer when no host is configured or
// delivery is suppressed.
func New(cfg config.MailConfig) Mailer {
	if cfg.Host == "" || cfg.Suppress {
		return NewLogMailer()
	}
	return &SMTPMailer{cfg: cfg}
}

// SMTPMailer delivers through an SMTP relay. STARTTLS is used when the relay
// offers it.
type SMTPMailer struct {
	cfg config.MailConfig
}

func (m *SMTPMailer) Send(ctx context.Context, msg *Message) error {
	out, err := m.build(msg)
	if err != nil {
		return err
	}
	client, err := m.client()
	if err != nil {
		return err
	}
	if err := client.DialAndSendWithContext(ctx, out); err != nil {
		return fmt.Errorf("smtp %s: %w", m.cfg.Host, err)
	}
	return nil
}

func (m *SMTPMailer) client() (*gomail.Client, error) {
	opts := []gomail.Option{gomail.WithTLSPolicy(gomail.TLSOpportunistic)}
	if m.cfg.Port > 0 {
		opts = append(opts, gomail.WithPort(m.cfg.Port))
	}
	if m.cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(m.cfg.Username),
			gomail.WithPassword(m.cfg.Password),
		)
	}
	client, err := gomail.NewClient(m.cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	return client, nil
}

// build turns msg into a MIME message. BCC recipients only go to the
// envelope, never into the headers.
func (m *SMTPMailer) build(msg *Message) (*gomail.Msg, error) {
	out := gomail.NewMsg()
	if err := out.From(m.cfg.From); err != nil {
		return nil, fmt.Errorf("invalid sender %q: %w", m.cfg.From, err)
	}
	if err := out.To(msg.To...); err != nil {
		return nil, fmt.Errorf("invalid recipient: %w", err)
	}
	if len(msg.BCC) > 0 {
		if err := out.Bcc(msg.BCC...); err != nil {
			return nil, fmt.Errorf("invalid bcc: %w", err)
		}
	}
	out.Subject(msg.Subject)
	out.SetDate()
	out.SetMessageID()
	out.SetBodyString(gomail.TypeTextPlain, msg.Body)

	for _, a := range msg.Attachments {
		contentType := gomail.TypeAppOctetStream
		if a.ContentType != "" {
			contentType = gomail.ContentType(a.ContentType)
		}
		if err := out.AttachReader(a.Name, bytes.NewReader(a.Data), gomail.WithFileContentType(contentType)); err != nil {
			return nil, fmt.Errorf("attach %s: %w", a.Name, err)
		}
	}
	return out, nil
}

// LogMailer only logs what would have been sent.
type LogMailer struct {
	log zerolog.Logger
}

func NewLogMailer() *LogMailer {
	return &LogMailer{log: logger.WithComponent("mail")}
}

func (m *LogMailer) Send(_ context.Context, msg *Message) error {
	names := make([]string, 0, len(msg.Attachments))
	for _, a := range msg.Attachments {
		names = append(names, a.Name)
	}
	m.log.Info().
		Strs("to", msg.To).
		Strs("bcc", msg.BCC).
		Str("subject", msg.Subject).
		Strs("attachments", names).
		Msg("mail delivery suppressed")
	return nil
}
