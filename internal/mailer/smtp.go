package mailer

import (
	"context"
	"crypto/tls"
	"fmt"

	mail "gopkg.in/gomail.v2"

	"github.com/unclebandit/bulkmail-backend/internal/config"
)

// SMTPTransport sends HTML mail through a gomail dialer.
type SMTPTransport struct {
	from   string
	dialer sender
}

// sender is the subset of *mail.Dialer used here.
type sender interface {
	Dial() (mail.SendCloser, error)
}

func NewSMTP(cfg config.Config) *SMTPTransport {
	d := mail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword)
	d.TLSConfig = &tls.Config{
		ServerName:         cfg.SMTPHost,
		InsecureSkipVerify: cfg.SMTPSkipTLSVerify,
	}
	return &SMTPTransport{from: cfg.SMTPFrom, dialer: d}
}

func (t *SMTPTransport) Send(ctx context.Context, to, subject, html string) error {
	m := mail.NewMessage()
	m.SetHeader("From", t.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", html)

	// gomail has no context support, so the session runs aside and the caller
	// stops waiting when ctx ends. A dial that outlives ctx is closed without
	// sending; only a deadline hit during DATA can still deliver late.
	done := make(chan error, 1)
	go func() { done <- t.deliver(ctx, m) }()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("could not send email: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("could not send email: %w", ctx.Err())
	}
}

func (t *SMTPTransport) deliver(ctx context.Context, m *mail.Message) error {
	s, err := t.dialer.Dial()
	if err != nil {
		return err
	}
	defer s.Close()
	if err := ctx.Err(); err != nil {
		return err
	}
	return mail.Send(s, m)
}

var _ Transport = (*SMTPTransport)(nil)
