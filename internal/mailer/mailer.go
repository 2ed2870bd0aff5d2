package mailer

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/unclebandit/bulkmail-backend/internal/config"
)

// Transport delivers one addressed message. Implementations must honour ctx
// so a slow server counts as that recipient's failure rather than a stall.
type Transport interface {
	Send(ctx context.Context, to, subject, html string) error
}

// New picks the transport named by cfg.MailTransport.
func New(cfg config.Config, log zerolog.Logger) (Transport, error) {
	switch strings.ToLower(cfg.MailTransport) {
	case "smtp":
		return NewSMTP(cfg), nil
	case "log":
		return NewLog(log), nil
	default:
		return nil, fmt.Errorf("unknown mail transport %q", cfg.MailTransport)
	}
}

// LogTransport accepts every message and only logs it. For development.
type LogTransport struct {
	log zerolog.Logger
}

func NewLog(log zerolog.Logger) *LogTransport {
	return &LogTransport{log: log.With().Str("component", "mailer").Logger()}
}

func (t *LogTransport) Send(ctx context.Context, to, subject, html string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.log.Info().Str("to", to).Str("subject", subject).Int("body_bytes", len(html)).Msg("mail accepted (log transport)")
	return nil
}

var _ Transport = (*LogTransport)(nil)
