package mail

import (
	"context"
	"log/slog"

	"github.com/keyxmakerx/rootapp/internal/config"
)

// logTransport writes reset links to the application log. Development only;
// config validation refuses it in production.
type logTransport struct{}

// NewLogTransport creates the development transport.
func NewLogTransport() Transport { return logTransport{} }

func (logTransport) Name() string       { return config.MailTransportLog }
func (logTransport) IsConfigured() bool { return true }
func (logTransport) Close() error       { return nil }

func (logTransport) SendPasswordReset(ctx context.Context, msg PasswordResetMessage) error {
	slog.InfoContext(ctx, "password reset email (log transport)",
		slog.String("to", msg.To),
		slog.String("reset_url", msg.ResetURL),
		slog.Duration("expires_in", msg.ExpiresIn),
	)
	return nil
}

// NewTransport selects the transport named by MAIL_TRANSPORT.
func NewTransport(cfg config.MailConfig) Transport {
	switch cfg.Transport {
	case config.MailTransportSMTP:
		return NewSMTPTransport(cfg)
	case config.MailTransportKafka:
		return NewKafkaTransport(cfg)
	default:
		return NewLogTransport()
	}
}
