// Package mail hands outbound account email to a transport: SMTP for direct
// delivery, Kafka for an external notification service, or the log in
// development. Dispatch runs behind a circuit breaker so a dead mail server
// fails fast instead of stalling forgot-password requests.
package mail

import (
	"context"
	"time"
)

// PasswordResetMessage is everything a transport needs to deliver a reset
// link. The raw token is embedded in ResetURL.
type PasswordResetMessage struct {
	To        string
	ResetURL  string
	ExpiresIn time.Duration
}

// Transport delivers rendered messages.
type Transport interface {
	// Name identifies the transport in logs and metrics.
	Name() string

	// IsConfigured reports whether the transport has enough settings to send.
	IsConfigured() bool

	SendPasswordReset(ctx context.Context, msg PasswordResetMessage) error

	Close() error
}
