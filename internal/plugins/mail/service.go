package mail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker/v2"
)

// ErrNotConfigured is returned when no transport can send mail.
var ErrNotConfigured = errors.New("mail transport is not configured")

// ErrUnavailable is returned while the breaker is open.
var ErrUnavailable = errors.New("mail transport is temporarily unavailable")

var (
	breakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mail_circuit_breaker_state",
			Help: "Current state of the mail circuit breaker (0=closed, 1=half-open, 2=open)",
		},
		[]string{"transport"},
	)

	mailSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mail_messages_total",
			Help: "Outbound mail dispatch attempts by result",
		},
		[]string{"transport", "result"},
	)
)

// Mailer is the contract the auth core uses to send reset links.
type Mailer interface {
	// IsConfigured reports whether mail can be sent at all.
	IsConfigured() bool

	// Available reports whether dispatch is currently accepted. It is false
	// while the circuit breaker is open.
	Available() bool

	SendPasswordResetEmail(ctx context.Context, to, rawToken string) error
}

// BreakerSettings tunes the dispatch circuit breaker.
type BreakerSettings struct {
	// ConsecutiveFailures trips the breaker.
	ConsecutiveFailures uint32
	// OpenTimeout is how long the breaker stays open before probing.
	OpenTimeout time.Duration
}

// DefaultBreakerSettings returns the production breaker tuning.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{ConsecutiveFailures: 5, OpenTimeout: 30 * time.Second}
}

type service struct {
	transport   Transport
	breaker     *gobreaker.CircuitBreaker[struct{}]
	frontendURL string
	resetTTL    time.Duration
}

// NewService wraps a transport with link building and a circuit breaker.
func NewService(transport Transport, frontendURL string, resetTTL time.Duration, bs BreakerSettings) Mailer {
	name := transport.Name()
	settings := gobreaker.Settings{
		Name:        "mail-" + name,
		MaxRequests: 1,
		Timeout:     bs.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= bs.ConsecutiveFailures
		},
		OnStateChange: func(breaker string, from, to gobreaker.State) {
			slog.Warn("mail circuit breaker state change",
				slog.String("breaker", breaker),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
			breakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	}
	breakerState.WithLabelValues(name).Set(0)

	return &service{
		transport:   transport,
		breaker:     gobreaker.NewCircuitBreaker[struct{}](settings),
		frontendURL: strings.TrimRight(frontendURL, "/"),
		resetTTL:    resetTTL,
	}
}

func (s *service) IsConfigured() bool {
	return s.transport.IsConfigured()
}

func (s *service) Available() bool {
	return s.transport.IsConfigured() && s.breaker.State() != gobreaker.StateOpen
}

// SendPasswordResetEmail delivers a link of the form
// <frontend>/reset-password/<token>.
func (s *service) SendPasswordResetEmail(ctx context.Context, to, rawToken string) error {
	if !s.transport.IsConfigured() {
		return ErrNotConfigured
	}

	msg := PasswordResetMessage{
		To:        to,
		ResetURL:  s.frontendURL + "/reset-password/" + url.PathEscape(rawToken),
		ExpiresIn: s.resetTTL,
	}

	_, err := s.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, s.transport.SendPasswordReset(ctx, msg)
	})

	name := s.transport.Name()
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		mailSent.WithLabelValues(name, "rejected").Inc()
		return ErrUnavailable
	case err != nil:
		mailSent.WithLabelValues(name, "failed").Inc()
		return fmt.Errorf("sending password reset via %s: %w", name, err)
	}

	mailSent.WithLabelValues(name, "sent").Inc()
	return nil
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
