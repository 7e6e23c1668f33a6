package mail

import (
	"context"
	"encoding/json"
	"errors"
	"net/mail"
	"strings"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keyxmakerx/rootapp/internal/config"
)

// mockTransport implements Transport for testing.
type mockTransport struct {
	configured bool
	sendFn     func(ctx context.Context, msg PasswordResetMessage) error
	sent       []PasswordResetMessage
}

func (m *mockTransport) Name() string       { return "mock" }
func (m *mockTransport) IsConfigured() bool { return m.configured }
func (m *mockTransport) Close() error       { return nil }

func (m *mockTransport) SendPasswordReset(ctx context.Context, msg PasswordResetMessage) error {
	m.sent = append(m.sent, msg)
	if m.sendFn != nil {
		return m.sendFn(ctx, msg)
	}
	return nil
}

func TestSendPasswordResetEmail_BuildsLink(t *testing.T) {
	tr := &mockTransport{configured: true}
	svc := NewService(tr, "https://root.example/", 30*time.Minute, DefaultBreakerSettings())

	require.NoError(t, svc.SendPasswordResetEmail(context.Background(), "a@x.com", "abc123"))

	require.Len(t, tr.sent, 1)
	assert.Equal(t, "https://root.example/reset-password/abc123", tr.sent[0].ResetURL)
	assert.Equal(t, 30*time.Minute, tr.sent[0].ExpiresIn)
}

func TestSendPasswordResetEmail_NotConfigured(t *testing.T) {
	svc := NewService(&mockTransport{}, "http://x", time.Minute, DefaultBreakerSettings())

	assert.False(t, svc.IsConfigured())
	assert.False(t, svc.Available())
	assert.ErrorIs(t, svc.SendPasswordResetEmail(context.Background(), "a@x.com", "t"), ErrNotConfigured)
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	tr := &mockTransport{configured: true, sendFn: func(context.Context, PasswordResetMessage) error {
		return errors.New("relay down")
	}}
	svc := NewService(tr, "http://x", time.Minute, BreakerSettings{ConsecutiveFailures: 2, OpenTimeout: time.Hour})
	ctx := context.Background()

	assert.ErrorContains(t, svc.SendPasswordResetEmail(ctx, "a@x.com", "t"), "relay down")
	assert.ErrorContains(t, svc.SendPasswordResetEmail(ctx, "a@x.com", "t"), "relay down")

	assert.False(t, svc.Available())
	assert.True(t, svc.IsConfigured())
	assert.ErrorIs(t, svc.SendPasswordResetEmail(ctx, "a@x.com", "t"), ErrUnavailable)
	assert.Len(t, tr.sent, 2)
}

func TestPasswordResetEmail_Renders(t *testing.T) {
	msg := PasswordResetMessage{To: "a@x.com", ResetURL: "https://root.example/reset-password/t?a=<b>", ExpiresIn: 30 * time.Minute}

	html, err := renderHTML(context.Background(), passwordResetEmail(msg))
	require.NoError(t, err)
	assert.Contains(t, html, "30 minutes")
	assert.NotContains(t, html, "<b>")

	assert.Contains(t, passwordResetText(msg), msg.ResetURL)
}

func TestHumanDuration(t *testing.T) {
	assert.Equal(t, "30 minutes", humanDuration(30*time.Minute))
	assert.Equal(t, "1 minute", humanDuration(time.Minute))
	assert.Equal(t, "2 hours", humanDuration(2*time.Hour))
}

func TestBuildMessage(t *testing.T) {
	from := mail.Address{Name: "Root", Address: "no-reply@root.example"}
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	raw, err := buildMessage(from, "a@x.com", resetSubject, "text body", "<p>html</p>", now)
	require.NoError(t, err)

	body := string(raw)
	assert.Contains(t, body, "To: <a@x.com>\r\n")
	assert.Contains(t, body, "Subject: "+resetSubject)
	assert.Contains(t, body, "multipart/alternative")
	assert.Contains(t, body, "text body")
	assert.Contains(t, body, "<p>html</p>")
	assert.True(t, strings.HasSuffix(body, "--\r\n"))

	_, err = buildMessage(from, "not an address", "s", "t", "h", now)
	assert.Error(t, err)
}

func TestSMTPTransport_IsConfigured(t *testing.T) {
	assert.False(t, NewSMTPTransport(config.MailConfig{SMTPFromAddress: "x@y"}).IsConfigured())
	assert.True(t, NewSMTPTransport(config.MailConfig{SMTPHost: "smtp", SMTPFromAddress: "x@y"}).IsConfigured())
}

// fakeWriter implements messageWriter for testing.
type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.msgs = append(f.msgs, msgs...)
	return f.err
}

func (f *fakeWriter) Close() error { return nil }

func TestKafkaTransport_PublishesEvent(t *testing.T) {
	w := &fakeWriter{}
	tr := &kafkaTransport{writer: w, topic: "auth.events", brokers: []string{"k:9092"}}

	err := tr.SendPasswordReset(context.Background(), PasswordResetMessage{
		To: "a@x.com", ResetURL: "http://x/reset-password/t", ExpiresIn: 30 * time.Minute,
	})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "a@x.com", string(w.msgs[0].Key))

	var ev Event
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &ev))
	assert.Equal(t, EventPasswordResetRequested, ev.EventType)

	var payload passwordResetPayload
	require.NoError(t, json.Unmarshal(ev.Data, &payload))
	assert.Equal(t, 1800, payload.ExpiresInSeconds)
	assert.Equal(t, "http://x/reset-password/t", payload.ResetURL)
}

func TestKafkaTransport_WrapsWriteError(t *testing.T) {
	tr := &kafkaTransport{writer: &fakeWriter{err: errors.New("no leader")}, topic: "auth.events", brokers: []string{"k"}}

	err := tr.SendPasswordReset(context.Background(), PasswordResetMessage{To: "a@x.com"})
	assert.ErrorContains(t, err, "no leader")
}

func TestNewTransport(t *testing.T) {
	assert.Equal(t, "smtp", NewTransport(config.MailConfig{Transport: "smtp"}).Name())
	assert.Equal(t, "kafka", NewTransport(config.MailConfig{Transport: "kafka", KafkaTopic: "t"}).Name())
	assert.Equal(t, "log", NewTransport(config.MailConfig{Transport: "log"}).Name())
}
