package mail

import (
	"context"
	"crypto/rand"
	"crypto/tls"
	"encoding/hex"
	"fmt"
	"net"
	"net/mail"
	gosmtp "net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/keyxmakerx/rootapp/internal/config"
)

const dialTimeout = 10 * time.Second

// smtpTransport delivers mail directly to an SMTP relay.
type smtpTransport struct {
	host       string
	port       int
	username   string
	password   string
	from       mail.Address
	encryption string
}

// NewSMTPTransport creates a transport from the SMTP_* settings.
func NewSMTPTransport(cfg config.MailConfig) Transport {
	return &smtpTransport{
		host:       cfg.SMTPHost,
		port:       cfg.SMTPPort,
		username:   cfg.SMTPUsername,
		password:   cfg.SMTPPassword,
		from:       mail.Address{Name: cfg.SMTPFromName, Address: cfg.SMTPFromAddress},
		encryption: cfg.SMTPEncryption,
	}
}

func (t *smtpTransport) Name() string { return config.MailTransportSMTP }

func (t *smtpTransport) IsConfigured() bool {
	return t.host != "" && t.from.Address != ""
}

func (t *smtpTransport) Close() error { return nil }

func (t *smtpTransport) SendPasswordReset(ctx context.Context, msg PasswordResetMessage) error {
	html, err := renderHTML(ctx, passwordResetEmail(msg))
	if err != nil {
		return err
	}

	body, err := buildMessage(t.from, msg.To, resetSubject, passwordResetText(msg), html, time.Now())
	if err != nil {
		return err
	}

	addr := net.JoinHostPort(t.host, strconv.Itoa(t.port))
	client, err := t.dial(ctx, addr)
	if err != nil {
		return err
	}
	defer client.Close()

	if t.username != "" {
		if err := client.Auth(gosmtp.PlainAuth("", t.username, t.password, t.host)); err != nil {
			return fmt.Errorf("authenticating: %w", err)
		}
	}

	return sendMessage(client, t.from.Address, msg.To, body)
}

// dial connects according to the encryption mode: implicit TLS for "ssl",
// STARTTLS for "starttls", cleartext for "none".
func (t *smtpTransport) dial(ctx context.Context, addr string) (*gosmtp.Client, error) {
	tlsConfig := &tls.Config{ServerName: t.host, MinVersion: tls.VersionTLS12}
	dialer := &net.Dialer{Timeout: dialTimeout}

	var conn net.Conn
	var err error
	if t.encryption == "ssl" {
		conn, err = (&tls.Dialer{NetDialer: dialer, Config: tlsConfig}).DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", addr, err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := gosmtp.NewClient(conn, t.host)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("creating smtp client: %w", err)
	}

	if t.encryption == "starttls" {
		if err := client.StartTLS(tlsConfig); err != nil {
			client.Close()
			return nil, fmt.Errorf("starting TLS: %w", err)
		}
	}
	return client, nil
}

// sendMessage handles MAIL FROM, RCPT TO, DATA for an existing SMTP client.
func sendMessage(client *gosmtp.Client, from, to string, msg []byte) error {
	if err := client.Mail(from); err != nil {
		return fmt.Errorf("MAIL FROM: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("RCPT TO: %w", err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("DATA: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("writing message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("closing data: %w", err)
	}
	return client.Quit()
}

// buildMessage assembles a multipart/alternative RFC 5322 message with a
// plain-text and an HTML part.
func buildMessage(from mail.Address, to, subject, text, html string, now time.Time) ([]byte, error) {
	rcpt, err := mail.ParseAddress(to)
	if err != nil {
		return nil, fmt.Errorf("parsing recipient: %w", err)
	}

	boundaryBytes := make([]byte, 12)
	if _, err := rand.Read(boundaryBytes); err != nil {
		return nil, fmt.Errorf("generating boundary: %w", err)
	}
	boundary := "root-" + hex.EncodeToString(boundaryBytes)

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from.String())
	fmt.Fprintf(&b, "To: %s\r\n", rcpt.String())
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	fmt.Fprintf(&b, "Date: %s\r\n", now.UTC().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&b, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", boundary)

	fmt.Fprintf(&b, "--%s\r\n", boundary)
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(text)
	b.WriteString("\r\n")

	fmt.Fprintf(&b, "--%s\r\n", boundary)
	b.WriteString("Content-Type: text/html; charset=UTF-8\r\n\r\n")
	b.WriteString(html)
	b.WriteString("\r\n")

	fmt.Fprintf(&b, "--%s--\r\n", boundary)
	return []byte(b.String()), nil
}
