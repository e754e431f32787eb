// Package smtp delivers notification email. Settings come from the
// environment (see config.SMTPConfig); when SMTP is disabled a log-only
// mailer stands in so development setups never need a mail server.
package smtp

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"mime"
	"net"
	"net/mail"
	gosmtp "net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/keyxmakerx/darim/internal/config"
)

// dialTimeout bounds connection setup.
const dialTimeout = 10 * time.Second

// sendTimeout bounds the whole SMTP conversation when the caller's context
// carries no deadline of its own.
const sendTimeout = 30 * time.Second

// MailService is the contract the auth plugin sends notifications through.
type MailService interface {
	SendMail(ctx context.Context, to []string, subject, body string) error
	IsConfigured(ctx context.Context) bool
}

// NewMailService returns an SMTP-backed mailer when cfg is enabled and has a
// host, and a log-only mailer otherwise.
func NewMailService(cfg config.SMTPConfig) MailService {
	if !cfg.Enabled || cfg.Host == "" {
		slog.Info("smtp disabled, notification email will only be logged")
		return &logMailer{}
	}
	return &smtpMailer{
		cfg:     cfg,
		from:    mail.Address{Name: cfg.FromName, Address: cfg.FromAddress},
		now:     time.Now,
		timeout: sendTimeout,
	}
}

// --- SMTP mailer ---

type smtpMailer struct {
	cfg     config.SMTPConfig
	from    mail.Address
	now     func() time.Time
	timeout time.Duration
}

func (m *smtpMailer) IsConfigured(context.Context) bool {
	return true
}

// SendMail delivers one plain-text message to every address in to.
func (m *smtpMailer) SendMail(ctx context.Context, to []string, subject, body string) error {
	if len(to) == 0 {
		return fmt.Errorf("sending mail: no recipients")
	}

	msg := buildMessage(m.from, to, subject, body, m.now())

	client, err := m.connect(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	if m.cfg.Username != "" {
		auth := gosmtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("authenticating: %w", err)
		}
	}

	if err := deliver(client, m.from.Address, to, msg); err != nil {
		return err
	}

	slog.Debug("notification email sent",
		slog.String("subject", subject),
		slog.Int("recipients", len(to)),
	)
	return nil
}

// connect dials the server and negotiates TLS according to the configured
// encryption mode.
func (m *smtpMailer) connect(ctx context.Context) (*gosmtp.Client, error) {
	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	tlsConfig := &tls.Config{ServerName: m.cfg.Host, MinVersion: tls.VersionTLS12}
	dialer := &net.Dialer{Timeout: dialTimeout}

	var conn net.Conn
	var err error
	if strings.EqualFold(m.cfg.Encryption, "ssl") {
		conn, err = (&tls.Dialer{NetDialer: dialer, Config: tlsConfig}).DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", addr, err)
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(m.timeout)
	}
	_ = conn.SetDeadline(deadline)

	client, err := gosmtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("creating smtp client: %w", err)
	}

	if strings.EqualFold(m.cfg.Encryption, "starttls") {
		if err := client.StartTLS(tlsConfig); err != nil {
			client.Close()
			return nil, fmt.Errorf("starting TLS: %w", err)
		}
	}
	return client, nil
}

// deliver runs MAIL FROM, RCPT TO and DATA on an established client.
func deliver(client *gosmtp.Client, from string, to []string, msg string) error {
	if err := client.Mail(from); err != nil {
		return fmt.Errorf("MAIL FROM: %w", err)
	}
	for _, recipient := range to {
		if err := client.Rcpt(recipient); err != nil {
			return fmt.Errorf("RCPT TO %s: %w", recipient, err)
		}
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("DATA: %w", err)
	}
	if _, err := w.Write([]byte(msg)); err != nil {
		return fmt.Errorf("writing message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("closing data: %w", err)
	}
	return client.Quit()
}

// buildMessage renders an RFC 5322 plain-text message. The subject is
// Q-encoded so non-ASCII survives transport; the body uses CRLF line endings.
func buildMessage(from mail.Address, to []string, subject, body string, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from.String())
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&b, "Date: %s\r\n", now.UTC().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(strings.ReplaceAll(body, "\r\n", "\n"), "\n", "\r\n"))
	return b.String()
}

// --- Log-only mailer ---

// logMailer records what would have been sent. The body is left out because
// it carries pins and temporary passwords.
type logMailer struct{}

func (logMailer) IsConfigured(context.Context) bool {
	return false
}

func (logMailer) SendMail(_ context.Context, to []string, subject, _ string) error {
	slog.Info("notification email not sent (smtp disabled)",
		slog.String("to", strings.Join(to, ", ")),
		slog.String("subject", subject),
	)
	return nil
}
