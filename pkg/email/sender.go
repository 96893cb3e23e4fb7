package email

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
)

// Config holds SMTP settings for the rating digest mailer.
type Config struct {
	Host     string
	Port     string
	User     string
	Password string
	// From is the envelope sender (MAIL FROM), a raw mailbox address.
	From string
	// FromName is an optional display name for the From header only.
	FromName string
}

type Sender struct {
	config Config
	auth   smtp.Auth
}

func NewSender(config Config) *Sender {
	var auth smtp.Auth
	if config.User != "" && config.Password != "" {
		auth = smtp.PlainAuth("", config.User, config.Password, config.Host)
	}
	return &Sender{config: config, auth: auth}
}

// SendMail delivers a single HTML message. The context is accepted for
// interface symmetry with the other notifiers; net/smtp has no native
// cancellation, so the caller bounds the call with its own deadline.
func (s *Sender) SendMail(ctx context.Context, to, subject, htmlBody string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	addr := s.config.Host + ":" + s.config.Port

	from := s.config.From
	if name := strings.TrimSpace(s.config.FromName); name != "" {
		from = fmt.Sprintf("%s <%s>", name, s.config.From)
	}

	var b strings.Builder
	writeHeader(&b, "From", from)
	writeHeader(&b, "To", to)
	writeHeader(&b, "Subject", subject)
	writeHeader(&b, "MIME-Version", "1.0")
	writeHeader(&b, "Content-Type", "text/html; charset=UTF-8")
	b.WriteString("\r\n")
	b.WriteString(htmlBody)
	body := []byte(b.String())

	if s.auth != nil {
		return smtp.SendMail(addr, s.auth, s.config.From, []string{to}, body)
	}
	return s.sendUnauthenticated(addr, to, body)
}

// sendUnauthenticated handles local relays that reject AUTH entirely.
func (s *Sender) sendUnauthenticated(addr, to string, body []byte) error {
	c, err := smtp.Dial(addr)
	if err != nil {
		return fmt.Errorf("dial smtp: %w", err)
	}
	defer func() { _ = c.Close() }()

	if err := c.Mail(s.config.From); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	if err := c.Rcpt(to); err != nil {
		return fmt.Errorf("rcpt to: %w", err)
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close data: %w", err)
	}
	return c.Quit()
}

// writeHeader appends one sanitized header line; CR/LF are stripped so
// caller-supplied subjects cannot inject extra headers.
func writeHeader(b *strings.Builder, key, value string) {
	value = strings.ReplaceAll(value, "\r", "")
	value = strings.ReplaceAll(value, "\n", "")
	b.WriteString(key)
	b.WriteString(": ")
	b.WriteString(value)
	b.WriteString("\r\n")
}
