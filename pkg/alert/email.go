package alert

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"
)

// EmailOptions configures SMTP delivery
type EmailOptions struct {
	Addr       string // host:port
	From       string
	Username   string // empty disables auth
	Password   string
	Recipients []string
}

// sendFunc has the signature of smtp.SendMail
type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Email sends events as HTML mail to the alert recipients
type Email struct {
	opts EmailOptions
	send sendFunc
}

// NewEmail returns an SMTP notifier
func NewEmail(opts EmailOptions) *Email {
	if opts.From == "" {
		opts.From = "podds@localhost"
	}
	return &Email{opts: opts, send: smtp.SendMail}
}

// Name identifies the channel in logs
func (m *Email) Name() string {
	return "email"
}

// Notify mails the rendered event. smtp.SendMail takes no context, so ctx
// only bounds the wait.
func (m *Email) Notify(ctx context.Context, e *Event) error {
	body, err := RenderHTML(e)
	if err != nil {
		return err
	}
	msg := buildMessage(m.opts.From, m.opts.Recipients, e.Subject(), body, e.At)

	var auth smtp.Auth
	if m.opts.Username != "" {
		host, _, err := net.SplitHostPort(m.opts.Addr)
		if err != nil {
			return fmt.Errorf("invalid smtp address %q: %w", m.opts.Addr, err)
		}
		auth = smtp.PlainAuth("", m.opts.Username, m.opts.Password, host)
	}

	done := make(chan error, 1)
	go func() {
		done <- m.send(m.opts.Addr, auth, m.opts.From, m.opts.Recipients, msg)
	}()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("send mail: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func buildMessage(from string, to []string, subject, html string, at time.Time) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + strings.Join(to, ", ") + "\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("Date: " + at.Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(html, "\n", "\r\n"))
	return []byte(b.String())
}
