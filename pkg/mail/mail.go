// Package mail is the outbound email collaborator used by sendSmtpEmail.
package mail

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/dukex/stepflow/pkg/log"
)

var (
	ErrNoRecipients = errors.New("email has no recipients")
	ErrNoSender     = errors.New("email has no sender")
)

// Message is one outgoing email. Body is plain text unless HTML is set.
type Message struct {
	From    string
	To      []string
	Cc      []string
	Bcc     []string
	Subject string
	Body    string
	HTML    bool
}

// Recipients returns every envelope recipient, Bcc included.
func (m *Message) Recipients() []string {
	all := make([]string, 0, len(m.To)+len(m.Cc)+len(m.Bcc))
	all = append(all, m.To...)
	all = append(all, m.Cc...)

	return append(all, m.Bcc...)
}

// Bytes renders the message headers and body. Bcc is never written.
func (m *Message) Bytes(now time.Time) []byte {
	var b strings.Builder

	contentType := "text/plain"
	if m.HTML {
		contentType = "text/html"
	}

	fmt.Fprintf(&b, "From: %s\r\n", m.From)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(m.To, ", "))

	if len(m.Cc) > 0 {
		fmt.Fprintf(&b, "Cc: %s\r\n", strings.Join(m.Cc, ", "))
	}

	fmt.Fprintf(&b, "Subject: %s\r\n", m.Subject)
	fmt.Fprintf(&b, "Date: %s\r\n", now.Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&b, "Content-Type: %s; charset=\"utf-8\"\r\n\r\n", contentType)
	b.WriteString(m.Body)

	return []byte(b.String())
}

// Mailer sends email.
type Mailer interface {
	Send(ctx context.Context, msg *Message) error
}

// SMTPConfig configures an SMTPMailer. From is used when a message has none.
type SMTPConfig struct {
	Addr     string
	Username string
	Password string
	From     string
}

// SMTPMailer delivers through an SMTP relay with optional PLAIN auth.
type SMTPMailer struct {
	config SMTPConfig
	send   func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	return &SMTPMailer{config: cfg, send: smtp.SendMail}
}

func (m *SMTPMailer) Send(ctx context.Context, msg *Message) error {
	if msg.From == "" {
		msg.From = m.config.From
	}

	if msg.From == "" {
		return ErrNoSender
	}

	recipients := msg.Recipients()
	if len(recipients) == 0 {
		return ErrNoRecipients
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	var auth smtp.Auth

	if m.config.Username != "" {
		host, _, err := net.SplitHostPort(m.config.Addr)
		if err != nil {
			return fmt.Errorf("smtp address %q: %w", m.config.Addr, err)
		}

		auth = smtp.PlainAuth("", m.config.Username, m.config.Password, host)
	}

	if err := m.send(m.config.Addr, auth, msg.From, recipients, msg.Bytes(time.Now())); err != nil {
		return fmt.Errorf("send email: %w", err)
	}

	log.FromContext(ctx).DebugContext(ctx, "Email sent", "smtp_addr", m.config.Addr, "recipients", len(recipients))

	return nil
}
