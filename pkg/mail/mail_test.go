package mail

import (
	"context"
	"net/smtp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessage_Bytes(t *testing.T) {
	msg := &Message{
		From:    "bot@example.com",
		To:      []string{"a@example.com", "b@example.com"},
		Cc:      []string{"c@example.com"},
		Bcc:     []string{"hidden@example.com"},
		Subject: "Order shipped",
		Body:    "<p>done</p>",
		HTML:    true,
	}

	raw := string(msg.Bytes(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)))

	assert.Contains(t, raw, "To: a@example.com, b@example.com\r\n")
	assert.Contains(t, raw, "Cc: c@example.com\r\n")
	assert.Contains(t, raw, "Content-Type: text/html")
	assert.NotContains(t, raw, "hidden@example.com")
	assert.Equal(t, []string{"a@example.com", "b@example.com", "c@example.com", "hidden@example.com"}, msg.Recipients())
}

func TestSMTPMailer_Send(t *testing.T) {
	var (
		gotAddr string
		gotAuth smtp.Auth
		gotFrom string
		gotTo   []string
	)

	mailer := NewSMTPMailer(SMTPConfig{Addr: "smtp.example.com:587", Username: "u", Password: "p", From: "default@example.com"})
	mailer.send = func(addr string, a smtp.Auth, from string, to []string, _ []byte) error {
		gotAddr, gotAuth, gotFrom, gotTo = addr, a, from, to

		return nil
	}

	require.NoError(t, mailer.Send(context.Background(), &Message{To: []string{"x@example.com"}, Subject: "hi"}))
	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.NotNil(t, gotAuth)
	assert.Equal(t, "default@example.com", gotFrom)
	assert.Equal(t, []string{"x@example.com"}, gotTo)

	err := mailer.Send(context.Background(), &Message{})
	assert.ErrorIs(t, err, ErrNoRecipients)

	err = NewSMTPMailer(SMTPConfig{Addr: "localhost:25"}).Send(context.Background(), &Message{To: []string{"x@example.com"}})
	assert.ErrorIs(t, err, ErrNoSender)
}
