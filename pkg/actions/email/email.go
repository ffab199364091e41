// Package email provides the sendSmtpEmail step kind.
package email

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dukex/stepflow/pkg/actions"
	"github.com/dukex/stepflow/pkg/mail"
	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/protocol"
)

const Kind = "sendSmtpEmail"

var ErrNoMailer = errors.New("no mailer configured")

type ActionFactory struct {
	mailer mail.Mailer
}

// NewActionFactory binds the kind to mailer. A nil mailer registers the kind
// but every send fails.
func NewActionFactory(mailer mail.Mailer) *ActionFactory {
	return &ActionFactory{mailer: mailer}
}

func (*ActionFactory) ID() string              { return Kind }
func (*ActionFactory) Name() string            { return "Send Email (SMTP)" }
func (*ActionFactory) Description() string     { return "Sends an email through the configured SMTP relay." }
func (*ActionFactory) Group() models.KindGroup { return models.KindGroupExternal }

func (f *ActionFactory) Create(inputs map[string]any) (protocol.Action, error) {
	return NewAction(f.mailer, inputs)
}

func (*ActionFactory) Schema() *models.JSONSchema {
	return &models.JSONSchema{
		Type: "object",
		Properties: map[string]*models.Property{
			"to":       {Description: "Recipient address, a comma separated list or a list."},
			"from":     {Type: "string", Description: "Sender; empty uses the configured default."},
			"subject":  {Type: "string"},
			"contents": {Type: "string", Description: "Message body."},
			"cc":       {Description: "Carbon copy recipients."},
			"bcc":      {Description: "Blind carbon copy recipients."},
			"html":     {Type: "boolean", Default: false},
		},
		Required: []string{"to", "subject"},
	}
}

type Action struct {
	mailer  mail.Mailer
	Message *mail.Message
}

func NewAction(mailer mail.Mailer, inputs map[string]any) (*Action, error) {
	to := actions.Strings(inputs, "to")
	if len(to) == 0 {
		return nil, actions.Missing("to")
	}

	subject, err := actions.RequiredString(inputs, "subject")
	if err != nil {
		return nil, err
	}

	return &Action{
		mailer: mailer,
		Message: &mail.Message{
			From:    actions.String(inputs, "from"),
			To:      to,
			Cc:      actions.Strings(inputs, "cc"),
			Bcc:     actions.Strings(inputs, "bcc"),
			Subject: subject,
			Body:    actions.String(inputs, "contents"),
			HTML:    actions.Bool(inputs, "html"),
		},
	}, nil
}

func (a *Action) Execute(ctx context.Context, _ map[string]any, logger *slog.Logger) (map[string]any, error) {
	if a.mailer == nil {
		return nil, ErrNoMailer
	}

	if err := a.mailer.Send(ctx, a.Message); err != nil {
		return nil, err
	}

	logger.DebugContext(ctx, "Email sent", "recipients", len(a.Message.Recipients()))

	return map[string]any{"success": true, "recipients": len(a.Message.Recipients())}, nil
}
