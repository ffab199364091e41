// Package notify provides the slack, discord, zapier, make and n8n step
// kinds. Each posts a JSON payload to a user supplied webhook URL.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/dukex/stepflow/pkg/actions"
	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/protocol"
)

var (
	ErrInvalidURL = errors.New("invalid webhook url")
	ErrStatus     = errors.New("webhook returned an error status")
)

// Request is what a kind sends.
type Request struct {
	Method  string
	URL     string
	Header  map[string]string
	Payload any
}

type builder func(inputs map[string]any) (*Request, error)

// ActionFactory is one webhook kind.
type ActionFactory struct {
	id          string
	name        string
	description string
	schema      *models.JSONSchema
	build       builder
	client      *http.Client
}

func (f *ActionFactory) ID() string                 { return f.id }
func (f *ActionFactory) Name() string               { return f.name }
func (f *ActionFactory) Description() string        { return f.description }
func (f *ActionFactory) Schema() *models.JSONSchema { return f.schema }
func (f *ActionFactory) Group() models.KindGroup    { return models.KindGroupExternal }

func (f *ActionFactory) Create(inputs map[string]any) (protocol.Action, error) {
	req, err := f.build(inputs)
	if err != nil {
		return nil, err
	}

	if err := checkURL(req.URL); err != nil {
		return nil, err
	}

	if req.Method == "" {
		req.Method = http.MethodPost
	}

	return &Action{kind: f.id, Request: req, client: f.client}, nil
}

// Action sends one webhook request.
type Action struct {
	kind    string
	Request *Request
	client  *http.Client
}

func (a *Action) Execute(ctx context.Context, _ map[string]any, logger *slog.Logger) (map[string]any, error) {
	client := a.client
	if client == nil {
		client = actions.NewClient()
	}

	resp, err := actions.Do(ctx, client, a.Request.Method, a.Request.URL, a.Request.Payload, a.Request.Header)
	if err != nil {
		return nil, err
	}

	logger.DebugContext(ctx, "Webhook sent", "kind", a.kind, "status", resp.Status)

	if !resp.OK() {
		return nil, fmt.Errorf("%w: %s: %d", ErrStatus, a.kind, resp.Status)
	}

	return map[string]any{"httpStatus": resp.Status, "response": resp.Body, "success": true}, nil
}

// Factories returns every webhook kind sharing client. A nil client uses the
// default timeout.
func Factories(client *http.Client) []protocol.ActionFactory {
	kinds := []*ActionFactory{
		NewSlackFactory(), NewDiscordFactory(), NewZapierFactory(), NewMakeFactory(), NewN8NFactory(),
	}

	out := make([]protocol.ActionFactory, 0, len(kinds))
	for _, kind := range kinds {
		kind.client = client
		out = append(out, kind)
	}

	return out
}

func NewSlackFactory() *ActionFactory {
	return &ActionFactory{
		id:          "slack",
		name:        "Slack Message",
		description: "Posts a message to a Slack incoming webhook.",
		schema:      urlSchema(map[string]*models.Property{"text": {Type: "string", Description: "Message text."}}, "text"),
		build: func(inputs map[string]any) (*Request, error) {
			text, err := actions.RequiredString(inputs, "text")
			if err != nil {
				return nil, err
			}

			return &Request{URL: actions.String(inputs, "url"), Payload: map[string]any{"text": text}}, nil
		},
	}
}

func NewDiscordFactory() *ActionFactory {
	return &ActionFactory{
		id:          "discord",
		name:        "Discord Message",
		description: "Posts a message to a Discord webhook.",
		schema: urlSchema(map[string]*models.Property{
			"content":    {Type: "string", Description: "Message content."},
			"username":   {Type: "string"},
			"avatar_url": {Type: "string"},
		}, "content"),
		build: func(inputs map[string]any) (*Request, error) {
			content, err := actions.RequiredString(inputs, "content")
			if err != nil {
				return nil, err
			}

			payload := map[string]any{"content": content}
			for _, key := range []string{"username", "avatar_url"} {
				if value := actions.String(inputs, key); value != "" {
					payload[key] = value
				}
			}

			return &Request{URL: actions.String(inputs, "url"), Payload: payload}, nil
		},
	}
}

func NewZapierFactory() *ActionFactory {
	return bodyFactory("zapier", "Zapier", "Triggers a Zapier webhook with a JSON body.")
}

func NewMakeFactory() *ActionFactory {
	return bodyFactory("make", "Make", "Triggers a Make scenario webhook with a JSON body.")
}

func NewN8NFactory() *ActionFactory {
	schema := urlSchema(map[string]*models.Property{
		"body":          {Description: "JSON object or JSON string sent as the request body."},
		"method":        {Type: "string", Enum: []any{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD"}, Default: "POST"},
		"authorization": {Type: "string", Description: "Value of the Authorization header."},
	})

	return &ActionFactory{
		id:          "n8n",
		name:        "n8n",
		description: "Calls an n8n webhook.",
		schema:      schema,
		build: func(inputs map[string]any) (*Request, error) {
			method := strings.ToUpper(actions.String(inputs, "method"))
			if method == "" {
				method = http.MethodPost
			}

			req := &Request{Method: method, URL: actions.String(inputs, "url"), Header: map[string]string{}}

			if auth := actions.String(inputs, "authorization"); auth != "" {
				req.Header["Authorization"] = auth
			}

			if method == http.MethodGet || method == http.MethodHead {
				return req, nil
			}

			body, err := actions.Map(inputs, "body")
			if err != nil {
				return nil, err
			}

			req.Payload = body

			return req, nil
		},
	}
}

func bodyFactory(id, name, description string) *ActionFactory {
	return &ActionFactory{
		id:          id,
		name:        name,
		description: description,
		schema: urlSchema(map[string]*models.Property{
			"body": {Description: "JSON object or JSON string sent as the request body."},
		}),
		build: func(inputs map[string]any) (*Request, error) {
			body, err := actions.Map(inputs, "body")
			if err != nil {
				return nil, err
			}

			return &Request{URL: actions.String(inputs, "url"), Payload: body}, nil
		},
	}
}

func urlSchema(properties map[string]*models.Property, required ...string) *models.JSONSchema {
	properties["url"] = &models.Property{Type: "string", Description: "Webhook URL."}

	return &models.JSONSchema{
		Type:       "object",
		Properties: properties,
		Required:   append([]string{"url"}, required...),
	}
}

func checkURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidURL, raw)
	}

	return nil
}
