package extract

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dukex/stepflow/pkg/actions"
	"github.com/dukex/stepflow/pkg/ai"
)

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) Complete(ctx context.Context, req *ai.CompletionRequest) (*ai.CompletionResponse, error) {
	args := m.Called(ctx, req)
	if resp := args.Get(0); resp != nil {
		return resp.(*ai.CompletionResponse), args.Error(1)
	}

	return nil, args.Error(1)
}

func fileServer(t *testing.T) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/invoice.txt":
			_, _ = io.WriteString(w, "Invoice 42\nTotal: 99.50 EUR")
		case "/huge.txt":
			_, _ = io.WriteString(w, strings.Repeat("x", MaxFileSize+1))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)

	return server
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAction_Execute(t *testing.T) {
	server := fileServer(t)

	tests := []struct {
		name   string
		inputs map[string]any
		answer string
		want   map[string]any
	}{
		{
			name: "field map from a URL",
			inputs: map[string]any{
				"file":   server.URL + "/invoice.txt",
				"schema": map[string]any{"number": "invoice number", "total": "amount due"},
			},
			answer: `{"number": "42", "total": 99.5}`,
			want:   map[string]any{"number": "42", "total": 99.5},
		},
		{
			name: "json schema from an attachment with a fenced reply",
			inputs: map[string]any{
				"file":     map[string]any{"url": server.URL + "/invoice.txt", "name": "invoice.txt"},
				"source":   SourceAttachment,
				"fileType": "txt",
				"schema": map[string]any{
					"type":       "object",
					"properties": map[string]any{"total": map[string]any{"type": "number"}},
					"required":   []any{"total"},
				},
			},
			answer: "```json\n{\"total\": 99.5}\n```",
			want:   map[string]any{"total": 99.5},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &mockProvider{}
			provider.On("Complete", mock.Anything, mock.MatchedBy(func(req *ai.CompletionRequest) bool {
				return len(req.Messages) == 2 &&
					strings.HasPrefix(req.Messages[0].Content, "Extract data from the document") &&
					req.Messages[1].Content == "Invoice 42\nTotal: 99.50 EUR"
			})).Return(&ai.CompletionResponse{Content: tt.answer}, nil)

			action, err := NewActionFactory(provider, server.Client()).Create(tt.inputs)
			require.NoError(t, err)

			out, err := action.Execute(context.Background(), nil, discard())
			require.NoError(t, err)
			assert.Equal(t, tt.want, out["data"])
			assert.Equal(t, true, out["success"])

			provider.AssertExpectations(t)
		})
	}
}

func TestAction_ExecuteFailures(t *testing.T) {
	server := fileServer(t)

	tests := []struct {
		name   string
		file   string
		schema map[string]any
		answer string
		err    error
	}{
		{name: "missing file", file: "/nope.txt", schema: map[string]any{"total": ""}, err: ErrFileFetch},
		{name: "file too large", file: "/huge.txt", schema: map[string]any{"total": ""}, err: ErrFileTooLarge},
		{name: "reply is prose", file: "/invoice.txt", schema: map[string]any{"total": ""}, answer: "The total is 99.50", err: ErrNotJSON},
		{name: "reply is an array", file: "/invoice.txt", schema: map[string]any{"total": ""}, answer: "[1, 2]", err: ErrNotJSON},
		{name: "field missing", file: "/invoice.txt", schema: map[string]any{"total": "", "number": ""}, answer: `{"total": 1}`, err: ErrSchema},
		{
			name: "schema type mismatch",
			file: "/invoice.txt",
			schema: map[string]any{
				"type":       "object",
				"properties": map[string]any{"total": map[string]any{"type": "number"}},
			},
			answer: `{"total": "lots"}`,
			err:    ErrSchema,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &mockProvider{}
			provider.On("Complete", mock.Anything, mock.Anything).Return(&ai.CompletionResponse{Content: tt.answer}, nil).Maybe()

			action, err := NewAction(provider, server.Client(), map[string]any{"file": server.URL + tt.file, "schema": tt.schema})
			require.NoError(t, err)

			_, err = action.Execute(context.Background(), nil, discard())
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestNewAction_Inputs(t *testing.T) {
	tests := []struct {
		name   string
		inputs map[string]any
	}{
		{name: "no file", inputs: map[string]any{"schema": map[string]any{"a": ""}}},
		{name: "attachment without url", inputs: map[string]any{"file": map[string]any{"name": "a.pdf"}, "schema": map[string]any{"a": ""}}},
		{name: "no schema", inputs: map[string]any{"file": "http://files/a.txt"}},
		{name: "unknown source", inputs: map[string]any{"file": "http://files/a.txt", "source": "FTP", "schema": map[string]any{"a": ""}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewAction(nil, nil, tt.inputs)
			assert.Error(t, err)
		})
	}

	_, err := NewAction(nil, nil, map[string]any{"file": " ", "schema": map[string]any{"a": ""}})
	assert.ErrorIs(t, err, actions.ErrMissingInput)
}

func TestAction_NoProvider(t *testing.T) {
	action, err := NewAction(nil, nil, map[string]any{"file": "http://files/a.txt", "schema": map[string]any{"a": ""}})
	require.NoError(t, err)

	_, err = action.Execute(context.Background(), nil, discard())
	assert.ErrorIs(t, err, ErrNoProvider)
}
