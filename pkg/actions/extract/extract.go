// Package extract provides the extractFileData step kind: a file is fetched
// and a language model reads structured data out of it.
package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/xeipuuv/gojsonschema"

	"github.com/dukex/stepflow/pkg/actions"
	"github.com/dukex/stepflow/pkg/ai"
	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/protocol"
)

const (
	Kind = "extractFileData"

	SourceURL        = "URL"
	SourceAttachment = "Attachment"

	// MaxFileSize caps how much of a file is read and sent to the model.
	MaxFileSize = 1 << 20
)

var (
	ErrNoProvider   = errors.New("no language model provider configured")
	ErrFileFetch    = errors.New("file could not be fetched")
	ErrFileTooLarge = errors.New("file too large")
	ErrNotJSON      = errors.New("model response is not a JSON object")
	ErrSchema       = errors.New("extracted data does not match the schema")
)

type ActionFactory struct {
	provider ai.Provider
	client   *http.Client
}

func NewActionFactory(provider ai.Provider, client *http.Client) *ActionFactory {
	if client == nil {
		client = actions.NewClient()
	}

	return &ActionFactory{provider: provider, client: client}
}

func (*ActionFactory) ID() string              { return Kind }
func (*ActionFactory) Name() string            { return "Extract File Data" }
func (*ActionFactory) Group() models.KindGroup { return models.KindGroupExternal }

func (*ActionFactory) Description() string {
	return "Reads a file from a URL or a row attachment and extracts the fields of a schema with a language model."
}

func (f *ActionFactory) Create(inputs map[string]any) (protocol.Action, error) {
	return NewAction(f.provider, f.client, inputs)
}

func (*ActionFactory) Schema() *models.JSONSchema {
	return &models.JSONSchema{
		Type: "object",
		Properties: map[string]*models.Property{
			"file": {
				Description: "A URL, or a row attachment object with a url field.",
			},
			"source": {
				Type:    "string",
				Enum:    []any{SourceURL, SourceAttachment},
				Default: SourceURL,
			},
			"fileType": {Type: "string", Description: "For example: pdf, csv, txt."},
			"schema": {
				Type:        "object",
				Description: "Fields to extract: a JSON schema, or a map of field name to description.",
			},
		},
		Required: []string{"file", "schema"},
	}
}

type Action struct {
	provider ai.Provider
	client   *http.Client

	URL      string
	FileType string
	Schema   map[string]any
}

func NewAction(provider ai.Provider, client *http.Client, inputs map[string]any) (*Action, error) {
	url, err := fileURL(inputs)
	if err != nil {
		return nil, err
	}

	schema, err := actions.Map(inputs, "schema")
	if err != nil {
		return nil, err
	}

	if len(schema) == 0 {
		return nil, actions.Missing("schema")
	}

	return &Action{
		provider: provider,
		client:   client,
		URL:      url,
		FileType: actions.String(inputs, "fileType"),
		Schema:   schema,
	}, nil
}

// fileURL reads the file location. An attachment is an object carrying url;
// a plain string is accepted for either source.
func fileURL(inputs map[string]any) (string, error) {
	source := actions.String(inputs, "source")
	if source == "" {
		source = SourceURL
	}

	if source != SourceURL && source != SourceAttachment {
		return "", fmt.Errorf("input source: unknown source %q", source)
	}

	switch file := inputs["file"].(type) {
	case string:
		if strings.TrimSpace(file) == "" {
			return "", actions.Missing("file")
		}

		return file, nil
	case map[string]any:
		return actions.RequiredString(file, "url")
	case nil:
		return "", actions.Missing("file")
	default:
		return "", fmt.Errorf("input file: expected a URL or an attachment, got %T", file)
	}
}

func (a *Action) Execute(ctx context.Context, _ map[string]any, logger *slog.Logger) (map[string]any, error) {
	if a.provider == nil {
		return nil, ErrNoProvider
	}

	content, err := a.fetch(ctx)
	if err != nil {
		return nil, err
	}

	schema, err := json.Marshal(a.Schema)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}

	system := "Extract data from the document the user sends. Reply with a single JSON object matching this schema and nothing else: " + string(schema)
	if a.FileType != "" {
		system += ". The document is a " + a.FileType + " file."
	}

	response, err := ai.Prompt(ctx, a.provider, "", system, content)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", Kind, err)
	}

	data, err := parse(response)
	if err != nil {
		return nil, err
	}

	if err := a.validate(data); err != nil {
		return nil, err
	}

	logger.DebugContext(ctx, "File data extracted", "url", a.URL, "fields", len(data))

	return map[string]any{"data": data, "response": response, "success": true}, nil
}

func (a *Action) fetch(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.URL, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrFileFetch, err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrFileFetch, err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return "", fmt.Errorf("%w: %s returned %d", ErrFileFetch, a.URL, resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, MaxFileSize+1))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrFileFetch, err)
	}

	if len(raw) > MaxFileSize {
		return "", fmt.Errorf("%w: %s is over %d bytes", ErrFileTooLarge, a.URL, MaxFileSize)
	}

	return string(raw), nil
}

// parse reads the JSON object out of a model reply, tolerating a fenced
// code block around it.
func parse(response string) (map[string]any, error) {
	text := strings.TrimSpace(response)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	if !gjson.Valid(text) {
		return nil, fmt.Errorf("%w: %q", ErrNotJSON, response)
	}

	data, ok := gjson.Parse(text).Value().(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotJSON, response)
	}

	return data, nil
}

// validate checks data against the schema when it is a JSON schema. A plain
// field map only requires its fields to be present.
func (a *Action) validate(data map[string]any) error {
	if _, ok := a.Schema["properties"]; !ok {
		var missing []string

		for field := range a.Schema {
			if _, ok := data[field]; !ok {
				missing = append(missing, field)
			}
		}

		if len(missing) > 0 {
			slices.Sort(missing)

			return fmt.Errorf("%w: missing %s", ErrSchema, strings.Join(missing, ", "))
		}

		return nil
	}

	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(a.Schema), gojsonschema.NewGoLoader(data))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSchema, err)
	}

	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			problems = append(problems, desc.String())
		}

		return fmt.Errorf("%w: %s", ErrSchema, strings.Join(problems, "; "))
	}

	return nil
}
