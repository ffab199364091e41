// Package prompt provides the language model step kinds: promptLLM, openai,
// summarise, translate, classifyContent and generateText.
package prompt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/stepflow/pkg/actions"
	"github.com/dukex/stepflow/pkg/ai"
	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/protocol"
)

var (
	ErrNoProvider = errors.New("no language model provider configured")
	ErrNoCategory = errors.New("response matches no category")
)

// Prompt is what a kind asks the model.
type Prompt struct {
	Model  string
	System string
	User   string

	// Categories, when set, constrain the answer to one of them.
	Categories []string
}

type builder func(inputs map[string]any) (*Prompt, error)

// ActionFactory is one language model kind.
type ActionFactory struct {
	id          string
	name        string
	description string
	schema      *models.JSONSchema
	build       builder
	provider    ai.Provider
}

func (f *ActionFactory) ID() string                 { return f.id }
func (f *ActionFactory) Name() string               { return f.name }
func (f *ActionFactory) Description() string        { return f.description }
func (f *ActionFactory) Schema() *models.JSONSchema { return f.schema }
func (f *ActionFactory) Group() models.KindGroup    { return models.KindGroupExternal }

func (f *ActionFactory) Create(inputs map[string]any) (protocol.Action, error) {
	p, err := f.build(inputs)
	if err != nil {
		return nil, err
	}

	return &Action{kind: f.id, Prompt: p, provider: f.provider}, nil
}

// Action sends one prompt.
type Action struct {
	kind     string
	Prompt   *Prompt
	provider ai.Provider
}

func (a *Action) Execute(ctx context.Context, _ map[string]any, logger *slog.Logger) (map[string]any, error) {
	if a.provider == nil {
		return nil, ErrNoProvider
	}

	response, err := ai.Prompt(ctx, a.provider, a.Prompt.Model, a.Prompt.System, a.Prompt.User)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", a.kind, err)
	}

	logger.DebugContext(ctx, "Model responded", "kind", a.kind, "length", len(response))

	out := map[string]any{"response": response, "success": true}

	if len(a.Prompt.Categories) > 0 {
		category, ok := match(response, a.Prompt.Categories)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrNoCategory, response)
		}

		out["category"] = category
	}

	return out, nil
}

// match finds the category named by the response, ignoring case and
// surrounding punctuation.
func match(response string, categories []string) (string, bool) {
	answer := strings.Trim(strings.ToLower(response), " .\"'\n")

	for _, category := range categories {
		if strings.ToLower(category) == answer {
			return category, true
		}
	}

	for _, category := range categories {
		if strings.Contains(answer, strings.ToLower(category)) {
			return category, true
		}
	}

	return "", false
}

// Factories returns every language model kind bound to provider. A nil
// provider still registers the kinds; they fail when executed.
func Factories(provider ai.Provider) []protocol.ActionFactory {
	kinds := []*ActionFactory{
		NewPromptFactory(), NewOpenAIFactory(), NewSummariseFactory(), NewTranslateFactory(), NewClassifyFactory(), NewGenerateFactory(),
	}

	out := make([]protocol.ActionFactory, 0, len(kinds))
	for _, kind := range kinds {
		kind.provider = provider
		out = append(out, kind)
	}

	return out
}

func NewPromptFactory() *ActionFactory {
	return &ActionFactory{
		id:          "promptLLM",
		name:        "Prompt LLM",
		description: "Sends a prompt to a language model and returns its response.",
		schema: schema(map[string]*models.Property{
			"prompt": {Type: "string"},
			"model":  {Type: "string", Description: "Model name; empty uses the configured default."},
		}, "prompt"),
		build: func(inputs map[string]any) (*Prompt, error) {
			text, err := actions.RequiredString(inputs, "prompt")
			if err != nil {
				return nil, err
			}

			return &Prompt{Model: actions.String(inputs, "model"), User: text}, nil
		},
	}
}

// NewOpenAIFactory is the older form of promptLLM that names its model.
func NewOpenAIFactory() *ActionFactory {
	return &ActionFactory{
		id:          "openai",
		name:        "OpenAI",
		description: "Sends a prompt to the named model and returns its response.",
		schema: schema(map[string]*models.Property{
			"prompt": {Type: "string"},
			"model":  {Type: "string", Description: "Model name, for example gpt-4o-mini."},
		}, "prompt", "model"),
		build: func(inputs map[string]any) (*Prompt, error) {
			text, err := actions.RequiredString(inputs, "prompt")
			if err != nil {
				return nil, err
			}

			model, err := actions.RequiredString(inputs, "model")
			if err != nil {
				return nil, err
			}

			return &Prompt{Model: model, User: text}, nil
		},
	}
}

var summaryLengths = map[string]string{
	"short":  "in one or two sentences",
	"medium": "in one paragraph",
	"long":   "in several paragraphs",
}

func NewSummariseFactory() *ActionFactory {
	return &ActionFactory{
		id:          "summarise",
		name:        "Summarise",
		description: "Summarises text.",
		schema: schema(map[string]*models.Property{
			"text":   {Type: "string"},
			"length": {Type: "string", Enum: []any{"short", "medium", "long"}, Default: "medium"},
		}, "text"),
		build: func(inputs map[string]any) (*Prompt, error) {
			text, err := actions.RequiredString(inputs, "text")
			if err != nil {
				return nil, err
			}

			length, ok := summaryLengths[actions.String(inputs, "length")]
			if !ok {
				length = summaryLengths["medium"]
			}

			return &Prompt{
				System: "Summarise the user's text " + length + ". Reply with the summary only.",
				User:   text,
			}, nil
		},
	}
}

func NewTranslateFactory() *ActionFactory {
	return &ActionFactory{
		id:          "translate",
		name:        "Translate",
		description: "Translates text into another language.",
		schema: schema(map[string]*models.Property{
			"text":     {Type: "string"},
			"language": {Type: "string", Description: "Target language."},
		}, "text", "language"),
		build: func(inputs map[string]any) (*Prompt, error) {
			text, err := actions.RequiredString(inputs, "text")
			if err != nil {
				return nil, err
			}

			language, err := actions.RequiredString(inputs, "language")
			if err != nil {
				return nil, err
			}

			return &Prompt{
				System: "Translate the user's text into " + language + ". Reply with the translation only.",
				User:   text,
			}, nil
		},
	}
}

func NewClassifyFactory() *ActionFactory {
	return &ActionFactory{
		id:          "classifyContent",
		name:        "Classify Content",
		description: "Assigns text to one of the given categories.",
		schema: schema(map[string]*models.Property{
			"textInput": {Type: "string"},
			"categoryItems": {
				Type:  "array",
				Items: &models.Property{Type: "object", Required: []string{"category"}},
			},
		}, "textInput", "categoryItems"),
		build: func(inputs map[string]any) (*Prompt, error) {
			text, err := actions.RequiredString(inputs, "textInput")
			if err != nil {
				return nil, err
			}

			items, _ := inputs["categoryItems"].([]any)

			categories := make([]string, 0, len(items))
			for _, item := range items {
				if entry, ok := item.(map[string]any); ok {
					if category := actions.String(entry, "category"); category != "" {
						categories = append(categories, category)
					}
				}
			}

			if len(categories) == 0 {
				return nil, actions.Missing("categoryItems")
			}

			return &Prompt{
				System: "Classify the user's text into exactly one of these categories: " +
					strings.Join(categories, ", ") + ". Reply with the category name only.",
				User:       text,
				Categories: categories,
			}, nil
		},
	}
}

func NewGenerateFactory() *ActionFactory {
	return &ActionFactory{
		id:          "generateText",
		name:        "Generate Text",
		description: "Writes content of a given type following instructions.",
		schema: schema(map[string]*models.Property{
			"contentType":  {Type: "string", Description: "For example: email, blog post, product description."},
			"instructions": {Type: "string"},
		}, "instructions"),
		build: func(inputs map[string]any) (*Prompt, error) {
			instructions, err := actions.RequiredString(inputs, "instructions")
			if err != nil {
				return nil, err
			}

			contentType := actions.String(inputs, "contentType")
			if contentType == "" {
				contentType = "text"
			}

			return &Prompt{
				System: "Write content of type " + contentType + " following the user's instructions. Reply with the content only.",
				User:   instructions,
			}, nil
		},
	}
}

func schema(properties map[string]*models.Property, required ...string) *models.JSONSchema {
	return &models.JSONSchema{Type: "object", Properties: properties, Required: required}
}
