// Package ai is the language model collaborator used by the AI step kinds.
// It speaks the OpenAI-compatible chat completions API.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

const (
	RoleSystem = "system"
	RoleUser   = "user"

	DefaultBaseURL = "https://api.openai.com/v1"
	defaultTimeout = 120 * time.Second
)

var (
	ErrNoChoices    = errors.New("no choices in response")
	ErrProviderHTTP = errors.New("provider returned an error status")
)

// Message is one chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is sent to the provider. An empty Model uses the
// provider default.
type CompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

// CompletionResponse is the first choice of a completion.
type CompletionResponse struct {
	Content          string
	Model            string
	FinishReason     string
	PromptTokens     int
	CompletionTokens int
}

// Provider completes chat prompts.
type Provider interface {
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)
}

// Config holds connection details for an OpenAI-compatible endpoint.
type Config struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
}

// OpenAIProvider implements Provider for any OpenAI-compatible API.
type OpenAIProvider struct {
	config Config
	client *http.Client
}

func NewOpenAIProvider(cfg Config) *OpenAIProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}

	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &OpenAIProvider{
		config: cfg,
		client: &http.Client{Timeout: defaultTimeout},
	}
}

func (p *OpenAIProvider) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	payload := *req
	if payload.Model == "" {
		payload.Model = p.config.Model
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")

	if p.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.config.APIKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		message := gjson.GetBytes(raw, "error.message").String()
		if message == "" {
			message = string(raw)
		}

		return nil, fmt.Errorf("%w: %d: %s", ErrProviderHTTP, resp.StatusCode, message)
	}

	choice := gjson.GetBytes(raw, "choices.0")
	if !choice.Exists() {
		return nil, ErrNoChoices
	}

	return &CompletionResponse{
		Content:          choice.Get("message.content").String(),
		FinishReason:     choice.Get("finish_reason").String(),
		Model:            gjson.GetBytes(raw, "model").String(),
		PromptTokens:     int(gjson.GetBytes(raw, "usage.prompt_tokens").Int()),
		CompletionTokens: int(gjson.GetBytes(raw, "usage.completion_tokens").Int()),
	}, nil
}

// Prompt is a convenience for a single user message with an optional
// system instruction.
func Prompt(ctx context.Context, provider Provider, model, system, user string) (string, error) {
	messages := make([]Message, 0, 2)
	if system != "" {
		messages = append(messages, Message{Role: RoleSystem, Content: system})
	}

	messages = append(messages, Message{Role: RoleUser, Content: user})

	resp, err := provider.Complete(ctx, &CompletionRequest{Model: model, Messages: messages})
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(resp.Content), nil
}
