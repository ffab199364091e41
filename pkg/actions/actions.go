// Package actions holds helpers shared by the built-in step kinds. Each kind
// lives in its own sub-package with a factory and an action.
package actions

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dukex/stepflow/pkg/conditional"
)

// ErrMissingInput is returned by factories when a required input is empty.
var ErrMissingInput = errors.New("missing input")

// DefaultHTTPTimeout bounds requests made by the external kinds.
const DefaultHTTPTimeout = 30 * time.Second

// Missing builds the error for an empty required input.
func Missing(name string) error {
	return fmt.Errorf("%w: %s", ErrMissingInput, name)
}

// String returns inputs[key] as a string. Non-string scalars are formatted.
func String(inputs map[string]any, key string) string {
	switch v := inputs[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case map[string]any, []any:
		raw, _ := json.Marshal(v)

		return string(raw)
	default:
		return fmt.Sprint(v)
	}
}

// RequiredString is String that fails when the value is blank.
func RequiredString(inputs map[string]any, key string) (string, error) {
	value := String(inputs, key)
	if strings.TrimSpace(value) == "" {
		return "", Missing(key)
	}

	return value, nil
}

// Map returns inputs[key] as an object. A JSON string is decoded.
func Map(inputs map[string]any, key string) (map[string]any, error) {
	switch v := inputs[key].(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		return v, nil
	case string:
		if strings.TrimSpace(v) == "" {
			return map[string]any{}, nil
		}

		out := map[string]any{}
		if err := json.Unmarshal([]byte(v), &out); err != nil {
			return nil, fmt.Errorf("input %s is not a JSON object: %w", key, err)
		}

		return out, nil
	default:
		return nil, fmt.Errorf("input %s: expected an object, got %T", key, v)
	}
}

// Int returns inputs[key] as an integer, or def when it is absent.
func Int(inputs map[string]any, key string, def int) (int, error) {
	value, ok := inputs[key]
	if !ok || value == nil || value == "" {
		return def, nil
	}

	number, ok := conditional.ToFloat(value)
	if !ok {
		return 0, fmt.Errorf("input %s: expected a number, got %v", key, value)
	}

	return int(number), nil
}

// Bool returns inputs[key] as a boolean; the strings "true" and "false" count.
func Bool(inputs map[string]any, key string) bool {
	switch v := inputs[key].(type) {
	case bool:
		return v
	case string:
		parsed, _ := strconv.ParseBool(v)

		return parsed
	default:
		return false
	}
}

// Strings returns inputs[key] as a list of strings. A string is split on commas.
func Strings(inputs map[string]any, key string) []string {
	var out []string

	switch v := inputs[key].(type) {
	case string:
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	case []any:
		for _, item := range v {
			if s := fmt.Sprint(item); item != nil && s != "" {
				out = append(out, s)
			}
		}
	}

	return out
}

// Response is an HTTP reply decoded for step outputs.
type Response struct {
	Status int
	Body   any
	Header http.Header
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.Status >= http.StatusOK && r.Status < http.StatusMultipleChoices
}

// Do sends a request with an optional JSON payload and decodes the reply.
// A body that is not JSON comes back as a string.
func Do(ctx context.Context, client *http.Client, method, url string, payload any, header map[string]string) (*Response, error) {
	var body io.Reader

	switch p := payload.(type) {
	case nil:
	case string:
		body = strings.NewReader(p)
	case []byte:
		body = bytes.NewReader(p)
	default:
		raw, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}

		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create http request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	for key, value := range header {
		req.Header.Set(key, value)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		decoded = string(raw)
	}

	return &Response{Status: resp.StatusCode, Body: decoded, Header: resp.Header}, nil
}

// NewClient returns an HTTP client with the default timeout.
func NewClient() *http.Client {
	return &http.Client{Timeout: DefaultHTTPTimeout}
}
