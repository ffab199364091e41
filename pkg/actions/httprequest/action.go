// Package httprequest provides the outgoingWebhook step kind.
package httprequest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dukex/stepflow/pkg/actions"
)

var (
	// ErrHTTPMethodInvalid is returned when the HTTP method is invalid.
	ErrHTTPMethodInvalid = errors.New("invalid HTTP method")
	// ErrHTTPRequestURLInvalid is returned when the URL is not absolute http(s).
	ErrHTTPRequestURLInvalid = errors.New("invalid HTTP request url")
	// ErrHTTPServerError is returned when the server returns an error status code.
	ErrHTTPServerError = errors.New("server error during HTTP request")
	// ErrHTTPStatus is returned for a final non-2xx response.
	ErrHTTPStatus = errors.New("unexpected HTTP status")
)

var methods = map[string]bool{
	http.MethodGet: true, http.MethodPost: true, http.MethodPut: true, http.MethodDelete: true,
	http.MethodPatch: true, http.MethodHead: true, http.MethodOptions: true,
}

// Action sends an HTTP request, retrying on server errors.
type Action struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    any
	Timeout time.Duration
	Retry   RetryConfig

	client *http.Client
}

// RetryConfig defines retry behavior. Delay is in milliseconds.
type RetryConfig struct {
	Attempts int
	Delay    int
}

// NewAction creates an Action from resolved inputs.
func NewAction(inputs map[string]any) (*Action, error) {
	method := strings.ToUpper(actions.String(inputs, "requestMethod"))
	if method == "" {
		method = http.MethodPost
	}

	if !methods[method] {
		return nil, fmt.Errorf("%w: %q", ErrHTTPMethodInvalid, method)
	}

	rawURL, err := actions.RequiredString(inputs, "url")
	if err != nil {
		return nil, err
	}

	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrHTTPRequestURLInvalid, rawURL)
	}

	headersConfig, err := actions.Map(inputs, "headers")
	if err != nil {
		return nil, err
	}

	headers := make(map[string]string, len(headersConfig))
	for k, v := range headersConfig {
		headers[k] = fmt.Sprint(v)
	}

	retries, _ := inputs["retries"].(map[string]any)

	return &Action{
		Method:  method,
		URL:     rawURL,
		Headers: headers,
		Body:    inputs["requestBody"],
		Timeout: actions.DefaultHTTPTimeout,
		Retry:   parseRetryConfig(retries),
	}, nil
}

func parseRetryConfig(retryMap map[string]any) RetryConfig {
	retry := RetryConfig{Attempts: 1, Delay: 0}

	if attempts, err := actions.Int(retryMap, "attempts", 1); err == nil && attempts > 0 {
		retry.Attempts = attempts
	}

	if delay, err := actions.Int(retryMap, "delay", 0); err == nil && delay > 0 {
		retry.Delay = delay
	}

	return retry
}

// Execute performs the request and returns {httpStatus, response, headers, success}.
func (a *Action) Execute(ctx context.Context, _ map[string]any, logger *slog.Logger) (map[string]any, error) {
	logger = logger.With("module", "http_request_action")
	logger.DebugContext(ctx, "Executing outgoing webhook", "method", a.Method, "url", a.URL)

	client := a.client
	if client == nil {
		client = &http.Client{Timeout: a.Timeout}
	}

	var (
		lastErr error
		resp    *actions.Response
	)

	for attempt := 1; attempt <= a.Retry.Attempts; attempt++ {
		if attempt > 1 {
			logger.InfoContext(ctx, fmt.Sprintf("Outgoing webhook retry attempt %d/%d", attempt, a.Retry.Attempts))

			if err := sleep(ctx, time.Duration(a.Retry.Delay)*time.Millisecond); err != nil {
				return nil, err
			}
		}

		var err error

		resp, err = actions.Do(ctx, client, a.Method, a.URL, a.Body, a.Headers)
		if err != nil {
			lastErr = err
			resp = nil

			continue
		}

		if resp.Status >= http.StatusInternalServerError && attempt < a.Retry.Attempts {
			lastErr = fmt.Errorf("%w (status %d), retrying", ErrHTTPServerError, resp.Status)

			continue
		}

		break
	}

	if resp == nil {
		return nil, fmt.Errorf("all retry attempts failed, last error: %w", lastErr)
	}

	logger.DebugContext(ctx, "Outgoing webhook completed", "status", resp.Status)

	if !resp.OK() {
		return nil, fmt.Errorf("%w: %d", ErrHTTPStatus, resp.Status)
	}

	return map[string]any{
		"httpStatus": resp.Status,
		"response":   resp.Body,
		"headers":    flatten(resp.Header),
		"success":    true,
	}, nil
}

func flatten(header http.Header) map[string]any {
	out := make(map[string]any, len(header))
	for key := range header {
		out[key] = header.Get(key)
	}

	return out
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
