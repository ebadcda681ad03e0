// Package convex provides a client for the Convex HTTP action API.
//
// The gateway calls one deployed action per voice interaction; the backend
// runs speech recognition, the language model, and safety checks, then
// returns the response text (and optionally pre-rendered audio).
package convex

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// DefaultTimeout bounds a single action call. The AI pipeline runs
	// recognition and generation end to end, so this is generous.
	DefaultTimeout = 30 * time.Second

	// ActionProcessVoiceInteraction is the deployed AI pipeline action.
	ActionProcessVoiceInteraction = "aiPipeline:processVoiceInteraction"
)

// ErrTimeout reports that an action call exceeded the configured deadline.
var ErrTimeout = errors.New("convex: action timed out")

// Client calls Convex HTTP actions.
type Client struct {
	config *clientConfig
}

// clientConfig holds the client configuration.
type clientConfig struct {
	baseURL    string
	deployKey  string
	httpClient *http.Client
	timeout    time.Duration
}

// Option is a function that configures the client.
type Option func(*clientConfig)

// WithDeployKey sets the deploy key sent as the Authorization header.
func WithDeployKey(key string) Option {
	return func(c *clientConfig) {
		c.deployKey = key
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *clientConfig) {
		c.httpClient = client
	}
}

// WithTimeout sets the per-action timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *clientConfig) {
		c.timeout = timeout
	}
}

// NewClient creates a client for the deployment at baseURL
// (https://<app>.convex.cloud).
func NewClient(baseURL string, opts ...Option) *Client {
	cfg := &clientConfig{
		baseURL: baseURL,
		timeout: DefaultTimeout,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.httpClient == nil {
		cfg.httpClient = &http.Client{}
	}

	return &Client{config: cfg}
}

// BaseURL returns the configured deployment URL.
func (c *Client) BaseURL() string {
	return c.config.baseURL
}

// Timeout returns the configured per-action timeout.
func (c *Client) Timeout() time.Duration {
	return c.config.timeout
}

// actionRequest is the wire shape of an HTTP action call.
type actionRequest struct {
	Path   string `json:"path"`
	Args   any    `json:"args"`
	Format string `json:"format"`
}

// actionEnvelope wraps the action result.
type actionEnvelope struct {
	Value json.RawMessage `json:"value"`
}

// Action calls the named action with args and unmarshals the unwrapped
// result value into result.
//
// A non-2xx reply is not an error at the transport level: the pipeline
// treats it as a failed interaction, so it is reported through result when
// result implements failure fields, or returned as an error otherwise.
func (c *Client) Action(ctx context.Context, path string, args any, result any) error {
	ctx, cancel := context.WithTimeoutCause(ctx, c.config.timeout, ErrTimeout)
	defer cancel()

	body, err := json.Marshal(actionRequest{
		Path:   path,
		Args:   args,
		Format: "json",
	})
	if err != nil {
		return fmt.Errorf("marshal action request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.baseURL+"/api/action", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.deployKey != "" {
		req.Header.Set("Authorization", "Convex "+c.config.deployKey)
	}

	resp, err := c.config.httpClient.Do(req)
	if err != nil {
		if cause := context.Cause(ctx); errors.Is(cause, ErrTimeout) {
			return fmt.Errorf("%w after %s", ErrTimeout, c.config.timeout)
		}
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &HTTPError{Status: resp.StatusCode, Body: string(raw)}
	}

	// The action API wraps the return value in {"value": ...}.
	var env actionEnvelope
	if err := json.Unmarshal(raw, &env); err == nil && env.Value != nil {
		raw = env.Value
	}

	if result != nil {
		if err := json.Unmarshal(raw, result); err != nil {
			return fmt.Errorf("unmarshal action result: %w", err)
		}
	}
	return nil
}

// HTTPError reports a non-2xx reply from the action API.
type HTTPError struct {
	Status int
	Body   string
}

// Error implements the error interface. The message shape doubles as the
// pipeline failure string shown to operators.
func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.Body)
}

// AsHTTPError extracts *HTTPError from an error.
func AsHTTPError(err error) (*HTTPError, bool) {
	var e *HTTPError
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
