package elevenlabs

import (
	"net/http"
	"time"
)

const (
	// DefaultBaseURL is the default ElevenLabs API base URL.
	DefaultBaseURL = "https://api.elevenlabs.io"

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultModelID prioritizes ultra-low latency synthesis.
	DefaultModelID = "eleven_flash_v2_5"

	// DefaultVoiceID is the stock voice used when none is configured.
	DefaultVoiceID = "JBFqnCBsd6RMkjVDRZzb"
)

// Client is the ElevenLabs API client.
type Client struct {
	// Speech provides speech synthesis operations.
	Speech *SpeechService

	config *clientConfig
}

// clientConfig holds the client configuration.
type clientConfig struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
}

// Option is a function that configures the client.
type Option func(*clientConfig)

// WithBaseURL sets a custom base URL for the API.
func WithBaseURL(url string) Option {
	return func(c *clientConfig) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *clientConfig) {
		c.httpClient = client
	}
}

// WithTimeout sets the request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *clientConfig) {
		c.timeout = timeout
	}
}

// NewClient creates a new ElevenLabs API client.
func NewClient(apiKey string, opts ...Option) *Client {
	cfg := &clientConfig{
		apiKey:  apiKey,
		baseURL: DefaultBaseURL,
		timeout: DefaultTimeout,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.httpClient == nil {
		cfg.httpClient = &http.Client{
			Timeout: cfg.timeout,
		}
	}

	c := &Client{config: cfg}
	c.Speech = newSpeechService(c)

	return c
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string {
	return c.config.baseURL
}
