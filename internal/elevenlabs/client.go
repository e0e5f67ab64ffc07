// Package elevenlabs is a small client for the ElevenLabs voice API:
// instant voice cloning and text-to-speech.
package elevenlabs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/alreadydone/alreadydone-server/internal/ratelimit"
)

const (
	// DefaultBaseURL is the public API host.
	DefaultBaseURL = "https://api.elevenlabs.io"
	// DefaultModel is used when a speech request names no model.
	DefaultModel = "eleven_multilingual_v2"

	defaultTimeout = 60 * time.Second

	// Upstream error bodies are kept for logs and details, never in full.
	maxErrorBody = 4 << 10
	// Generated audio for a 2600 character story is well under this.
	maxAudioBytes = 32 << 20
)

// ErrNotConfigured is returned by every call when no API key is set.
var ErrNotConfigured = errors.New("elevenlabs: api key not configured")

// APIError is a non-2xx answer from ElevenLabs.
type APIError struct {
	Op     string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("elevenlabs %s: status %d: %s", e.Op, e.Status, e.Body)
}

// Config configures a Client.
type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
	// RequestsPerSecond and Burst shape outbound traffic. Zero disables limiting.
	RequestsPerSecond float64
	Burst             int
}

// Client talks to ElevenLabs over HTTP.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	limiter    *ratelimit.KeyedRateLimiter
	logger     *slog.Logger
}

// NewClient creates a client. httpClient may be nil.
func NewClient(cfg Config, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	c := &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		logger:     logger,
	}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		c.limiter = ratelimit.New(cfg.RequestsPerSecond, burst)
	}
	return c
}

// Configured reports whether an API key is set.
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

// Shutdown stops the limiter's background sweep.
func (c *Client) Shutdown() error {
	if c.limiter != nil {
		c.limiter.Stop()
	}
	return nil
}

// wait blocks until the outbound limiter allows a request for op.
func (c *Client) wait(ctx context.Context, op string) error {
	if c.limiter == nil {
		return nil
	}
	if err := c.limiter.Wait(ctx, op); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}
	return nil
}

func (c *Client) do(req *http.Request, op string) (*http.Response, error) {
	req.Header.Set("xi-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs %s: %w", op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &APIError{Op: op, Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return resp, nil
}
