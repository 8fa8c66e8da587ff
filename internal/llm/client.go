// Package llm provides a chat-completion client for the remote text
// classification model used by comment moderation.
//
// The client performs exactly one HTTP round trip per call. Retry policy
// belongs to the caller: the moderation pipeline retries only when the model's
// reply cannot be parsed, never on transport failure.
//
// Every failure (transport error, non-2xx status, undecodable body, error
// envelope, missing choices[0].message.content) is reported as a *ModelError
// that matches ErrModelUnavailable with errors.Is.
package llm

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
)

const (
	defaultBaseURL     = "https://openrouter.ai/api/v1"
	completionsPath    = "/chat/completions"
	defaultHTTPTimeout = 15 * time.Second
	defaultMaxTokens   = 150
	maxErrorBodyBytes  = 4 << 10
)

// ErrModelUnavailable is the category every Complete failure belongs to.
var ErrModelUnavailable = errors.New("model unavailable")

// Config captures the runtime settings required to talk to the model.
type Config struct {
	APIKey    string
	BaseURL   string // API base such as https://openrouter.ai/api/v1
	Model     string
	Referer   string
	Title     string
	MaxTokens int
	Timeout   time.Duration
}

// Client wraps an OpenAI/OpenRouter-compatible chat completion endpoint.
type Client struct {
	cfg        Config
	endpoint   string
	httpClient *http.Client
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient constructs a client using the supplied configuration.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	c := &Client{
		cfg: Config{
			APIKey:    strings.TrimSpace(cfg.APIKey),
			BaseURL:   strings.TrimSpace(cfg.BaseURL),
			Model:     strings.TrimSpace(cfg.Model),
			Referer:   strings.TrimSpace(cfg.Referer),
			Title:     strings.TrimSpace(cfg.Title),
			MaxTokens: cfg.MaxTokens,
			Timeout:   timeout,
		},
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.cfg.BaseURL == "" {
		c.cfg.BaseURL = defaultBaseURL
	}
	c.endpoint = completionsURL(c.cfg.BaseURL)
	if c.cfg.MaxTokens <= 0 {
		c.cfg.MaxTokens = defaultMaxTokens
	}
	return c
}

// completionsURL joins the chat completions path onto base. A base that
// already names the endpoint is used as is.
func completionsURL(base string) string {
	base = strings.TrimRight(base, "/")
	if strings.HasSuffix(base, completionsPath) {
		return base
	}
	return base + completionsPath
}

// Endpoint returns the URL completions are posted to.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Model returns the configured model identifier.
func (c *Client) Model() string {
	return c.cfg.Model
}

// ModelError describes why a completion could not be obtained.
type ModelError struct {
	Op         string
	StatusCode int // zero when no HTTP response was received
	Body       string
	Err        error
}

func (e *ModelError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ": http %d", e.StatusCode)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	if e.Body != "" {
		b.WriteString(": ")
		b.WriteString(e.Body)
	}
	return b.String()
}

// Unwrap exposes the underlying cause.
func (e *ModelError) Unwrap() error {
	return e.Err
}

// Is matches ErrModelUnavailable.
func (e *ModelError) Is(target error) bool {
	return target == ErrModelUnavailable
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message *struct {
			Content *string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Complete sends prompt as the sole user message and returns the model's raw
// textual reply.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	const op = "llm complete"
	if strings.TrimSpace(prompt) == "" {
		return "", &ModelError{Op: op, Err: errors.New("prompt required")}
	}
	if c.cfg.APIKey == "" {
		return "", &ModelError{Op: op, Err: errors.New("api key required")}
	}

	payload := chatCompletionRequest{
		Model:       c.cfg.Model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: 0,
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", &ModelError{Op: op, Err: fmt.Errorf("encode body: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(encoded))
	if err != nil {
		return "", &ModelError{Op: op, Err: fmt.Errorf("new request: %w", err)}
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.Referer != "" {
		req.Header.Set("HTTP-Referer", c.cfg.Referer)
		req.Header.Set("Referer", c.cfg.Referer)
	}
	if c.cfg.Title != "" {
		req.Header.Set("X-Title", c.cfg.Title)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &ModelError{Op: op, Err: fmt.Errorf("http error (timeout=%s): %w", c.cfg.Timeout, err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &ModelError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &ModelError{Op: op, StatusCode: resp.StatusCode, Body: snippet(body)}
	}

	var completion chatCompletionResponse
	if err := json.Unmarshal(body, &completion); err != nil {
		return "", &ModelError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err), Body: snippet(body)}
	}
	if completion.Error != nil {
		return "", &ModelError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("api error: %s", strings.TrimSpace(completion.Error.Message))}
	}
	if len(completion.Choices) == 0 || completion.Choices[0].Message == nil || completion.Choices[0].Message.Content == nil {
		return "", &ModelError{Op: op, StatusCode: resp.StatusCode, Err: errors.New("response missing choices[0].message.content"), Body: snippet(body)}
	}
	content := *completion.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", &ModelError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("empty content (finish_reason=%q)", completion.Choices[0].FinishReason),
		}
	}
	return content, nil
}

// HealthCheck issues a minimal completion to verify the key and model.
func (c *Client) HealthCheck(ctx context.Context) error {
	_, err := c.Complete(ctx, `Respond with {"ok":true}`)
	if err != nil {
		return fmt.Errorf("llm health: %w", err)
	}
	return nil
}

func snippet(body []byte) string {
	if len(body) > maxErrorBodyBytes {
		body = body[:maxErrorBodyBytes]
	}
	clean := strings.Join(strings.Fields(string(body)), " ")
	const limit = 160
	runes := []rune(clean)
	if len(runes) > limit {
		clean = string(runes[:limit]) + "..."
	}
	return clean
}
