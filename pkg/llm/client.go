// Package llm is the chat-completion client both generation loops talk
// through. It speaks the OpenAI-compatible wire shape, so any gateway
// exposing /v1/chat/completions works as a generator or judge backend.
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

	"github.com/rs/zerolog"

	"github.com/ruslano69/datachat/pkg/resilience"
)

// Error codes surfaced in structured logs and run results.
const (
	ErrCodeNoCredentials        = "LLM_NO_CREDENTIALS"
	ErrCodeGeneratorUnavailable = "LLM_UNAVAILABLE"
	ErrCodeGeneratorError       = "LLM_ERROR"
	ErrCodeGeneratorEmpty       = "LLM_EMPTY_RESPONSE"
	ErrCodeRateLimited          = "LLM_RATE_LIMITED"
)

// Sentinel errors for failure-type dispatch in the loops.
var (
	ErrNoCredentials        = errors.New(ErrCodeNoCredentials)
	ErrGeneratorUnavailable = errors.New(ErrCodeGeneratorUnavailable)
	ErrGeneratorError       = errors.New(ErrCodeGeneratorError)
	ErrGeneratorEmpty       = errors.New(ErrCodeGeneratorEmpty)
	ErrRateLimited          = errors.New(ErrCodeRateLimited)
)

// ErrorCode maps a client error to its string code.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrNoCredentials):
		return ErrCodeNoCredentials
	case errors.Is(err, ErrRateLimited):
		return ErrCodeRateLimited
	case errors.Is(err, ErrGeneratorUnavailable):
		return ErrCodeGeneratorUnavailable
	case errors.Is(err, ErrGeneratorEmpty):
		return ErrCodeGeneratorEmpty
	default:
		return ErrCodeGeneratorError
	}
}

// Client is the completion interface the loops depend on; tests plug in
// scripted fakes.
type Client interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Config configures the HTTP client.
type Config struct {
	BaseURL     string  `yaml:"base_url"`
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	TimeoutMs   int     `yaml:"timeout_ms"`
}

// HTTPClient talks to an OpenAI-compatible chat-completions endpoint,
// guarded by a circuit breaker so a dead gateway fails fast instead of
// burning the per-question timeout on every attempt.
type HTTPClient struct {
	cfg     Config
	http    *http.Client
	breaker *resilience.CircuitBreaker
	log     zerolog.Logger
}

// NewHTTPClient creates the client. The API key is required.
func NewHTTPClient(cfg Config, log zerolog.Logger) (*HTTPClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: api key not configured", ErrNoCredentials)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.TimeoutMs <= 0 {
		cfg.TimeoutMs = 60000
	}
	breaker, err := resilience.New(resilience.Config{
		Name:        "llm",
		MaxFailures: 5,
		Timeout:     30 * time.Second,
	})
	if err != nil {
		return nil, err
	}
	return &HTTPClient{
		cfg:     cfg,
		http:    &http.Client{Timeout: time.Duration(cfg.TimeoutMs) * time.Millisecond},
		breaker: breaker,
		log:     log.With().Str("component", "llm").Logger(),
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Complete sends one system+user exchange and returns the assistant
// text.
func (c *HTTPClient) Complete(ctx context.Context, system, user string) (string, error) {
	var content string
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		content, err = c.complete(ctx, system, user)
		return err
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return "", fmt.Errorf("%w: circuit open", ErrGeneratorUnavailable)
	}
	return content, err
}

func (c *HTTPClient) complete(ctx context.Context, system, user string) (string, error) {
	reqBody := chatRequest{
		Model:       c.cfg.Model,
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	}
	data, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/v1/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrGeneratorUnavailable, err.Error())
	}
	defer resp.Body.Close()

	c.log.Debug().
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(started)).
		Msg("chat completion")

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", fmt.Errorf("%w: HTTP %d", ErrNoCredentials, resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", fmt.Errorf("%w: HTTP %d", ErrRateLimited, resp.StatusCode)
	case resp.StatusCode >= 500:
		return "", fmt.Errorf("%w: HTTP %d", ErrGeneratorUnavailable, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("%w: HTTP %d: %s", ErrGeneratorError, resp.StatusCode, string(body))
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("%w: %s", ErrGeneratorError, parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 || strings.TrimSpace(parsed.Choices[0].Message.Content) == "" {
		return "", ErrGeneratorEmpty
	}
	return parsed.Choices[0].Message.Content, nil
}
