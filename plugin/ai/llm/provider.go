// Package llm wraps an OpenAI-compatible chat completion endpoint.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/hrygo/agrisense/plugin/ai/timeout"
)

// ErrNotConfigured is returned when no API key is set.
var ErrNotConfigured = errors.New("llm provider is not configured")

// Message roles.
const (
	RoleSystem    = openai.ChatMessageRoleSystem
	RoleUser      = openai.ChatMessageRoleUser
	RoleAssistant = openai.ChatMessageRoleAssistant
)

// Message represents a chat message.
type Message struct {
	Role    string
	Content string
}

// Options tune one completion.
type Options struct {
	MaxTokens   int
	Temperature float32
}

// ChatClient performs chat completions.
type ChatClient interface {
	Chat(ctx context.Context, messages []Message, opts Options) (string, error)
}

// Config holds the provider configuration.
type Config struct {
	BaseURL    string
	APIKey     string
	Model      string
	MaxRetries int
	// RetryBaseDelay is the wait before the second attempt; it doubles after
	// every failure.
	RetryBaseDelay time.Duration
	Timeout        time.Duration
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:        "https://api.openai.com/v1",
		Model:          "gpt-4o-mini",
		MaxRetries:     timeout.MaxRetries,
		RetryBaseDelay: time.Second,
		Timeout:        timeout.LLMTimeout,
	}
}

// Provider is a ChatClient backed by go-openai.
type Provider struct {
	client *openai.Client
	config Config
}

// NewProvider creates a new provider. It fails with ErrNotConfigured when
// the API key is empty.
func NewProvider(cfg *Config) (*Provider, error) {
	defaults := DefaultConfig()
	if cfg == nil {
		cfg = defaults
	}
	c := *cfg
	if c.APIKey == "" {
		return nil, ErrNotConfigured
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = defaults.MaxRetries
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = defaults.RetryBaseDelay
	}
	if c.Timeout <= 0 {
		c.Timeout = defaults.Timeout
	}
	if c.Model == "" {
		c.Model = defaults.Model
	}

	clientConfig := openai.DefaultConfig(c.APIKey)
	if c.BaseURL != "" {
		clientConfig.BaseURL = c.BaseURL
	}

	return &Provider{
		client: openai.NewClientWithConfig(clientConfig),
		config: c,
	}, nil
}

// Model returns the chat model name.
func (p *Provider) Model() string {
	return p.config.Model
}

// Chat performs a chat completion and returns the first choice.
func (p *Provider) Chat(ctx context.Context, messages []Message, opts Options) (string, error) {
	llmMessages := make([]openai.ChatCompletionMessage, len(messages))
	for i, msg := range messages {
		llmMessages[i] = openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}
	req := openai.ChatCompletionRequest{
		Model:       p.config.Model,
		Messages:    llmMessages,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
	}

	var result string
	err := p.doWithRetry(ctx, func(ctx context.Context) error {
		resp, err := p.client.CreateChatCompletion(ctx, req)
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			return fmt.Errorf("empty chat response")
		}
		result = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to complete chat: %w", err)
	}
	return result, nil
}

// doWithRetry executes fn with exponential backoff. Client errors other than
// rate limiting are not retried.
func (p *Provider) doWithRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < p.config.MaxRetries; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, p.config.Timeout)
		err := fn(attemptCtx)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable(err) || attempt == p.config.MaxRetries-1 {
			break
		}

		waitTime := time.Duration(math.Pow(2, float64(attempt))) * p.config.RetryBaseDelay
		slog.Debug("LLM request failed, retrying",
			"attempt", attempt+1,
			"wait_time", waitTime,
			"error", err)
		select {
		case <-time.After(waitTime):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.HTTPStatusCode
		return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
	}
	return true
}

// Ensure Provider implements ChatClient
var _ ChatClient = (*Provider)(nil)
