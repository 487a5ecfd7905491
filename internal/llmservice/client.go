package llmservice

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sethvargo/go-retry"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"loan-rag/internal/config"
	"loan-rag/internal/models"
)

var errEmptyCompletion = errors.New("model returned an empty completion")

// Client sends system + user prompts to a chat model. Transient failures are
// retried with exponential backoff; every attempt has its own timeout.
type Client struct {
	model       llms.Model
	temperature float64
	maxTokens   int
	timeout     time.Duration
	retries     uint64
	backoff     time.Duration
}

// New creates the model named by cfg.Provider and wraps it.
func New(cfg config.LLMConfig) (*Client, error) {
	model, err := NewModel(cfg)
	if err != nil {
		return nil, err
	}
	return NewWithModel(model, cfg), nil
}

// NewWithModel wraps an existing langchaingo model.
func NewWithModel(model llms.Model, cfg config.LLMConfig) *Client {
	return &Client{
		model:       model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		timeout:     cfg.Timeout,
		retries:     uint64(max(cfg.Retries, 0)),
		backoff:     max(cfg.Backoff, time.Millisecond),
	}
}

// NewModel returns an openai-compatible or ollama chat model.
func NewModel(cfg config.LLMConfig) (llms.Model, error) {
	log.Debug().Interface("llmConfig", map[string]any{
		"provider":    cfg.Provider,
		"base_url":    cfg.BaseURL,
		"model":       cfg.Model,
		"temperature": cfg.Temperature,
		"max_tokens":  cfg.MaxTokens,
	}).Msg("Creating chat model")

	switch cfg.Provider {
	case "openai":
		opts := []openai.Option{
			openai.WithToken(strings.TrimPrefix(cfg.Key, "Bearer ")),
			openai.WithModel(cfg.Model),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		llm, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to initialize openai: %v", models.ErrConfiguration, err)
		}
		return llm, nil
	case "ollama":
		opts := []ollama.Option{ollama.WithModel(cfg.Model)}
		if cfg.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
		}
		llm, err := ollama.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to initialize ollama: %v", models.ErrConfiguration, err)
		}
		return llm, nil
	default:
		return nil, fmt.Errorf("%w: unknown inference provider %q", models.ErrConfiguration, cfg.Provider)
	}
}

// Generate returns the model's answer to prompt under the given system prompt.
func (c *Client) Generate(ctx context.Context, system, prompt string) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, system),
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}

	attempt := 0
	b := retry.WithMaxRetries(c.retries, retry.NewExponential(c.backoff))
	answer, err := retry.DoValue(ctx, b, func(ctx context.Context) (string, error) {
		attempt++
		res, err := c.GenerateContent(ctx, messages)
		if err != nil {
			if ctx.Err() != nil {
				return "", err
			}
			log.Warn().Err(err).Int("attempt", attempt).Msg("Chat model call failed")
			return "", retry.RetryableError(err)
		}
		if len(res.Choices) == 0 || strings.TrimSpace(res.Choices[0].Content) == "" {
			return "", retry.RetryableError(errEmptyCompletion)
		}
		return res.Choices[0].Content, nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate content after %d attempt(s): %w", attempt, err)
	}
	return answer, nil
}

// GenerateContent performs a single model call bounded by the client timeout.
func (c *Client) GenerateContent(ctx context.Context, messages []llms.MessageContent) (*llms.ContentResponse, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	opts := []llms.CallOption{llms.WithTemperature(c.temperature)}
	if c.maxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(c.maxTokens))
	}
	return c.model.GenerateContent(ctx, messages, opts...)
}
