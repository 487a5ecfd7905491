package llmservice

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"loan-rag/internal/config"
	"loan-rag/internal/models"
)

type fakeModel struct {
	failures int
	answer   string
	calls    int
	messages []llms.MessageContent
	opts     llms.CallOptions
}

func (f *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	f.calls++
	f.messages = messages
	for _, o := range options {
		o(&f.opts)
	}
	if f.calls <= f.failures {
		return nil, errors.New("503 service unavailable")
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: f.answer}}}, nil
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

func testConfig(retries int) config.LLMConfig {
	return config.LLMConfig{
		Temperature: 0.2,
		MaxTokens:   2000,
		Timeout:     time.Second,
		Retries:     retries,
		Backoff:     time.Millisecond,
	}
}

func TestGenerateSendsPromptsAndOptions(t *testing.T) {
	model := &fakeModel{answer: "Home loans start at 8.35%."}
	c := NewWithModel(model, testConfig(0))

	got, err := c.Generate(context.Background(), "system prompt", "user prompt")
	require.NoError(t, err)
	assert.Equal(t, "Home loans start at 8.35%.", got)

	require.Len(t, model.messages, 2)
	assert.Equal(t, llms.ChatMessageTypeSystem, model.messages[0].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, model.messages[1].Role)
	assert.Equal(t, llms.TextContent{Text: "user prompt"}, model.messages[1].Parts[0])
	assert.InDelta(t, 0.2, model.opts.Temperature, 1e-9)
	assert.Equal(t, 2000, model.opts.MaxTokens)
}

func TestGenerateRetriesTransientFailures(t *testing.T) {
	model := &fakeModel{failures: 2, answer: "ok"}
	got, err := NewWithModel(model, testConfig(2)).Generate(context.Background(), "s", "p")
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 3, model.calls)
}

func TestGenerateGivesUp(t *testing.T) {
	model := &fakeModel{failures: 5, answer: "ok"}
	_, err := NewWithModel(model, testConfig(1)).Generate(context.Background(), "s", "p")
	require.Error(t, err)
	assert.ErrorContains(t, err, "503 service unavailable")
	assert.Equal(t, 2, model.calls)
}

func TestGenerateRejectsEmptyCompletion(t *testing.T) {
	model := &fakeModel{answer: "  \n"}
	_, err := NewWithModel(model, testConfig(0)).Generate(context.Background(), "s", "p")
	assert.ErrorIs(t, err, errEmptyCompletion)
}

func TestNewModelUnknownProvider(t *testing.T) {
	_, err := New(config.LLMConfig{Provider: "carrier-pigeon"})
	assert.ErrorIs(t, err, models.ErrConfiguration)
}
