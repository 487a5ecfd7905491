package rag

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loan-rag/internal/models"
)

type fakeGenerator struct {
	answer  string
	err     error
	calls   int
	system  string
	prompts []string
}

func (g *fakeGenerator) Generate(_ context.Context, system, prompt string) (string, error) {
	g.calls++
	g.system = system
	g.prompts = append(g.prompts, prompt)
	return g.answer, g.err
}

func TestBuildContext(t *testing.T) {
	got := BuildContext([]ContextFragment{
		{Text: "Home loan rate 8.35%.", Label: "Home Loan"},
		{Text: "  General charges apply.\n"},
	})
	assert.Equal(t, "[Source 1 - Home Loan]\nHome loan rate 8.35%.\n\n[Source 2]\nGeneral charges apply.\n\n", got)
	assert.Empty(t, BuildContext(nil))
}

func TestSynthesizeBuildsGroundedPrompt(t *testing.T) {
	gen := &fakeGenerator{answer: "<think>look at source 1</think>\nThe home loan rate is 8.35%."}
	s, err := NewSynthesizer(gen)
	require.NoError(t, err)

	answer, err := s.Synthesize(context.Background(), "What is the home loan rate?", []string{"Home loan rate 8.35%.", "Car loan rate 8.7%."})
	require.NoError(t, err)
	assert.Equal(t, "The home loan rate is 8.35%.", answer)

	require.Len(t, gen.prompts, 1)
	prompt := gen.prompts[0]
	assert.Contains(t, prompt, "[Source 1]\nHome loan rate 8.35%.")
	assert.Contains(t, prompt, "[Source 2]\nCar loan rate 8.7%.")
	assert.Contains(t, prompt, "Question: What is the home loan rate?")
	assert.Contains(t, prompt, "not available")
	assert.Equal(t, models.SystemPrompt, gen.system)
}

func TestSynthesizeWithoutFragments(t *testing.T) {
	gen := &fakeGenerator{answer: "should not be used"}
	s, err := NewSynthesizer(gen)
	require.NoError(t, err)

	answer, err := s.Synthesize(context.Background(), "anything?", nil)
	require.NoError(t, err)
	assert.Equal(t, models.NoInformationAnswer, answer)
	assert.Zero(t, gen.calls)
}

func TestSynthesizeFailures(t *testing.T) {
	for _, gen := range []*fakeGenerator{
		{err: errors.New("timeout")},
		{answer: "   "},
		{answer: "<think>only reasoning</think>"},
	} {
		s, err := NewSynthesizer(gen)
		require.NoError(t, err)
		_, err = s.Synthesize(context.Background(), "q", []string{"fragment"})
		assert.ErrorIs(t, err, models.ErrGeneration)
	}

	_, err := NewSynthesizer(nil)
	assert.ErrorIs(t, err, models.ErrConfiguration)
}
