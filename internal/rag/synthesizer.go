package rag

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"

	"loan-rag/internal/models"
)

// Generator is the external text generation service.
type Generator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

// ContextFragment is one retrieved text with its optional source label.
type ContextFragment struct {
	Text  string
	Label string
}

// Synthesizer turns retrieved fragments and a question into a grounded answer.
type Synthesizer struct {
	gen    Generator
	system string
	think  *regexp.Regexp
}

func NewSynthesizer(gen Generator) (*Synthesizer, error) {
	if gen == nil {
		return nil, fmt.Errorf("%w: generator is nil", models.ErrConfiguration)
	}
	return &Synthesizer{
		gen:    gen,
		system: models.SystemPrompt,
		think:  regexp.MustCompile(models.ThinkTag),
	}, nil
}

// Synthesize answers question from unlabelled fragment texts.
func (s *Synthesizer) Synthesize(ctx context.Context, question string, texts []string) (string, error) {
	frags := make([]ContextFragment, len(texts))
	for i, t := range texts {
		frags[i] = ContextFragment{Text: t}
	}
	return s.SynthesizeContext(ctx, question, frags)
}

// SynthesizeContext answers question from ranked fragments. With no fragments
// it returns the no-information answer without calling the generator. Any
// generator failure is reported as models.ErrGeneration.
func (s *Synthesizer) SynthesizeContext(ctx context.Context, question string, frags []ContextFragment) (string, error) {
	if len(frags) == 0 {
		return models.NoInformationAnswer, nil
	}

	prompt := fmt.Sprintf(models.AnswerPromptTemplate, BuildContext(frags), question)
	log.Debug().Int("fragments", len(frags)).Int("prompt_len", len(prompt)).Msg("Generating answer")

	raw, err := s.gen.Generate(ctx, s.system, prompt)
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrGeneration, err)
	}
	answer := strings.TrimSpace(s.think.ReplaceAllString(raw, ""))
	if answer == "" {
		return "", fmt.Errorf("%w: empty answer", models.ErrGeneration)
	}
	return answer, nil
}

// BuildContext renders fragments in rank order as "[Source i - Label]" blocks.
func BuildContext(frags []ContextFragment) string {
	var b strings.Builder
	for i, f := range frags {
		if f.Label != "" {
			fmt.Fprintf(&b, models.LabeledSourceHeaderTemplate, i+1, f.Label)
		} else {
			fmt.Fprintf(&b, models.SourceHeaderTemplate, i+1)
		}
		b.WriteString(models.ContextSeparator)
		b.WriteString(strings.TrimSpace(f.Text))
		b.WriteString(models.ContextSeparator + models.ContextSeparator)
	}
	return b.String()
}
