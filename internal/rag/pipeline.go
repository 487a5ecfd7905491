package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"loan-rag/internal/models"
)

// QueryEmbedder embeds a single question.
type QueryEmbedder interface {
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

// Searcher is the read side of a vector index.
type Searcher interface {
	Search(ctx context.Context, vector []float32, k int) ([]models.SearchResult, error)
	Count(ctx context.Context) (int, error)
}

// Pipeline answers questions: embed, search, synthesize, score.
type Pipeline struct {
	embedder QueryEmbedder
	index    Searcher
	synth    *Synthesizer
	topK     int
}

func NewPipeline(embedder QueryEmbedder, index Searcher, synth *Synthesizer, topK int) (*Pipeline, error) {
	switch {
	case embedder == nil:
		return nil, fmt.Errorf("%w: embedder is nil", models.ErrConfiguration)
	case index == nil:
		return nil, fmt.Errorf("%w: index is nil", models.ErrConfiguration)
	case synth == nil:
		return nil, fmt.Errorf("%w: synthesizer is nil", models.ErrConfiguration)
	case topK <= 0:
		return nil, fmt.Errorf("%w: top_k must be positive, got %d", models.ErrConfiguration, topK)
	}
	return &Pipeline{embedder: embedder, index: index, synth: synth, topK: topK}, nil
}

// TopK is the number of fragments retrieved per question.
func (p *Pipeline) TopK() int { return p.topK }

// Count reports how many fragments the index holds.
func (p *Pipeline) Count(ctx context.Context) (int, error) {
	return p.index.Count(ctx)
}

// Ask answers question from the indexed fragments. A failing generator does
// not fail the call: the response carries an apology, the sources and the
// confidence, and GenerationFailed is set.
func (p *Pipeline) Ask(ctx context.Context, question string) (*models.QueryResponse, error) {
	q := strings.TrimSpace(question)
	if q == "" {
		return nil, fmt.Errorf("%w: question is empty", models.ErrInvalidArgument)
	}
	start := time.Now()

	vec, err := p.embedder.EmbedOne(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to embed question: %w", err)
	}

	results, err := p.index.Search(ctx, vec, p.topK)
	if err != nil {
		return nil, fmt.Errorf("failed to search index: %w", err)
	}

	resp := &models.QueryResponse{
		Question:  question,
		Sources:   make([]string, 0, len(results)),
		Labels:    make([]string, 0, len(results)),
		Distances: make([]float64, 0, len(results)),
	}
	if len(results) == 0 {
		resp.Answer = models.NoInformationAnswer
		log.Info().Str("question", q).Msg("No fragments found")
		return resp, nil
	}

	frags := make([]ContextFragment, len(results))
	for i, r := range results {
		frags[i] = ContextFragment{Text: r.Fragment.Text, Label: r.Fragment.SourceLabel}
		resp.Sources = append(resp.Sources, r.Fragment.Text)
		resp.Labels = append(resp.Labels, r.Fragment.SourceLabel)
		resp.Distances = append(resp.Distances, r.Distance)
	}
	resp.Confidence = Score(resp.Distances)

	answer, err := p.synth.SynthesizeContext(ctx, q, frags)
	switch {
	case errors.Is(err, models.ErrGeneration):
		log.Warn().Err(err).Str("question", q).Msg("Answer generation failed, returning sources only")
		resp.Answer = models.GenerationFailedAnswer
		resp.GenerationFailed = true
	case err != nil:
		return nil, err
	default:
		resp.Answer = answer
	}

	log.Info().Str("question", q).Int("sources", len(resp.Sources)).Float64("confidence", resp.Confidence).
		Dur("elapsed", time.Since(start)).Msg("Answered question")
	return resp, nil
}
