package embedding

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"golang.org/x/sync/errgroup"

	"loan-rag/internal/config"
	"loan-rag/internal/models"
)

const probeText = "loan product embedding probe"

// Embedder turns text into fixed-dimension vectors through a langchaingo backend.
// It holds no per-call state and is safe for concurrent use.
type Embedder struct {
	backend     embeddings.Embedder
	dimension   int
	timeout     time.Duration
	concurrency int
}

// NewFromConfig builds the configured backend and probes it.
func NewFromConfig(ctx context.Context, cfg config.LLMConfig) (*Embedder, error) {
	backend, err := NewBackend(cfg)
	if err != nil {
		return nil, err
	}
	return New(ctx, backend, cfg.Timeout, cfg.Concurrency)
}

// New wraps backend and embeds a probe text once to discover the vector
// dimension. A backend that cannot answer is a configuration error.
func New(ctx context.Context, backend embeddings.Embedder, timeout time.Duration, concurrency int) (*Embedder, error) {
	if backend == nil {
		return nil, fmt.Errorf("%w: embedding backend is nil", models.ErrConfiguration)
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	e := &Embedder{backend: backend, timeout: timeout, concurrency: concurrency}

	vec, err := e.call(ctx, probeText)
	if err != nil {
		return nil, fmt.Errorf("%w: embedding model probe failed: %v", models.ErrConfiguration, err)
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("%w: embedding model returned an empty vector", models.ErrConfiguration)
	}
	e.dimension = len(vec)
	log.Debug().Int("dimension", e.dimension).Dur("timeout", timeout).Msg("Embedding model ready")
	return e, nil
}

// Dimension is the length of every vector this embedder returns.
func (e *Embedder) Dimension() int { return e.dimension }

// EmbedOne embeds a single text.
func (e *Embedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.call(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed text: %w", err)
	}
	if len(vec) != e.dimension {
		return nil, fmt.Errorf("failed to embed text: got %d dimensions, want %d", len(vec), e.dimension)
	}
	return vec, nil
}

// EmbedMany embeds texts in order. Each text goes through EmbedOne, so the
// result is identical to embedding them one at a time.
func (e *Embedder) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, text := range texts {
		g.Go(func() error {
			vec, err := e.EmbedOne(gctx, text)
			if err != nil {
				return fmt.Errorf("text %d: %w", i, err)
			}
			out[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Embedder) call(ctx context.Context, text string) ([]float32, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	return e.backend.EmbedQuery(ctx, text)
}
