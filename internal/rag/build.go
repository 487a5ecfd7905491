package rag

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"loan-rag/internal/models"
)

// BatchEmbedder embeds texts in order.
type BatchEmbedder interface {
	EmbedMany(ctx context.Context, texts []string) ([][]float32, error)
}

// Store is a vector index that can be rebuilt.
type Store interface {
	Searcher
	Upsert(ctx context.Context, entries []models.IndexEntry) error
	Clear(ctx context.Context) error
}

// BuildIndex replaces the contents of store with fragments, embedding them in
// batches of batchSize. It returns the number of stored fragments. Callers must
// not run it alongside queries against the same store.
func BuildIndex(ctx context.Context, store Store, embedder BatchEmbedder, fragments []models.Fragment, batchSize int) (int, error) {
	if batchSize <= 0 {
		return 0, fmt.Errorf("%w: batch size must be positive, got %d", models.ErrInvalidArgument, batchSize)
	}
	if err := store.Clear(ctx); err != nil {
		return 0, fmt.Errorf("failed to clear index: %w", err)
	}

	for start := 0; start < len(fragments); start += batchSize {
		batch := fragments[start:min(start+batchSize, len(fragments))]
		texts := make([]string, len(batch))
		for i, f := range batch {
			texts[i] = f.Text
		}
		vectors, err := embedder.EmbedMany(ctx, texts)
		if err != nil {
			return 0, fmt.Errorf("failed to embed batch at %d: %w", start, err)
		}

		entries := make([]models.IndexEntry, len(batch))
		for i, f := range batch {
			entries[i] = models.IndexEntry{Fragment: f, Vector: vectors[i]}
		}
		if err := store.Upsert(ctx, entries); err != nil {
			return 0, fmt.Errorf("failed to store batch at %d: %w", start, err)
		}
		log.Info().Int("done", start+len(batch)).Int("total", len(fragments)).Msg("Indexed fragments")
	}

	n, err := store.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count index: %w", err)
	}
	return n, nil
}
