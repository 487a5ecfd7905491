package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"loan-rag/internal/chromemdb"
	"loan-rag/internal/chunker"
	"loan-rag/internal/config"
	"loan-rag/internal/db"
	"loan-rag/internal/embedding"
	"loan-rag/internal/llmservice"
	"loan-rag/internal/rag"
)

// openStore opens the configured vector index. dimension and rebuild are only
// used by pgvector, whose column type depends on the embedding dimension; a
// rebuild may drop a table declared with another dimension.
func openStore(ctx context.Context, cfg *config.Config, dimension int, rebuild bool) (rag.Store, func(), error) {
	switch cfg.VectorStore.Type {
	case "pgvector":
		sqldb, err := db.ConnectDB(&cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		bunDB := db.NewDB(sqldb, cfg.Database.Debug)
		if err := db.InitDB(ctx, bunDB, dimension, rebuild); err != nil {
			_ = bunDB.Close()
			return nil, nil, err
		}
		store := db.NewStore(bunDB, cfg.VectorStore.Timeout)
		log.Info().Int("dimension", dimension).Msg("Opened pgvector store")
		return store, func() { _ = store.Close() }, nil
	default:
		store, err := openChromem(cfg)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	}
}

func openChromem(cfg *config.Config) (*chromemdb.VectorDBManager, error) {
	return chromemdb.NewVectorDBManager(chromemdb.Options{
		Path:          cfg.VectorStore.Path,
		Collection:    cfg.VectorStore.Collection,
		InMemory:      cfg.VectorStore.InMemory,
		Compress:      cfg.VectorStore.Compress,
		EncryptionKey: cfg.VectorStore.EncryptionKey,
		Timeout:       cfg.VectorStore.Timeout,
	})
}

func newChunker(cfg *config.Config) *chunker.Chunker {
	return chunker.New(cfg.Chunker.ChunkSize, cfg.Chunker.ChunkOverlap)
}

// newPipeline builds the query pipeline. The returned func releases the index.
func newPipeline(ctx context.Context, cfg *config.Config) (*rag.Pipeline, func(), error) {
	embedder, err := embedding.NewFromConfig(ctx, cfg.EmbedLLM)
	if err != nil {
		return nil, nil, err
	}
	store, closeStore, err := openStore(ctx, cfg, embedder.Dimension(), false)
	if err != nil {
		return nil, nil, err
	}
	client, err := llmservice.New(cfg.InferenceLLM)
	if err != nil {
		closeStore()
		return nil, nil, err
	}
	synth, err := rag.NewSynthesizer(client)
	if err != nil {
		closeStore()
		return nil, nil, err
	}
	pipeline, err := rag.NewPipeline(embedder, store, synth, cfg.RAG.TopK)
	if err != nil {
		closeStore()
		return nil, nil, err
	}

	n, err := pipeline.Count(ctx)
	if err != nil {
		closeStore()
		return nil, nil, fmt.Errorf("failed to read index size: %w", err)
	}
	if n == 0 {
		log.Warn().Msg("Vector index is empty, run build-index first")
	}
	return pipeline, closeStore, nil
}
