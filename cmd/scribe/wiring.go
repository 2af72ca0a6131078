package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/MikeSquared-Agency/scribe/internal/config"
	"github.com/MikeSquared-Agency/scribe/internal/embedding"
	"github.com/MikeSquared-Agency/scribe/internal/processor"
	"github.com/MikeSquared-Agency/scribe/internal/store"
	"github.com/MikeSquared-Agency/scribe/internal/vectorstore"
)

// pipeline is the write and retrieval stack shared by serve and ingest.
type pipeline struct {
	db       *store.Store
	embedder *embedding.Embedder
	vectors  *vectorstore.Store
}

func loadConfig() (config.Config, error) {
	cfg := config.Load()
	setupLogging(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newPipeline(ctx context.Context, cfg config.Config) (*pipeline, error) {
	db, err := store.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := db.Migrate(ctx, cfg.EmbeddingDimensions); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	slog.Info("database connected")

	provider := embedding.NewClient(embedding.ClientConfig{
		Provider:   cfg.EmbeddingProvider,
		BaseURL:    cfg.EmbeddingURL,
		APIKey:     cfg.EmbeddingAPIKey,
		Model:      cfg.EmbeddingModel,
		Timeout:    cfg.ExternalTimeout,
		MaxRetries: 2,
	})
	embedder := embedding.New(provider, embedding.Options{
		Dimensions:        cfg.EmbeddingDimensions,
		Timeout:           cfg.ExternalTimeout,
		RequestsPerSecond: cfg.EmbeddingRateLimit,
		Workers:           cfg.EmbeddingWorkers,
	}, slog.Default())
	slog.Info("embedding provider ready", "provider", cfg.EmbeddingProvider, "model", cfg.EmbeddingModel, "dimensions", cfg.EmbeddingDimensions)

	var backend vectorstore.Backend = db
	if cfg.VectorBackend == config.BackendMemory {
		backend = vectorstore.NewMemory(cfg.EmbeddingDimensions)
		slog.Warn("using in-memory vector store; embeddings are lost on restart")
	}
	vectors := vectorstore.New(backend, cfg.SimilarityThreshold, cfg.ExternalTimeout, slog.Default())

	return &pipeline{db: db, embedder: embedder, vectors: vectors}, nil
}

func (p *pipeline) processor(cfg config.Config, publisher processor.Publisher) *processor.Processor {
	return processor.New(p.db, p.embedder, p.vectors, publisher, cfg.ChunkSize, cfg.ChunkOverlap, slog.Default())
}

func (p *pipeline) Close() {
	p.db.Close()
}
