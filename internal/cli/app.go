package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"druginfo-rag/internal/config"
	"druginfo-rag/internal/indexer"
	"druginfo-rag/internal/llm"
	"druginfo-rag/internal/metrics"
	"druginfo-rag/internal/rag"
	"druginfo-rag/internal/storage"
	"druginfo-rag/internal/vectorstore"
)

// App holds the wired components shared by every command.
type App struct {
	Config    *config.Config
	DB        *storage.DB
	Catalog   *storage.CatalogRepo
	Vectors   vectorstore.VectorStore
	Embedder  llm.Embedder
	Pipeline  *indexer.Pipeline
	Retriever *rag.Retriever
	Engine    rag.Engine
	Metrics   *metrics.Metrics

	closers []io.Closer
}

// Close releases the stores.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i].Close())
	}
	return errors.Join(errs...)
}

// AppLoader builds the App for a command. The returned release func is called when
// the command finishes.
type AppLoader func(ctx context.Context) (*App, func(), error)

// LoadApp reads the configuration and wires every component.
func LoadApp(ctx context.Context) (*App, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	setupLogger(cfg)

	app, err := Build(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return app, func() {
		if err := app.Close(); err != nil {
			slog.Warn("failed to close stores", "error", err)
		}
	}, nil
}

// setupLogger configures the default slog logger from cfg.
func setupLogger(cfg *config.Config) {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
	slog.Debug("Logging configured", "level", cfg.LogLevel.String(), "format", cfg.LogFormat)
}

// Build opens the stores and wires the pipeline, retriever and answer engine.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	app := &App{Config: cfg, Metrics: metrics.New()}

	dialect, err := storage.ParseDialect(cfg.DBDriver)
	if err != nil {
		return nil, err
	}
	db, err := storage.Open(dialect, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	app.DB = db
	app.closers = append(app.closers, db)

	if err := storage.Migrate(db); err != nil {
		_ = app.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Info("Database initialized", "driver", dialect)

	switch cfg.VectorBackend {
	case "memory":
		app.Vectors = vectorstore.NewMemoryStore()
	default:
		qs, err := vectorstore.NewQdrantStore(cfg.QdrantURL, cfg.QdrantAPIKey)
		if err != nil {
			_ = app.Close()
			return nil, err
		}
		app.Vectors = qs
		app.closers = append(app.closers, qs)
	}
	slog.Info("Vector store ready", "backend", cfg.VectorBackend, "collection", cfg.QdrantCollection)

	app.Embedder = newEmbedder(cfg, app.Metrics)

	products := storage.NewProductRepo(db)
	sections := storage.NewSectionRepo(db)
	app.Catalog = storage.NewCatalogRepo(db)

	app.Pipeline = indexer.NewPipeline(products, sections, app.Catalog, app.Embedder, app.Vectors, indexer.Config{
		Collection:     cfg.QdrantCollection,
		VectorSize:     cfg.QdrantVectorSize,
		EmbeddingModel: cfg.EmbeddingModelName,
		BatchSize:      cfg.EmbedBatchSize,
		Workers:        cfg.IngestWorkers,
		ChunkBudget:    cfg.ChunkBudget,
		Overlap:        cfg.ChunkOverlap,
		Metrics:        app.Metrics,
	})

	app.Retriever = rag.NewRetriever(app.Catalog, app.Embedder, app.Vectors, rag.RetrieverConfig{
		Collection: cfg.QdrantCollection,
		AliasMode:  storage.AliasMode(cfg.AliasMatch),
		Timeout:    cfg.SearchTimeout,
		MaxK:       cfg.SearchMaxK,
		Metrics:    app.Metrics,
	})

	app.Engine = rag.NewEngine(app.Retriever, llm.NewClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModelName))

	return app, nil
}

// newEmbedder builds the configured embedding provider. Remote providers are wrapped
// with retries of transient failures.
func newEmbedder(cfg *config.Config, m *metrics.Metrics) llm.Embedder {
	if cfg.EmbeddingProvider == "hash" {
		slog.Info("Using offline hash embedder", "dimension", cfg.QdrantVectorSize)
		return llm.NewHashEmbedder(cfg.QdrantVectorSize)
	}

	client := llm.NewEmbeddingsClient(cfg.EmbeddingBaseURL, cfg.EmbeddingAPIKey, cfg.EmbeddingModelName, cfg.QdrantVectorSize,
		llm.WithConcurrency(cfg.EmbedConcurrency),
		llm.WithRateLimit(cfg.EmbedRPS),
	)
	retrying := llm.NewRetryingEmbedder(client, llm.RetryPolicy{
		MaxAttempts: cfg.EmbedMaxAttempts,
		BaseDelay:   cfg.EmbedBackoffBase,
		MaxDelay:    llm.DefaultRetryPolicy.MaxDelay,
	})
	retrying.OnRetry = func(attempt int, err error) {
		m.RecordEmbedRetry()
		slog.Warn("retrying embedding request", "attempt", attempt, "error", err)
	}
	slog.Info("Embedding client configured", "model", cfg.EmbeddingModelName, "vector_size", cfg.QdrantVectorSize)
	return retrying
}
