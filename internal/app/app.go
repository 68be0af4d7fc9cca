// Package app wires configuration into the components shared by the API server and the CLI.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"ragbook/internal/config"
	"ragbook/internal/indexer"
	"ragbook/internal/llm"
	"ragbook/internal/metrics"
	"ragbook/internal/rag"
	"ragbook/internal/storage"
	"ragbook/internal/vectorstore"
)

// App holds the wired components.
type App struct {
	Config      *config.Config
	DB          *sql.DB
	Documents   *storage.DocumentRepo
	Chunks      *storage.ChunkRepo
	VectorStore *vectorstore.QdrantStore
	Embedder    *llm.EmbeddingsClient
	Generator   *llm.Client
	Lexical     *rag.LexicalProvider
	Engine      rag.Engine
	Ingester    *indexer.Pipeline
	Metrics     *metrics.Metrics
}

// NewLogger builds the process logger from the configured level and format.
func NewLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// New opens the database and vector store and builds the engine and ingestion pipeline.
// Metrics register with reg.
func New(cfg *config.Config, reg prometheus.Registerer) (*App, error) {
	db, err := storage.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := storage.Migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Info("Database initialized", "path", cfg.DBPath)

	store, err := vectorstore.NewQdrantStore(cfg.QdrantURL)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create Qdrant client: %w", err)
	}

	a := &App{
		Config:      cfg,
		DB:          db,
		Documents:   storage.NewDocumentRepo(db),
		Chunks:      storage.NewChunkRepo(db),
		VectorStore: store,
		Embedder:    llm.NewEmbeddingsClient(cfg.EmbeddingBaseURL, cfg.LLMAPIKey, cfg.EmbeddingModelName, cfg.QdrantVectorSize),
		Generator:   llm.NewClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModelName),
		Metrics:     metrics.New(reg),
	}
	a.Generator.Defaults = llm.ChatParams{
		Temperature: float32(cfg.LLMTemperature),
		MaxTokens:   cfg.LLMMaxTokens,
	}

	a.Lexical = rag.NewLexicalProvider(cfg.LexicalIndexPath, a.VectorSource(), cfg.Language)

	var reranker *rag.Reranker
	if cfg.RerankEnabled {
		reranker = rag.NewReranker(RerankFactory(cfg))
		slog.Info("Re-ranking enabled", "model", cfg.RerankModel, "candidates", cfg.RerankCandidates)
	}

	a.Engine = rag.NewEngine(EngineConfig(cfg), a.Embedder, store, a.Generator, a.Lexical, reranker, a.Metrics)

	a.Ingester = indexer.NewPipeline(a.Documents, a.Chunks, a.Embedder, store, cfg.QdrantCollection, indexer.Options{
		MaxChars:     cfg.ChunkMaxChars,
		OverlapChars: cfg.ChunkOverlapChars,
		Workers:      cfg.IngestWorkers,
		VectorSize:   cfg.QdrantVectorSize,
	})

	return a, nil
}

// VectorSource exposes the configured collection as a lexical chunk source.
func (a *App) VectorSource() vectorstore.ChunkSource {
	return vectorstore.ChunkSource{Store: a.VectorStore, Collection: a.Config.QdrantCollection}
}

// ValidateEmbeddings checks that the embedding service returns vectors of the configured size.
func (a *App) ValidateEmbeddings(ctx context.Context) error {
	vecs, err := a.Embedder.EmbedTexts(ctx, []string{"test"})
	if err != nil {
		return fmt.Errorf("failed to validate embedding client: %w", err)
	}
	if len(vecs) == 0 || len(vecs[0]) != a.Config.QdrantVectorSize {
		got := 0
		if len(vecs) > 0 {
			got = len(vecs[0])
		}
		return fmt.Errorf("embedding vector size mismatch: expected %d, got %d", a.Config.QdrantVectorSize, got)
	}
	return nil
}

// Close releases the database and the vector store connection.
func (a *App) Close() error {
	return errors.Join(a.VectorStore.Close(), a.DB.Close())
}

// EngineConfig maps the configuration onto the engine policy.
func EngineConfig(cfg *config.Config) rag.Config {
	return rag.Config{
		Collection:  cfg.QdrantCollection,
		TopK:        cfg.TopK,
		MaxPassages: cfg.MaxPassages,
		Alpha:       cfg.Alpha,
		Language:    cfg.Language,
		Gate: rag.GateConfig{
			MinScore:           cfg.MinScore,
			GapThreshold:       cfg.GapThreshold,
			MinTokenOverlap:    cfg.MinTokenOverlap,
			RequireDocCoverage: cfg.RequireDocCoverage,
		},
		ClaimCheckMode:   rag.ParseClaimCheckMode(cfg.ClaimCheckMode),
		RerankCandidates: cfg.RerankCandidates,
	}
}

// RerankFactory loads the rerank model into the model server on first use and
// returns a client scoring against it.
func RerankFactory(cfg *config.Config) rag.ModelFactory {
	return func(ctx context.Context) (rag.RelevanceModel, error) {
		if cfg.RerankModel != "" {
			loader := llm.NewModelLoader(cfg.RerankBaseURL)
			if err := loader.LoadModel(ctx, cfg.RerankModel, nil); err != nil {
				return nil, fmt.Errorf("failed to load rerank model %s: %w", cfg.RerankModel, err)
			}
		}
		return llm.NewRerankClient(cfg.RerankBaseURL, cfg.LLMAPIKey, cfg.RerankModel), nil
	}
}
