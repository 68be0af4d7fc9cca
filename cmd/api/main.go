package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"ragbook/internal/app"
	"ragbook/internal/config"
	"ragbook/internal/http"
)

//go:generate swagger generate spec -o swagger.json

// General API information
//
// This API answers questions strictly from a local corpus of books, citing the
// passages it used, and refuses with probing questions when the evidence is weak.
//
// swagger:meta
//
// ---
// swagger: '2.0'
// info:
//   title: Ragbook API
//   description: |
//     Grounded question answering over ingested text and markdown books.
//     Retrieval fuses vector and BM25 search; answers are checked against the passages.
//   version: 1.0.0
// schemes:
//   - http
//   - https
// consumes:
//   - application/json
// produces:
//   - application/json

const shutdownTimeout = 30 * time.Second

func main() {
	// Load configuration first (needed for log level)
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := app.NewLogger(os.Stdout, cfg)
	slog.SetDefault(logger)
	slog.Debug("Logging configured", "level", cfg.LogLevel.String(), "format", cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(cfg, prometheus.DefaultRegisterer)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			slog.Warn("Failed to close resources", "error", err)
		}
	}()

	// Ensure collection exists with correct vector size
	if err := a.VectorStore.EnsureCollection(ctx, cfg.QdrantCollection, cfg.QdrantVectorSize); err != nil {
		log.Fatalf("Failed to ensure Qdrant collection: %v", err)
	}
	slog.Info("Qdrant collection ready", "collection", cfg.QdrantCollection, "vector_size", cfg.QdrantVectorSize)

	// Validate embedding client vector size (fail-fast)
	if err := a.ValidateEmbeddings(ctx); err != nil {
		log.Fatalf("Embedding client check failed: %v", err)
	}
	slog.Info("Embedding client validated", "vector_size", cfg.QdrantVectorSize)

	// Warm the lexical index in background; questions run vector-only until it is ready
	go func() {
		if _, status, err := a.Lexical.Index(ctx); err != nil {
			slog.Warn("Lexical index not ready", "status", status.String(), "error", err)
		}
	}()

	router := http.NewRouter(&http.Deps{
		Engine:      a.Engine,
		AskTimeout:  cfg.RequestTimeout,
		VectorStore: a.VectorStore,
		Collection:  cfg.QdrantCollection,
		Lexical:     a.Lexical,
		Ingester:    a.Ingester,
		Documents:   a.Documents,
		Chunks:      a.Chunks,
		Gatherer:    prometheus.DefaultGatherer,
	})

	server := &nethttp.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting API server", "addr", server.Addr)
		slog.Debug("LLM configuration", "base_url", cfg.LLMBaseURL, "model", cfg.LLMModelName)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
			slog.Error("API server failed", "error", err)
		}
	case <-ctx.Done():
		slog.Info("Shutting down API server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("Graceful shutdown failed", "error", err)
		}
	}
}
