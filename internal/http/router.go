package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ragbook/internal/handlers"
	"ragbook/internal/indexer"
	"ragbook/internal/rag"
	"ragbook/internal/storage"
)

// ChunkRepository reads stored chunks.
type ChunkRepository interface {
	storage.ChunkStore
	indexer.ChunkLengthSource
}

// Deps holds dependencies for the HTTP router.
type Deps struct {
	Engine     rag.Engine
	AskTimeout time.Duration

	VectorStore handlers.CollectionChecker
	Collection  string

	// Lexical is optional; without it the rebuild route is not registered.
	Lexical *rag.LexicalProvider
	// Ingester is optional; without it the ingest route is not registered.
	Ingester handlers.Ingester

	Documents storage.DocumentStore
	Chunks    ChunkRepository

	// Gatherer backs /metrics. Defaults to the global registry.
	Gatherer prometheus.Gatherer
}

// NewRouter creates a new HTTP router with the provided dependencies.
func NewRouter(deps *Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(LoggerMiddleware)
	r.Use(RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(CORS)

	var lexicalSource handlers.LexicalIndexSource
	var rebuilder handlers.LexicalRebuilder
	if deps.Lexical != nil {
		lexicalSource = deps.Lexical
		rebuilder = deps.Lexical
	}

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r.Route("/api", func(r chi.Router) {
		r.Method(http.MethodGet, "/health", handlers.NewHealthHandler(deps.VectorStore, lexicalSource, deps.Collection))

		r.Route("/v1", func(r chi.Router) {
			r.Method(http.MethodPost, "/ask", handlers.NewAskHandler(deps.Engine, deps.AskTimeout))
			r.Method(http.MethodGet, "/documents", handlers.NewDocumentsHandler(deps.Documents, deps.Chunks))
			r.Method(http.MethodGet, "/chunks/{chunkID}", handlers.NewChunkHandler(deps.Chunks, deps.Documents))

			if deps.Ingester != nil {
				r.Method(http.MethodPost, "/ingest", handlers.NewIngestHandler(deps.Ingester, rebuilder))
			}
			if rebuilder != nil {
				r.Method(http.MethodPost, "/lexical/rebuild", handlers.NewLexicalRebuildHandler(rebuilder, deps.Lexical.Path()))
			}
		})
	})

	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return r
}
