package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"ragbook/internal/contextutil"
	"ragbook/internal/lexical"
	"ragbook/internal/rag"
)

// CollectionChecker reports whether a vector store collection exists.
type CollectionChecker interface {
	CollectionExists(ctx context.Context, collection string) (bool, error)
}

// LexicalIndexSource serves the current lexical index.
type LexicalIndexSource interface {
	Index(ctx context.Context) (*lexical.Index, rag.StageStatus, error)
}

// HealthHandler handles HTTP requests for health checks.
type HealthHandler struct {
	vectorStore        CollectionChecker
	lexical            LexicalIndexSource
	collectionName     string
	healthCheckTimeout time.Duration
}

// NewHealthHandler creates a new HealthHandler. lexical may be nil.
func NewHealthHandler(vectorStore CollectionChecker, lexical LexicalIndexSource, collectionName string) *HealthHandler {
	return &HealthHandler{
		vectorStore:        vectorStore,
		lexical:            lexical,
		collectionName:     collectionName,
		healthCheckTimeout: 5 * time.Second,
	}
}

// HealthResponse represents the health check response.
//
// swagger:model HealthResponse
type HealthResponse struct {
	// Overall health status: "healthy", "degraded", or "unhealthy"
	Status string `json:"status"`

	// Timestamp of the health check
	Timestamp string `json:"timestamp"`

	// Individual check results
	Checks map[string]string `json:"checks"`

	// List of issues (only present if status is degraded or unhealthy)
	Issues []string `json:"issues,omitempty"`
}

// ServeHTTP handles HTTP requests for health checks.
//
// The vector store is required; without it the service is unhealthy (503). A
// missing lexical index only degrades retrieval to vector search, so it is
// reported as degraded with 200.
//
// swagger:route GET /api/health healthCheck
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	if r.Method != http.MethodGet {
		logger.WarnContext(ctx, "method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	checkCtx, cancel := context.WithTimeout(ctx, h.healthCheckTimeout)
	defer cancel()

	checks := make(map[string]string)
	var issues []string
	status := "healthy"
	httpStatus := http.StatusOK

	if h.checkVectorStore(checkCtx, logger) {
		checks["vector_store"] = "ok"
	} else {
		checks["vector_store"] = "error"
		issues = append(issues, "vector_store_unavailable")
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	if h.lexical != nil {
		if _, st, err := h.lexical.Index(checkCtx); st == rag.StageDegraded {
			logger.WarnContext(ctx, "lexical index health check failed", "error", err)
			checks["lexical_index"] = "unavailable"
			issues = append(issues, "lexical_index_unavailable")
			if status == "healthy" {
				status = "degraded"
			}
		} else {
			checks["lexical_index"] = "ok"
		}
	}

	writeJSON(ctx, w, httpStatus, HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
		Issues:    issues,
	})
}

// checkVectorStore checks if the vector store is accessible.
func (h *HealthHandler) checkVectorStore(ctx context.Context, logger *slog.Logger) bool {
	exists, err := h.vectorStore.CollectionExists(ctx, h.collectionName)
	if err != nil {
		logger.WarnContext(ctx, "vector store health check failed", "error", err)
		return false
	}
	if !exists {
		logger.WarnContext(ctx, "vector store collection does not exist", "collection", h.collectionName)
		return false
	}
	return true
}
