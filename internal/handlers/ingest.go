package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"strings"

	"ragbook/internal/contextutil"
	"ragbook/internal/indexer"
	"ragbook/internal/lexical"
)

// Ingester ingests a file or directory of extracted books.
type Ingester interface {
	IngestPath(ctx context.Context, path string) (*indexer.IngestStats, error)
}

// LexicalRebuilder rebuilds and publishes the lexical index.
type LexicalRebuilder interface {
	Rebuild(ctx context.Context, src lexical.ChunkSource) (*lexical.Index, error)
}

// IngestHandler handles HTTP requests for triggering ingestion.
type IngestHandler struct {
	ingester  Ingester
	rebuilder LexicalRebuilder
	// done is called when a background run finishes.
	done func()
}

// NewIngestHandler creates a new IngestHandler. rebuilder may be nil.
func NewIngestHandler(ingester Ingester, rebuilder LexicalRebuilder) *IngestHandler {
	return &IngestHandler{
		ingester:  ingester,
		rebuilder: rebuilder,
		done:      func() {},
	}
}

// IngestRequest names the file or directory to ingest.
//
// swagger:model IngestRequest
type IngestRequest struct {
	Path string `json:"path"`
}

// IngestResponse represents the response from the ingest endpoint.
type IngestResponse struct {
	Message string `json:"message"`
	Status  string `json:"status"`
}

// ServeHTTP starts ingestion in the background and returns 202 immediately.
// After a run that indexed anything the lexical index is rebuilt so that new
// chunks become searchable by keyword.
//
// swagger:route POST /api/v1/ingest ingest
func (h *IngestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	if r.Method != http.MethodPost {
		logger.WarnContext(ctx, "method not allowed", "method", r.Method)
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.WarnContext(ctx, "invalid request body", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.Path = strings.TrimSpace(req.Path)
	if req.Path == "" {
		writeError(w, http.StatusBadRequest, "Path is required")
		return
	}
	if _, err := os.Stat(req.Path); err != nil {
		logger.WarnContext(ctx, "ingest path not accessible", "path", req.Path, "error", err)
		writeError(w, http.StatusBadRequest, "Path not accessible")
		return
	}

	logger.InfoContext(ctx, "ingestion triggered via API", "path", req.Path)

	// The run outlives the request but keeps its logger.
	runCtx := context.WithoutCancel(ctx)
	go func() {
		defer h.done()

		stats, err := h.ingester.IngestPath(runCtx, req.Path)
		if err != nil {
			logger.ErrorContext(runCtx, "ingestion completed with errors", "error", err)
		} else {
			logger.InfoContext(runCtx, "ingestion completed successfully")
		}
		if h.rebuilder == nil || stats == nil || stats.DocumentsIndexed == 0 {
			return
		}
		if _, err := h.rebuilder.Rebuild(runCtx, nil); err != nil {
			logger.ErrorContext(runCtx, "failed to rebuild lexical index after ingestion", "error", err)
		}
	}()

	writeJSON(ctx, w, http.StatusAccepted, IngestResponse{
		Message: "Ingestion started. Check server logs for progress.",
		Status:  "accepted",
	})
}
