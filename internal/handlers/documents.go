package handlers

import (
	"net/http"
	"time"

	"ragbook/internal/contextutil"
	"ragbook/internal/indexer"
	"ragbook/internal/storage"
)

// DocumentsHandler lists the ingested books with corpus statistics.
type DocumentsHandler struct {
	docs   storage.DocumentStore
	chunks indexer.ChunkLengthSource
}

// NewDocumentsHandler creates a new DocumentsHandler.
func NewDocumentsHandler(docs storage.DocumentStore, chunks indexer.ChunkLengthSource) *DocumentsHandler {
	return &DocumentsHandler{docs: docs, chunks: chunks}
}

// DocumentResponse is one ingested document.
//
// swagger:model DocumentResponse
type DocumentResponse struct {
	ID         string    `json:"doc_id"`
	Title      string    `json:"doc_title"`
	SourcePath string    `json:"source_path"`
	Hash       string    `json:"hash"`
	PageCount  int       `json:"page_count"`
	ChunkCount int       `json:"chunk_count"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// DocumentsResponse lists documents and what is stored for them.
//
// swagger:model DocumentsResponse
type DocumentsResponse struct {
	Documents []DocumentResponse   `json:"documents"`
	Stats     *indexer.CorpusStats `json:"stats"`
}

// ServeHTTP lists documents ordered by title.
//
// swagger:route GET /api/v1/documents listDocuments
func (h *DocumentsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	if r.Method != http.MethodGet {
		logger.WarnContext(ctx, "method not allowed", "method", r.Method)
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	records, err := h.docs.List(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "failed to list documents", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to list documents")
		return
	}

	stats, err := indexer.ComputeCorpusStats(ctx, h.docs, h.chunks)
	if err != nil {
		logger.ErrorContext(ctx, "failed to compute corpus stats", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to compute corpus stats")
		return
	}

	docs := make([]DocumentResponse, len(records))
	for i, d := range records {
		docs[i] = DocumentResponse{
			ID:         d.ID,
			Title:      d.Title,
			SourcePath: d.SourcePath,
			Hash:       d.Hash,
			PageCount:  d.PageCount,
			ChunkCount: d.ChunkCount,
			UpdatedAt:  d.UpdatedAt,
		}
	}

	writeJSON(ctx, w, http.StatusOK, DocumentsResponse{Documents: docs, Stats: stats})
}
