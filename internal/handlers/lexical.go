package handlers

import (
	"errors"
	"net/http"

	"ragbook/internal/contextutil"
	"ragbook/internal/service"
)

// LexicalRebuildHandler rebuilds the persisted lexical index from the vector store.
type LexicalRebuildHandler struct {
	rebuilder LexicalRebuilder
	path      string
}

// NewLexicalRebuildHandler creates a new LexicalRebuildHandler. path is reported
// in responses only.
func NewLexicalRebuildHandler(rebuilder LexicalRebuilder, path string) *LexicalRebuildHandler {
	return &LexicalRebuildHandler{rebuilder: rebuilder, path: path}
}

// LexicalRebuildResponse describes the published index.
type LexicalRebuildResponse struct {
	Chunks   int    `json:"chunks"`
	Language string `json:"language"`
	Path     string `json:"path,omitempty"`
}

// ServeHTTP rebuilds, persists and publishes the lexical index.
//
// swagger:route POST /api/v1/lexical/rebuild rebuildLexicalIndex
func (h *LexicalRebuildHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	if r.Method != http.MethodPost {
		logger.WarnContext(ctx, "method not allowed", "method", r.Method)
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	idx, err := h.rebuilder.Rebuild(ctx, nil)
	if err != nil {
		logger.ErrorContext(ctx, "lexical index rebuild failed", "error", err)
		if errors.Is(err, service.ErrVectorStore) {
			writeError(w, http.StatusServiceUnavailable, "Vector store unavailable")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to rebuild lexical index")
		return
	}

	writeJSON(ctx, w, http.StatusOK, LexicalRebuildResponse{
		Chunks:   idx.Len(),
		Language: idx.Language(),
		Path:     h.path,
	})
}
