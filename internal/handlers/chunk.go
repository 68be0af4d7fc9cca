package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"ragbook/internal/contextutil"
	"ragbook/internal/storage"
)

// ChunkHandler serves a stored chunk with its surrounding context, as JSON or
// as a rendered HTML page for citation links.
type ChunkHandler struct {
	chunks   storage.ChunkStore
	docs     storage.DocumentStore
	markdown goldmark.Markdown
	template *template.Template
}

// chunkPageData holds template data for rendered chunk pages.
type chunkPageData struct {
	Title       string
	ChunkID     string
	Pages       string
	Section     string
	PreContext  template.HTML
	Content     template.HTML
	PostContext template.HTML
}

// ChunkResponse is a stored chunk.
//
// swagger:model ChunkResponse
type ChunkResponse struct {
	ChunkID     string `json:"chunk_id"`
	DocID       string `json:"doc_id"`
	DocTitle    string `json:"doc_title"`
	LocalIdx    int    `json:"local_idx"`
	PageStart   int    `json:"page_start"`
	PageEnd     int    `json:"page_end"`
	Section     string `json:"section"`
	PreContext  string `json:"pre_context"`
	PostContext string `json:"post_context"`
	Text        string `json:"text"`
}

var chunkPage = template.Must(template.New("chunk").Parse(`<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>{{.Title}} ({{.Pages}})</title>
  <style>
    body {
      font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', sans-serif;
      margin: 0 auto;
      padding: 2rem;
      max-width: 900px;
      line-height: 1.7;
    }
    .meta {
      color: #64748b;
      font-size: 0.95rem;
    }
    .context {
      color: #94a3b8;
    }
    article {
      border-left: 4px solid #6366f1;
      padding-left: 1rem;
    }
  </style>
</head>
<body>
  <header>
    <h1>{{.Title}}</h1>
    <p class="meta">{{.Pages}}{{if .Section}} &middot; {{.Section}}{{end}} &middot; {{.ChunkID}}</p>
  </header>
  {{if .PreContext}}<section class="context">{{.PreContext}}</section>{{end}}
  <article>{{.Content}}</article>
  {{if .PostContext}}<section class="context">{{.PostContext}}</section>{{end}}
</body>
</html>`))

// NewChunkHandler creates a new handler for serving chunks.
func NewChunkHandler(chunks storage.ChunkStore, docs storage.DocumentStore) *ChunkHandler {
	return &ChunkHandler{
		chunks:   chunks,
		docs:     docs,
		markdown: goldmark.New(goldmark.WithExtensions(extension.GFM, extension.Typographer)),
		template: chunkPage,
	}
}

// ServeHTTP serves GET /api/v1/chunks/{chunkID}. With ?format=html the chunk
// is rendered as a page; otherwise it is returned as JSON.
//
// swagger:route GET /api/v1/chunks/{chunkID} getChunk
func (h *ChunkHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	chunkID, err := url.PathUnescape(strings.TrimSpace(chi.URLParam(r, "chunkID")))
	if err != nil || chunkID == "" {
		writeError(w, http.StatusBadRequest, "Invalid chunk id")
		return
	}

	chunk, err := h.chunks.GetByID(ctx, chunkID)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Chunk not found")
		return
	}
	if err != nil {
		logger.ErrorContext(ctx, "failed to load chunk", "chunk_id", chunkID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to load chunk")
		return
	}

	title := chunk.DocID
	if doc, err := h.docs.GetByID(ctx, chunk.DocID); err == nil {
		title = doc.Title
	} else if !errors.Is(err, storage.ErrNotFound) {
		logger.WarnContext(ctx, "failed to load document for chunk", "doc_id", chunk.DocID, "error", err)
	}

	if r.URL.Query().Get("format") != "html" {
		writeJSON(ctx, w, http.StatusOK, ChunkResponse{
			ChunkID:     chunk.ID,
			DocID:       chunk.DocID,
			DocTitle:    title,
			LocalIdx:    chunk.LocalIdx,
			PageStart:   chunk.PageStart,
			PageEnd:     chunk.PageEnd,
			Section:     chunk.Section,
			PreContext:  chunk.PreContext,
			PostContext: chunk.PostContext,
			Text:        chunk.Text,
		})
		return
	}

	page := chunkPageData{
		Title:   title,
		ChunkID: chunk.ID,
		Pages:   pageLabel(chunk.PageStart, chunk.PageEnd),
		Section: chunk.Section,
	}
	for _, part := range []struct {
		src string
		dst *template.HTML
	}{
		{chunk.PreContext, &page.PreContext},
		{chunk.Text, &page.Content},
		{chunk.PostContext, &page.PostContext},
	} {
		rendered, err := h.renderMarkdown(part.src)
		if err != nil {
			logger.ErrorContext(ctx, "failed to render markdown", "chunk_id", chunkID, "error", err)
			http.Error(w, "failed to render chunk", http.StatusInternalServerError)
			return
		}
		*part.dst = rendered
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.template.Execute(w, page); err != nil {
		logger.ErrorContext(ctx, "failed to execute chunk template", "chunk_id", chunkID, "error", err)
	}
}

// renderMarkdown converts text to HTML. Raw HTML in the source is omitted.
func (h *ChunkHandler) renderMarkdown(text string) (template.HTML, error) {
	if text == "" {
		return "", nil
	}
	var buf bytes.Buffer
	if err := h.markdown.Convert([]byte(text), &buf); err != nil {
		return "", fmt.Errorf("convert markdown: %w", err)
	}
	return template.HTML(buf.String()), nil
}

func pageLabel(start, end int) string {
	if start == end {
		return fmt.Sprintf("page %d", start)
	}
	return fmt.Sprintf("pages %d-%d", start, end)
}
