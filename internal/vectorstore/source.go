package vectorstore

import (
	"context"
	"fmt"

	"ragbook/internal/lexical"
	"ragbook/internal/service"
)

// ChunkSource exposes a collection's chunk texts for building the lexical index.
type ChunkSource struct {
	Store      VectorStore
	Collection string
}

var _ lexical.ChunkSource = ChunkSource{}

// ChunkTexts scrolls the collection and returns (chunk_id, text) pairs in scroll order.
func (s ChunkSource) ChunkTexts(ctx context.Context) ([]lexical.ChunkText, error) {
	records, err := s.Store.ScrollAll(ctx, s.Collection)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to scroll %s: %w", service.ErrVectorStore, s.Collection, err)
	}

	out := make([]lexical.ChunkText, 0, len(records))
	for _, r := range records {
		out = append(out, lexical.ChunkText{ID: r.Payload.ChunkID, Text: r.Payload.Text})
	}
	return out, nil
}
