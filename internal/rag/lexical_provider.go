package rag

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"ragbook/internal/contextutil"
	"ragbook/internal/lexical"
)

// LexicalProvider owns the process-wide lexical index. The first question
// loads the persisted index, or builds one from the chunk source; until that
// succeeds questions run vector-only and the bootstrap is retried. Published
// indexes are read-only and replaced atomically by Rebuild.
type LexicalProvider struct {
	path     string
	source   lexical.ChunkSource
	language string

	current atomic.Pointer[lexical.Index]
	mu      sync.Mutex
}

// NewLexicalProvider creates a provider. path may be empty to disable persistence;
// source may be nil to disable building from the store.
func NewLexicalProvider(path string, source lexical.ChunkSource, language string) *LexicalProvider {
	return &LexicalProvider{path: path, source: source, language: language}
}

// NewStaticLexicalProvider serves a fixed index.
func NewStaticLexicalProvider(idx *lexical.Index) *LexicalProvider {
	p := &LexicalProvider{}
	if idx != nil {
		p.current.Store(idx)
		p.language = idx.Language()
	}
	return p
}

// Index returns the current index, bootstrapping it on first use. On failure it
// returns a nil index with StageDegraded and the cause.
func (p *LexicalProvider) Index(ctx context.Context) (*lexical.Index, StageStatus, error) {
	if idx := p.current.Load(); idx != nil {
		return idx, StageApplied, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if idx := p.current.Load(); idx != nil {
		return idx, StageApplied, nil
	}

	logger := contextutil.LoggerFromContext(ctx)

	if p.path != "" {
		idx, err := lexical.Load(p.path)
		switch {
		case err == nil:
			logger.InfoContext(ctx, "loaded lexical index", "path", p.path, "documents", idx.Len())
			p.current.Store(idx)
			return idx, StageApplied, nil
		case !errors.Is(err, lexical.ErrIndexNotFound):
			logger.WarnContext(ctx, "failed to load lexical index, building from store", "stage", "lexical", "path", p.path, "error", err)
		}
	}

	if p.source == nil {
		return nil, StageDegraded, errors.New("no persisted lexical index and no chunk source")
	}

	idx, err := lexical.BuildFromSource(ctx, p.source, p.language)
	if err != nil {
		logger.WarnContext(ctx, "lexical index unavailable, continuing vector-only", "stage", "lexical", "error", err)
		return nil, StageDegraded, fmt.Errorf("failed to build lexical index: %w", err)
	}

	logger.InfoContext(ctx, "built lexical index from store", "documents", idx.Len())
	p.current.Store(idx)
	return idx, StageApplied, nil
}

// Rebuild builds a fresh index from src (the provider's source when nil),
// persists it when a path is configured, and publishes it.
func (p *LexicalProvider) Rebuild(ctx context.Context, src lexical.ChunkSource) (*lexical.Index, error) {
	if src == nil {
		src = p.source
	}
	if src == nil {
		return nil, errors.New("no chunk source to rebuild from")
	}

	idx, err := lexical.BuildFromSource(ctx, src, p.language)
	if err != nil {
		return nil, fmt.Errorf("failed to build lexical index: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.path != "" {
		if err := idx.Save(p.path); err != nil {
			return nil, fmt.Errorf("failed to persist lexical index: %w", err)
		}
	}
	p.current.Store(idx)

	contextutil.LoggerFromContext(ctx).InfoContext(ctx, "rebuilt lexical index", "documents", idx.Len(), "path", p.path)
	return idx, nil
}

// Path returns the persistence path, empty when persistence is disabled.
func (p *LexicalProvider) Path() string { return p.path }
