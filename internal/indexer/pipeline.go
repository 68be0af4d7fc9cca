package indexer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"golang.org/x/sync/errgroup"

	"ragbook/internal/contextutil"
	"ragbook/internal/corpus"
	"ragbook/internal/storage"
	"ragbook/internal/vectorstore"
)

// DefaultWorkers is the number of documents ingested concurrently when unset.
const DefaultWorkers = 2

// Embedder turns chunk texts into vectors, one per input, in input order.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Options tunes chunking and concurrency. Zero values fall back to the defaults.
type Options struct {
	MaxChars     int
	OverlapChars int
	Workers      int
	VectorSize   int
}

// Pipeline ingests extracted documents into SQLite and Qdrant.
type Pipeline struct {
	docRepo     storage.DocumentStore
	chunkRepo   storage.ChunkStore
	embedder    Embedder
	vectorStore vectorstore.VectorStore
	collection  string
	opts        Options
}

// NewPipeline creates a new ingestion pipeline.
func NewPipeline(
	docRepo storage.DocumentStore,
	chunkRepo storage.ChunkStore,
	embedder Embedder,
	vectorStore vectorstore.VectorStore,
	collection string,
	opts Options,
) *Pipeline {
	if opts.MaxChars <= 0 {
		opts.MaxChars = DefaultMaxChars
	}
	if opts.OverlapChars < 0 {
		opts.OverlapChars = 0
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	return &Pipeline{
		docRepo:     docRepo,
		chunkRepo:   chunkRepo,
		embedder:    embedder,
		vectorStore: vectorStore,
		collection:  collection,
		opts:        opts,
	}
}

// Outcome is the result of ingesting one document.
type Outcome int

const (
	OutcomeFailed Outcome = iota
	OutcomeIndexed
	OutcomeSkipped
)

// IngestPath ingests a single file or every supported file below a directory.
// Failures of individual documents are logged and counted; the returned error
// reports how many documents failed.
func (p *Pipeline) IngestPath(ctx context.Context, path string) (*IngestStats, error) {
	logger := contextutil.LoggerFromContext(ctx)

	files, err := corpus.ScanDir(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", path, err)
	}

	if err := p.vectorStore.EnsureCollection(ctx, p.collection, p.opts.VectorSize); err != nil {
		return nil, fmt.Errorf("failed to ensure collection %s: %w", p.collection, err)
	}

	logger.InfoContext(ctx, "starting ingestion", "path", path, "total_files", len(files), "workers", p.opts.Workers)

	var (
		mu       sync.Mutex
		stats    = &IngestStats{DocumentsSeen: len(files)}
		chunkLen []int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Workers)

	for _, file := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			outcome, lengths, err := p.IngestFile(gctx, file.AbsPath)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				stats.DocumentsFailed++
				logger.ErrorContext(gctx, "failed to ingest document", "rel_path", file.RelPath, "error", err)
			case outcome == OutcomeSkipped:
				stats.DocumentsSkipped++
			default:
				stats.DocumentsIndexed++
				stats.ChunksIndexed += len(lengths)
				chunkLen = append(chunkLen, lengths...)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return stats, err
	}
	if err := ctx.Err(); err != nil {
		return stats, err
	}

	stats.ChunkSize = computeSizeStats(chunkLen)

	logger.InfoContext(ctx, "ingestion completed",
		"documents", stats.DocumentsSeen,
		"indexed", stats.DocumentsIndexed,
		"skipped", stats.DocumentsSkipped,
		"failed", stats.DocumentsFailed,
		"chunks", stats.ChunksIndexed,
	)

	if stats.DocumentsFailed > 0 {
		return stats, fmt.Errorf("ingestion completed with %d errors", stats.DocumentsFailed)
	}
	return stats, nil
}

// IngestFile ingests one document. It skips the document when its content hash
// is unchanged, otherwise replaces every chunk previously stored for it.
// The returned lengths are the character counts of the new chunks.
func (p *Pipeline) IngestFile(ctx context.Context, absPath string) (Outcome, []int, error) {
	logger := contextutil.LoggerFromContext(ctx)

	doc, err := corpus.Load(absPath)
	if err != nil {
		return OutcomeFailed, nil, err
	}

	sum := sha256.Sum256(doc.Content)
	hash := hex.EncodeToString(sum[:])
	docID := corpus.DocID(absPath)
	title := corpus.DocTitle(absPath)

	existing, err := p.docRepo.GetByID(ctx, docID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return OutcomeFailed, nil, fmt.Errorf("failed to check existing document: %w", err)
	}
	if existing != nil && existing.Hash == hash {
		logger.DebugContext(ctx, "skipping unchanged document", "doc_id", docID, "hash", hash)
		return OutcomeSkipped, nil, nil
	}

	if err := p.vectorStore.DeleteByDoc(ctx, p.collection, docID); err != nil {
		return OutcomeFailed, nil, fmt.Errorf("failed to delete old points: %w", err)
	}
	if existing != nil {
		if err := p.chunkRepo.DeleteByDoc(ctx, docID); err != nil {
			return OutcomeFailed, nil, fmt.Errorf("failed to delete old chunks: %w", err)
		}
	}

	chunks := ChunkPages(doc.Pages, p.opts.MaxChars, p.opts.OverlapChars, docID)
	for i := range chunks {
		chunks[i].DocTitle = title
	}

	if len(chunks) > 0 {
		texts := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Text
		}

		vectors, err := p.embedder.EmbedTexts(ctx, texts)
		if err != nil {
			return OutcomeFailed, nil, fmt.Errorf("failed to generate embeddings: %w", err)
		}
		if len(vectors) != len(chunks) {
			return OutcomeFailed, nil, fmt.Errorf("embedding count mismatch: expected %d, got %d", len(chunks), len(vectors))
		}

		points := make([]vectorstore.Point, len(chunks))
		for i, c := range chunks {
			points[i] = vectorstore.Point{Vec: vectors[i], Payload: chunkPayload(c, absPath)}
		}
		if err := p.vectorStore.Upsert(ctx, p.collection, points); err != nil {
			return OutcomeFailed, nil, fmt.Errorf("failed to upsert vectors: %w", err)
		}
	} else {
		logger.WarnContext(ctx, "no chunks generated", "doc_id", docID)
	}

	record := &storage.DocumentRecord{
		ID:         docID,
		Title:      title,
		SourcePath: absPath,
		Hash:       hash,
		PageCount:  len(doc.Pages),
		ChunkCount: len(chunks),
	}
	if err := p.docRepo.Upsert(ctx, record); err != nil {
		return OutcomeFailed, nil, fmt.Errorf("failed to upsert document: %w", err)
	}

	rows := make([]storage.ChunkRecord, len(chunks))
	lengths := make([]int, len(chunks))
	for i, c := range chunks {
		rows[i] = storage.ChunkRecord{
			ID:          c.ChunkID,
			DocID:       c.DocID,
			LocalIdx:    c.LocalIdx,
			PageStart:   c.PageStart,
			PageEnd:     c.PageEnd,
			Section:     c.Section,
			PreContext:  c.PreContext,
			PostContext: c.PostContext,
			Text:        c.Text,
		}
		lengths[i] = runeLen(c.Text)
	}
	if err := p.chunkRepo.InsertBatch(ctx, rows); err != nil {
		// Drop the document row so the unchanged hash does not skip the retry.
		if delErr := p.docRepo.Delete(ctx, docID); delErr != nil {
			logger.WarnContext(ctx, "failed to roll back document", "doc_id", docID, "error", delErr)
		}
		return OutcomeFailed, nil, fmt.Errorf("failed to insert chunks: %w", err)
	}

	logger.InfoContext(ctx, "ingested document", "doc_id", docID, "pages", len(doc.Pages), "chunks", len(chunks))
	return OutcomeIndexed, lengths, nil
}

// chunkPayload builds the vector store payload for a chunk of the file at absPath.
func chunkPayload(c Chunk, absPath string) vectorstore.ChunkPayload {
	link := url.URL{Scheme: "file", Path: absPath, Fragment: fmt.Sprintf("page=%d", c.PageStart)}
	return vectorstore.ChunkPayload{
		ChunkID:     c.ChunkID,
		DocID:       c.DocID,
		DocTitle:    c.DocTitle,
		SourcePath:  absPath,
		FileLink:    link.String(),
		Page:        c.PageStart,
		PageStart:   c.PageStart,
		PageEnd:     c.PageEnd,
		Section:     c.Section,
		PreContext:  c.PreContext,
		PostContext: c.PostContext,
		Text:        c.Text,
		LocalIdx:    c.LocalIdx,
	}
}
