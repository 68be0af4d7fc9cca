package indexer

import (
	"context"
	"fmt"
	"math"
	"sort"

	"ragbook/internal/storage"
)

// IngestStats summarizes one ingestion run.
type IngestStats struct {
	// DocumentsSeen is the number of supported files found under the path.
	DocumentsSeen int `json:"documents_seen"`
	// DocumentsIndexed is the number of documents (re)chunked and stored.
	DocumentsIndexed int `json:"documents_indexed"`
	// DocumentsSkipped is the number of documents whose content hash was unchanged.
	DocumentsSkipped int `json:"documents_skipped"`
	// DocumentsFailed is the number of documents that could not be ingested.
	DocumentsFailed int `json:"documents_failed"`
	// ChunksIndexed is the number of chunks written in this run.
	ChunksIndexed int `json:"chunks_indexed"`
	// ChunkSize describes the character lengths of the chunks written in this run.
	ChunkSize ChunkSizeStats `json:"chunk_size"`
}

// ChunkSizeStats contains statistics about chunk lengths in characters.
type ChunkSizeStats struct {
	Min  int     `json:"min"`
	Max  int     `json:"max"`
	Mean float64 `json:"mean"`
	P95  int     `json:"p95"`
}

// CorpusStats describes what is currently stored.
type CorpusStats struct {
	Documents int            `json:"documents"`
	Chunks    int            `json:"chunks"`
	ChunkSize ChunkSizeStats `json:"chunk_size"`
}

// ChunkLengthSource reports the character length of every stored chunk.
type ChunkLengthSource interface {
	TextLengths(ctx context.Context) ([]int, error)
}

var _ ChunkLengthSource = (*storage.ChunkRepo)(nil)

// ComputeCorpusStats computes corpus statistics from the metadata database.
func ComputeCorpusStats(ctx context.Context, docs storage.DocumentStore, chunks ChunkLengthSource) (*CorpusStats, error) {
	records, err := docs.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}

	lengths, err := chunks.TextLengths(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get chunk lengths: %w", err)
	}

	return &CorpusStats{
		Documents: len(records),
		Chunks:    len(lengths),
		ChunkSize: computeSizeStats(lengths),
	}, nil
}

// computeSizeStats computes min, max, mean, and p95 from chunk lengths.
func computeSizeStats(lengths []int) ChunkSizeStats {
	if len(lengths) == 0 {
		return ChunkSizeStats{}
	}

	// Sort for percentile calculation
	sorted := make([]int, len(lengths))
	copy(sorted, lengths)
	sort.Ints(sorted)

	sum := 0
	for _, n := range lengths {
		sum += n
	}
	mean := float64(sum) / float64(len(lengths))

	p95Index := int(math.Ceil(float64(len(sorted)) * 0.95))
	if p95Index >= len(sorted) {
		p95Index = len(sorted) - 1
	}

	return ChunkSizeStats{
		Min:  sorted[0],
		Max:  sorted[len(sorted)-1],
		Mean: math.Round(mean*100) / 100, // Round to 2 decimal places
		P95:  sorted[p95Index],
	}
}
