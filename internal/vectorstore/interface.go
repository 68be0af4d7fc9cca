package vectorstore

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_vector_store.go -package=mocks ragbook/internal/vectorstore VectorStore

import "context"

// Point is a chunk embedding with its payload.
type Point struct {
	Vec     []float32
	Payload ChunkPayload
}

// SearchResult is a similarity hit. Score is the store's similarity (cosine).
type SearchResult struct {
	ChunkID string
	Score   float32
	Payload ChunkPayload
}

// Record is a stored point without its vector.
type Record struct {
	ChunkID string
	Payload ChunkPayload
}

// VectorStore defines the interface for vector storage operations.
type VectorStore interface {
	// EnsureCollection creates the collection if missing, or validates its vector size.
	EnsureCollection(ctx context.Context, collection string, vectorSize int) error

	// CollectionExists reports whether the collection exists.
	CollectionExists(ctx context.Context, collection string) (bool, error)

	// Upsert inserts or updates points in the collection, keyed by chunk id.
	Upsert(ctx context.Context, collection string, points []Point) error

	// Search returns the k most similar points to query.
	Search(ctx context.Context, collection string, query []float32, k int) ([]SearchResult, error)

	// ScrollAll returns every point in the collection.
	ScrollAll(ctx context.Context, collection string) ([]Record, error)

	// DeleteByDoc removes every point belonging to a document.
	DeleteByDoc(ctx context.Context, collection string, docID string) error
}
