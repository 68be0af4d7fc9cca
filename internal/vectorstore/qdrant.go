package vectorstore

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/qdrant/go-client/qdrant"

	"ragbook/internal/contextutil"
)

const (
	defaultGRPCPort = 6334
	scrollPageSize  = 256
)

// indexedPayloadFields get keyword payload indexes so filtering by document is cheap.
var indexedPayloadFields = []string{"doc_id", "doc_title"}

// QdrantStore implements VectorStore using Qdrant.
type QdrantStore struct {
	client *qdrant.Client
}

var _ VectorStore = (*QdrantStore)(nil)

// NewQdrantStore creates a new Qdrant vector store client.
// urlStr should be in the format "http://host:port" (e.g., "http://localhost:6333").
// The gRPC port is derived as HTTP port + 1.
func NewQdrantStore(urlStr string) (*QdrantStore, error) {
	host, port, err := grpcEndpoint(urlStr)
	if err != nil {
		return nil, err
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Qdrant client: %w", err)
	}

	return &QdrantStore{
		client: client,
	}, nil
}

// grpcEndpoint resolves the gRPC host and port from the Qdrant HTTP URL.
func grpcEndpoint(urlStr string) (string, int, error) {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid Qdrant URL: %w", err)
	}

	host := parsedURL.Hostname()
	if host == "" {
		host = "localhost"
	}

	port := defaultGRPCPort
	if parsedURL.Port() != "" {
		httpPort, err := strconv.Atoi(parsedURL.Port())
		if err != nil {
			return "", 0, fmt.Errorf("invalid Qdrant port %q: %w", parsedURL.Port(), err)
		}
		port = httpPort + 1
	}
	return host, port, nil
}

// Close releases the underlying gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

// Upsert inserts or updates points in the collection.
func (s *QdrantStore) Upsert(ctx context.Context, collection string, points []Point) error {
	logger := contextutil.LoggerFromContext(ctx)

	if len(points) == 0 {
		return nil
	}

	qdrantPoints := make([]*qdrant.PointStruct, 0, len(points))
	for _, point := range points {
		if point.Payload.ChunkID == "" {
			return fmt.Errorf("point payload is missing chunk_id")
		}
		payload, err := qdrant.TryValueMap(point.Payload.ToMap())
		if err != nil {
			return fmt.Errorf("invalid payload for chunk %s: %w", point.Payload.ChunkID, err)
		}
		qdrantPoints = append(qdrantPoints, &qdrant.PointStruct{
			Id:      qdrant.NewID(PointID(point.Payload.ChunkID)),
			Vectors: qdrant.NewVectors(point.Vec...),
			Payload: payload,
		})
	}

	wait := true
	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Wait:           &wait,
		Points:         qdrantPoints,
	})
	if err != nil {
		logger.ErrorContext(ctx, "failed to upsert points", "collection", collection, "count", len(points), "error", err)
		return fmt.Errorf("failed to upsert points: %w", err)
	}

	logger.DebugContext(ctx, "upserted points", "collection", collection, "count", len(points))
	return nil
}

// Search performs a similarity search.
func (s *QdrantStore) Search(ctx context.Context, collection string, query []float32, k int) ([]SearchResult, error) {
	logger := contextutil.LoggerFromContext(ctx)

	if k <= 0 {
		return nil, fmt.Errorf("k must be greater than 0")
	}

	limit := uint64(k)
	scoredPoints, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(query...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		logger.ErrorContext(ctx, "failed to search points", "collection", collection, "k", k, "error", err)
		return nil, fmt.Errorf("failed to search points: %w", err)
	}

	results := make([]SearchResult, 0, len(scoredPoints))
	for _, sp := range scoredPoints {
		payload := PayloadFromMap(convertPayloadToMap(sp.Payload))
		results = append(results, SearchResult{
			ChunkID: chunkIDOf(sp.Id, payload),
			Score:   sp.Score,
			Payload: payload,
		})
	}

	logger.DebugContext(ctx, "search completed", "collection", collection, "k", k, "results", len(results))
	return results, nil
}

// ScrollAll pages through the whole collection.
func (s *QdrantStore) ScrollAll(ctx context.Context, collection string) ([]Record, error) {
	logger := contextutil.LoggerFromContext(ctx)

	points, err := scrollPages(ctx, scrollPageSize, func(ctx context.Context, offset *qdrant.PointId, limit uint32) ([]*qdrant.RetrievedPoint, error) {
		return s.client.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: collection,
			Offset:         offset,
			Limit:          &limit,
			WithPayload:    qdrant.NewWithPayload(true),
		})
	})
	if err != nil {
		logger.ErrorContext(ctx, "failed to scroll points", "collection", collection, "error", err)
		return nil, fmt.Errorf("failed to scroll points: %w", err)
	}

	records := make([]Record, 0, len(points))
	for _, p := range points {
		payload := PayloadFromMap(convertPayloadToMap(p.Payload))
		records = append(records, Record{
			ChunkID: chunkIDOf(p.Id, payload),
			Payload: payload,
		})
	}

	logger.InfoContext(ctx, "scrolled collection", "collection", collection, "points", len(records))
	return records, nil
}

type scrollFunc func(ctx context.Context, offset *qdrant.PointId, limit uint32) ([]*qdrant.RetrievedPoint, error)

// scrollPages fetches one extra point per page; that point is the inclusive offset of the next page.
func scrollPages(ctx context.Context, pageSize int, fetch scrollFunc) ([]*qdrant.RetrievedPoint, error) {
	var all []*qdrant.RetrievedPoint
	var offset *qdrant.PointId
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err := fetch(ctx, offset, uint32(pageSize+1))
		if err != nil {
			return nil, err
		}
		if len(page) <= pageSize {
			return append(all, page...), nil
		}
		all = append(all, page[:pageSize]...)
		offset = page[pageSize].Id
	}
}

// DeleteByDoc removes every point whose payload doc_id matches.
func (s *QdrantStore) DeleteByDoc(ctx context.Context, collection string, docID string) error {
	logger := contextutil.LoggerFromContext(ctx)

	if docID == "" {
		return fmt.Errorf("doc id is required")
	}

	wait := true
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Wait:           &wait,
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch("doc_id", docID)},
		}),
	})
	if err != nil {
		logger.ErrorContext(ctx, "failed to delete points", "collection", collection, "doc_id", docID, "error", err)
		return fmt.Errorf("failed to delete points: %w", err)
	}

	logger.DebugContext(ctx, "deleted document points", "collection", collection, "doc_id", docID)
	return nil
}

// CollectionExists checks if a collection exists.
func (s *QdrantStore) CollectionExists(ctx context.Context, collection string) (bool, error) {
	exists, err := s.client.CollectionExists(ctx, collection)
	if err != nil {
		return false, fmt.Errorf("failed to check collection existence: %w", err)
	}
	return exists, nil
}

// EnsureCollection ensures a collection exists with the specified vector size.
// If the collection exists, validates that the vector size matches.
// If it doesn't exist, creates it with cosine distance and keyword indexes on doc_id and doc_title.
func (s *QdrantStore) EnsureCollection(ctx context.Context, collection string, vectorSize int) error {
	logger := contextutil.LoggerFromContext(ctx)

	exists, err := s.CollectionExists(ctx, collection)
	if err != nil {
		return err
	}

	if !exists {
		logger.InfoContext(ctx, "creating collection", "collection", collection, "vector_size", vectorSize)
		err := s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(vectorSize),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return fmt.Errorf("failed to create collection: %w", err)
		}

		for _, field := range indexedPayloadFields {
			_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
				CollectionName: collection,
				FieldName:      field,
				FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
			})
			if err != nil {
				return fmt.Errorf("failed to create payload index on %s: %w", field, err)
			}
		}
		logger.InfoContext(ctx, "collection created", "collection", collection, "vector_size", vectorSize)
		return nil
	}

	info, err := s.GetCollectionInfo(ctx, collection)
	if err != nil {
		return err
	}
	if info.VectorSize == 0 {
		return fmt.Errorf("could not determine collection vector size")
	}
	if info.VectorSize != vectorSize {
		return fmt.Errorf("collection vector size mismatch: expected %d, got %d", vectorSize, info.VectorSize)
	}

	logger.DebugContext(ctx, "collection validated", "collection", collection, "vector_size", vectorSize)
	return nil
}

// GetCollectionInfo returns information about a collection including point count.
func (s *QdrantStore) GetCollectionInfo(ctx context.Context, collection string) (*CollectionInfo, error) {
	info, err := s.client.GetCollectionInfo(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("failed to get collection info: %w", err)
	}

	var vectorSize int
	if config := info.Config; config != nil && config.Params != nil {
		if vectorsConfig := config.Params.GetVectorsConfig(); vectorsConfig != nil {
			if params := vectorsConfig.GetParams(); params != nil {
				vectorSize = int(params.Size)
			}
		}
	}

	var pointsCount int
	if info.PointsCount != nil {
		pointsCount = int(*info.PointsCount)
	}

	status := "unknown"
	if info.Status != 0 {
		status = info.Status.String()
	}

	return &CollectionInfo{
		VectorSize:  vectorSize,
		PointsCount: pointsCount,
		Status:      status,
	}, nil
}

// CollectionInfo contains information about a Qdrant collection.
type CollectionInfo struct {
	VectorSize  int
	PointsCount int
	Status      string
}

// chunkIDOf prefers the chunk id stored in the payload and falls back to the point UUID.
func chunkIDOf(id *qdrant.PointId, payload ChunkPayload) string {
	if payload.ChunkID != "" {
		return payload.ChunkID
	}
	if id == nil {
		return ""
	}
	if u := id.GetUuid(); u != "" {
		return u
	}
	return strconv.FormatUint(id.GetNum(), 10)
}

// convertPayloadToMap converts Qdrant payload to map[string]any.
func convertPayloadToMap(payload map[string]*qdrant.Value) map[string]any {
	result := make(map[string]any, len(payload))
	for k, v := range payload {
		if v == nil {
			continue
		}
		result[k] = convertValue(v)
	}
	return result
}

// convertValue converts a Qdrant Value to Go any type.
func convertValue(v *qdrant.Value) any {
	switch val := v.Kind.(type) {
	case *qdrant.Value_BoolValue:
		return val.BoolValue
	case *qdrant.Value_IntegerValue:
		return val.IntegerValue
	case *qdrant.Value_DoubleValue:
		return val.DoubleValue
	case *qdrant.Value_StringValue:
		return val.StringValue
	case *qdrant.Value_ListValue:
		list := make([]any, len(val.ListValue.Values))
		for i, item := range val.ListValue.Values {
			list[i] = convertValue(item)
		}
		return list
	case *qdrant.Value_StructValue:
		return convertPayloadToMap(val.StructValue.Fields)
	default:
		return nil
	}
}
