package storage

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_document_store.go -package=mocks ragbook/internal/storage DocumentStore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when a record is not found.
	ErrNotFound = errors.New("record not found")
)

// DocumentStore defines the interface for document storage operations.
type DocumentStore interface {
	// GetByID gets a document by its doc_id. Returns nil and ErrNotFound if not found.
	GetByID(ctx context.Context, id string) (*DocumentRecord, error)
	// Upsert inserts a new document or updates an existing one.
	Upsert(ctx context.Context, doc *DocumentRecord) error
	// List returns all documents ordered by title.
	List(ctx context.Context) ([]DocumentRecord, error)
	// Delete removes a document and, through the foreign key, its chunks.
	Delete(ctx context.Context, id string) error
}

// DocumentRepo provides methods for document operations.
// It implements the DocumentStore interface.
type DocumentRepo struct {
	db *sql.DB
}

// NewDocumentRepo creates a new DocumentRepo.
func NewDocumentRepo(db *sql.DB) *DocumentRepo {
	return &DocumentRepo{db: db}
}

const documentColumns = "id, title, source_path, hash, page_count, chunk_count, updated_at"

// GetByID gets a document by its doc_id. Returns nil and ErrNotFound if not found.
func (r *DocumentRepo) GetByID(ctx context.Context, id string) (*DocumentRecord, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+documentColumns+" FROM documents WHERE id = ?", id)
	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query document: %w", err)
	}
	return doc, nil
}

// Upsert inserts a new document or updates title, hash and counts of an existing one.
func (r *DocumentRepo) Upsert(ctx context.Context, doc *DocumentRecord) error {
	if doc.ID == "" {
		return fmt.Errorf("document id is required")
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO documents (id, title, source_path, hash, page_count, chunk_count, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT (id) DO UPDATE SET
		 title = excluded.title, source_path = excluded.source_path, hash = excluded.hash,
		 page_count = excluded.page_count, chunk_count = excluded.chunk_count,
		 updated_at = CURRENT_TIMESTAMP`,
		doc.ID, doc.Title, doc.SourcePath, doc.Hash, doc.PageCount, doc.ChunkCount,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert document: %w", err)
	}
	return nil
}

// List returns all documents ordered by title.
func (r *DocumentRepo) List(ctx context.Context) ([]DocumentRecord, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+documentColumns+" FROM documents ORDER BY title, id")
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	docs := []DocumentRecord{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return docs, nil
}

// Delete removes a document. Deleting a missing document is not an error.
func (r *DocumentRepo) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*DocumentRecord, error) {
	var doc DocumentRecord
	var updatedAtStr string
	if err := row.Scan(&doc.ID, &doc.Title, &doc.SourcePath, &doc.Hash, &doc.PageCount, &doc.ChunkCount, &updatedAtStr); err != nil {
		return nil, err
	}

	updatedAt, err := parseTimestamp(updatedAtStr)
	if err != nil {
		return nil, err
	}
	doc.UpdatedAt = updatedAt
	return &doc, nil
}

// parseTimestamp accepts the formats SQLite and the driver produce for DATETIME columns.
func parseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse updated_at timestamp: %w", err)
	}
	return t, nil
}
