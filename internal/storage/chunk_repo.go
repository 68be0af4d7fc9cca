package storage

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_chunk_store.go -package=mocks ragbook/internal/storage ChunkStore

import (
	"context"
	"database/sql"
	"fmt"

	"ragbook/internal/lexical"
)

// ChunkStore defines the interface for chunk storage operations.
type ChunkStore interface {
	// InsertBatch inserts chunks in a single transaction.
	InsertBatch(ctx context.Context, chunks []ChunkRecord) error
	// DeleteByDoc deletes all chunks for a given doc_id.
	DeleteByDoc(ctx context.Context, docID string) error
	// ListIDsByDoc returns all chunk ids for a document, ordered by local_idx.
	ListIDsByDoc(ctx context.Context, docID string) ([]string, error)
	// GetByID gets a chunk by its id. Returns ErrNotFound if not found.
	GetByID(ctx context.Context, id string) (*ChunkRecord, error)
	// ChunkTexts returns (chunk_id, text) for every stored chunk in ingestion order.
	ChunkTexts(ctx context.Context) ([]lexical.ChunkText, error)
}

// ChunkRepo provides methods for chunk operations.
// It implements the ChunkStore interface and lexical.ChunkSource.
type ChunkRepo struct {
	db *sql.DB
}

var _ lexical.ChunkSource = (*ChunkRepo)(nil)

// NewChunkRepo creates a new ChunkRepo.
func NewChunkRepo(db *sql.DB) *ChunkRepo {
	return &ChunkRepo{db: db}
}

// InsertBatch inserts chunks in a single transaction. The owning document must exist.
func (r *ChunkRepo) InsertBatch(ctx context.Context, chunks []ChunkRecord) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks (id, doc_id, local_idx, page_start, page_end, section, pre_context, post_context, text)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare chunk insert: %w", err)
	}
	defer func() {
		_ = stmt.Close()
	}()

	for _, c := range chunks {
		if _, err := stmt.ExecContext(ctx,
			c.ID, c.DocID, c.LocalIdx, c.PageStart, c.PageEnd, c.Section, c.PreContext, c.PostContext, c.Text,
		); err != nil {
			return fmt.Errorf("failed to insert chunk %s: %w", c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit chunks: %w", err)
	}
	return nil
}

// DeleteByDoc deletes all chunks for a given doc_id.
// Used when re-ingesting a document to remove old chunks before inserting new ones.
func (r *ChunkRepo) DeleteByDoc(ctx context.Context, docID string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM chunks WHERE doc_id = ?", docID)
	if err != nil {
		return fmt.Errorf("failed to delete chunks by document: %w", err)
	}
	return nil
}

// ListIDsByDoc returns all chunk ids for a document, ordered by local_idx.
// Returns an empty slice if no chunks exist (not an error).
func (r *ChunkRepo) ListIDsByDoc(ctx context.Context, docID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id FROM chunks WHERE doc_id = ? ORDER BY local_idx",
		docID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunk IDs: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan chunk ID: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return ids, nil
}

// GetByID gets a chunk by its id. Returns ErrNotFound if not found.
func (r *ChunkRepo) GetByID(ctx context.Context, id string) (*ChunkRecord, error) {
	var c ChunkRecord
	err := r.db.QueryRowContext(ctx,
		`SELECT id, doc_id, local_idx, page_start, page_end, section, pre_context, post_context, text
		 FROM chunks WHERE id = ?`,
		id,
	).Scan(&c.ID, &c.DocID, &c.LocalIdx, &c.PageStart, &c.PageEnd, &c.Section, &c.PreContext, &c.PostContext, &c.Text)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query chunk: %w", err)
	}

	return &c, nil
}

// ChunkTexts returns (chunk_id, text) for every stored chunk, ordered by document and local_idx.
func (r *ChunkRepo) ChunkTexts(ctx context.Context) ([]lexical.ChunkText, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT id, text FROM chunks ORDER BY doc_id, local_idx")
	if err != nil {
		return nil, fmt.Errorf("failed to query chunk texts: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []lexical.ChunkText
	for rows.Next() {
		var ct lexical.ChunkText
		if err := rows.Scan(&ct.ID, &ct.Text); err != nil {
			return nil, fmt.Errorf("failed to scan chunk text: %w", err)
		}
		out = append(out, ct)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return out, nil
}

// TextLengths returns the character length of every stored chunk text.
func (r *ChunkRepo) TextLengths(ctx context.Context) ([]int, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT length(text) FROM chunks")
	if err != nil {
		return nil, fmt.Errorf("failed to query chunk lengths: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var lengths []int
	for rows.Next() {
		var n int
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("failed to scan chunk length: %w", err)
		}
		lengths = append(lengths, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return lengths, nil
}
