package handlers

import (
	"context"
	"path/filepath"
	"testing"

	"ragbook/internal/storage"
)

// newTestStore opens a migrated SQLite database seeded with one document of two chunks.
func newTestStore(t *testing.T) (*storage.DocumentRepo, *storage.ChunkRepo) {
	t.Helper()
	ctx := context.Background()

	db, err := storage.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("storage.New() error = %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	if err := storage.Migrate(db); err != nil {
		t.Fatalf("storage.Migrate() error = %v", err)
	}

	docs := storage.NewDocumentRepo(db)
	chunks := storage.NewChunkRepo(db)

	if err := docs.Upsert(ctx, &storage.DocumentRecord{
		ID:         "statics-0123456789ab",
		Title:      "Statics",
		SourcePath: "/books/Statics.pdf",
		Hash:       "abc",
		PageCount:  2,
		ChunkCount: 2,
	}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if err := chunks.InsertBatch(ctx, []storage.ChunkRecord{
		{
			ID: "statics-0123456789ab::p1::c1", DocID: "statics-0123456789ab", LocalIdx: 1,
			PageStart: 1, PageEnd: 1, Section: "Forces",
			PostContext: "Moments follow.", Text: "A **force** has magnitude and direction.",
		},
		{
			ID: "statics-0123456789ab::p2::c2", DocID: "statics-0123456789ab", LocalIdx: 2,
			PageStart: 2, PageEnd: 2, PreContext: "A force has magnitude.",
			Text: "Torque <script>alert(1)</script> is force times lever arm.",
		},
	}); err != nil {
		t.Fatalf("InsertBatch() error = %v", err)
	}
	return docs, chunks
}
