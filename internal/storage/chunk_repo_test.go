package storage

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})

	if err := Migrate(db); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return db
}

func seedDocument(t *testing.T, db *sql.DB, id string) {
	t.Helper()
	doc := &DocumentRecord{ID: id, Title: id, SourcePath: "/books/" + id + ".txt", Hash: "hash"}
	if err := NewDocumentRepo(db).Upsert(context.Background(), doc); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
}

func TestNewChunkRepo(t *testing.T) {
	repo := NewChunkRepo(newTestDB(t))
	if repo == nil {
		t.Fatal("NewChunkRepo() returned nil")
	}
}

func TestChunkRepo_InsertBatch(t *testing.T) {
	db := newTestDB(t)
	seedDocument(t, db, "doc")
	repo := NewChunkRepo(db)

	tests := []struct {
		name    string
		chunks  []ChunkRecord
		wantErr bool
	}{
		{
			name: "valid chunks",
			chunks: []ChunkRecord{
				{ID: "doc::p1::c1", DocID: "doc", LocalIdx: 1, PageStart: 1, PageEnd: 1, Section: "Intro", Text: "Chunk text"},
				{ID: "doc::p2::c2", DocID: "doc", LocalIdx: 2, PageStart: 2, PageEnd: 2, Text: "More text"},
			},
			wantErr: false,
		},
		{
			name:    "empty batch",
			chunks:  nil,
			wantErr: false,
		},
		{
			name: "unknown document violates foreign key",
			chunks: []ChunkRecord{
				{ID: "ghost::p1::c1", DocID: "ghost", LocalIdx: 1, PageStart: 1, PageEnd: 1, Text: "x"},
			},
			wantErr: true,
		},
		{
			name: "duplicate id rolls back the batch",
			chunks: []ChunkRecord{
				{ID: "dup", DocID: "doc", LocalIdx: 1, PageStart: 1, PageEnd: 1, Text: "a"},
				{ID: "dup", DocID: "doc", LocalIdx: 2, PageStart: 1, PageEnd: 1, Text: "b"},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _ = db.Exec("DELETE FROM chunks")

			err := repo.InsertBatch(context.Background(), tt.chunks)

			if tt.wantErr {
				if err == nil {
					t.Errorf("InsertBatch() expected error, got nil")
				}
				var count int
				_ = db.QueryRow("SELECT COUNT(*) FROM chunks").Scan(&count)
				if count != 0 {
					t.Errorf("InsertBatch() left %d rows after failure", count)
				}
				return
			}

			if err != nil {
				t.Errorf("InsertBatch() unexpected error: %v", err)
			}
		})
	}
}

func TestChunkRepo_GetByID(t *testing.T) {
	db := newTestDB(t)
	seedDocument(t, db, "doc")
	repo := NewChunkRepo(db)

	want := ChunkRecord{
		ID: "doc::p3::c1", DocID: "doc", LocalIdx: 1, PageStart: 3, PageEnd: 3,
		Section: "Forces", PreContext: "before", PostContext: "after", Text: "Newton's laws",
	}
	if err := repo.InsertBatch(context.Background(), []ChunkRecord{want}); err != nil {
		t.Fatalf("InsertBatch() error = %v", err)
	}

	got, err := repo.GetByID(context.Background(), want.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if *got != want {
		t.Errorf("GetByID() = %+v, want %+v", *got, want)
	}

	if _, err := repo.GetByID(context.Background(), "missing"); err != ErrNotFound {
		t.Errorf("GetByID() missing error = %v, want ErrNotFound", err)
	}
}

func TestChunkRepo_DeleteByDoc(t *testing.T) {
	db := newTestDB(t)
	seedDocument(t, db, "doc")
	seedDocument(t, db, "other")
	repo := NewChunkRepo(db)

	chunks := []ChunkRecord{
		{ID: "doc::p1::c1", DocID: "doc", LocalIdx: 1, PageStart: 1, PageEnd: 1, Text: "Text 1"},
		{ID: "doc::p1::c2", DocID: "doc", LocalIdx: 2, PageStart: 1, PageEnd: 1, Text: "Text 2"},
		{ID: "other::p1::c1", DocID: "other", LocalIdx: 1, PageStart: 1, PageEnd: 1, Text: "Text 3"},
	}
	if err := repo.InsertBatch(context.Background(), chunks); err != nil {
		t.Fatalf("InsertBatch() error = %v", err)
	}

	if err := repo.DeleteByDoc(context.Background(), "doc"); err != nil {
		t.Fatalf("DeleteByDoc() error = %v", err)
	}

	ids, err := repo.ListIDsByDoc(context.Background(), "doc")
	if err != nil {
		t.Fatalf("ListIDsByDoc() error = %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("DeleteByDoc() should delete all chunks, got %d remaining", len(ids))
	}

	ids, err = repo.ListIDsByDoc(context.Background(), "other")
	if err != nil {
		t.Fatalf("ListIDsByDoc() error = %v", err)
	}
	if len(ids) != 1 {
		t.Errorf("DeleteByDoc() should keep other documents' chunks, got %d", len(ids))
	}

	if err := repo.DeleteByDoc(context.Background(), "non-existent-id"); err != nil {
		t.Errorf("DeleteByDoc() with non-existent document should not error, got: %v", err)
	}
}

func TestChunkRepo_ListIDsByDoc_OrderedByIndex(t *testing.T) {
	db := newTestDB(t)
	seedDocument(t, db, "doc")
	repo := NewChunkRepo(db)

	chunks := []ChunkRecord{
		{ID: "doc::p2::c3", DocID: "doc", LocalIdx: 3, PageStart: 2, PageEnd: 2, Text: "Text 3"},
		{ID: "doc::p1::c1", DocID: "doc", LocalIdx: 1, PageStart: 1, PageEnd: 1, Text: "Text 1"},
		{ID: "doc::p1::c2", DocID: "doc", LocalIdx: 2, PageStart: 1, PageEnd: 1, Text: "Text 2"},
	}
	if err := repo.InsertBatch(context.Background(), chunks); err != nil {
		t.Fatalf("InsertBatch() error = %v", err)
	}

	ids, err := repo.ListIDsByDoc(context.Background(), "doc")
	if err != nil {
		t.Fatalf("ListIDsByDoc() error = %v", err)
	}

	expected := []string{"doc::p1::c1", "doc::p1::c2", "doc::p2::c3"}
	if len(ids) != len(expected) {
		t.Fatalf("ListIDsByDoc() returned %d IDs, want %d", len(ids), len(expected))
	}
	for i, id := range ids {
		if id != expected[i] {
			t.Errorf("ListIDsByDoc() ID[%d] = %v, want %v", i, id, expected[i])
		}
	}
}

func TestChunkRepo_ChunkTexts(t *testing.T) {
	db := newTestDB(t)
	seedDocument(t, db, "a")
	seedDocument(t, db, "b")
	repo := NewChunkRepo(db)

	chunks := []ChunkRecord{
		{ID: "b::p1::c1", DocID: "b", LocalIdx: 1, PageStart: 1, PageEnd: 1, Text: "bee"},
		{ID: "a::p1::c2", DocID: "a", LocalIdx: 2, PageStart: 1, PageEnd: 1, Text: "second"},
		{ID: "a::p1::c1", DocID: "a", LocalIdx: 1, PageStart: 1, PageEnd: 1, Text: "first"},
	}
	if err := repo.InsertBatch(context.Background(), chunks); err != nil {
		t.Fatalf("InsertBatch() error = %v", err)
	}

	texts, err := repo.ChunkTexts(context.Background())
	if err != nil {
		t.Fatalf("ChunkTexts() error = %v", err)
	}

	want := []string{"a::p1::c1", "a::p1::c2", "b::p1::c1"}
	if len(texts) != len(want) {
		t.Fatalf("ChunkTexts() returned %d entries, want %d", len(texts), len(want))
	}
	for i, ct := range texts {
		if ct.ID != want[i] {
			t.Errorf("ChunkTexts()[%d].ID = %q, want %q", i, ct.ID, want[i])
		}
	}
	if texts[0].Text != "first" {
		t.Errorf("ChunkTexts()[0].Text = %q, want first", texts[0].Text)
	}

	lengths, err := repo.TextLengths(context.Background())
	if err != nil {
		t.Fatalf("TextLengths() error = %v", err)
	}
	if len(lengths) != 3 {
		t.Errorf("TextLengths() returned %d entries, want 3", len(lengths))
	}
}
