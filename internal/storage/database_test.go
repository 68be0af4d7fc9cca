package storage

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{name: "file in temp dir", path: filepath.Join(t.TempDir(), "ragbook.db")},
		{name: "missing directory", path: "/nonexistent/path/ragbook.db", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, err := New(tt.path)
			if db != nil {
				defer func() {
					_ = db.Close()
				}()
			}
			if tt.wantErr {
				if err == nil {
					t.Error("New() expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("New() unexpected error: %v", err)
			}
			if got := db.Stats().MaxOpenConnections; got != 25 {
				t.Errorf("New() MaxOpenConnections = %v, want 25", got)
			}
		})
	}
}

func TestNew_Pragmas(t *testing.T) {
	db := newTestDB(t)

	var fkEnabled int
	if err := db.QueryRow("PRAGMA foreign_keys").Scan(&fkEnabled); err != nil {
		t.Fatalf("Failed to check foreign keys: %v", err)
	}
	if fkEnabled != 1 {
		t.Error("New() should enable foreign keys")
	}

	var mode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("Failed to check journal mode: %v", err)
	}
	if !strings.EqualFold(mode, "wal") {
		t.Errorf("journal_mode = %q, want wal", mode)
	}
}

func TestMigrate_IdempotentSchema(t *testing.T) {
	db := newTestDB(t)

	if err := Migrate(db); err != nil {
		t.Fatalf("Migrate() second run error = %v", err)
	}

	for _, name := range []string{"documents", "chunks", "idx_chunks_doc_id"} {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE name = ?", name).Scan(&count)
		if err != nil {
			t.Fatalf("Failed to check %s: %v", name, err)
		}
		if count != 1 {
			t.Errorf("Migrate() %s count = %d, want 1", name, count)
		}
	}
}

func TestMigrate_DeletingDocumentDropsChunks(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	docs := NewDocumentRepo(db)
	chunks := NewChunkRepo(db)

	if err := docs.Upsert(ctx, &DocumentRecord{ID: "d1", Title: "Statics", SourcePath: "/b/statics.txt", Hash: "h"}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if err := chunks.InsertBatch(ctx, []ChunkRecord{
		{ID: "d1::p1::c1", DocID: "d1", LocalIdx: 1, PageStart: 1, PageEnd: 1, Text: "a"},
		{ID: "d1::p1::c2", DocID: "d1", LocalIdx: 2, PageStart: 1, PageEnd: 1, Text: "b"},
	}); err != nil {
		t.Fatalf("InsertBatch() error = %v", err)
	}

	if err := docs.Delete(ctx, "d1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	ids, err := chunks.ListIDsByDoc(ctx, "d1")
	if err != nil {
		t.Fatalf("ListIDsByDoc() error = %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("chunks left after document delete: %v", ids)
	}
}

func TestMigrate_ChunkRequiresDocument(t *testing.T) {
	db := newTestDB(t)

	err := NewChunkRepo(db).InsertBatch(context.Background(), []ChunkRecord{
		{ID: "orphan::p1::c1", DocID: "orphan", LocalIdx: 1, PageStart: 1, PageEnd: 1, Text: "x"},
	})
	if err == nil {
		t.Error("InsertBatch() for an unknown document should fail")
	}
}
