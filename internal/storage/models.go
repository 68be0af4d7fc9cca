package storage

import "time"

// DocumentRecord is an ingested source document.
type DocumentRecord struct {
	ID         string // doc_id, "{title}-{sha1(path)[:12]}"
	Title      string
	SourcePath string
	Hash       string // SHA256 hex of the file content
	PageCount  int
	ChunkCount int
	UpdatedAt  time.Time
}

// ChunkRecord is a chunk row. ID is the chunk_id, which is also the key of the
// corresponding vector store point.
type ChunkRecord struct {
	ID          string
	DocID       string
	LocalIdx    int
	PageStart   int
	PageEnd     int
	Section     string
	PreContext  string
	PostContext string
	Text        string
}
