package indexer

// Chunk is a bounded span of page text with positional and structural metadata.
// Optional fields are empty strings when absent.
type Chunk struct {
	ChunkID     string // "{doc_id}::p{page}::c{n}"
	Text        string
	PageStart   int
	PageEnd     int
	Section     string // Most recent heading on the page, if any
	PreContext  string // Paragraph preceding the chunk, at most 500 characters
	PostContext string // Paragraph that followed the chunk, at most 500 characters
	DocID       string
	DocTitle    string
	LocalIdx    int // 1-based ordinal within the document
}
