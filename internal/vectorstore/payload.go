package vectorstore

import (
	"github.com/google/uuid"
)

// pointNamespace scopes the deterministic point ids derived from chunk ids.
var pointNamespace = uuid.MustParse("6f1c7a52-3f7e-4b8a-9d0e-2a4c5b8e9f10")

// PointID maps a chunk id to the UUID used as the Qdrant point id.
// The mapping is deterministic so re-ingestion overwrites existing points.
func PointID(chunkID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(chunkID)).String()
}

// ChunkPayload is the metadata stored with each point. Optional string fields are
// empty when absent; integer fields are zero when absent.
type ChunkPayload struct {
	ChunkID     string `json:"chunk_id"`
	DocID       string `json:"doc_id,omitempty"`
	DocTitle    string `json:"doc_title,omitempty"`
	SourcePath  string `json:"source_path,omitempty"`
	FileLink    string `json:"file_link,omitempty"`
	Page        int    `json:"page,omitempty"`
	PageStart   int    `json:"page_start,omitempty"`
	PageEnd     int    `json:"page_end,omitempty"`
	Section     string `json:"section,omitempty"`
	PreContext  string `json:"pre_context,omitempty"`
	PostContext string `json:"post_context,omitempty"`
	Text        string `json:"text"`
	LocalIdx    int    `json:"local_idx,omitempty"`
}

// ToMap converts the payload to the generic form stored in Qdrant. Empty optional fields are omitted.
func (p ChunkPayload) ToMap() map[string]any {
	m := map[string]any{
		"chunk_id": p.ChunkID,
		"text":     p.Text,
	}
	for k, v := range map[string]string{
		"doc_id":       p.DocID,
		"doc_title":    p.DocTitle,
		"source_path":  p.SourcePath,
		"file_link":    p.FileLink,
		"section":      p.Section,
		"pre_context":  p.PreContext,
		"post_context": p.PostContext,
	} {
		if v != "" {
			m[k] = v
		}
	}
	for k, v := range map[string]int{
		"page":       p.Page,
		"page_start": p.PageStart,
		"page_end":   p.PageEnd,
		"local_idx":  p.LocalIdx,
	} {
		if v != 0 {
			m[k] = v
		}
	}
	return m
}

// PayloadFromMap reads a payload back from its generic form. Unknown keys are ignored
// and mistyped values are treated as absent.
func PayloadFromMap(m map[string]any) ChunkPayload {
	return ChunkPayload{
		ChunkID:     stringField(m, "chunk_id"),
		DocID:       stringField(m, "doc_id"),
		DocTitle:    stringField(m, "doc_title"),
		SourcePath:  stringField(m, "source_path"),
		FileLink:    stringField(m, "file_link"),
		Page:        intField(m, "page"),
		PageStart:   intField(m, "page_start"),
		PageEnd:     intField(m, "page_end"),
		Section:     stringField(m, "section"),
		PreContext:  stringField(m, "pre_context"),
		PostContext: stringField(m, "post_context"),
		Text:        stringField(m, "text"),
		LocalIdx:    intField(m, "local_idx"),
	}
}

func stringField(m map[string]any, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

func intField(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}
