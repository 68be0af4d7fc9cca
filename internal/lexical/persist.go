package lexical

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrIndexNotFound is returned by Load when no persisted index exists at the path.
var ErrIndexNotFound = errors.New("lexical index not found")

// persistedIndex is the on-disk form. Derived statistics are rebuilt on load.
type persistedIndex struct {
	Docs     []string `json:"docs"`
	IDs      []string `json:"ids"`
	Language string   `json:"language"`
}

// Save writes the index state to path, replacing any existing file atomically.
func (idx *Index) Save(path string) error {
	data, err := json.Marshal(persistedIndex{
		Docs:     idx.docs,
		IDs:      idx.ids,
		Language: idx.language,
	})
	if err != nil {
		return fmt.Errorf("failed to encode lexical index: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create index directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write lexical index: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync lexical index: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close lexical index: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to move lexical index into place: %w", err)
	}
	return nil
}

// Load reads an index previously written by Save and rebuilds its statistics.
func Load(path string) (*Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrIndexNotFound, path)
		}
		return nil, fmt.Errorf("failed to read lexical index: %w", err)
	}

	var p persistedIndex
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to decode lexical index: %w", err)
	}
	if p.Language == "" {
		p.Language = LanguageAuto
	}
	return Build(p.IDs, p.Docs, p.Language)
}
