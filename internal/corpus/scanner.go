// Package corpus discovers source documents and turns them into page text.
package corpus

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Supported document extensions.
const (
	ExtText     = ".txt"
	ExtMarkdown = ".md"
)

// ScannedFile is a document found during scanning.
type ScannedFile struct {
	RelPath string // Relative to the scan root, forward slashes ("books/intro.md")
	AbsPath string
}

// ScanDir walks root and returns every supported document, sorted by path.
// A root that points at a single supported file yields just that file.
// Hidden directories are skipped.
func ScanDir(ctx context.Context, root string) ([]ScannedFile, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", root, err)
	}

	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", absRoot, err)
	}
	if !info.IsDir() {
		if !Supported(absRoot) {
			return nil, fmt.Errorf("unsupported file type: %s", absRoot)
		}
		return []ScannedFile{{RelPath: filepath.Base(absRoot), AbsPath: absRoot}}, nil
	}

	var files []ScannedFile
	err = filepath.WalkDir(absRoot, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("failed to access path %s: %w", path, err)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if d.IsDir() {
			if path != absRoot && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !Supported(path) {
			return nil
		}

		relPath, err := filepath.Rel(absRoot, path)
		if err != nil {
			return fmt.Errorf("failed to compute relative path for %s: %w", path, err)
		}
		files = append(files, ScannedFile{
			RelPath: filepath.ToSlash(relPath),
			AbsPath: path,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", absRoot, err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].RelPath < files[j].RelPath })
	return files, nil
}

// Supported reports whether path has an extension the loader understands.
func Supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ExtText, ExtMarkdown:
		return true
	}
	return false
}

// DocTitle is the file name without its extension.
func DocTitle(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// DocID derives a stable document identifier from the path: "{title}-{sha1(path)[:12]}".
func DocID(path string) string {
	sum := sha1.Sum([]byte(path))
	return DocTitle(path) + "-" + hex.EncodeToString(sum[:])[:12]
}
