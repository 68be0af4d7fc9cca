package corpus

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
	"golang.org/x/text/encoding/charmap"
)

// Page is the extracted text of one page, numbered from 1.
type Page struct {
	Number int
	Text   string
}

// pageBreak separates pages in extracted plain text (pdftotext output).
const pageBreak = "\f"

// Document is a loaded source file.
type Document struct {
	Path    string
	Content []byte
	Pages   []Page
}

// Load reads path and splits it into pages according to its type.
// Content keeps the raw bytes; page text is always valid UTF-8.
func Load(path string) (Document, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("failed to read %s: %w", path, err)
	}

	decoded := toUTF8(content)

	var pages []Page
	switch strings.ToLower(filepath.Ext(path)) {
	case ExtText:
		pages = SplitPages(string(decoded))
	case ExtMarkdown:
		pages = MarkdownPages(decoded)
	default:
		return Document{}, fmt.Errorf("unsupported file type: %s", path)
	}

	return Document{Path: path, Content: content, Pages: pages}, nil
}

// toUTF8 returns content unchanged when it is valid UTF-8 and otherwise
// decodes it as Windows-1252, a superset of Latin-1.
func toUTF8(content []byte) []byte {
	if utf8.Valid(content) {
		return content
	}
	decoded, err := charmap.Windows1252.NewDecoder().Bytes(content)
	if err != nil {
		return bytes.ToValidUTF8(content, []byte("\uFFFD"))
	}
	return bytes.ToValidUTF8(decoded, []byte("\uFFFD"))
}

// SplitPages splits plain text on form feeds. Trailing empty pages are dropped.
func SplitPages(content string) []Page {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	parts := strings.Split(content, pageBreak)
	for len(parts) > 0 && strings.TrimSpace(parts[len(parts)-1]) == "" {
		parts = parts[:len(parts)-1]
	}

	pages := make([]Page, 0, len(parts))
	for i, p := range parts {
		pages = append(pages, Page{Number: i + 1, Text: p})
	}
	return pages
}

var markdown = goldmark.New(goldmark.WithExtensions(extension.Table))

// MarkdownPages renders markdown as a single page whose block elements are
// separated by blank lines, so headings become standalone paragraphs.
func MarkdownPages(content []byte) []Page {
	if len(bytes.TrimSpace(content)) == 0 {
		return nil
	}

	doc := markdown.Parser().Parse(text.NewReader(content))

	var blocks []string
	add := func(s string) {
		if s = strings.TrimSpace(s); s != "" {
			blocks = append(blocks, s)
		}
	}

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		switch node := n.(type) {
		case *ast.Heading, *ast.Paragraph, *ast.TextBlock:
			add(nodeText(node, content))
			return ast.WalkSkipChildren, nil
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			var b strings.Builder
			lines := node.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				b.Write(seg.Value(content))
			}
			add(b.String())
			return ast.WalkSkipChildren, nil
		case *east.TableRow, *east.TableHeader:
			var cells []string
			for c := node.FirstChild(); c != nil; c = c.NextSibling() {
				cells = append(cells, nodeText(c, content))
			}
			add(strings.Join(cells, " | "))
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})

	if len(blocks) == 0 {
		return nil
	}
	return []Page{{Number: 1, Text: strings.Join(blocks, "\n\n")}}
}

// nodeText collects the inline text below n. Soft line breaks become spaces.
func nodeText(n ast.Node, content []byte) string {
	var b strings.Builder
	_ = ast.Walk(n, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch v := node.(type) {
		case *ast.Text:
			b.Write(v.Segment.Value(content))
			if v.SoftLineBreak() || v.HardLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(v.Value)
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(b.String())
}
