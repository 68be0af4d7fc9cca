package indexer

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"ragbook/internal/corpus"
)

const (
	// DefaultMaxChars is the default upper bound for joined paragraphs per chunk.
	DefaultMaxChars = 2500
	// DefaultOverlapChars is the default tail carried into the next chunk.
	DefaultOverlapChars = 200

	maxContextChars = 500
	maxHeadingWords = 6
	maxHeadingChars = 80
	paragraphJoiner = "\n\n"
	contextEllipsis = "..."
)

// ChunkPages splits pages into overlapping, context-annotated chunks. Chunks never span pages.
// Lengths are measured in characters (runes). Output is deterministic for fixed input.
func ChunkPages(pages []corpus.Page, maxChars, overlapChars int, docID string) []Chunk {
	chunks := []Chunk{}
	n := 0

	for _, page := range pages {
		paras := splitParagraphs(page.Text)
		var buf []string
		start := 0
		section := ""

		flush := func(post string) string {
			n++
			text := strings.Join(buf, paragraphJoiner)
			pre := ""
			if start > 0 {
				pre = paras[start-1]
			}
			chunks = append(chunks, Chunk{
				ChunkID:     fmt.Sprintf("%s::p%d::c%d", docID, page.Number, n),
				Text:        text,
				PageStart:   page.Number,
				PageEnd:     page.Number,
				Section:     section,
				PreContext:  trimContext(pre),
				PostContext: trimContext(post),
				DocID:       docID,
				LocalIdx:    n,
			})
			return text
		}

		for i, para := range paras {
			switch {
			case len(buf) == 0:
				buf = []string{para}
				start = i
			case bufferLen(buf)+runeLen(para) <= maxChars:
				buf = append(buf, para)
			default:
				text := flush(para)
				buf = []string{para}
				if overlapChars > 0 {
					buf = []string{tail(text, overlapChars), para}
				}
				start = i
			}

			if isHeading(para) {
				section = para
			}
		}

		if len(buf) > 0 {
			flush("")
		}
	}

	return chunks
}

// splitParagraphs splits on blank lines and drops empty paragraphs.
func splitParagraphs(text string) []string {
	var paras []string
	for _, p := range strings.Split(text, paragraphJoiner) {
		if p = strings.TrimSpace(p); p != "" {
			paras = append(paras, p)
		}
	}
	return paras
}

// isHeading treats short lines without a terminal period as headings.
func isHeading(para string) bool {
	return len(strings.Fields(para)) <= maxHeadingWords &&
		runeLen(para) <= maxHeadingChars &&
		!strings.HasSuffix(para, ".")
}

// bufferLen is the joined length of buf excluding the next paragraph.
func bufferLen(buf []string) int {
	total := 2 * (len(buf) - 1)
	for _, p := range buf {
		total += runeLen(p)
	}
	return total
}

func trimContext(s string) string {
	s = strings.TrimSpace(s)
	if runeLen(s) <= maxContextChars {
		return s
	}
	r := []rune(s)
	return strings.TrimRight(string(r[:maxContextChars-len(contextEllipsis)]), " \t\n\r") + contextEllipsis
}

func tail(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[len(r)-n:])
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }
