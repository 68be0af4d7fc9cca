// Package lexical implements the BM25 keyword index that complements vector search.
package lexical

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
)

// BM25 Okapi parameters.
const (
	k1      = 1.5
	b       = 0.75
	epsilon = 0.25
)

// Result is a single lexical hit.
type Result struct {
	ChunkID string
	Score   float64
	Text    string
}

// ChunkText is one indexable (chunk id, text) pair.
type ChunkText struct {
	ID   string
	Text string
}

// ChunkSource yields every stored chunk for offline index construction.
type ChunkSource interface {
	ChunkTexts(ctx context.Context) ([]ChunkText, error)
}

// Index is an immutable BM25 index over chunk texts.
// It is safe for concurrent use by multiple goroutines.
type Index struct {
	docs     []string
	ids      []string
	language string
	stem     stemFunc
	position map[string]int

	docFreqs []map[string]int
	docLens  []float64
	avgdl    float64
	idf      map[string]float64
	empty    bool
}

// Build creates an index over ids[i] -> docs[i]. The language hint selects a stemmer
// when one is available; "" means auto. Invalid UTF-8 in ids and docs is replaced
// with U+FFFD so the index survives a Save/Load round trip unchanged.
func Build(ids, docs []string, languageHint string) (*Index, error) {
	if len(ids) != len(docs) {
		return nil, fmt.Errorf("ids and docs length mismatch: %d != %d", len(ids), len(docs))
	}

	lang := strings.ToLower(strings.TrimSpace(languageHint))
	if lang == "" {
		lang = LanguageAuto
	}

	idx := &Index{
		docs:     validUTF8(docs),
		ids:      validUTF8(ids),
		language: lang,
		stem:     stemmerFor(lang),
		position: make(map[string]int, len(ids)),
	}
	for i, id := range idx.ids {
		if _, seen := idx.position[id]; !seen {
			idx.position[id] = i
		}
	}

	idx.initialize()
	return idx, nil
}

func validUTF8(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToValidUTF8(s, "\uFFFD")
	}
	return out
}

// BuildFromSource fetches all chunks from src and indexes the ones that have both an id and text.
func BuildFromSource(ctx context.Context, src ChunkSource, languageHint string) (*Index, error) {
	chunks, err := src.ChunkTexts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch chunks: %w", err)
	}

	ids := make([]string, 0, len(chunks))
	docs := make([]string, 0, len(chunks))
	for _, c := range chunks {
		if c.ID == "" || c.Text == "" {
			continue
		}
		ids = append(ids, c.ID)
		docs = append(docs, c.Text)
	}
	return Build(ids, docs, languageHint)
}

func (idx *Index) initialize() {
	idx.docFreqs = make([]map[string]int, len(idx.docs))
	idx.docLens = make([]float64, len(idx.docs))

	nd := make(map[string]int)
	var total float64
	anyTokens := false
	for i, doc := range idx.docs {
		tokens := idx.tokenize(doc)
		if len(tokens) > 0 {
			anyTokens = true
		}
		freqs := make(map[string]int, len(tokens))
		for _, tok := range tokens {
			freqs[tok]++
		}
		for tok := range freqs {
			nd[tok]++
		}
		idx.docFreqs[i] = freqs
		idx.docLens[i] = float64(len(tokens))
		total += float64(len(tokens))
	}

	if !anyTokens {
		idx.empty = true
		return
	}
	idx.avgdl = total / float64(len(idx.docs))

	// Terms present in more than half the corpus get a negative raw IDF; those are
	// floored to epsilon times the mean IDF.
	n := float64(len(idx.docs))
	idx.idf = make(map[string]float64, len(nd))
	var idfSum float64
	var negative []string
	for term, freq := range nd {
		v := math.Log(n-float64(freq)+0.5) - math.Log(float64(freq)+0.5)
		idx.idf[term] = v
		idfSum += v
		if v < 0 {
			negative = append(negative, term)
		}
	}
	eps := epsilon * idfSum / float64(len(idx.idf))
	for _, term := range negative {
		idx.idf[term] = eps
	}
}

func (idx *Index) tokenize(text string) []string {
	tokens := Tokenize(text)
	if idx.stem == nil {
		return tokens
	}
	for i, tok := range tokens {
		tokens[i] = idx.stem(tok)
	}
	return tokens
}

// Scores returns the BM25 score of every document for query, in document order.
func (idx *Index) Scores(query string) []float64 {
	scores := make([]float64, len(idx.docs))
	if idx.empty {
		return scores
	}
	for _, q := range idx.tokenize(query) {
		idf := idx.idf[q]
		if idf == 0 {
			continue
		}
		for i, freqs := range idx.docFreqs {
			tf := float64(freqs[q])
			if tf == 0 {
				continue
			}
			scores[i] += idf * (tf * (k1 + 1)) / (tf + k1*(1-b+b*idx.docLens[i]/idx.avgdl))
		}
	}
	return scores
}

// Search returns the topK highest scoring documents. Ties keep document order.
func (idx *Index) Search(query string, topK int) []Result {
	if idx == nil || idx.empty || topK <= 0 {
		return []Result{}
	}

	scores := idx.Scores(query)
	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, c int) bool {
		return scores[order[a]] > scores[order[c]]
	})
	if len(order) > topK {
		order = order[:topK]
	}

	results := make([]Result, 0, len(order))
	for _, i := range order {
		results = append(results, Result{
			ChunkID: idx.ids[i],
			Score:   scores[i],
			Text:    idx.docs[i],
		})
	}
	return results
}

// Text returns the stored text for chunkID.
func (idx *Index) Text(chunkID string) (string, bool) {
	if idx == nil {
		return "", false
	}
	i, ok := idx.position[chunkID]
	if !ok {
		return "", false
	}
	return idx.docs[i], true
}

// Len returns the number of indexed documents.
func (idx *Index) Len() int {
	if idx == nil {
		return 0
	}
	return len(idx.docs)
}

// Docs returns a copy of the indexed texts in document order.
func (idx *Index) Docs() []string { return append([]string(nil), idx.docs...) }

// IDs returns a copy of the chunk ids in document order.
func (idx *Index) IDs() []string { return append([]string(nil), idx.ids...) }

// Language returns the normalized language hint.
func (idx *Index) Language() string { return idx.language }
