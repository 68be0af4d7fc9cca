package lexical

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{name: "empty", text: "", want: nil},
		{name: "punctuation only", text: "?!.,", want: nil},
		{name: "lowercases", text: "The Quick Fox", want: []string{"the", "quick", "fox"}},
		{name: "unicode letters", text: "Größe und Maß", want: []string{"größe", "und", "maß"}},
		{name: "digits and underscore", text: "page_12 of 300", want: []string{"page_12", "of", "300"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Tokenize(tt.text))
		})
	}
}

func TestBaseLanguage(t *testing.T) {
	assert.Equal(t, "", BaseLanguage(""))
	assert.Equal(t, "", BaseLanguage("auto"))
	assert.Equal(t, "de", BaseLanguage("de"))
	assert.Equal(t, "de", BaseLanguage("de-AT"))
	assert.Equal(t, "en", BaseLanguage("EN"))
	assert.Equal(t, "", BaseLanguage("not a language!"))
}

func TestBuild_LengthMismatch(t *testing.T) {
	_, err := Build([]string{"a"}, nil, "")
	require.Error(t, err)
}

func TestSearch_RanksMatchingDocumentFirst(t *testing.T) {
	idx, err := Build(
		[]string{"c1", "c2", "c3"},
		[]string{"the cat sat on the mat", "the dog ran home", "a bird flew away"},
		"",
	)
	require.NoError(t, err)

	results := idx.Search("cat", 3)
	require.Len(t, results, 3)
	assert.Equal(t, "c1", results[0].ChunkID)
	assert.Equal(t, "the cat sat on the mat", results[0].Text)
	assert.Greater(t, results[0].Score, 0.0)
	// Non-matching documents are still scored.
	assert.Equal(t, 0.0, results[1].Score)
	assert.Equal(t, 0.0, results[2].Score)
}

func TestSearch_TopK(t *testing.T) {
	idx, err := Build([]string{"a", "b", "c"}, []string{"one", "two", "three"}, "")
	require.NoError(t, err)

	assert.Len(t, idx.Search("one", 2), 2)
	assert.Empty(t, idx.Search("one", 0))
	assert.Len(t, idx.Search("one", 10), 3)
}

func TestSearch_TiesKeepDocumentOrder(t *testing.T) {
	idx, err := Build(
		[]string{"a", "b", "c", "d", "e"},
		[]string{"apple pie", "apple pie", "banana split", "cherry tart", "plum cake"},
		"",
	)
	require.NoError(t, err)

	results := idx.Search("apple", 5)
	require.Len(t, results, 5)
	assert.Equal(t, "a", results[0].ChunkID)
	assert.Equal(t, "b", results[1].ChunkID)
	assert.Equal(t, results[0].Score, results[1].Score)
	assert.Equal(t, []string{"c", "d", "e"}, []string{results[2].ChunkID, results[3].ChunkID, results[4].ChunkID})
}

func TestSearch_EmptyCorpus(t *testing.T) {
	empty, err := Build(nil, nil, "")
	require.NoError(t, err)
	assert.Empty(t, empty.Search("anything", 5))

	noTokens, err := Build([]string{"a", "b"}, []string{"!!!", "..."}, "")
	require.NoError(t, err)
	assert.Empty(t, noTokens.Search("anything", 5))
}

func TestSearch_NilIndex(t *testing.T) {
	var idx *Index
	assert.Empty(t, idx.Search("x", 3))
	assert.Equal(t, 0, idx.Len())
}

func TestSearch_Stemming(t *testing.T) {
	docs := []string{"cats are sleeping", "dogs are barking", "birds are singing"}
	ids := []string{"c1", "c2", "c3"}

	stemmed, err := Build(ids, docs, "en")
	require.NoError(t, err)
	res := stemmed.Search("cat", 1)
	require.Len(t, res, 1)
	assert.Equal(t, "c1", res[0].ChunkID)
	assert.Greater(t, res[0].Score, 0.0)

	plain, err := Build(ids, docs, "auto")
	require.NoError(t, err)
	res = plain.Search("cat", 1)
	require.Len(t, res, 1)
	assert.Equal(t, 0.0, res[0].Score)
}

func TestText(t *testing.T) {
	idx, err := Build([]string{"a", "b", "a"}, []string{"first", "second", "third"}, "")
	require.NoError(t, err)

	text, ok := idx.Text("a")
	assert.True(t, ok)
	assert.Equal(t, "first", text)

	_, ok = idx.Text("missing")
	assert.False(t, ok)
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "lexical_index.json")

	idx, err := Build([]string{"x::p1::c1", "x::p1::c2"}, []string{"Erster Absatz.", "Zweiter Absatz über Häuser."}, "de")
	require.NoError(t, err)
	require.NoError(t, idx.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, idx.Docs(), loaded.Docs())
	assert.Equal(t, idx.IDs(), loaded.IDs())
	assert.Equal(t, "de", loaded.Language())
	assert.Equal(t, idx.Search("Absatz", 2), loaded.Search("Absatz", 2))
}

func TestSaveLoad_InvalidUTF8(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lexical_index.json")

	idx, err := Build([]string{"x::p1::c1", "x::p1::c2"}, []string{"Kr\xe4fte am Balken.", "Momente am Balken."}, "de")
	require.NoError(t, err)
	assert.Equal(t, "Kr\uFFFDfte am Balken.", idx.Docs()[0])
	require.NoError(t, idx.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, idx.Docs(), loaded.Docs())
	assert.Equal(t, idx.IDs(), loaded.IDs())
	assert.Equal(t, idx.Search("Balken", 2), loaded.Search("Balken", 2))
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrIndexNotFound))
}

type fakeSource struct {
	chunks []ChunkText
	err    error
}

func (f fakeSource) ChunkTexts(context.Context) ([]ChunkText, error) {
	return f.chunks, f.err
}

func TestBuildFromSource(t *testing.T) {
	src := fakeSource{chunks: []ChunkText{
		{ID: "a", Text: "alpha"},
		{ID: "", Text: "orphan"},
		{ID: "b", Text: ""},
		{ID: "c", Text: "gamma"},
	}}

	idx, err := BuildFromSource(context.Background(), src, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, idx.IDs())
	assert.Equal(t, []string{"alpha", "gamma"}, idx.Docs())

	_, err = BuildFromSource(context.Background(), fakeSource{err: errors.New("unreachable")}, "")
	require.Error(t, err)
}

func TestSearch_Properties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		words := []string{"alpha", "beta", "gamma", "delta", "epsilon", "zeta"}
		n := rapid.IntRange(0, 12).Draw(t, "n")
		ids := make([]string, n)
		docs := make([]string, n)
		for i := 0; i < n; i++ {
			ids[i] = rapid.StringMatching(`[a-z]{1,4}`).Draw(t, "id")
			picked := rapid.SliceOfN(rapid.SampledFrom(words), 0, 6).Draw(t, "words")
			for j, w := range picked {
				if j > 0 {
					docs[i] += " "
				}
				docs[i] += w
			}
		}
		idx, err := Build(ids, docs, "")
		if err != nil {
			t.Fatalf("build: %v", err)
		}

		query := rapid.SampledFrom(words).Draw(t, "query")
		topK := rapid.IntRange(0, 15).Draw(t, "topK")
		results := idx.Search(query, topK)

		if len(results) > topK || len(results) > n {
			t.Fatalf("got %d results for topK=%d n=%d", len(results), topK, n)
		}
		for i := 1; i < len(results); i++ {
			if results[i].Score > results[i-1].Score {
				t.Fatalf("results not sorted at %d: %v > %v", i, results[i].Score, results[i-1].Score)
			}
		}
	})
}
