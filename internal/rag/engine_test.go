package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragbook/internal/lexical"
	"ragbook/internal/metrics"
	"ragbook/internal/service"
	"ragbook/internal/vectorstore"
)

type fakeQueryEmbedder struct {
	err error
}

func (f *fakeQueryEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

type fakeSearcher struct {
	results    []vectorstore.SearchResult
	err        error
	collection string
	k          int
}

func (f *fakeSearcher) Search(_ context.Context, collection string, _ []float32, k int) ([]vectorstore.SearchResult, error) {
	f.collection, f.k = collection, k
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

// scriptedGenerator answers grounded prompts with answer and claim check prompts with check.
type scriptedGenerator struct {
	answer    string
	answerErr error
	check     string
	checkErr  error
	prompts   []string
}

func (g *scriptedGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.prompts = append(g.prompts, prompt)
	if strings.HasPrefix(prompt, english.claimCheck.instruction) || strings.HasPrefix(prompt, german.claimCheck.instruction) {
		return g.check, g.checkErr
	}
	return g.answer, g.answerErr
}

func hit(id, docID string, score float32, text string) vectorstore.SearchResult {
	return vectorstore.SearchResult{
		ChunkID: id,
		Score:   score,
		Payload: vectorstore.ChunkPayload{ChunkID: id, DocID: docID, DocTitle: docID, Page: 1, Text: text},
	}
}

// strongHits passes every gate check for "What is torque?".
func strongHits() []vectorstore.SearchResult {
	return []vectorstore.SearchResult{
		hit("statics::p1::c1", "statics", 0.9, "Torque is force times lever arm."),
		hit("dynamics::p4::c7", "dynamics", 0.5, "Angular momentum changes with torque."),
		hit("thermo::p2::c3", "thermo", 0.3, "Heat flows from hot to cold."),
	}
}

type engineFixture struct {
	cfg       Config
	embedder  *fakeQueryEmbedder
	searcher  *fakeSearcher
	generator *scriptedGenerator
	lexical   *LexicalProvider
	reranker  *Reranker
	reg       *prometheus.Registry
}

func newEngineFixture() *engineFixture {
	return &engineFixture{
		cfg:       DefaultConfig("books"),
		embedder:  &fakeQueryEmbedder{},
		searcher:  &fakeSearcher{results: strongHits()},
		generator: &scriptedGenerator{answer: "Torque is force times lever arm.", check: "[]"},
		reg:       prometheus.NewRegistry(),
	}
}

func (f *engineFixture) engine() Engine {
	return NewEngine(f.cfg, f.embedder, f.searcher, f.generator, f.lexical, f.reranker, metrics.New(f.reg))
}

func (f *engineFixture) assertQuestions(t *testing.T, outcome string) {
	t.Helper()
	expected := `
# HELP ragbook_questions_total Questions processed, by outcome
# TYPE ragbook_questions_total counter
ragbook_questions_total{outcome="` + outcome + `"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(f.reg, strings.NewReader(expected), "ragbook_questions_total"))
}

func (f *engineFixture) assertDegraded(t *testing.T, stage string) {
	t.Helper()
	expected := `
# HELP ragbook_stage_degraded_total Optional pipeline stages that failed open
# TYPE ragbook_stage_degraded_total counter
ragbook_stage_degraded_total{stage="` + stage + `"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(f.reg, strings.NewReader(expected), "ragbook_stage_degraded_total"))
}

func TestEngine_Ask_Validation(t *testing.T) {
	f := newEngineFixture()

	_, err := f.engine().Ask(context.Background(), "   ")

	var validationErr *service.ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "question", validationErr.Field)
	assert.Empty(t, f.generator.prompts)
}

func TestEngine_Ask_RetrievalErrors(t *testing.T) {
	t.Run("embedding failure", func(t *testing.T) {
		f := newEngineFixture()
		f.embedder.err = errors.New("connection refused")

		_, err := f.engine().Ask(context.Background(), "What is torque?")
		assert.ErrorIs(t, err, service.ErrExternalService)
		f.assertQuestions(t, metrics.OutcomeError)
	})

	t.Run("vector store failure", func(t *testing.T) {
		f := newEngineFixture()
		f.searcher.err = errors.New("collection missing")

		_, err := f.engine().Ask(context.Background(), "What is torque?")
		assert.ErrorIs(t, err, service.ErrVectorStore)
		assert.NotErrorIs(t, err, service.ErrExternalService)
	})
}

func TestEngine_Ask_Answered(t *testing.T) {
	f := newEngineFixture()
	f.cfg.TopK = 3
	f.cfg.MaxPassages = 2

	res, err := f.engine().Ask(context.Background(), "What is torque?")
	require.NoError(t, err)

	assert.Equal(t, "Torque is force times lever arm.", res.Answer)
	assert.Equal(t, "OK", res.Reason)
	assert.False(t, res.Reranked)
	assert.Empty(t, res.ProbingQuestions)
	assert.Equal(t, ClaimCheckResult{Mode: ClaimCheckRefuse, Unsupported: []string{}}, res.ClaimCheck)
	require.Len(t, res.Passages, 2)
	assert.Equal(t, "statics::p1::c1", res.Passages[0].ChunkID)

	assert.Equal(t, "books", f.searcher.collection)
	assert.Equal(t, 3, f.searcher.k)

	require.Len(t, f.generator.prompts, 2)
	assert.Contains(t, f.generator.prompts[0], "chunk_id=statics::p1::c1")
	assert.NotContains(t, f.generator.prompts[0], "thermo::p2::c3", "only the top passages are sent")

	f.assertQuestions(t, metrics.OutcomeAnswered)
}

func TestEngine_Ask_SearchLimitCoversPassages(t *testing.T) {
	f := newEngineFixture()
	f.cfg.TopK = 2
	f.cfg.MaxPassages = 6

	_, err := f.engine().Ask(context.Background(), "What is torque?")
	require.NoError(t, err)
	assert.Equal(t, 6, f.searcher.k)
}

func TestEngine_Ask_Refusals(t *testing.T) {
	t.Run("no hits", func(t *testing.T) {
		f := newEngineFixture()
		f.searcher.results = nil

		res, err := f.engine().Ask(context.Background(), "What is torque?")
		require.NoError(t, err)

		assert.Equal(t, "Not enough information in the books.", res.Answer)
		assert.Equal(t, "No hits in index.", res.Reason)
		assert.Len(t, res.ProbingQuestions, 5)
		assert.NotNil(t, res.Passages)
		assert.Empty(t, res.Passages)
		assert.Equal(t, []string{}, res.ClaimCheck.Unsupported)
		assert.Empty(t, f.generator.prompts, "refusals never call the generator")

		f.assertQuestions(t, metrics.OutcomeRefused)
		expected := `
# HELP ragbook_gate_refusals_total Evidence gate refusals, by the check that fired
# TYPE ragbook_gate_refusals_total counter
ragbook_gate_refusals_total{check="no_hits"} 1
`
		assert.NoError(t, testutil.GatherAndCompare(f.reg, strings.NewReader(expected), "ragbook_gate_refusals_total"))
	})

	t.Run("weak evidence in german", func(t *testing.T) {
		f := newEngineFixture()
		f.cfg.Language = "de-DE"
		f.cfg.Gate.MinScore = 0.9

		res, err := f.engine().Ask(context.Background(), "Was ist ein Drehmoment?")
		require.NoError(t, err)

		assert.Equal(t, "Nicht genug Information in den Büchern.", res.Answer)
		assert.Equal(t, "Top score too weak (Score 0.500 < 0.900).", res.Reason)
		assert.Len(t, res.Passages, 3, "candidates are surfaced when refusing")
		require.Len(t, res.ProbingQuestions, 5)
		assert.True(t, strings.HasSuffix(res.ProbingQuestions[0], "(Ursprüngliche Frage: 'Was ist ein Drehmoment?')"))
		assert.False(t, res.Reranked)
	})
}

func TestEngine_Ask_ClaimCheck(t *testing.T) {
	const answer = "Torque is force times lever arm. It was discovered in 1900."

	t.Run("strip", func(t *testing.T) {
		f := newEngineFixture()
		f.cfg.ClaimCheckMode = ClaimCheckStrip
		f.generator.answer = answer
		f.generator.check = `["It was discovered in 1900."]`

		res, err := f.engine().Ask(context.Background(), "What is torque?")
		require.NoError(t, err)

		assert.Equal(t, "Torque is force times lever arm.", res.Answer)
		assert.Equal(t, "OK (claim-checked)", res.Reason)
		assert.Equal(t, []string{"It was discovered in 1900."}, res.ClaimCheck.Unsupported)
		assert.Equal(t, ClaimCheckStrip, res.ClaimCheck.Mode)
	})

	t.Run("refuse", func(t *testing.T) {
		f := newEngineFixture()
		f.generator.answer = answer
		f.generator.check = "- It was discovered in 1900."

		res, err := f.engine().Ask(context.Background(), "What is torque?")
		require.NoError(t, err)

		assert.Equal(t, "Not enough information in the books.", res.Answer)
		assert.Equal(t, "OK (claim-checked)", res.Reason)
		assert.Len(t, res.ClaimCheck.Unsupported, 1)
		f.assertQuestions(t, metrics.OutcomeAnswered)
	})

	t.Run("claim check failure keeps answer", func(t *testing.T) {
		f := newEngineFixture()
		f.generator.answer = answer
		f.generator.checkErr = errors.New("llm overloaded")

		res, err := f.engine().Ask(context.Background(), "What is torque?")
		require.NoError(t, err)

		assert.Equal(t, answer, res.Answer)
		assert.Equal(t, "OK", res.Reason)
		assert.Empty(t, res.ClaimCheck.Unsupported)
		f.assertDegraded(t, stageClaimCheck)
	})
}

func TestEngine_Ask_GenerationFailure(t *testing.T) {
	f := newEngineFixture()
	f.generator.answerErr = errors.New("llm down")

	_, err := f.engine().Ask(context.Background(), "What is torque?")
	assert.ErrorIs(t, err, service.ErrExternalService)
	f.assertQuestions(t, metrics.OutcomeError)
}

func TestEngine_Ask_Rerank(t *testing.T) {
	t.Run("applied", func(t *testing.T) {
		f := newEngineFixture()
		f.reranker = NewReranker(staticFactory(scoreFunc(func(_ context.Context, _ string, passages []string) ([]float64, error) {
			scores := make([]float64, len(passages))
			for i := range scores {
				scores[i] = float64(i)
			}
			return scores, nil
		})))

		res, err := f.engine().Ask(context.Background(), "What is torque?")
		require.NoError(t, err)

		assert.True(t, res.Reranked)
		assert.Equal(t, "OK (re-ranked)", res.Reason)
		assert.Equal(t, []string{"thermo::p2::c3", "dynamics::p4::c7", "statics::p1::c1"}, ids(res.Passages))
	})

	t.Run("degraded", func(t *testing.T) {
		f := newEngineFixture()
		f.reranker = NewReranker(func(context.Context) (RelevanceModel, error) {
			return nil, errors.New("model not found")
		})

		res, err := f.engine().Ask(context.Background(), "What is torque?")
		require.NoError(t, err)

		assert.False(t, res.Reranked)
		assert.Equal(t, "OK", res.Reason)
		assert.Equal(t, "statics::p1::c1", res.Passages[0].ChunkID)
		f.assertDegraded(t, stageRerank)
	})

	t.Run("claim checked after re-ranking", func(t *testing.T) {
		f := newEngineFixture()
		f.cfg.ClaimCheckMode = ClaimCheckStrip
		f.generator.answer = "Torque is force times lever arm. Extra claim."
		f.generator.check = `["Extra claim."]`
		f.reranker = NewReranker(staticFactory(scoreFunc(func(_ context.Context, _ string, passages []string) ([]float64, error) {
			return make([]float64, len(passages)), nil
		})))

		res, err := f.engine().Ask(context.Background(), "What is torque?")
		require.NoError(t, err)
		assert.Equal(t, "OK (re-ranked) (claim-checked)", res.Reason)
	})
}

func TestEngine_Ask_Lexical(t *testing.T) {
	t.Run("lexical only hit becomes a passage", func(t *testing.T) {
		idx, err := lexical.Build(
			[]string{"statics::p1::c1", "glossary::p9::c2"},
			[]string{"Torque is force times lever arm.", "Torque: turning effect of a force."},
			"en",
		)
		require.NoError(t, err)

		f := newEngineFixture()
		f.cfg.MaxPassages = 10
		f.cfg.Gate = GateConfig{}
		f.lexical = NewStaticLexicalProvider(idx)

		res, err := f.engine().Ask(context.Background(), "What is torque?")
		require.NoError(t, err)

		var lexOnly *Candidate
		for i := range res.Passages {
			if res.Passages[i].ChunkID == "glossary::p9::c2" {
				lexOnly = &res.Passages[i]
			}
		}
		require.NotNil(t, lexOnly)
		assert.Equal(t, "Torque: turning effect of a force.", lexOnly.Payload.Text)
		assert.Zero(t, lexOnly.VectorScore)
		assert.Len(t, res.Passages, 4)
	})

	t.Run("unavailable index degrades to vector only", func(t *testing.T) {
		f := newEngineFixture()
		f.lexical = NewLexicalProvider("", &fakeChunkSource{errs: []error{errors.New("store down")}}, "en")

		res, err := f.engine().Ask(context.Background(), "What is torque?")
		require.NoError(t, err)

		assert.Equal(t, "OK", res.Reason)
		f.assertDegraded(t, stageLexical)
	})
}
