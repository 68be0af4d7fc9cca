package rag

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"ragbook/internal/contextutil"
	"ragbook/internal/lexical"
	"ragbook/internal/metrics"
	"ragbook/internal/service"
	"ragbook/internal/vectorstore"
)

// Retrieval defaults.
const (
	DefaultTopK        = 8
	DefaultMinScore    = 0.2
	DefaultMaxPassages = 5
	DefaultAlpha       = 0.5

	rerankedSuffix     = " (re-ranked)"
	claimCheckedSuffix = " (claim-checked)"
)

// Stage names used for spans, logs and metrics.
const (
	stageRetrieve   = "retrieve"
	stageLexical    = "lexical"
	stageGate       = "gate"
	stageRerank     = "rerank"
	stageGenerate   = "generate"
	stageClaimCheck = "claim_check"
)

// Embedder embeds a question into the vector space of the stored chunks.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// VectorSearcher finds the chunks most similar to a query vector.
type VectorSearcher interface {
	Search(ctx context.Context, collection string, query []float32, k int) ([]vectorstore.SearchResult, error)
}

// Config holds the per-engine retrieval and answering policy.
type Config struct {
	Collection       string
	TopK             int
	MaxPassages      int
	Alpha            float64
	Language         string
	Gate             GateConfig
	ClaimCheckMode   ClaimCheckMode
	RerankCandidates int
	// CallTimeout bounds every collaborator call when positive.
	CallTimeout time.Duration
}

// DefaultConfig returns the default policy for collection.
func DefaultConfig(collection string) Config {
	return Config{
		Collection:       collection,
		TopK:             DefaultTopK,
		MaxPassages:      DefaultMaxPassages,
		Alpha:            DefaultAlpha,
		Language:         lexical.LanguageAuto,
		Gate:             DefaultGateConfig(DefaultMinScore),
		ClaimCheckMode:   ClaimCheckRefuse,
		RerankCandidates: DefaultRerankCandidates,
	}
}

// Engine answers questions from the indexed corpus.
type Engine interface {
	// Ask answers a question, or refuses with probing questions when the evidence is weak.
	Ask(ctx context.Context, question string) (AnswerResult, error)
}

// ragEngine implements the Engine interface.
type ragEngine struct {
	cfg       Config
	locale    Locale
	embedder  Embedder
	searcher  VectorSearcher
	generator Generator
	lexical   *LexicalProvider
	reranker  *Reranker
	verifier  *ClaimVerifier
	metrics   *metrics.Metrics
	tracer    trace.Tracer
}

// NewEngine creates a new question answering engine. lexicalProvider may be nil
// for vector-only retrieval and reranker may be nil to disable re-ranking.
func NewEngine(
	cfg Config,
	embedder Embedder,
	searcher VectorSearcher,
	generator Generator,
	lexicalProvider *LexicalProvider,
	reranker *Reranker,
	m *metrics.Metrics,
) Engine {
	loc := LocaleFor(cfg.Language)
	return &ragEngine{
		cfg:       cfg,
		locale:    loc,
		embedder:  embedder,
		searcher:  searcher,
		generator: generator,
		lexical:   lexicalProvider,
		reranker:  reranker,
		verifier:  NewClaimVerifier(generator, loc),
		metrics:   m,
		tracer:    otel.Tracer("ragbook/internal/rag"),
	}
}

// Ask answers a question.
func (e *ragEngine) Ask(ctx context.Context, question string) (AnswerResult, error) {
	logger := contextutil.LoggerFromContext(ctx)

	if strings.TrimSpace(question) == "" {
		logger.WarnContext(ctx, "empty question")
		return AnswerResult{}, &service.ValidationError{Field: "question", Message: "cannot be empty"}
	}

	ctx, span := e.tracer.Start(ctx, "rag.Ask")
	defer span.End()

	logger.InfoContext(ctx, "question started", "question_length", len(question))

	ranked, err := e.retrieve(ctx, question)
	if err != nil {
		return e.fail(ctx, span, err)
	}

	decision := e.gate(ctx, question, ranked)
	if !decision.ShouldAnswer {
		logger.InfoContext(ctx, "question refused", "check", decision.Check, "reason", decision.Reason)
		e.metrics.RecordGateRefusal(string(decision.Check))
		e.metrics.RecordQuestion(metrics.OutcomeRefused)
		span.SetAttributes(attribute.String("rag.outcome", metrics.OutcomeRefused), attribute.String("rag.gate_check", string(decision.Check)))
		return AnswerResult{
			Answer:           e.locale.Refusal,
			Reason:           decision.Reason,
			Passages:         topCandidates(ranked, e.cfg.MaxPassages),
			ProbingQuestions: decision.ProbingQuestions,
			ClaimCheck:       ClaimCheckResult{Mode: e.cfg.ClaimCheckMode, Unsupported: []string{}},
			Reranked:         false,
		}, nil
	}

	ranked, reranked := e.rerank(ctx, question, ranked)

	passages := topCandidates(ranked, e.cfg.MaxPassages)
	answer, err := e.generate(ctx, question, passages)
	if err != nil {
		return e.fail(ctx, span, err)
	}

	check := e.verify(ctx, answer, passages)

	reason := decision.Reason
	if reranked {
		reason += rerankedSuffix
	}
	if len(check.Result.Unsupported) > 0 {
		reason += claimCheckedSuffix
	}

	e.metrics.RecordQuestion(metrics.OutcomeAnswered)
	span.SetAttributes(attribute.String("rag.outcome", metrics.OutcomeAnswered), attribute.Bool("rag.reranked", reranked))
	logger.InfoContext(ctx, "question answered",
		"passages", len(passages),
		"reranked", reranked,
		"unsupported", len(check.Result.Unsupported),
		"answer_length", len(check.FinalAnswer),
	)

	return AnswerResult{
		Answer:           check.FinalAnswer,
		Reason:           reason,
		Passages:         passages,
		ProbingQuestions: []string{},
		ClaimCheck:       check.Result,
		Reranked:         reranked,
	}, nil
}

func (e *ragEngine) fail(ctx context.Context, span trace.Span, err error) (AnswerResult, error) {
	contextutil.LoggerFromContext(ctx).ErrorContext(ctx, "question failed", "error", err)
	e.metrics.RecordQuestion(metrics.OutcomeError)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return AnswerResult{}, err
}

// retrieve embeds the question, runs vector and lexical search and fuses the hits.
func (e *ragEngine) retrieve(ctx context.Context, question string) ([]Candidate, error) {
	ctx, done := e.stage(ctx, stageRetrieve)
	defer done()
	logger := contextutil.LoggerFromContext(ctx)

	cctx, cancel := e.callContext(ctx)
	queryVec, err := e.embedder.EmbedQuery(cctx, question)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to embed question: %w", service.ErrExternalService, err)
	}

	limit := max(e.cfg.TopK, e.cfg.MaxPassages)
	cctx, cancel = e.callContext(ctx)
	results, err := e.searcher.Search(cctx, e.cfg.Collection, queryVec, limit)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("%w: vector search failed: %w", service.ErrVectorStore, err)
	}

	vectorHits := make([]VectorHit, 0, len(results))
	for _, r := range results {
		id := r.ChunkID
		if id == "" {
			id = r.Payload.ChunkID
		}
		vectorHits = append(vectorHits, VectorHit{ChunkID: id, Score: float64(r.Score), Payload: r.Payload})
	}

	var lexicalHits []lexical.Result
	if e.lexical != nil {
		cctx, cancel = e.callContext(ctx)
		idx, status, err := e.lexical.Index(cctx)
		cancel()
		if status == StageDegraded {
			e.metrics.RecordDegraded(stageLexical)
			logger.WarnContext(ctx, "lexical retrieval skipped", "stage", stageLexical, "error", err)
		}
		if idx != nil {
			lexicalHits = idx.Search(question, e.cfg.TopK)
		}
	}

	ranked := Fuse(vectorHits, lexicalHits, e.cfg.Alpha)
	logger.DebugContext(ctx, "retrieval completed",
		"vector_hits", len(vectorHits),
		"lexical_hits", len(lexicalHits),
		"candidates", len(ranked),
	)
	return ranked, nil
}

func (e *ragEngine) gate(ctx context.Context, question string, ranked []Candidate) EvidenceDecision {
	_, done := e.stage(ctx, stageGate)
	defer done()
	return Decide(question, ranked, e.cfg.Gate, e.locale)
}

// rerank applies the reranker when configured and reports whether it changed the ranking.
func (e *ragEngine) rerank(ctx context.Context, question string, ranked []Candidate) ([]Candidate, bool) {
	if e.reranker == nil {
		return ranked, false
	}

	ctx, done := e.stage(ctx, stageRerank)
	defer done()

	cctx, cancel := e.callContext(ctx)
	defer cancel()

	out := e.reranker.Rerank(cctx, question, ranked, e.cfg.RerankCandidates)
	if out.Status == StageDegraded {
		e.metrics.RecordDegraded(stageRerank)
	}
	return out.Candidates, out.Status == StageApplied
}

func (e *ragEngine) generate(ctx context.Context, question string, passages []Candidate) (string, error) {
	ctx, done := e.stage(ctx, stageGenerate)
	defer done()

	cctx, cancel := e.callContext(ctx)
	defer cancel()

	answer, err := e.generator.Generate(cctx, BuildGroundedPrompt(question, passages, e.locale))
	if err != nil {
		return "", fmt.Errorf("%w: failed to generate answer: %w", service.ErrExternalService, err)
	}
	return answer, nil
}

func (e *ragEngine) verify(ctx context.Context, answer string, passages []Candidate) ClaimCheckOutcome {
	ctx, done := e.stage(ctx, stageClaimCheck)
	defer done()

	cctx, cancel := e.callContext(ctx)
	defer cancel()

	out := e.verifier.Verify(cctx, answer, passages, e.cfg.ClaimCheckMode)
	if out.Status == StageDegraded {
		e.metrics.RecordDegraded(stageClaimCheck)
	}
	e.metrics.AddUnsupportedClaims(len(out.Result.Unsupported))
	return out
}

// stage starts a span for a pipeline stage and returns a func that ends it and records its duration.
func (e *ragEngine) stage(ctx context.Context, name string) (context.Context, func()) {
	ctx, span := e.tracer.Start(ctx, "rag."+name)
	start := time.Now()
	return ctx, func() {
		e.metrics.ObserveStage(name, time.Since(start))
		span.End()
	}
}

func (e *ragEngine) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.cfg.CallTimeout > 0 {
		return context.WithTimeout(ctx, e.cfg.CallTimeout)
	}
	return ctx, func() {}
}

// topCandidates returns a copy of the first n candidates.
func topCandidates(ranked []Candidate, n int) []Candidate {
	n = max(0, min(n, len(ranked)))
	return slices.Clone(ranked[:n:n])
}
