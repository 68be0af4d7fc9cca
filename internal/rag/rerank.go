package rag

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"ragbook/internal/contextutil"
)

// DefaultRerankCandidates is the default size of the re-scored leading slice.
const DefaultRerankCandidates = 30

// RelevanceModel scores (query, passage) pairs. Higher is more relevant.
// It returns exactly one score per passage, in passage order.
type RelevanceModel interface {
	Score(ctx context.Context, query string, passages []string) ([]float64, error)
}

// ModelFactory constructs the relevance model. It is called at most once.
type ModelFactory func(ctx context.Context) (RelevanceModel, error)

// RerankOutcome is the result of one rerank call. Candidates is always a
// complete ranking, equal to the input unless Status is StageApplied.
type RerankOutcome struct {
	Candidates []Candidate
	Status     StageStatus
	Err        error
}

// Reranker re-scores the leading candidates with a relevance model that is
// built lazily on first use and shared by all questions afterwards.
type Reranker struct {
	factory ModelFactory

	once     sync.Once
	model    RelevanceModel
	buildErr error
}

// NewReranker creates a reranker. A nil factory disables re-ranking.
func NewReranker(factory ModelFactory) *Reranker {
	return &Reranker{factory: factory}
}

func (r *Reranker) loadModel(ctx context.Context) (RelevanceModel, error) {
	r.once.Do(func() {
		// Built once for the process, so it must not inherit the caller's deadline.
		model, err := r.factory(context.WithoutCancel(ctx))
		if err == nil && model == nil {
			err = errors.New("factory returned no model")
		}
		r.model, r.buildErr = model, err
	})
	return r.model, r.buildErr
}

// Rerank replaces the fused scores of the first maxCandidates candidates with
// relevance model scores and re-sorts the whole ranking. The input slice is
// never modified. Any model failure returns the input unchanged with StageDegraded.
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []Candidate, maxCandidates int) RerankOutcome {
	if r == nil || r.factory == nil || len(candidates) == 0 {
		return RerankOutcome{Candidates: candidates, Status: StageSkipped}
	}

	logger := contextutil.LoggerFromContext(ctx)
	degrade := func(err error) RerankOutcome {
		logger.WarnContext(ctx, "re-ranking unavailable, continuing without it", "stage", "rerank", "error", err)
		return RerankOutcome{Candidates: candidates, Status: StageDegraded, Err: err}
	}

	model, err := r.loadModel(ctx)
	if err != nil {
		return degrade(fmt.Errorf("failed to build rerank model: %w", err))
	}

	if maxCandidates <= 0 || maxCandidates > len(candidates) {
		maxCandidates = len(candidates)
	}

	head := candidates[:maxCandidates]
	texts := make([]string, len(head))
	for i, c := range head {
		texts[i] = c.Payload.Text
	}

	scores, err := model.Score(ctx, query, texts)
	if err != nil {
		return degrade(fmt.Errorf("rerank prediction failed: %w", err))
	}
	if len(scores) != len(head) {
		return degrade(fmt.Errorf("rerank returned %d scores for %d candidates", len(scores), len(head)))
	}

	out := slices.Clone(candidates)
	for i := range head {
		out[i].FusedScore = scores[i]
	}
	sortByScore(out)

	return RerankOutcome{Candidates: out, Status: StageApplied}
}
