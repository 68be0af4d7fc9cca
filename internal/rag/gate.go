package rag

import (
	"fmt"
	"unicode/utf8"

	"ragbook/internal/lexical"
)

// Evidence gate defaults.
const (
	DefaultGapThreshold       = 0.15
	DefaultMinTokenOverlap    = 0.15
	DefaultRequireDocCoverage = 2

	coverageWindow     = 5
	coverageMinHits    = 3
	minSingleTokenRune = 2
)

// GateConfig holds the evidence gate thresholds.
type GateConfig struct {
	MinScore           float64
	GapThreshold       float64
	MinTokenOverlap    float64
	RequireDocCoverage int
}

// DefaultGateConfig returns the default thresholds with the given score floor.
func DefaultGateConfig(minScore float64) GateConfig {
	return GateConfig{
		MinScore:           minScore,
		GapThreshold:       DefaultGapThreshold,
		MinTokenOverlap:    DefaultMinTokenOverlap,
		RequireDocCoverage: DefaultRequireDocCoverage,
	}
}

// Decide decides whether ranked holds enough evidence to answer query.
// Checks run in a fixed order and the first failing one refuses:
// no hits, weak top score, low source coverage, ambiguous top two, and low
// lexical overlap between the query and the top passage.
func Decide(query string, ranked []Candidate, cfg GateConfig, loc Locale) EvidenceDecision {
	refuse := func(check GateCheck, reason string) EvidenceDecision {
		return EvidenceDecision{
			ShouldAnswer:     false,
			Reason:           reason,
			Check:            check,
			ProbingQuestions: loc.ProbingQuestionsFor(query),
		}
	}

	if len(ranked) == 0 {
		return refuse(CheckNoHits, "No hits in index.")
	}

	best := ranked[0].FusedScore
	if best < cfg.MinScore {
		return refuse(CheckLowScore, fmt.Sprintf("Top score too weak (Score %.3f < %.3f).", best, cfg.MinScore))
	}

	top := ranked[:min(coverageWindow, len(ranked))]
	docs := make(map[string]struct{}, len(top))
	for _, c := range top {
		docs[sourceKey(c)] = struct{}{}
	}
	if len(top) >= coverageMinHits && len(docs) < cfg.RequireDocCoverage {
		return refuse(CheckLowCoverage, fmt.Sprintf("Low source coverage (only %d source(s) in top results).", len(docs)))
	}

	if len(ranked) > 1 {
		gap := best - ranked[1].FusedScore
		if gap < cfg.GapThreshold {
			return refuse(CheckAmbiguous, fmt.Sprintf("Ambiguous top hits (score gap %.3f < %.3f).", gap, cfg.GapThreshold))
		}
	}

	queryTokens := lexical.Tokenize(query)
	passageTokens := make(map[string]struct{})
	for _, t := range lexical.Tokenize(ranked[0].Payload.Text) {
		passageTokens[t] = struct{}{}
	}

	switch {
	case len(queryTokens) >= 2:
		shared := make(map[string]struct{})
		for _, t := range queryTokens {
			if _, ok := passageTokens[t]; ok {
				shared[t] = struct{}{}
			}
		}
		overlap := float64(len(shared)) / float64(len(queryTokens))
		if overlap < cfg.MinTokenOverlap {
			return refuse(CheckLowOverlap, fmt.Sprintf("Low lexical overlap with top passage (overlap %.2f < %.2f).", overlap, cfg.MinTokenOverlap))
		}
	case len(queryTokens) == 1:
		tok := queryTokens[0]
		if _, ok := passageTokens[tok]; !ok && utf8.RuneCountInString(tok) >= minSingleTokenRune {
			return refuse(CheckLowOverlap, fmt.Sprintf("Low lexical overlap with top passage (token '%s' missing).", tok))
		}
	}

	return EvidenceDecision{ShouldAnswer: true, Reason: "OK", Check: CheckNone, ProbingQuestions: []string{}}
}

// sourceKey identifies the source document of a candidate: doc id, else title, else empty.
func sourceKey(c Candidate) string {
	if c.Payload.DocID != "" {
		return c.Payload.DocID
	}
	return c.Payload.DocTitle
}
