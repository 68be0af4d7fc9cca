package rag

import "ragbook/internal/vectorstore"

// AskRequest represents a question request.
type AskRequest struct {
	// Question is the user's question to answer.
	Question string `json:"question"`
}

// VectorHit is a vector similarity hit as returned by the vector store.
type VectorHit struct {
	ChunkID string
	Score   float64
	Payload vectorstore.ChunkPayload
}

// Candidate is a chunk scored for one question. FusedScore is overwritten by
// the reranker for re-ranked members only.
type Candidate struct {
	// ChunkID is the stable chunk identifier.
	ChunkID string `json:"chunk_id"`
	// FusedScore is the combined, normalized score used for ranking.
	FusedScore float64 `json:"fused_score"`
	// VectorScore is the raw vector similarity, zero when the chunk had no vector hit.
	VectorScore float64 `json:"vector_score"`
	// LexicalScore is the raw BM25 score, zero when the chunk had no lexical hit.
	LexicalScore float64 `json:"lexical_score"`
	// Payload is the chunk metadata and text.
	Payload vectorstore.ChunkPayload `json:"payload"`
}

// GateCheck names the evidence gate check that refused a question.
type GateCheck string

const (
	CheckNone        GateCheck = ""
	CheckNoHits      GateCheck = "no_hits"
	CheckLowScore    GateCheck = "low_score"
	CheckLowCoverage GateCheck = "low_coverage"
	CheckAmbiguous   GateCheck = "ambiguous"
	CheckLowOverlap  GateCheck = "low_overlap"
)

// EvidenceDecision is the evidence gate's verdict for one question.
type EvidenceDecision struct {
	ShouldAnswer     bool
	Reason           string
	Check            GateCheck
	ProbingQuestions []string
}

// ClaimCheckMode selects what happens to an answer with unsupported claims.
type ClaimCheckMode string

const (
	// ClaimCheckStrip removes unsupported sentences.
	ClaimCheckStrip ClaimCheckMode = "strip"
	// ClaimCheckRefuse replaces the whole answer with the refusal sentence.
	ClaimCheckRefuse ClaimCheckMode = "refuse"
)

// ClaimCheckResult reports the claim check of one answer.
type ClaimCheckResult struct {
	Mode        ClaimCheckMode `json:"mode"`
	Unsupported []string       `json:"unsupported"`
}

// AnswerResult is the complete result of one question, on every path.
type AnswerResult struct {
	// Answer is the final answer or the refusal sentence.
	Answer string `json:"answer"`
	// Reason is the gate reason, suffixed when re-ranking or the claim check altered the outcome.
	Reason string `json:"reason"`
	// Passages are the top candidates, surfaced also when refusing.
	Passages []Candidate `json:"passages"`
	// ProbingQuestions are clarifying questions, only set when refusing.
	ProbingQuestions []string `json:"probing_questions"`
	// ClaimCheck is the claim check result.
	ClaimCheck ClaimCheckResult `json:"claim_check"`
	// Reranked reports whether re-ranking was applied.
	Reranked bool `json:"reranked"`
}

// StageStatus is the outcome of an optional pipeline stage.
type StageStatus int

const (
	// StageApplied means the stage ran and its result was used.
	StageApplied StageStatus = iota
	// StageSkipped means the stage was disabled or had nothing to do.
	StageSkipped
	// StageDegraded means the stage failed and the pipeline continued without it.
	StageDegraded
)

func (s StageStatus) String() string {
	switch s {
	case StageApplied:
		return "applied"
	case StageSkipped:
		return "skipped"
	case StageDegraded:
		return "degraded"
	default:
		return "unknown"
	}
}
