package rag

import (
	"sort"

	"ragbook/internal/lexical"
	"ragbook/internal/vectorstore"
)

// Fuse merges vector and lexical hits into one ranking.
//
// Candidates are the union of both hit lists in first-seen order, vector hits
// first. Each signal is min-max normalized over the union, with chunks missing
// from a list scoring zero for that signal; when a signal is constant, positive
// values map to 1 and the rest to 0. The fused score is
// alpha*vector + (1-alpha)*lexical and the result is sorted descending, ties
// keeping first-seen order.
func Fuse(vectorHits []VectorHit, lexicalHits []lexical.Result, alpha float64) []Candidate {
	var order []string
	seen := make(map[string]bool)
	vecScores := make(map[string]float64)
	vecPayloads := make(map[string]vectorstore.ChunkPayload)
	lexScores := make(map[string]float64)
	lexTexts := make(map[string]string)

	for _, h := range vectorHits {
		if seen[h.ChunkID] {
			continue
		}
		seen[h.ChunkID] = true
		order = append(order, h.ChunkID)
		vecScores[h.ChunkID] = h.Score
		vecPayloads[h.ChunkID] = h.Payload
	}
	for _, r := range lexicalHits {
		if _, dup := lexScores[r.ChunkID]; dup {
			continue
		}
		lexScores[r.ChunkID] = r.Score
		lexTexts[r.ChunkID] = r.Text
		if !seen[r.ChunkID] {
			seen[r.ChunkID] = true
			order = append(order, r.ChunkID)
		}
	}

	if len(order) == 0 {
		return []Candidate{}
	}

	vecNorm := normalize(order, vecScores)
	lexNorm := normalize(order, lexScores)

	candidates := make([]Candidate, len(order))
	for i, id := range order {
		payload, ok := vecPayloads[id]
		if !ok {
			payload = vectorstore.ChunkPayload{ChunkID: id, Text: lexTexts[id]}
		}
		candidates[i] = Candidate{
			ChunkID:      id,
			FusedScore:   alpha*vecNorm[i] + (1-alpha)*lexNorm[i],
			VectorScore:  vecScores[id],
			LexicalScore: lexScores[id],
			Payload:      payload,
		}
	}

	sortByScore(candidates)
	return candidates
}

// normalize min-max scales the scores of ids, missing ids counting as zero.
func normalize(ids []string, scores map[string]float64) []float64 {
	vals := make([]float64, len(ids))
	for i, id := range ids {
		vals[i] = scores[id]
	}

	lo, hi := vals[0], vals[0]
	for _, v := range vals[1:] {
		lo = min(lo, v)
		hi = max(hi, v)
	}

	out := make([]float64, len(vals))
	for i, v := range vals {
		switch {
		case hi != lo:
			out[i] = (v - lo) / (hi - lo)
		case v > 0:
			out[i] = 1
		}
	}
	return out
}

// sortByScore sorts candidates by descending fused score, keeping the order of ties.
func sortByScore(candidates []Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].FusedScore > candidates[j].FusedScore
	})
}
