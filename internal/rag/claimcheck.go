package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"ragbook/internal/contextutil"
)

// Generator produces a completion for a single-turn prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

const unsupportedMarker = "UNSUPPORTED:"

// ParseClaimCheckMode maps a configured mode to a ClaimCheckMode.
// Anything other than "strip" means refuse.
func ParseClaimCheckMode(s string) ClaimCheckMode {
	if strings.EqualFold(strings.TrimSpace(s), string(ClaimCheckStrip)) {
		return ClaimCheckStrip
	}
	return ClaimCheckRefuse
}

// ClaimCheckOutcome is the result of verifying one answer.
type ClaimCheckOutcome struct {
	Result      ClaimCheckResult
	FinalAnswer string
	Status      StageStatus
	Err         error
}

// ClaimVerifier asks the generator which answer sentences the passages do not support.
type ClaimVerifier struct {
	generator Generator
	locale    Locale
}

// NewClaimVerifier creates a verifier whose prompt and refusal follow loc.
func NewClaimVerifier(generator Generator, loc Locale) *ClaimVerifier {
	return &ClaimVerifier{generator: generator, locale: loc}
}

// Verify checks answer against passages with one generation call. A failed
// call counts as zero unsupported claims and reports StageDegraded. With
// unsupported claims, refuse mode returns the refusal sentence and strip mode
// drops the matching sentences, falling back to the refusal when nothing remains.
func (v *ClaimVerifier) Verify(ctx context.Context, answer string, passages []Candidate, mode ClaimCheckMode) ClaimCheckOutcome {
	out := ClaimCheckOutcome{
		Result:      ClaimCheckResult{Mode: mode, Unsupported: []string{}},
		FinalAnswer: answer,
		Status:      StageApplied,
	}

	resp, err := v.generator.Generate(ctx, BuildClaimCheckPrompt(answer, passages, v.locale))
	if err != nil {
		contextutil.LoggerFromContext(ctx).WarnContext(ctx, "claim check failed, keeping answer", "stage", "claim_check", "error", err)
		out.Status = StageDegraded
		out.Err = fmt.Errorf("claim check generation failed: %w", err)
		return out
	}

	unsupported := ParseUnsupported(resp)
	if len(unsupported) == 0 {
		return out
	}
	out.Result.Unsupported = unsupported

	if mode != ClaimCheckStrip {
		out.FinalAnswer = v.locale.Refusal
		return out
	}

	stripped := StripUnsupported(answer, unsupported)
	if strings.TrimSpace(stripped) == "" {
		stripped = v.locale.Refusal
	}
	out.FinalAnswer = stripped
	return out
}

// ParseUnsupported extracts unsupported claims from a claim check response.
// A JSON array of strings is preferred, optionally wrapped in a markdown code
// fence. Otherwise lines starting with "-" or "UNSUPPORTED:" (any case) each
// contribute one claim. Empty items are dropped.
func ParseUnsupported(resp string) []string {
	resp = strings.TrimSpace(resp)

	var items []any
	if err := json.Unmarshal([]byte(stripCodeFence(resp)), &items); err == nil {
		out := []string{}
		for _, item := range items {
			if s, ok := item.(string); ok {
				if s = strings.TrimSpace(s); s != "" {
					out = append(out, s)
				}
			}
		}
		return out
	}

	out := []string{}
	for _, line := range strings.Split(resp, "\n") {
		line = strings.TrimSpace(line)
		var item string
		switch {
		case strings.HasPrefix(line, "-"):
			item = strings.TrimLeft(line, "- ")
		case len(line) >= len(unsupportedMarker) && strings.EqualFold(line[:len(unsupportedMarker)], unsupportedMarker):
			item = line[len(unsupportedMarker):]
		default:
			continue
		}
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// stripCodeFence removes a surrounding ``` or ```json fence.
func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") || !strings.HasSuffix(s, "```") || len(s) < 6 {
		return s
	}
	s = strings.TrimSuffix(strings.TrimPrefix(s, "```"), "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 && !strings.ContainsAny(s[:nl], "[\"") {
		s = s[nl+1:]
	}
	return strings.TrimSpace(s)
}

// StripUnsupported drops every sentence of answer that equals an unsupported
// item or of which one is a prefix or suffix of the other, and joins the
// remaining sentences with single spaces. With no items the answer is returned unchanged.
func StripUnsupported(answer string, unsupported []string) string {
	if len(unsupported) == 0 {
		return answer
	}

	items := make([]string, 0, len(unsupported))
	for _, u := range unsupported {
		if u = strings.TrimSpace(u); u != "" {
			items = append(items, u)
		}
	}

	var keep []string
	for _, sentence := range splitSentences(strings.TrimSpace(answer)) {
		s := strings.TrimSpace(sentence)
		if s == "" || matchesAny(s, items) {
			continue
		}
		keep = append(keep, sentence)
	}
	return strings.TrimSpace(strings.Join(keep, " "))
}

func matchesAny(sentence string, items []string) bool {
	for _, item := range items {
		if sentence == item ||
			strings.HasPrefix(sentence, item) || strings.HasSuffix(sentence, item) ||
			strings.HasPrefix(item, sentence) || strings.HasSuffix(item, sentence) {
			return true
		}
	}
	return false
}

// splitSentences splits after '.', '!' or '?' when followed by whitespace,
// consuming the whitespace.
func splitSentences(text string) []string {
	if text == "" {
		return nil
	}

	var parts []string
	runes := []rune(text)
	start := 0
	for i := 0; i < len(runes)-1; i++ {
		if !strings.ContainsRune(".!?", runes[i]) || !unicode.IsSpace(runes[i+1]) {
			continue
		}
		parts = append(parts, string(runes[start:i+1]))
		j := i + 1
		for j < len(runes) && unicode.IsSpace(runes[j]) {
			j++
		}
		start = j
		i = j - 1
	}
	if start < len(runes) {
		parts = append(parts, string(runes[start:]))
	}
	return parts
}
