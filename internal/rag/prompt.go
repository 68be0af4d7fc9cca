package rag

import (
	"fmt"
	"strings"
)

// BuildGroundedPrompt embeds the passages verbatim with their identifiers and
// instructs the model to answer only from them.
func BuildGroundedPrompt(question string, passages []Candidate, loc Locale) string {
	t := loc.grounded

	var b strings.Builder
	b.WriteString(t.intro)
	b.WriteString("\n")
	for _, rule := range t.rules {
		b.WriteString("- ")
		b.WriteString(rule)
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "\n%s:\n%s\n\n", t.question, question)
	fmt.Fprintf(&b, "%s:\n%s\n\n", t.passages, passageBlock(passages, true))
	for _, line := range t.format {
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

// BuildClaimCheckPrompt asks the model to list the sentences of answer that
// the passages do not support, as a JSON array of strings.
func BuildClaimCheckPrompt(answer string, passages []Candidate, loc Locale) string {
	t := loc.claimCheck

	var b strings.Builder
	b.WriteString(t.instruction)
	fmt.Fprintf(&b, "\n\n%s:\n%s\n\n", t.answer, answer)
	fmt.Fprintf(&b, "%s:\n%s\n\n", t.passages, passageBlock(passages, false))
	b.WriteString(t.none)
	return b.String()
}

func passageBlock(passages []Candidate, withTitle bool) string {
	blocks := make([]string, 0, len(passages))
	for i, c := range passages {
		p := c.Payload
		chunkID := p.ChunkID
		if chunkID == "" {
			chunkID = c.ChunkID
		}

		header := fmt.Sprintf("[PASSAGE %d] page=%d chunk_id=%s", i+1, p.Page, chunkID)
		if withTitle {
			header = fmt.Sprintf("[PASSAGE %d] doc_title=%s page=%d chunk_id=%s", i+1, p.DocTitle, p.Page, chunkID)
		}
		blocks = append(blocks, header+"\n"+p.Text+"\n")
	}
	return strings.Join(blocks, "\n\n")
}
