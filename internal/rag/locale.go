package rag

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
)

// Locale holds the user-facing text of one answer language.
type Locale struct {
	Tag              language.Tag
	Refusal          string
	ProbingQuestions []string
	// QueryNote is appended to each probing question; %s is the user's query.
	QueryNote string
	grounded         groundedTemplate
	claimCheck       claimCheckTemplate
}

type groundedTemplate struct {
	intro    string
	rules    []string
	question string
	passages string
	format   []string
}

type claimCheckTemplate struct {
	instruction string
	answer      string
	passages    string
	none        string
}

var english = Locale{
	Tag:     language.English,
	Refusal: "Not enough information in the books.",
	ProbingQuestions: []string{
		"Which topic or subfield are you referring to?",
		"Which chapter, term or standard is relevant (if known)?",
		"Which quantities or facts are given, and what should be determined?",
		"Are you looking for a definition or explanation, or for a concrete worked example?",
		"Which assumptions or boundary conditions apply?",
	},
	QueryNote: " (Original query: '%s')",
	grounded: groundedTemplate{
		intro: "You are a precise assistant answering questions from the books in this library.",
		rules: []string{
			"Answer *only* based on the PASSAGES below.",
			`If the PASSAGES are insufficient, say: "Not enough information in the books." and suggest 3-5 concrete follow-up questions.`,
			"Do not invent anything. No assumptions, no external facts.",
		},
		question: "Question",
		passages: "PASSAGES",
		format: []string{
			"1) Answer (short, factual)",
			"2) Evidence: list of used chunk_id (and short note: which claim is supported where)",
			"3) Missing info / follow-up questions (if any)",
		},
	},
	claimCheck: claimCheckTemplate{
		instruction: "Verify which sentences in the provided ANSWER are NOT directly supported by the PASSAGES. " +
			"Return ONLY a JSON array (no extra text) listing unsupported sentences (exact substrings from the answer).",
		answer:   "ANSWER",
		passages: "PASSAGES",
		none:     "If all sentences are supported, return `[]`.",
	},
}

var german = Locale{
	Tag:     language.German,
	Refusal: "Nicht genug Information in den Büchern.",
	ProbingQuestions: []string{
		"Auf welches Thema oder Teilgebiet beziehst du dich?",
		"Welches Kapitel, welcher Begriff oder welche Norm ist relevant (falls bekannt)?",
		"Welche Größen oder Fakten sind gegeben, und was soll bestimmt werden?",
		"Suchst du eine Definition oder Erklärung oder ein konkretes Rechenbeispiel?",
		"Welche Annahmen oder Randbedingungen gelten?",
	},
	QueryNote: " (Ursprüngliche Frage: '%s')",
	grounded: groundedTemplate{
		intro: "Du bist ein präziser Assistent, der Fragen anhand der Bücher dieser Bibliothek beantwortet.",
		rules: []string{
			"Antworte *nur* basierend auf den nachfolgenden PASSAGEN.",
			`Wenn die PASSAGEN nicht ausreichen, antworte: "Nicht genug Information in den Büchern." und schlage 3-5 konkrete Folgefragen vor.`,
			"Erfinde nichts. Keine Annahmen, keine externen Fakten.",
		},
		question: "Frage",
		passages: "PASSAGEN",
		format: []string{
			"1) Antwort (kurz, sachlich)",
			"2) Belege: Liste der verwendeten chunk_id (mit kurzer Notiz: welche Behauptung wo gestützt wird)",
			"3) Fehlende Infos / Folgefragen (falls vorhanden)",
		},
	},
	claimCheck: claimCheckTemplate{
		instruction: "Überprüfe, welche Sätze in der gegebenen ANTWORT NICHT direkt durch die PASSAGEN gestützt werden. " +
			"Gib AUSSCHLIESSLICH ein JSON-Array zurück (keinen zusätzlichen Text) mit den nicht unterstützten Sätzen (exakte Teilsätze aus der Antwort).",
		answer:   "ANTWORT",
		passages: "PASSAGEN",
		none:     "Wenn alle Sätze gestützt sind, gib `[]` zurück.",
	},
}

var (
	locales       = []Locale{english, german}
	localeMatcher = language.NewMatcher([]language.Tag{english.Tag, german.Tag})
)

// LocaleFor resolves a language hint such as "de", "de-AT" or "auto" to a
// locale. Unknown or empty hints resolve to English.
func LocaleFor(hint string) Locale {
	hint = strings.TrimSpace(hint)
	if hint == "" || strings.EqualFold(hint, "auto") {
		return english
	}

	tag, err := language.Parse(hint)
	if err != nil {
		return english
	}

	_, idx, conf := localeMatcher.Match(tag)
	if conf == language.No {
		return english
	}
	return locales[idx]
}

// ProbingQuestionsFor suffixes each probing question with the locale's note on the original query.
func (l Locale) ProbingQuestionsFor(query string) []string {
	note := ""
	if l.QueryNote != "" {
		note = fmt.Sprintf(l.QueryNote, query)
	}
	out := make([]string, 0, len(l.ProbingQuestions))
	for _, q := range l.ProbingQuestions {
		out = append(out, q+note)
	}
	return out
}
