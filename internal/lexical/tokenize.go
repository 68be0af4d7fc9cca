package lexical

import (
	"regexp"
	"strings"

	"github.com/blevesearch/snowballstem"
	"github.com/blevesearch/snowballstem/dutch"
	"github.com/blevesearch/snowballstem/english"
	"github.com/blevesearch/snowballstem/french"
	"github.com/blevesearch/snowballstem/german"
	"github.com/blevesearch/snowballstem/italian"
	"github.com/blevesearch/snowballstem/spanish"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// LanguageAuto is the hint used when the corpus language is unknown.
const LanguageAuto = "auto"

var wordPattern = regexp.MustCompile(`[\p{L}\p{M}\p{N}_]+`)

var stemmers = map[string]func(*snowballstem.Env) bool{
	"de": german.Stem,
	"en": english.Stem,
	"es": spanish.Stem,
	"fr": french.Stem,
	"it": italian.Stem,
	"nl": dutch.Stem,
}

// Tokenize lowercases text and returns its maximal runs of word characters.
// No stemming is applied; it is the tokenizer shared with the evidence gate.
func Tokenize(text string) []string {
	if text == "" {
		return nil
	}
	return wordPattern.FindAllString(strings.ToLower(norm.NFC.String(text)), -1)
}

// BaseLanguage resolves a BCP 47 language hint such as "de" or "de-AT" to its
// base language ("de"). Unparseable or "auto" hints resolve to "".
func BaseLanguage(hint string) string {
	hint = strings.ToLower(strings.TrimSpace(hint))
	if hint == "" || hint == LanguageAuto {
		return ""
	}
	tag, err := language.Parse(hint)
	if err != nil {
		return ""
	}
	base, confidence := tag.Base()
	if confidence == language.No {
		return ""
	}
	return base.String()
}

// stemFunc stems a single lowercase token.
type stemFunc func(string) string

// stemmerFor returns the stemmer for a language hint, or nil when none is available.
func stemmerFor(hint string) stemFunc {
	stem, ok := stemmers[BaseLanguage(hint)]
	if !ok {
		return nil
	}
	return func(token string) (out string) {
		// A failing stemmer leaves the token unstemmed.
		defer func() {
			if r := recover(); r != nil {
				out = token
			}
		}()
		env := snowballstem.NewEnv(token)
		stem(env)
		if stemmed := env.Current(); stemmed != "" {
			return stemmed
		}
		return token
	}
}
