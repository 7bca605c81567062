package index

import (
	"strings"
	"unicode"
)

// enStopwords is the English stopword set. It is the only language with a
// populated set today; Tokenize with an unrecognized language still folds
// case and splits tokens, it just never removes any of them.
var enStopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"by": {}, "for": {}, "from": {}, "has": {}, "in": {}, "is": {}, "it": {},
	"of": {}, "on": {}, "or": {}, "that": {}, "the": {}, "to": {}, "was": {},
	"will": {}, "with": {},
}

var stopwordsByLanguage = map[string]map[string]struct{}{
	"en": enStopwords,
}

// enStemSuffixes is tried longest-first; the first matching suffix on a
// token long enough to survive stripping wins. This is a small
// suffix-stripping stemmer, not a full Porter implementation — adequate to
// collapse common inflections ("exploration"/"explores"/"explored") onto
// one token for full-text recall without a stemming dependency.
var enStemSuffixes = []string{"ational", "ication", "ation", "ingly", "edly", "ies", "ing", "ed", "es", "s"}

const enStemMinLen = 4

func stemEnglish(token string) string {
	for _, suffix := range enStemSuffixes {
		if strings.HasSuffix(token, suffix) && len(token)-len(suffix) >= enStemMinLen {
			return token[:len(token)-len(suffix)]
		}
	}
	return token
}

// Tokenize folds case, splits on non-alphanumeric runes, and, per opts,
// drops stop-words and stems the remaining tokens. It must be applied with
// the same opts at index time and query time so postings and queries land
// on the same terms; FulltextSearch and writeFullTextEntries/
// removeFullTextEntries all derive opts from the index's own catalog
// Definition.FullText for exactly this reason.
func Tokenize(text string, opts FullTextOptions) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	var stop map[string]struct{}
	if opts.StopWords {
		stop = stopwordsByLanguage[opts.Language]
	}

	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.ToLower(f)
		if stop != nil {
			if _, isStop := stop[f]; isStop {
				continue
			}
		}
		if opts.Stemming && opts.Language == "en" {
			f = stemEnglish(f)
		}
		tokens = append(tokens, f)
	}
	return tokens
}
