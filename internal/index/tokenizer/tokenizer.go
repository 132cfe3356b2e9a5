// Package tokenizer normalises catalog text for indexing and querying. It
// lower-cases input, folds diacritics, splits on non-alphanumeric
// boundaries, and drops stop-words and tokens below a minimum length.
package tokenizer

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MinTokenLength is the default minimum length for a token to be kept.
const MinTokenLength = 2

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "by": {}, "for": {}, "from": {}, "in": {}, "is": {},
	"it": {}, "of": {}, "on": {}, "or": {}, "that": {}, "the": {},
	"to": {}, "was": {}, "were": {}, "with": {}, "this": {},
}

// foldTransformer strips combining marks after NFD decomposition, turning
// "Brontë" into "Bronte".
var foldTransformer = transform.Chain(
	norm.NFD,
	runes.Remove(runes.In(unicode.Mn)),
	norm.NFC,
)

// Fold lower-cases s and removes diacritics.
func Fold(s string) string {
	folded, _, err := transform.String(foldTransformer, strings.ToLower(s))
	if err != nil {
		return strings.ToLower(s)
	}
	return folded
}

// Tokenize splits text into normalised tokens: folded, split on
// non-alphanumeric runes, stop-words and sub-minimum tokens dropped.
// Duplicates are retained so callers can count term frequency.
func Tokenize(text string) []string {
	return TokenizeMin(text, MinTokenLength)
}

// TokenizeMin is Tokenize with an explicit minimum token length.
func TokenizeMin(text string, minLen int) []string {
	folded := Fold(text)
	words := strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := make([]string, 0, len(words))
	for _, word := range words {
		if len(word) < minLen {
			continue
		}
		if _, isStop := stopWords[word]; isStop {
			continue
		}
		tokens = append(tokens, word)
	}
	return tokens
}

// Prefixes returns every prefix of token from minLen up to maxLen runes,
// including the token itself when it is within the cap. Used to build the
// autocomplete posting set.
func Prefixes(token string, minLen, maxLen int) []string {
	runes := []rune(token)
	if len(runes) < minLen {
		return nil
	}
	end := len(runes)
	if end > maxLen {
		end = maxLen
	}
	prefixes := make([]string, 0, end-minLen+1)
	for i := minLen; i <= end; i++ {
		prefixes = append(prefixes, string(runes[:i]))
	}
	return prefixes
}
