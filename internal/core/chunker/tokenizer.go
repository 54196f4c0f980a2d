package chunker

import (
	"strings"

	"github.com/rivo/uniseg"

	"github.com/markdave123-py/corpora-indexer/internal/core"
)

var _ core.Tokenizer = WordTokenizer{}

// WordTokenizer splits text on Unicode word boundaries (UAX #29).
// Whitespace is glued to the token that follows it, so joining the tokens
// gives back the input byte for byte.
type WordTokenizer struct{}

func (WordTokenizer) Tokenize(text string) []string {
	if text == "" {
		return nil
	}

	tokens := make([]string, 0, len(text)/4+1)
	var (
		pending strings.Builder
		word    string
		state   = -1
	)
	rest := text
	for len(rest) > 0 {
		word, rest, state = uniseg.FirstWordInString(rest, state)
		if strings.TrimSpace(word) == "" {
			pending.WriteString(word)
			continue
		}
		if pending.Len() > 0 {
			word = pending.String() + word
			pending.Reset()
		}
		tokens = append(tokens, word)
	}
	if pending.Len() > 0 {
		tokens = append(tokens, pending.String())
	}
	return tokens
}

func (t WordTokenizer) Count(text string) int {
	return len(t.Tokenize(text))
}

// Words returns the lower-cased word tokens of text without whitespace or
// punctuation. The sparse encoder uses it for term statistics.
func Words(text string) []string {
	var (
		out   []string
		word  string
		state = -1
	)
	rest := text
	for len(rest) > 0 {
		word, rest, state = uniseg.FirstWordInString(rest, state)
		if !hasLetterOrDigit(word) {
			continue
		}
		out = append(out, strings.ToLower(word))
	}
	return out
}

func hasLetterOrDigit(s string) bool {
	for _, r := range s {
		if isLetterOrDigit(r) {
			return true
		}
	}
	return false
}
