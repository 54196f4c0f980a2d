// Package chunker splits extracted text into overlapping, token-bounded segments.
package chunker

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/markdave123-py/corpora-indexer/internal/core"
)

// DefaultMaxTokens is the default number of tokens per segment.
const DefaultMaxTokens = 512

// DefaultOverlap is the default number of tokens shared by consecutive segments.
const DefaultOverlap = 25

// Splitter cuts text into segments of at most maxTokens tokens, each starting
// overlap tokens before the previous one ended. It holds no state between calls.
type Splitter struct {
	tokenizer core.Tokenizer
	maxTokens int
	overlap   int
}

// Option configures the splitter.
type Option func(*Splitter)

// WithMaxTokens sets the segment size in tokens.
func WithMaxTokens(n int) Option {
	return func(s *Splitter) {
		s.maxTokens = n
	}
}

// WithOverlap sets the overlap between segments in tokens.
func WithOverlap(n int) Option {
	return func(s *Splitter) {
		s.overlap = n
	}
}

// New builds a splitter measuring tokens with tok, which must be the dense encoder's tokenizer.
func New(tok core.Tokenizer, opts ...Option) (*Splitter, error) {
	s := &Splitter{
		tokenizer: tok,
		maxTokens: DefaultMaxTokens,
		overlap:   DefaultOverlap,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.tokenizer == nil {
		return nil, fmt.Errorf("chunker: tokenizer is nil")
	}
	if s.maxTokens < 1 {
		return nil, fmt.Errorf("chunker: max tokens must be positive, got %d", s.maxTokens)
	}
	if s.overlap < 0 || s.overlap >= s.maxTokens {
		return nil, fmt.Errorf("chunker: overlap %d must be in [0, %d)", s.overlap, s.maxTokens)
	}
	return s, nil
}

// MaxTokens returns the configured segment size.
func (s *Splitter) MaxTokens() int { return s.maxTokens }

// Overlap returns the configured overlap.
func (s *Splitter) Overlap() int { return s.overlap }

// Split returns the segments of text. Empty text gives no segments; text of at
// most maxTokens tokens gives exactly one.
func (s *Splitter) Split(text string) []string {
	tokens := s.tokenizer.Tokenize(text)
	if len(tokens) == 0 {
		return nil
	}

	step := s.maxTokens - s.overlap
	out := make([]string, 0, len(tokens)/step+1)
	for start := 0; ; start += step {
		end := min(start+s.maxTokens, len(tokens))
		out = append(out, strings.Join(tokens[start:end], ""))
		if end == len(tokens) {
			break
		}
	}
	return out
}

var (
	horizontalSpace = regexp.MustCompile(`[ \t\f\v\x{00A0}]+`)
	spaceAroundNL   = regexp.MustCompile(` ?\n ?`)
	manyNewlines    = regexp.MustCompile(`\n{3,}`)
)

// Clean normalises extracted text before chunking: control characters are
// dropped, horizontal whitespace runs collapse to one space and at most one
// blank line is kept between paragraphs.
func Clean(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) || r == unicode.ReplacementChar {
			return -1
		}
		return r
	}, text)
	text = horizontalSpace.ReplaceAllString(text, " ")
	text = spaceAroundNL.ReplaceAllString(text, "\n")
	text = manyNewlines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

func isLetterOrDigit(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
