package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func words(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = "w" + strings.Repeat("x", i%5)
	}
	return strings.Join(parts, " ")
}

func TestWordTokenizer_RoundTrip(t *testing.T) {
	texts := []string{
		"Hello, world!",
		"  leading and trailing  ",
		"multi\n\nline text\twith tabs",
		"Глубокое обучение для задач поиска",
		"don't split e-mail addresses like a.b@c.de",
	}
	for _, text := range texts {
		tokens := WordTokenizer{}.Tokenize(text)
		assert.Equal(t, text, strings.Join(tokens, ""), "tokens must rebuild %q", text)
	}
}

func TestWordTokenizer_Counts(t *testing.T) {
	tok := WordTokenizer{}
	assert.Equal(t, 0, tok.Count(""))
	assert.Equal(t, 2, tok.Count("hello world"))
	assert.Equal(t, []string{"Hello", ",", " world", "!"}, tok.Tokenize("Hello, world!"))
}

func TestWords(t *testing.T) {
	assert.Equal(t, []string{"the", "cat", "sat", "42"}, Words("The cat, sat: 42!"))
	assert.Empty(t, Words(" ... "))
}

func TestNew(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		s, err := New(WordTokenizer{})
		require.NoError(t, err)
		assert.Equal(t, DefaultMaxTokens, s.MaxTokens())
		assert.Equal(t, DefaultOverlap, s.Overlap())
	})

	t.Run("overlap not below size", func(t *testing.T) {
		_, err := New(WordTokenizer{}, WithMaxTokens(10), WithOverlap(10))
		assert.Error(t, err)
	})

	t.Run("non-positive size", func(t *testing.T) {
		_, err := New(WordTokenizer{}, WithMaxTokens(0))
		assert.Error(t, err)
	})

	t.Run("nil tokenizer", func(t *testing.T) {
		_, err := New(nil)
		assert.Error(t, err)
	})
}

func TestSplit_EmptyText(t *testing.T) {
	s, err := New(WordTokenizer{}, WithMaxTokens(10), WithOverlap(2))
	require.NoError(t, err)
	assert.Empty(t, s.Split(""))
}

func TestSplit_ShortText(t *testing.T) {
	s, err := New(WordTokenizer{}, WithMaxTokens(10), WithOverlap(2))
	require.NoError(t, err)

	for _, n := range []int{1, 5, 10} {
		segs := s.Split(words(n))
		assert.Len(t, segs, 1, "%d words", n)
		assert.Equal(t, words(n), segs[0])
	}
}

func TestSplit_BoundsAndReconstruction(t *testing.T) {
	tok := WordTokenizer{}
	cases := []struct {
		max, overlap, words int
	}{
		{10, 2, 11},
		{10, 2, 57},
		{7, 0, 30},
		{5, 4, 23},
		{512, 25, 2000},
	}
	for _, c := range cases {
		s, err := New(tok, WithMaxTokens(c.max), WithOverlap(c.overlap))
		require.NoError(t, err)

		text := words(c.words)
		segs := s.Split(text)
		require.NotEmpty(t, segs)

		original := tok.Tokenize(text)
		var rebuilt []string
		for i, seg := range segs {
			segTokens := tok.Tokenize(seg)
			assert.LessOrEqual(t, len(segTokens), c.max)
			if i == 0 {
				rebuilt = append(rebuilt, segTokens...)
				continue
			}
			// Consecutive segments share exactly `overlap` tokens.
			assert.Equal(t, rebuilt[len(rebuilt)-c.overlap:], segTokens[:c.overlap])
			rebuilt = append(rebuilt, segTokens[c.overlap:]...)
		}
		assert.Equal(t, original, rebuilt)
	}
}

func TestSplit_Deterministic(t *testing.T) {
	s, err := New(WordTokenizer{}, WithMaxTokens(8), WithOverlap(3))
	require.NoError(t, err)

	text := words(100)
	assert.Equal(t, s.Split(text), s.Split(text))
}

func TestClean(t *testing.T) {
	in := "Title\x00\r\n\r\n\r\n\r\nBody   text\t\twith  \n spaces \n\n\n\nEnd  "
	assert.Equal(t, "Title\n\nBody text with\nspaces\n\nEnd", Clean(in))
	assert.Equal(t, "", Clean(" \n\t "))
}
