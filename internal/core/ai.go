package core

import (
	"context"

	"github.com/markdave123-py/corpora-indexer/internal/models"
)

// Tokenizer splits text into tokens whose concatenation is the original text.
type Tokenizer interface {
	Tokenize(text string) []string
	Count(text string) int
}

// DenseEncoder turns chunk texts into fixed-dimension vectors.
// Implementations are loaded once and safe for concurrent use.
type DenseEncoder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	// MaxTokens is the longest input, in Tokenizer tokens, the model accepts.
	MaxTokens() int
	Tokenizer() Tokenizer
}

// SparseEncoder computes term-weighted sparse vectors. Safe for concurrent use.
type SparseEncoder interface {
	Embed(texts []string) []models.SparseVector
}
