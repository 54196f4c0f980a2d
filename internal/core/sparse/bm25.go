// Package sparse computes BM25 term-frequency vectors for lexical matching.
// The IDF half of BM25 is applied by the vector store at query time.
package sparse

import (
	"math"
	"sort"

	"github.com/cespare/xxhash/v2"

	"github.com/markdave123-py/corpora-indexer/internal/core"
	"github.com/markdave123-py/corpora-indexer/internal/core/chunker"
	"github.com/markdave123-py/corpora-indexer/internal/models"
)

const (
	DefaultK      = 1.2
	DefaultB      = 0.75
	DefaultAvgLen = 256.0
)

var _ core.SparseEncoder = (*BM25)(nil)

// BM25 holds fixed corpus statistics. It is immutable once built.
type BM25 struct {
	k         float64
	b         float64
	avgLen    float64
	stopwords map[string]struct{}
}

// NewBM25 builds an encoder. Non-positive parameters fall back to the defaults.
func NewBM25(k, b, avgLen float64) *BM25 {
	if k <= 0 {
		k = DefaultK
	}
	if b < 0 || b > 1 {
		b = DefaultB
	}
	if avgLen <= 0 {
		avgLen = DefaultAvgLen
	}
	return &BM25{k: k, b: b, avgLen: avgLen, stopwords: englishStopwords}
}

// Embed returns one vector per text, with strictly increasing indices.
func (e *BM25) Embed(texts []string) []models.SparseVector {
	out := make([]models.SparseVector, len(texts))
	for i, t := range texts {
		out[i] = e.embedOne(t)
	}
	return out
}

func (e *BM25) embedOne(text string) models.SparseVector {
	words := chunker.Words(text)

	tf := make(map[uint32]float64)
	docLen := 0
	for _, w := range words {
		if _, stop := e.stopwords[w]; stop {
			continue
		}
		docLen++
		tf[TermIndex(w)]++
	}
	if len(tf) == 0 {
		return models.SparseVector{Indices: []uint32{}, Values: []float32{}}
	}

	norm := e.k * (1 - e.b + e.b*float64(docLen)/e.avgLen)
	indices := make([]uint32, 0, len(tf))
	for idx := range tf {
		indices = append(indices, idx)
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })

	values := make([]float32, len(indices))
	for i, idx := range indices {
		f := tf[idx]
		values[i] = float32(f * (e.k + 1) / (f + norm))
	}
	return models.SparseVector{Indices: indices, Values: values}
}

// TermIndex maps a term to its sparse dimension. Colliding terms share a dimension.
func TermIndex(term string) uint32 {
	return uint32(xxhash.Sum64String(term) & math.MaxUint32)
}

var englishStopwords = toSet(
	"a", "an", "and", "are", "as", "at", "be", "but", "by", "for", "if", "in", "into", "is", "it",
	"no", "not", "of", "on", "or", "such", "that", "the", "their", "then", "there", "these",
	"they", "this", "to", "was", "will", "with",
)

func toSet(words ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
