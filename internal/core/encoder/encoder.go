// Package encoder composes the dense and sparse encoders into the one service
// object handed to every worker.
package encoder

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/corpora-indexer/internal/core"
	"github.com/markdave123-py/corpora-indexer/internal/models"
)

// Dual runs both encoders over the same texts. It is built once at startup
// and never mutated afterwards.
type Dual struct {
	dense  core.DenseEncoder
	sparse core.SparseEncoder
}

func NewDual(dense core.DenseEncoder, sparse core.SparseEncoder) (*Dual, error) {
	if dense == nil || sparse == nil {
		return nil, fmt.Errorf("encoder: dense and sparse encoders are required")
	}
	return &Dual{dense: dense, sparse: sparse}, nil
}

// Dense exposes the dense encoder, whose tokenizer the chunker must share.
func (d *Dual) Dense() core.DenseEncoder { return d.dense }

// Encode computes both vector kinds concurrently. The sparse side cannot fail,
// so a dense error is the only error returned.
func (d *Dual) Encode(ctx context.Context, texts []string) ([][]float32, []models.SparseVector, error) {
	if len(texts) == 0 {
		return nil, nil, nil
	}

	var (
		dense  [][]float32
		sparse []models.SparseVector
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		dense, err = d.dense.EmbedTexts(gctx, texts)
		if err != nil {
			return fmt.Errorf("dense encode: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		sparse = d.sparse.Embed(texts)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	if len(dense) != len(texts) || len(sparse) != len(texts) {
		return nil, nil, fmt.Errorf("%w: %d texts, %d dense, %d sparse",
			core.ErrEncoderMismatch, len(texts), len(dense), len(sparse))
	}
	return dense, sparse, nil
}
