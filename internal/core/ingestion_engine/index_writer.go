package ingestion_engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/markdave123-py/corpora-indexer/internal/core"
	"github.com/markdave123-py/corpora-indexer/internal/logger"
	"github.com/markdave123-py/corpora-indexer/internal/models"
	"github.com/markdave123-py/corpora-indexer/internal/telemetry"
)

// pointNamespace seeds the deterministic record IDs.
var pointNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("corpora-indexer/chunk"))

// Encoder produces both vector kinds for a batch of texts.
type Encoder interface {
	Encode(ctx context.Context, texts []string) ([][]float32, []models.SparseVector, error)
}

// IndexWriter keeps each document's records equal to its current chunk set.
type IndexWriter struct {
	store   core.VectorStore
	encoder Encoder
}

func NewIndexWriter(store core.VectorStore, encoder Encoder) *IndexWriter {
	return &IndexWriter{store: store, encoder: encoder}
}

// UpsertResult tells whether a document was rewritten or left as is.
type UpsertResult struct {
	Skipped bool
	Written int
}

// PointID is the record ID of chunk n of ref. Rewrites of the same chunk keep
// their ID. Distinct refs never share an ID; the filename is quoted.
func PointID(ref models.DocumentRef, n int) string {
	name := fmt.Appendf(nil, "%d/%d/%q#%d", ref.CourseID, ref.ModuleID, ref.Filename, n)
	return uuid.NewSHA1(pointNamespace, name).String()
}

// Upsert writes chunks, which must share one document-ref. When the index
// already holds exactly len(chunks) records for that ref nothing is written.
// Otherwise the ref's records are deleted and the full set is inserted.
// Delete and insert are not atomic; a failure in between is repaired by the
// next call since the count no longer matches.
func (w *IndexWriter) Upsert(ctx context.Context, chunks []models.Chunk) (UpsertResult, error) {
	if len(chunks) == 0 {
		return UpsertResult{}, nil
	}
	ref := chunks[0].DocumentRef
	for _, c := range chunks[1:] {
		if c.DocumentRef != ref {
			return UpsertResult{}, fmt.Errorf("%w: %s and %s", core.ErrMixedDocumentRefs, ref, c.DocumentRef)
		}
	}

	ctx, span := telemetry.Tracer().Start(ctx, "index.upsert")
	defer span.End()
	span.SetAttributes(
		attribute.String("document", ref.ObjectKey()),
		attribute.Int("chunks", len(chunks)),
	)

	res, err := w.upsert(ctx, ref, chunks)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(attribute.Bool("skipped", res.Skipped))
	return res, err
}

func (w *IndexWriter) upsert(ctx context.Context, ref models.DocumentRef, chunks []models.Chunk) (UpsertResult, error) {
	existing, err := w.store.CountByRef(ctx, ref)
	if err != nil {
		return UpsertResult{}, fmt.Errorf("count %s: %w", ref, err)
	}
	if existing == len(chunks) {
		logger.Debug("document already indexed", "document", ref.ObjectKey(), "chunks", existing)
		return UpsertResult{Skipped: true}, nil
	}

	start := time.Now()
	if existing > 0 {
		if err := w.store.DeleteByRef(ctx, ref); err != nil {
			return UpsertResult{}, fmt.Errorf("delete %s: %w", ref, err)
		}
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	dense, sparse, err := w.encoder.Encode(ctx, texts)
	if err != nil {
		return UpsertResult{}, fmt.Errorf("encode %s: %w", ref, err)
	}

	records := make([]models.IndexedRecord, len(chunks))
	for i, c := range chunks {
		records[i] = models.IndexedRecord{
			ID:     PointID(ref, c.ChunkRef.ChunkNumber),
			Chunk:  c,
			Dense:  dense[i],
			Sparse: sparse[i],
		}
	}
	if err := w.store.Upsert(ctx, records); err != nil {
		return UpsertResult{}, fmt.Errorf("insert %s: %w", ref, err)
	}

	logger.Info("document indexed",
		"document", ref.ObjectKey(),
		"chunks", len(records),
		"replaced", existing,
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return UpsertResult{Written: len(records)}, nil
}
