package ingestion_engine

import (
	"context"

	"github.com/markdave123-py/corpora-indexer/internal/models"
)

// Ingestor runs a full pipeline pass over catalog entries.
type Ingestor interface {
	Run(ctx context.Context, entries []models.CatalogEntry) Stats
}

// Processor turns one entry into chunks.
type Processor interface {
	Process(ctx context.Context, entry models.CatalogEntry) ([]models.Chunk, error)
}

// Writer stores the chunks of one document.
type Writer interface {
	Upsert(ctx context.Context, chunks []models.Chunk) (UpsertResult, error)
}

// Stats summarises one pass.
//
// Processed: documents written to the index.
// Skipped:   documents already fully indexed.
// Failed:    documents that failed in the pipeline or the writer.
// Chunks:    records written.
type Stats struct {
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
	Chunks    int `json:"chunks"`
}
