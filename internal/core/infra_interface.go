package core

import (
	"context"

	"github.com/markdave123-py/corpora-indexer/internal/models"
)

// CatalogClient reads the full document catalog from the upstream API.
type CatalogClient interface {
	FetchCorpora(ctx context.Context) (*models.Corpora, error)
}

// ObjectClient defines interactions with S3 or any object storage.
// It's abstract so you can replace AWS with MinIO, GCP, etc. easily.
type ObjectClient interface {
	// FetchToFile downloads bucket/key into dst. dst only appears once the download completed.
	FetchToFile(ctx context.Context, bucket, key, dst string) error
}

// VectorStore is the target index. Every operation is scoped by a document-ref filter.
type VectorStore interface {
	// EnsureCollection creates the collection and payload indexes when allowed,
	// and fails with ErrCollectionMissing otherwise.
	EnsureCollection(ctx context.Context, denseDim int, autoCreate bool) error
	CountByRef(ctx context.Context, ref models.DocumentRef) (int, error)
	DeleteByRef(ctx context.Context, ref models.DocumentRef) error
	Upsert(ctx context.Context, records []models.IndexedRecord) error
	Close() error
}

// SyncJournal records reconciliation cycles.
type SyncJournal interface {
	Begin(ctx context.Context, run *models.SyncRun) error
	Finish(ctx context.Context, run *models.SyncRun) error
	Recent(ctx context.Context, limit int) ([]models.SyncRun, error)
	Close() error
}
