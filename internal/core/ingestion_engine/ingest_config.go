package ingestion_engine

import (
	"github.com/markdave123-py/corpora-indexer/internal/config"
)

// IngestConfig tunes the pipeline.
//
// Bucket:     object storage bucket holding the raw files.
// MirrorDir:  local directory mirroring fetched raw files by object key.
// NumWorkers: number of documents processed in parallel.
type IngestConfig struct {
	Bucket     string
	MirrorDir  string
	NumWorkers int
}

func NewIngestConfig(cfg *config.Config) *IngestConfig {
	return &IngestConfig{
		Bucket:     cfg.BucketName,
		MirrorDir:  cfg.MirrorDir,
		NumWorkers: cfg.NumWorkers,
	}
}
