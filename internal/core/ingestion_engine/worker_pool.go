package ingestion_engine

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/markdave123-py/corpora-indexer/internal/logger"
	"github.com/markdave123-py/corpora-indexer/internal/models"
	"github.com/markdave123-py/corpora-indexer/internal/telemetry"
)

var _ Ingestor = (*WorkerPool)(nil)

// documentTimeout bounds the pipeline for a single document.
const documentTimeout = 15 * time.Minute

type result struct {
	entry    models.CatalogEntry
	chunks   []models.Chunk
	err      error
	duration time.Duration
}

// WorkerPool fans the pipeline out over a fixed set of workers and writes each
// document as soon as its chunks arrive, in completion order.
type WorkerPool struct {
	pipeline   Processor
	writer     Writer
	numWorkers int
}

func NewWorkerPool(pipeline Processor, writer Writer, numWorkers int) *WorkerPool {
	if numWorkers < 1 {
		numWorkers = 1
	}
	return &WorkerPool{pipeline: pipeline, writer: writer, numWorkers: numWorkers}
}

// Run processes every entry and returns once all of them are written or failed.
// A failing document never stops the others.
func (p *WorkerPool) Run(ctx context.Context, entries []models.CatalogEntry) Stats {
	var stats Stats
	if len(entries) == 0 {
		return stats
	}

	jobs := make(chan models.CatalogEntry)
	results := make(chan result, p.numWorkers)

	var wg sync.WaitGroup
	for w := 1; w <= min(p.numWorkers, len(entries)); w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for entry := range jobs {
				results <- p.processOne(ctx, w, entry)
			}
		}(w)
	}

	go func() {
		defer close(jobs)
		for _, e := range entries {
			select {
			case jobs <- e:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	for r := range results {
		key := r.entry.ObjectKey()
		if r.err != nil {
			stats.Failed++
			logger.Error("document processing failed", "document", key, "duration", r.duration, "error", r.err)
			continue
		}

		res, err := p.writer.Upsert(ctx, r.chunks)
		switch {
		case err != nil:
			stats.Failed++
			logger.Error("document index write failed", "document", key, "error", err)
		case res.Skipped:
			stats.Skipped++
		default:
			stats.Processed++
			stats.Chunks += res.Written
		}
	}
	return stats
}

func (p *WorkerPool) processOne(ctx context.Context, worker int, entry models.CatalogEntry) result {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, documentTimeout)
	defer cancel()

	ctx, span := telemetry.Tracer().Start(ctx, "pipeline.process")
	defer span.End()
	span.SetAttributes(
		attribute.String("document", entry.ObjectKey()),
		attribute.Int("worker", worker),
	)

	logger.Debug("processing document", "document", entry.ObjectKey(), "worker", worker)
	chunks, err := p.pipeline.Process(ctx, entry)
	if err != nil {
		span.RecordError(err)
	}
	return result{entry: entry, chunks: chunks, err: err, duration: time.Since(start).Round(time.Millisecond)}
}
