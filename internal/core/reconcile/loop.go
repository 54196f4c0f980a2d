// Package reconcile polls the catalog and runs the pipeline when it changed.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/markdave123-py/corpora-indexer/internal/core"
	"github.com/markdave123-py/corpora-indexer/internal/core/ingestion_engine"
	"github.com/markdave123-py/corpora-indexer/internal/logger"
	"github.com/markdave123-py/corpora-indexer/internal/models"
	"github.com/markdave123-py/corpora-indexer/internal/telemetry"
)

type State int32

const (
	Idle State = iota
	Syncing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Syncing:
		return "syncing"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Loop runs one cycle at a time. Between cycles it sleeps for the poll
// period or until Wake is called.
type Loop struct {
	catalog  core.CatalogClient
	ingestor ingestion_engine.Ingestor
	journal  core.SyncJournal
	period   time.Duration
	validate *validator.Validate

	state atomic.Int32
	wake  chan struct{}

	cycleMu sync.Mutex

	mu      sync.RWMutex
	prev    *models.Corpora
	lastRun *models.SyncRun
}

// New builds a loop. journal may be nil.
func New(catalog core.CatalogClient, ingestor ingestion_engine.Ingestor, journal core.SyncJournal, period time.Duration) *Loop {
	return &Loop{
		catalog:  catalog,
		ingestor: ingestor,
		journal:  journal,
		period:   period,
		validate: validator.New(),
		wake:     make(chan struct{}, 1),
	}
}

func (l *Loop) State() State {
	return State(l.state.Load())
}

// LastRun returns a copy of the most recent cycle, or nil before the first one.
func (l *Loop) LastRun() *models.SyncRun {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.lastRun == nil {
		return nil
	}
	r := *l.lastRun
	return &r
}

// Wake cuts the current sleep short. It reports false when a wake-up is
// already pending.
func (l *Loop) Wake() bool {
	select {
	case l.wake <- struct{}{}:
		return true
	default:
		return false
	}
}

// Run polls until ctx is cancelled. Cycle failures are logged, never returned.
func (l *Loop) Run(ctx context.Context) error {
	logger.Info("reconciliation loop started", "period", l.period)
	for {
		if _, err := l.RunOnce(ctx, false); err != nil {
			logger.Error("sync cycle failed", "error", err)
		}

		timer := time.NewTimer(l.period)
		select {
		case <-ctx.Done():
			timer.Stop()
			logger.Info("reconciliation loop stopped")
			return ctx.Err()
		case <-timer.C:
		case <-l.wake:
			timer.Stop()
			logger.Info("sync requested")
		}
	}
}

// RunOnce performs a single cycle. With force set the pipeline runs even when
// the catalog equals the previous snapshot.
func (l *Loop) RunOnce(ctx context.Context, force bool) (models.SyncRun, error) {
	l.cycleMu.Lock()
	defer l.cycleMu.Unlock()

	l.state.Store(int32(Syncing))
	defer l.state.Store(int32(Idle))

	ctx, span := telemetry.Tracer().Start(ctx, "reconcile.cycle")
	defer span.End()

	run := &models.SyncRun{ID: uuid.NewString(), StartedAt: time.Now().UTC()}
	log := logger.With("cycle", run.ID)

	corpora, err := l.catalog.FetchCorpora(ctx)
	if err != nil {
		run.Error = err.Error()
		l.record(ctx, run, true)
		span.RecordError(err)
		return *run, fmt.Errorf("fetch catalog: %w", err)
	}
	run.Entries = len(corpora.MoodleFiles)

	l.mu.RLock()
	run.Changed = force || !l.prev.Equal(corpora)
	l.mu.RUnlock()
	span.SetAttributes(attribute.Int("entries", run.Entries), attribute.Bool("changed", run.Changed))

	l.begin(ctx, run)
	if !run.Changed {
		log.Debug("catalog unchanged", "entries", run.Entries)
		l.record(ctx, run, false)
		return *run, nil
	}

	entries := l.filter(corpora.MoodleFiles)
	log.Info("catalog changed, syncing", "entries", run.Entries, "documents", len(entries))

	stats := l.ingestor.Run(ctx, entries)
	run.Processed, run.Skipped, run.Failed, run.Chunks = stats.Processed, stats.Skipped, stats.Failed, stats.Chunks

	if err := ctx.Err(); err != nil {
		run.Error = "interrupted: " + err.Error()
	} else {
		l.mu.Lock()
		l.prev = corpora
		l.mu.Unlock()
	}

	l.record(ctx, run, false)
	log.Info("sync cycle finished",
		"documents", len(entries),
		"processed", run.Processed,
		"skipped", run.Skipped,
		"failed", run.Failed,
		"chunks", run.Chunks,
		"elapsed", run.FinishedAt.Sub(run.StartedAt).Seconds(),
	)
	return *run, nil
}

// filter keeps valid PDF entries, first occurrence of each document-ref.
func (l *Loop) filter(entries []models.CatalogEntry) []models.CatalogEntry {
	out := make([]models.CatalogEntry, 0, len(entries))
	seen := make(map[models.DocumentRef]struct{}, len(entries))
	for _, e := range entries {
		if err := l.validate.Struct(e); err != nil {
			logger.Warn("skipping catalog entry", "document", e.ObjectKey(), "error", fmt.Errorf("%w: %v", core.ErrInvalidEntry, err))
			continue
		}
		if !e.IsPDF() {
			logger.Debug("skipping non-pdf entry", "document", e.ObjectKey())
			continue
		}
		if _, dup := seen[e.Ref()]; dup {
			logger.Warn("skipping duplicate catalog entry", "document", e.ObjectKey())
			continue
		}
		seen[e.Ref()] = struct{}{}
		out = append(out, e)
	}
	return out
}

func (l *Loop) begin(ctx context.Context, run *models.SyncRun) {
	if l.journal == nil {
		return
	}
	if err := l.journal.Begin(context.WithoutCancel(ctx), run); err != nil {
		logger.Warn("journal begin failed", "cycle", run.ID, "error", err)
	}
}

// record stamps the finish time and stores the run. fresh runs were never
// passed to begin and are inserted first.
func (l *Loop) record(ctx context.Context, run *models.SyncRun, fresh bool) {
	now := time.Now().UTC()
	run.FinishedAt = &now

	l.mu.Lock()
	r := *run
	l.lastRun = &r
	l.mu.Unlock()

	if l.journal == nil {
		return
	}
	jctx := context.WithoutCancel(ctx)
	var err error
	if fresh {
		err = l.journal.Begin(jctx, run)
	}
	err = errors.Join(err, l.journal.Finish(jctx, run))
	if err != nil {
		logger.Warn("journal write failed", "cycle", run.ID, "error", err)
	}
}
