package reconcile

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/corpora-indexer/internal/core/chunker"
	"github.com/markdave123-py/corpora-indexer/internal/core/coretest"
	"github.com/markdave123-py/corpora-indexer/internal/core/ingestion_engine"
	"github.com/markdave123-py/corpora-indexer/internal/core/journal"
	"github.com/markdave123-py/corpora-indexer/internal/core/textcache"
	"github.com/markdave123-py/corpora-indexer/internal/models"
)

type recordingIngestor struct {
	mu    sync.Mutex
	calls [][]models.CatalogEntry
}

func (r *recordingIngestor) Run(_ context.Context, entries []models.CatalogEntry) ingestion_engine.Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, entries)
	return ingestion_engine.Stats{Processed: len(entries)}
}

func (r *recordingIngestor) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func snapshot(entries ...models.CatalogEntry) *models.Corpora {
	return &models.Corpora{MoodleFiles: entries}
}

var (
	entryA = models.CatalogEntry{CourseID: 1, ModuleID: 2, Filename: "a.pdf"}
	entryB = models.CatalogEntry{CourseID: 1, ModuleID: 3, Filename: "b.pdf"}
)

func TestRunOnce_UnchangedCatalogSkipsPipeline(t *testing.T) {
	cat := &coretest.StubCatalog{}
	cat.Push(snapshot(entryA, entryB), nil)
	cat.Push(snapshot(entryA, entryB), nil)
	ing := &recordingIngestor{}
	loop := New(cat, ing, nil, time.Hour)

	run, err := loop.RunOnce(context.Background(), false)
	require.NoError(t, err)
	assert.True(t, run.Changed)
	assert.Equal(t, 2, run.Processed)

	run, err = loop.RunOnce(context.Background(), false)
	require.NoError(t, err)
	assert.False(t, run.Changed)
	assert.Equal(t, 1, ing.Calls())
	assert.Equal(t, Idle, loop.State())
}

func TestRunOnce_ChangeTriggersPipeline(t *testing.T) {
	renamed := entryA
	renamed.Filename = "a2.pdf"

	tests := []struct {
		name string
		next *models.Corpora
	}{
		{"filename changed", snapshot(renamed, entryB)},
		{"reordered", snapshot(entryB, entryA)},
		{"entry removed", snapshot(entryA)},
		{"entry added", snapshot(entryA, entryB, models.CatalogEntry{CourseID: 2, ModuleID: 1, Filename: "c.pdf"})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cat := &coretest.StubCatalog{}
			cat.Push(snapshot(entryA, entryB), nil)
			cat.Push(tt.next, nil)
			ing := &recordingIngestor{}
			loop := New(cat, ing, nil, time.Hour)

			_, err := loop.RunOnce(context.Background(), false)
			require.NoError(t, err)
			run, err := loop.RunOnce(context.Background(), false)
			require.NoError(t, err)
			assert.True(t, run.Changed)
			assert.Equal(t, 2, ing.Calls())
		})
	}
}

func TestRunOnce_FetchErrorKeepsPreviousSnapshot(t *testing.T) {
	cat := &coretest.StubCatalog{}
	cat.Push(snapshot(entryA), nil)
	cat.Push(nil, errors.New("catalog unreachable"))
	cat.Push(snapshot(entryA), nil)
	ing := &recordingIngestor{}
	loop := New(cat, ing, nil, time.Hour)

	_, err := loop.RunOnce(context.Background(), false)
	require.NoError(t, err)

	run, err := loop.RunOnce(context.Background(), false)
	require.Error(t, err)
	assert.Contains(t, run.Error, "catalog unreachable")

	run, err = loop.RunOnce(context.Background(), false)
	require.NoError(t, err)
	assert.False(t, run.Changed)
	assert.Equal(t, 1, ing.Calls())
}

func TestRunOnce_Force(t *testing.T) {
	cat := &coretest.StubCatalog{}
	cat.Push(snapshot(entryA), nil)
	ing := &recordingIngestor{}
	loop := New(cat, ing, nil, time.Hour)

	for i := 0; i < 2; i++ {
		run, err := loop.RunOnce(context.Background(), true)
		require.NoError(t, err)
		assert.True(t, run.Changed)
	}
	assert.Equal(t, 2, ing.Calls())
}

func TestRunOnce_FiltersEntries(t *testing.T) {
	cat := &coretest.StubCatalog{}
	cat.Push(snapshot(
		entryA,
		models.CatalogEntry{CourseID: 1, ModuleID: 4, Filename: "slides.pptx"},
		models.CatalogEntry{CourseID: 1, ModuleID: 5},
		models.CatalogEntry{CourseID: -1, ModuleID: 5, Filename: "neg.pdf"},
		models.CatalogEntry{CourseID: 1, ModuleID: 6, Filename: "UPPER.PDF"},
		entryA,
	), nil)
	ing := &recordingIngestor{}
	loop := New(cat, ing, nil, time.Hour)

	run, err := loop.RunOnce(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 6, run.Entries)
	require.Equal(t, 1, ing.Calls())

	var names []string
	for _, e := range ing.calls[0] {
		names = append(names, e.Filename)
	}
	assert.Equal(t, []string{"a.pdf", "UPPER.PDF"}, names)
}

func TestRunOnce_RejectsPathFilenames(t *testing.T) {
	cat := &coretest.StubCatalog{}
	cat.Push(snapshot(
		models.CatalogEntry{CourseID: 1, ModuleID: 2, Filename: "../3/a.pdf"},
		models.CatalogEntry{CourseID: 1, ModuleID: 2, Filename: "../../../../etc/x.pdf"},
		models.CatalogEntry{CourseID: 1, ModuleID: 2, Filename: `sub\b.pdf`},
		models.CatalogEntry{CourseID: 1, ModuleID: 3, Filename: "a.pdf"},
	), nil)
	ing := &recordingIngestor{}
	loop := New(cat, ing, nil, time.Hour)

	_, err := loop.RunOnce(context.Background(), false)
	require.NoError(t, err)
	require.Equal(t, 1, ing.Calls())
	require.Len(t, ing.calls[0], 1)
	assert.Equal(t, models.DocumentRef{CourseID: 1, ModuleID: 3, Filename: "a.pdf"}, ing.calls[0][0].Ref())
}

func TestRunOnce_RecordsJournal(t *testing.T) {
	j, err := journal.Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	defer j.Close()

	cat := &coretest.StubCatalog{}
	cat.Push(snapshot(entryA), nil)
	cat.Push(nil, errors.New("502"))
	cat.Push(snapshot(entryA), nil)
	loop := New(cat, &recordingIngestor{}, j, time.Hour)

	for i := 0; i < 3; i++ {
		_, _ = loop.RunOnce(context.Background(), false)
	}

	runs, err := j.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	for _, r := range runs {
		assert.NotNil(t, r.FinishedAt)
	}

	byError := 0
	changed := 0
	for _, r := range runs {
		if r.Error != "" {
			byError++
		}
		if r.Changed {
			changed++
		}
	}
	assert.Equal(t, 1, byError)
	assert.Equal(t, 1, changed)

	last := loop.LastRun()
	require.NotNil(t, last)
	assert.False(t, last.Changed)
}

func TestRun_WakeAndStop(t *testing.T) {
	cat := &coretest.StubCatalog{}
	cat.Push(snapshot(entryA), nil)
	loop := New(cat, &recordingIngestor{}, nil, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	require.Eventually(t, func() bool { return cat.Calls() == 1 }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, loop.Wake, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return cat.Calls() == 2 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop")
	}
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "syncing", Syncing.String())
}

// One PDF indexed into three chunks, then left untouched by an identical
// catalog, then kept after the entry disappears from the catalog.
func TestEndToEnd_ThreeCycles(t *testing.T) {
	dir := t.TempDir()
	words := make([]string, 20)
	for i := range words {
		words[i] = fmt.Sprintf("word%d", i)
	}
	objects := coretest.NewMemObjects(map[string][]byte{"moodle/1/2/a.pdf": []byte(strings.Join(words, " "))})
	extractor := &coretest.StubExtractor{}
	store := coretest.NewMemStore()
	encoder := &coretest.StubEncoder{}

	splitter, err := chunker.New(chunker.WordTokenizer{}, chunker.WithMaxTokens(10), chunker.WithOverlap(2))
	require.NoError(t, err)
	cfg := &ingestion_engine.IngestConfig{Bucket: "bucket", MirrorDir: filepath.Join(dir, "s3"), NumWorkers: 2}
	pipeline := ingestion_engine.NewObjectPipeline(objects, textcache.New(filepath.Join(dir, "cache")), extractor, splitter, cfg)
	pool := ingestion_engine.NewWorkerPool(pipeline, ingestion_engine.NewIndexWriter(store, encoder), cfg.NumWorkers)

	cat := &coretest.StubCatalog{}
	cat.Push(snapshot(entryA), nil)
	cat.Push(snapshot(entryA), nil)
	cat.Push(snapshot(entryA), nil)
	cat.Push(snapshot(), nil)
	loop := New(cat, pool, nil, time.Hour)
	ctx := context.Background()
	ref := entryA.Ref()

	// Cycle 1: extract, chunk, index.
	run, err := loop.RunOnce(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, run.Processed)
	assert.Equal(t, 3, run.Chunks)
	recs := store.Records(ref)
	require.Len(t, recs, 3)
	for i, r := range recs {
		assert.Equal(t, ref, r.Chunk.DocumentRef)
		assert.Equal(t, i, r.Chunk.ChunkRef.ChunkNumber)
	}
	assert.Equal(t, 1, extractor.Calls())
	writes := store.Writes()

	// Cycle 2: same catalog, the pipeline does not run and nothing is written.
	run, err = loop.RunOnce(ctx, false)
	require.NoError(t, err)
	assert.False(t, run.Changed)
	assert.Equal(t, writes, store.Writes())

	// Forcing the pass still writes nothing: the count matches.
	run, err = loop.RunOnce(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 1, run.Skipped)
	assert.Equal(t, writes, store.Writes())
	assert.Equal(t, 1, extractor.Calls())

	// Cycle 3: the entry is gone from the catalog but its records stay.
	run, err = loop.RunOnce(ctx, false)
	require.NoError(t, err)
	assert.True(t, run.Changed)
	assert.Len(t, store.Records(ref), 3)
	assert.Equal(t, writes, store.Writes())
}
