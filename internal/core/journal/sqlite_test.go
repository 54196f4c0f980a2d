package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/corpora-indexer/internal/models"
)

func openTemp(t *testing.T) *SQLiteJournal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "nested", "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestJournal_BeginFinishRecent(t *testing.T) {
	ctx := context.Background()
	j := openTemp(t)

	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	first := &models.SyncRun{ID: "run-1", StartedAt: start, Entries: 3, Changed: true}
	require.NoError(t, j.Begin(ctx, first))

	done := start.Add(2 * time.Second)
	first.FinishedAt = &done
	first.Processed, first.Failed, first.Skipped, first.Chunks = 2, 1, 0, 7
	require.NoError(t, j.Finish(ctx, first))

	second := &models.SyncRun{ID: "run-2", StartedAt: start.Add(time.Minute), Entries: 3}
	require.NoError(t, j.Begin(ctx, second))

	runs, err := j.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	assert.Equal(t, "run-2", runs[0].ID)
	assert.Nil(t, runs[0].FinishedAt)
	assert.False(t, runs[0].Changed)

	got := runs[1]
	assert.Equal(t, "run-1", got.ID)
	assert.True(t, got.StartedAt.Equal(start))
	require.NotNil(t, got.FinishedAt)
	assert.True(t, got.FinishedAt.Equal(done))
	assert.True(t, got.Changed)
	assert.Equal(t, 3, got.Entries)
	assert.Equal(t, 2, got.Processed)
	assert.Equal(t, 1, got.Failed)
	assert.Equal(t, 7, got.Chunks)
}

func TestJournal_RecentLimit(t *testing.T) {
	ctx := context.Background()
	j := openTemp(t)

	base := time.Now().UTC()
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, j.Begin(ctx, &models.SyncRun{ID: id, StartedAt: base.Add(time.Duration(i) * time.Second)}))
	}

	runs, err := j.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "c", runs[0].ID)
	assert.Equal(t, "b", runs[1].ID)
}

func TestJournal_FinishUnknownRun(t *testing.T) {
	j := openTemp(t)
	err := j.Finish(context.Background(), &models.SyncRun{ID: "missing"})
	assert.Error(t, err)
}

func TestJournal_ErrorText(t *testing.T) {
	ctx := context.Background()
	j := openTemp(t)

	run := &models.SyncRun{ID: "x", StartedAt: time.Now()}
	require.NoError(t, j.Begin(ctx, run))
	run.Error = "fetch corpora: unexpected status 502"
	require.NoError(t, j.Finish(ctx, run))

	runs, err := j.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, run.Error, runs[0].Error)
}
