package textcache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExtractor struct {
	version string
	text    string
	err     error
	calls   atomic.Int32
}

func (f *fakeExtractor) ExtractText(_ context.Context, _ string) (string, error) {
	f.calls.Add(1)
	return f.text, f.err
}

func (f *fakeExtractor) Version() string { return f.version }

func TestGetOrExtract_SecondCallHitsCache(t *testing.T) {
	c := New(t.TempDir())
	ex := &fakeExtractor{version: "v1", text: "extracted"}

	got, err := c.GetOrExtract(context.Background(), "moodle/1/2/a.pdf", "raw.pdf", ex)
	require.NoError(t, err)
	assert.Equal(t, "extracted", got)

	got, err = c.GetOrExtract(context.Background(), "moodle/1/2/a.pdf", "raw.pdf", ex)
	require.NoError(t, err)
	assert.Equal(t, "extracted", got)
	assert.EqualValues(t, 1, ex.calls.Load())

	data, err := os.ReadFile(c.Path("moodle/1/2/a.pdf", "v1"))
	require.NoError(t, err)
	assert.Equal(t, "extracted", string(data))
}

func TestGetOrExtract_VersionBumpInvalidates(t *testing.T) {
	root := t.TempDir()
	c := New(root)
	v1 := &fakeExtractor{version: "v1", text: "old"}
	v2 := &fakeExtractor{version: "v2", text: "new"}

	_, err := c.GetOrExtract(context.Background(), "k.pdf", "raw.pdf", v1)
	require.NoError(t, err)

	got, err := c.GetOrExtract(context.Background(), "k.pdf", "raw.pdf", v2)
	require.NoError(t, err)
	assert.Equal(t, "new", got)
	assert.EqualValues(t, 1, v2.calls.Load())
	assert.FileExists(t, filepath.Join(root, "text-v1", "k.pdf"))
	assert.FileExists(t, filepath.Join(root, "text-v2", "k.pdf"))
}

func TestGetOrExtract_FailureWritesNothing(t *testing.T) {
	root := t.TempDir()
	c := New(root)
	boom := errors.New("corrupt pdf")
	ex := &fakeExtractor{version: "v1", err: boom}

	_, err := c.GetOrExtract(context.Background(), "moodle/1/2/bad.pdf", "raw.pdf", ex)
	require.ErrorIs(t, err, boom)
	assert.NoFileExists(t, c.Path("moodle/1/2/bad.pdf", "v1"))

	// retried on the next call since nothing was cached
	ex.err = nil
	ex.text = "ok"
	got, err := c.GetOrExtract(context.Background(), "moodle/1/2/bad.pdf", "raw.pdf", ex)
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.EqualValues(t, 2, ex.calls.Load())
}

func TestWriteAtomic_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "file.txt")
	require.NoError(t, writeAtomic(path, []byte("one")))
	require.NoError(t, writeAtomic(path, []byte("two")))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))
}
