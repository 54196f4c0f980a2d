// Package textcache stores extracted plain text keyed by raw-file identity and
// extractor version, so each file is converted at most once per version.
package textcache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/markdave123-py/corpora-indexer/internal/core"
	"github.com/markdave123-py/corpora-indexer/internal/logger"
)

// Cache lays artifacts out as {root}/text-{version}/{key}.
type Cache struct {
	root string
}

func New(root string) *Cache {
	return &Cache{root: root}
}

// Path returns where the text for key is stored under version.
func (c *Cache) Path(key, version string) string {
	return filepath.Join(c.root, "text-"+version, filepath.FromSlash(key))
}

// GetOrExtract returns cached text for (key, extractor version) or runs the
// extractor on rawPath and persists its output before returning it.
// A failed extraction leaves no cache entry behind.
func (c *Cache) GetOrExtract(ctx context.Context, key, rawPath string, ex core.DocumentExtractor) (string, error) {
	textPath := c.Path(key, ex.Version())

	data, err := os.ReadFile(textPath)
	if err == nil {
		return string(data), nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("read cached text: %w", err)
	}

	start := time.Now()
	text, err := ex.ExtractText(ctx, rawPath)
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", key, err)
	}
	if err := writeAtomic(textPath, []byte(text)); err != nil {
		return "", fmt.Errorf("persist cached text: %w", err)
	}
	logger.Info("converted to text", "document", key, "extractor", ex.Version(), "duration", time.Since(start).Round(time.Millisecond))
	return text, nil
}

// writeAtomic writes to a sibling temp file and renames it into place.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return err
	}
	return nil
}
