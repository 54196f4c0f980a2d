package ingestion_engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/markdave123-py/corpora-indexer/internal/core"
	"github.com/markdave123-py/corpora-indexer/internal/core/chunker"
	"github.com/markdave123-py/corpora-indexer/internal/core/textcache"
	"github.com/markdave123-py/corpora-indexer/internal/logger"
	"github.com/markdave123-py/corpora-indexer/internal/models"
)

// ObjectPipeline turns one catalog entry into its chunks:
// mirror fetch, cached extraction, preamble and cleanup, split, tag.
type ObjectPipeline struct {
	obj       core.ObjectClient
	cache     *textcache.Cache
	extractor core.DocumentExtractor
	splitter  *chunker.Splitter
	cfg       *IngestConfig
}

func NewObjectPipeline(obj core.ObjectClient, cache *textcache.Cache, extractor core.DocumentExtractor, splitter *chunker.Splitter, cfg *IngestConfig) *ObjectPipeline {
	return &ObjectPipeline{obj: obj, cache: cache, extractor: extractor, splitter: splitter, cfg: cfg}
}

// MirrorPath is where the raw file for key lives locally.
func (p *ObjectPipeline) MirrorPath(key string) string {
	return filepath.Join(p.cfg.MirrorDir, filepath.FromSlash(key))
}

// Process returns the chunks of entry in order, numbered from 0.
func (p *ObjectPipeline) Process(ctx context.Context, entry models.CatalogEntry) ([]models.Chunk, error) {
	if !entry.IsPDF() {
		return nil, fmt.Errorf("%w: %s", core.ErrUnsupportedContent, entry.Filename)
	}
	if !entry.Ref().PlainFilename() {
		return nil, fmt.Errorf("%w: filename %q", core.ErrInvalidEntry, entry.Filename)
	}

	key := entry.ObjectKey()
	rawPath := p.MirrorPath(key)
	if err := p.ensureLocal(ctx, key, rawPath); err != nil {
		return nil, err
	}

	text, err := p.cache.GetOrExtract(ctx, key, rawPath, p.extractor)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		logger.Warn("no text layer, indexing metadata only", "document", key)
	}

	segments := p.splitter.Split(chunker.Clean(entry.MetaPrefix() + text))
	ref := entry.Ref()
	chunks := make([]models.Chunk, len(segments))
	for i, seg := range segments {
		chunks[i] = models.Chunk{
			Text:        seg,
			DocumentRef: ref,
			ChunkRef:    models.ChunkRef{ChunkNumber: i},
		}
	}
	return chunks, nil
}

func (p *ObjectPipeline) ensureLocal(ctx context.Context, key, rawPath string) error {
	_, err := os.Stat(rawPath)
	if err == nil {
		return nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat mirror: %w", err)
	}

	logger.Debug("downloading raw file", "document", key)
	if err := p.obj.FetchToFile(ctx, p.cfg.Bucket, key, rawPath); err != nil {
		return fmt.Errorf("fetch %s: %w", key, err)
	}
	return nil
}
