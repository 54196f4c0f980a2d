// Package coretest provides in-memory implementations of the core ports for tests.
package coretest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/markdave123-py/corpora-indexer/internal/core"
	"github.com/markdave123-py/corpora-indexer/internal/models"
)

var (
	_ core.VectorStore       = (*MemStore)(nil)
	_ core.ObjectClient      = (*MemObjects)(nil)
	_ core.DocumentExtractor = (*StubExtractor)(nil)
	_ core.CatalogClient     = (*StubCatalog)(nil)
)

// MemStore is a VectorStore keeping records in memory.
type MemStore struct {
	mu      sync.Mutex
	records map[models.DocumentRef]map[string]models.IndexedRecord

	Counts  int
	Deletes int
	Upserts int

	// FailUpsert, when set, is returned by the next Upsert call.
	FailUpsert error
}

func NewMemStore() *MemStore {
	return &MemStore{records: map[models.DocumentRef]map[string]models.IndexedRecord{}}
}

func (s *MemStore) EnsureCollection(context.Context, int, bool) error { return nil }

func (s *MemStore) CountByRef(_ context.Context, ref models.DocumentRef) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Counts++
	return len(s.records[ref]), nil
}

func (s *MemStore) DeleteByRef(_ context.Context, ref models.DocumentRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Deletes++
	delete(s.records, ref)
	return nil
}

func (s *MemStore) Upsert(_ context.Context, records []models.IndexedRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.FailUpsert; err != nil {
		s.FailUpsert = nil
		return err
	}
	s.Upserts++
	for _, r := range records {
		ref := r.Chunk.DocumentRef
		if s.records[ref] == nil {
			s.records[ref] = map[string]models.IndexedRecord{}
		}
		s.records[ref][r.ID] = r
	}
	return nil
}

func (s *MemStore) Close() error { return nil }

// Put seeds records directly, bypassing the counters.
func (s *MemStore) Put(records ...models.IndexedRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		ref := r.Chunk.DocumentRef
		if s.records[ref] == nil {
			s.records[ref] = map[string]models.IndexedRecord{}
		}
		s.records[ref][r.ID] = r
	}
}

// Records returns the records of ref ordered by chunk number.
func (s *MemStore) Records(ref models.DocumentRef) []models.IndexedRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.IndexedRecord, 0, len(s.records[ref]))
	for _, r := range s.records[ref] {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Chunk.ChunkRef.ChunkNumber < out[j].Chunk.ChunkRef.ChunkNumber })
	return out
}

// Writes is the number of mutating calls seen so far.
func (s *MemStore) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Deletes + s.Upserts
}

// MemObjects serves objects from memory and counts downloads.
type MemObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
	fetches map[string]int
}

func NewMemObjects(objects map[string][]byte) *MemObjects {
	return &MemObjects{objects: objects, fetches: map[string]int{}}
}

func (o *MemObjects) FetchToFile(_ context.Context, _, key, dst string) error {
	o.mu.Lock()
	data, ok := o.objects[key]
	o.fetches[key]++
	o.mu.Unlock()
	if !ok {
		return fmt.Errorf("object %s: not found", key)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}

func (o *MemObjects) Fetches(key string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.fetches[key]
}

// StubExtractor returns the raw file content as text, or Err when set.
type StubExtractor struct {
	mu    sync.Mutex
	calls int

	Ver string
	Err error
}

func (e *StubExtractor) ExtractText(_ context.Context, path string) (string, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	if e.Err != nil {
		return "", e.Err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (e *StubExtractor) Version() string {
	if e.Ver == "" {
		return "stub-1"
	}
	return e.Ver
}

func (e *StubExtractor) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// StubEncoder returns tiny deterministic vectors and counts calls.
type StubEncoder struct {
	mu    sync.Mutex
	calls int

	Err error
}

func (e *StubEncoder) Encode(_ context.Context, texts []string) ([][]float32, []models.SparseVector, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	if e.Err != nil {
		return nil, nil, e.Err
	}
	dense := make([][]float32, len(texts))
	sparse := make([]models.SparseVector, len(texts))
	for i, t := range texts {
		dense[i] = []float32{float32(len(t)), 1}
		sparse[i] = models.SparseVector{Indices: []uint32{uint32(len(t))}, Values: []float32{1}}
	}
	return dense, sparse, nil
}

func (e *StubEncoder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// StubCatalog returns the queued snapshots in order, repeating the last one.
type StubCatalog struct {
	mu        sync.Mutex
	snapshots []*models.Corpora
	errs      []error
	calls     int
}

// Push queues a snapshot, or a fetch error when err is non-nil.
func (c *StubCatalog) Push(corpora *models.Corpora, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshots = append(c.snapshots, corpora)
	c.errs = append(c.errs, err)
}

func (c *StubCatalog) FetchCorpora(context.Context) (*models.Corpora, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.snapshots) == 0 {
		return nil, errors.New("catalog empty")
	}
	i := min(c.calls, len(c.snapshots)-1)
	c.calls++
	return c.snapshots[i], c.errs[i]
}

func (c *StubCatalog) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}
