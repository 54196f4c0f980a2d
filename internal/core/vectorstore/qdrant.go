// Package vectorstore adapts Qdrant to core.VectorStore.
package vectorstore

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/qdrant/go-client/qdrant"

	"github.com/markdave123-py/corpora-indexer/internal/config"
	"github.com/markdave123-py/corpora-indexer/internal/core"
	"github.com/markdave123-py/corpora-indexer/internal/logger"
	"github.com/markdave123-py/corpora-indexer/internal/models"
)

const (
	DenseVectorName  = "dense"
	SparseVectorName = "bm25"

	fieldCourseID = "document-ref.course_id"
	fieldModuleID = "document-ref.module_id"
	fieldFilename = "document-ref.filename"
)

var _ core.VectorStore = (*QdrantStore)(nil)

type QdrantStore struct {
	client     *qdrant.Client
	collection string
}

func NewQdrantStore(cfg *config.Config) (*QdrantStore, error) {
	host, port, useTLS, err := parseAddr(cfg.QdrantURL)
	if err != nil {
		return nil, err
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: cfg.QdrantAPIKey,
		UseTLS: useTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("connect qdrant: %w", err)
	}
	return &QdrantStore{client: client, collection: cfg.Collection}, nil
}

// parseAddr accepts host:port with an optional http(s) scheme. The port is the gRPC one.
func parseAddr(raw string) (host string, port int, useTLS bool, err error) {
	addr := raw
	switch {
	case strings.HasPrefix(addr, "https://"):
		useTLS = true
		addr = strings.TrimPrefix(addr, "https://")
	case strings.HasPrefix(addr, "http://"):
		addr = strings.TrimPrefix(addr, "http://")
	}
	addr = strings.TrimRight(addr, "/")

	if !strings.Contains(addr, ":") {
		return addr, 6334, useTLS, nil
	}
	h, p, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, false, fmt.Errorf("parse qdrant url %q: %w", raw, err)
	}
	port, err = strconv.Atoi(p)
	if err != nil {
		return "", 0, false, fmt.Errorf("parse qdrant port %q: %w", p, err)
	}
	return h, port, useTLS, nil
}

func (s *QdrantStore) Close() error {
	return s.client.Close()
}

// EnsureCollection creates the collection with a dot-product dense vector, an
// IDF-weighted sparse vector and payload indexes on the document-ref fields.
func (s *QdrantStore) EnsureCollection(ctx context.Context, denseDim int, autoCreate bool) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("check collection: %w", err)
	}
	if exists {
		return nil
	}
	if !autoCreate {
		return fmt.Errorf("%w: %s", core.ErrCollectionMissing, s.collection)
	}

	if err := s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfigMap(map[string]*qdrant.VectorParams{
			DenseVectorName: {
				Size:     uint64(denseDim),
				Distance: qdrant.Distance_Dot,
			},
		}),
		SparseVectorsConfig: qdrant.NewSparseVectorsConfig(map[string]*qdrant.SparseVectorParams{
			SparseVectorName: {Modifier: qdrant.Modifier_Idf.Enum()},
		}),
	}); err != nil {
		return fmt.Errorf("create collection: %w", err)
	}

	indexes := []struct {
		field string
		kind  qdrant.FieldType
	}{
		{fieldCourseID, qdrant.FieldType_FieldTypeInteger},
		{fieldModuleID, qdrant.FieldType_FieldTypeInteger},
		{fieldFilename, qdrant.FieldType_FieldTypeKeyword},
	}
	for _, idx := range indexes {
		if _, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: s.collection,
			FieldName:      idx.field,
			FieldType:      idx.kind.Enum(),
			Wait:           qdrant.PtrOf(true),
		}); err != nil {
			return fmt.Errorf("create payload index %s: %w", idx.field, err)
		}
	}

	logger.Info("collection created", "collection", s.collection, "dense_dim", denseDim)
	return nil
}

func (s *QdrantStore) CountByRef(ctx context.Context, ref models.DocumentRef) (int, error) {
	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.collection,
		Filter:         refFilter(ref),
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("count points: %w", err)
	}
	return int(n), nil
}

func (s *QdrantStore) DeleteByRef(ctx context.Context, ref models.DocumentRef) error {
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelectorFilter(refFilter(ref)),
	})
	if err != nil {
		return fmt.Errorf("delete points: %w", err)
	}
	return nil
}

func (s *QdrantStore) Upsert(ctx context.Context, records []models.IndexedRecord) error {
	if len(records) == 0 {
		return nil
	}
	pts := make([]*qdrant.PointStruct, len(records))
	for i, r := range records {
		pts[i] = toPoint(r)
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         pts,
	})
	if err != nil {
		return fmt.Errorf("upsert points: %w", err)
	}
	return nil
}

func refFilter(ref models.DocumentRef) *qdrant.Filter {
	return &qdrant.Filter{
		Must: []*qdrant.Condition{
			qdrant.NewMatchInt(fieldCourseID, ref.CourseID),
			qdrant.NewMatchInt(fieldModuleID, ref.ModuleID),
			qdrant.NewMatch(fieldFilename, ref.Filename),
		},
	}
}

func toPoint(r models.IndexedRecord) *qdrant.PointStruct {
	return &qdrant.PointStruct{
		Id: qdrant.NewIDUUID(r.ID),
		Vectors: qdrant.NewVectorsMap(map[string]*qdrant.Vector{
			DenseVectorName:  qdrant.NewVector(r.Dense...),
			SparseVectorName: qdrant.NewVectorSparse(r.Sparse.Indices, r.Sparse.Values),
		}),
		Payload: qdrant.NewValueMap(payload(r.Chunk)),
	}
}

func payload(c models.Chunk) map[string]any {
	return map[string]any{
		"text": c.Text,
		"document-ref": map[string]any{
			"course_id": c.DocumentRef.CourseID,
			"module_id": c.DocumentRef.ModuleID,
			"filename":  c.DocumentRef.Filename,
		},
		"chunk-ref": map[string]any{
			"chunk_number": int64(c.ChunkRef.ChunkNumber),
		},
	}
}
