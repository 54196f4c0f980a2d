// Package db is the Postgres/pgvector alternative to the Qdrant vector store.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/markdave123-py/corpora-indexer/internal/config"
	"github.com/markdave123-py/corpora-indexer/internal/core"
	"github.com/markdave123-py/corpora-indexer/internal/models"
)

// sparseDim is the declared dimension of the bm25 sparsevec column.
// Term indices are folded into it.
const sparseDim = 1_000_000_000

var _ core.VectorStore = (*PgVectorStore)(nil)

type PgVectorStore struct {
	db *sql.DB
}

func NewPgVectorStore(ctx context.Context, cfg *config.Config) (*PgVectorStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// Workers share the pool; size it above NUM_WORKERS.
	db.SetMaxOpenConns(cfg.NumWorkers*2 + 2)
	db.SetMaxIdleConns(cfg.NumWorkers + 1)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	ctxPing, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(ctxPing); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	return &PgVectorStore{db: db}, nil
}

func (c *PgVectorStore) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// EnsureCollection applies the embedded schema when allowed. The dense column
// is unconstrained, so denseDim only matters to the encoder.
func (c *PgVectorStore) EnsureCollection(ctx context.Context, denseDim int, autoCreate bool) error {
	ready, err := schemaReady(ctx, c.db)
	if err != nil {
		return err
	}
	if ready {
		return nil
	}
	if !autoCreate {
		return fmt.Errorf("%w: document_chunks", core.ErrCollectionMissing)
	}
	return runBootstrap(ctx, c.db)
}

func (c *PgVectorStore) CountByRef(ctx context.Context, ref models.DocumentRef) (int, error) {
	const q = `
		SELECT COUNT(*) FROM document_chunks
		WHERE course_id = $1 AND module_id = $2 AND filename = $3`

	var n int
	if err := c.db.QueryRowContext(ctx, q, ref.CourseID, ref.ModuleID, ref.Filename).Scan(&n); err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return n, nil
}

func (c *PgVectorStore) DeleteByRef(ctx context.Context, ref models.DocumentRef) error {
	const q = `
		DELETE FROM document_chunks
		WHERE course_id = $1 AND module_id = $2 AND filename = $3`

	if _, err := c.db.ExecContext(ctx, q, ref.CourseID, ref.ModuleID, ref.Filename); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	return nil
}

// Upsert writes all records in one transaction.
func (c *PgVectorStore) Upsert(ctx context.Context, records []models.IndexedRecord) (err error) {
	if len(records) == 0 {
		return nil
	}

	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			err = errors.Join(err, tx.Rollback())
		}
	}()

	const q = `
		INSERT INTO document_chunks
			(id, course_id, module_id, filename, chunk_number, text, dense, bm25)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			text = EXCLUDED.text,
			dense = EXCLUDED.dense,
			bm25 = EXCLUDED.bm25`

	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		ref := r.Chunk.DocumentRef
		if _, err = stmt.ExecContext(ctx,
			r.ID, ref.CourseID, ref.ModuleID, ref.Filename, r.Chunk.ChunkRef.ChunkNumber, r.Chunk.Text,
			pgvector.NewVector(r.Dense), toSparse(r.Sparse),
		); err != nil {
			return fmt.Errorf("insert chunk %d: %w", r.Chunk.ChunkRef.ChunkNumber, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// toSparse folds term indices into sparseDim, summing weights that land together.
func toSparse(v models.SparseVector) pgvector.SparseVector {
	elements := make(map[int32]float32, v.Len())
	for i, idx := range v.Indices {
		elements[int32(idx%sparseDim)] += v.Values[i]
	}
	return pgvector.NewSparseVectorFromMap(elements, sparseDim)
}
