package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/corpora-indexer/internal/config"
	"github.com/markdave123-py/corpora-indexer/internal/core"
	"github.com/markdave123-py/corpora-indexer/internal/core/catalog"
	"github.com/markdave123-py/corpora-indexer/internal/core/chunker"
	db "github.com/markdave123-py/corpora-indexer/internal/core/database"
	"github.com/markdave123-py/corpora-indexer/internal/core/encoder"
	"github.com/markdave123-py/corpora-indexer/internal/core/ingestion_engine"
	"github.com/markdave123-py/corpora-indexer/internal/core/journal"
	"github.com/markdave123-py/corpora-indexer/internal/core/llm"
	objectclient "github.com/markdave123-py/corpora-indexer/internal/core/object-client"
	"github.com/markdave123-py/corpora-indexer/internal/core/reconcile"
	"github.com/markdave123-py/corpora-indexer/internal/core/sparse"
	"github.com/markdave123-py/corpora-indexer/internal/core/textcache"
	"github.com/markdave123-py/corpora-indexer/internal/core/vectorstore"
	"github.com/markdave123-py/corpora-indexer/internal/logger"
)

type App struct {
	Store   core.VectorStore
	Journal core.SyncJournal
	Loop    *reconcile.Loop
	Server  *Server

	embedder *llm.GeminiEmbedder
}

// NewVectorStore opens the configured backend.
func NewVectorStore(ctx context.Context, cfg *config.Config) (core.VectorStore, error) {
	if cfg.VectorBackend == config.BackendPgVector {
		store, err := db.NewPgVectorStore(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
	store, err := vectorstore.NewQdrantStore(cfg)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// NewApp wires every component. Errors returned here are fatal: the process
// must not start without its collection, journal or encoders.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	a := &App{}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	store, err := NewVectorStore(appCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open vector store: %w", err)
	}
	a.Store = store
	if err := store.EnsureCollection(appCtx, cfg.EmbedDim, cfg.CollectionAutoCreate); err != nil {
		return nil, fmt.Errorf("ensure collection: %w", err)
	}
	logger.Info("vector store ready", "backend", cfg.VectorBackend, "collection", cfg.Collection)

	j, err := journal.Open(cfg.JournalPath)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	a.Journal = j

	objClient, err := objectclient.NewS3Client(appCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	embedder, err := llm.NewGeminiEmbedder(appCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the embedder, %w", err)
	}
	a.embedder = embedder
	if err := embedder.CheckTokenBudget(appCtx); err != nil {
		return nil, err
	}

	dual, err := encoder.NewDual(embedder, sparse.NewBM25(cfg.BM25K, cfg.BM25B, cfg.BM25AvgLen))
	if err != nil {
		return nil, err
	}

	splitter, err := chunker.New(embedder.Tokenizer(),
		chunker.WithMaxTokens(embedder.MaxTokens()),
		chunker.WithOverlap(cfg.ChunkOverlap),
	)
	if err != nil {
		return nil, err
	}

	extractor, err := ingestion_engine.NewExtractor(cfg.Extractor)
	if err != nil {
		return nil, err
	}

	ingCfg := ingestion_engine.NewIngestConfig(cfg)
	pipeline := ingestion_engine.NewObjectPipeline(objClient, textcache.New(cfg.CacheDir), extractor, splitter, ingCfg)
	pool := ingestion_engine.NewWorkerPool(pipeline, ingestion_engine.NewIndexWriter(store, dual), ingCfg.NumWorkers)

	a.Loop = reconcile.New(catalog.NewClient(cfg), pool, j, cfg.PollPeriod)
	if cfg.OpsAddr != "" {
		a.Server = NewServer(cfg.OpsAddr, a.Loop, j)
	}

	ok = true
	return a, nil
}

// Run serves the ops endpoints and runs the loop until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := a.Loop.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if a.Server != nil {
		g.Go(a.Server.Start)
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return a.Server.Shutdown(shutdownCtx)
		})
	}
	return g.Wait()
}

func (a *App) Close() {
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			logger.Warn("close vector store", "error", err)
		}
	}
	if a.Journal != nil {
		if err := a.Journal.Close(); err != nil {
			logger.Warn("close journal", "error", err)
		}
	}
	if a.embedder != nil {
		_ = a.embedder.Close()
	}
}
