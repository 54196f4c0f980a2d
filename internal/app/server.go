package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/markdave123-py/corpora-indexer/internal/api/handlers"
	"github.com/markdave123-py/corpora-indexer/internal/core"
	"github.com/markdave123-py/corpora-indexer/internal/logger"
)

// Server wraps the operations HTTP server.
type Server struct {
	httpServer *http.Server
}

// NewServer builds and wires all routes.
func NewServer(addr string, loop handlers.SyncController, journal core.SyncJournal) *Server {
	return &Server{httpServer: &http.Server{
		Addr:              addr,
		Handler:           NewRouter(loop, journal),
		ReadHeaderTimeout: 10 * time.Second,
	}}
}

func NewRouter(loop handlers.SyncController, journal core.SyncJournal) http.Handler {
	syncHandler := handlers.NewSyncHandler(loop, journal)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", syncHandler.Health)
	r.Get("/status", syncHandler.Status)
	r.Post("/sync", syncHandler.TriggerSync)
	return r
}

// Start runs the HTTP server until Shutdown.
func (s *Server) Start() error {
	logger.Info("ops server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	logger.Info("shutting down ops server")
	return s.httpServer.Shutdown(ctx)
}
