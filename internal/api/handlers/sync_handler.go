package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/markdave123-py/corpora-indexer/internal/core"
	"github.com/markdave123-py/corpora-indexer/internal/core/reconcile"
	"github.com/markdave123-py/corpora-indexer/internal/logger"
	"github.com/markdave123-py/corpora-indexer/internal/models"
)

const recentRuns = 20

// SyncController is the part of the reconciliation loop the ops endpoints drive.
type SyncController interface {
	State() reconcile.State
	LastRun() *models.SyncRun
	Wake() bool
}

type SyncHandler struct {
	loop    SyncController
	journal core.SyncJournal
}

func NewSyncHandler(loop SyncController, journal core.SyncJournal) *SyncHandler {
	return &SyncHandler{loop: loop, journal: journal}
}

type statusResponse struct {
	State   string           `json:"state"`
	LastRun *models.SyncRun  `json:"last_run,omitempty"`
	Recent  []models.SyncRun `json:"recent,omitempty"`
}

// Health reports liveness.
func (h *SyncHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Status returns the loop state, the last cycle and recent journal entries.
func (h *SyncHandler) Status(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		State:   h.loop.State().String(),
		LastRun: h.loop.LastRun(),
	}
	if h.journal != nil {
		runs, err := h.journal.Recent(r.Context(), recentRuns)
		if err != nil {
			logger.Error("read journal failed", "error", err)
			http.Error(w, "journal unavailable", http.StatusInternalServerError)
			return
		}
		resp.Recent = runs
	}
	writeJSON(w, http.StatusOK, resp)
}

// TriggerSync wakes the loop. A cycle already in flight finishes first.
func (h *SyncHandler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	status := "queued"
	if !h.loop.Wake() {
		status = "already queued"
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"status": status,
		"state":  h.loop.State().String(),
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("encode response failed", "error", err)
	}
}
