package handler

import (
	"net/http"

	"github.com/bcnelson/ipsync/internal/domain"
	"github.com/bcnelson/ipsync/internal/service"
	"github.com/go-chi/chi/v5"
)

// SyncHandler handles reconciliation endpoints.
type SyncHandler struct {
	syncService *service.SyncService
}

// NewSyncHandler creates a new SyncHandler.
func NewSyncHandler(syncService *service.SyncService) *SyncHandler {
	return &SyncHandler{syncService: syncService}
}

// Sync runs a reconciliation and returns its report.
// ?dry_run=true computes the plans without applying them.
func (h *SyncHandler) Sync(w http.ResponseWriter, r *http.Request) {
	dryRun, err := queryBool(r, "dry_run", h.syncService.DryRun())
	if err != nil {
		respondError(w, http.StatusBadRequest, domain.ErrCodeInvalidInput, err.Error())
		return
	}

	report, err := h.syncService.Run(r.Context(), dryRun)
	if err != nil {
		handleError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, report)
}

// Trigger schedules a debounced reconciliation.
func (h *SyncHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	h.syncService.TriggerSync()
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "scheduled"})
}

// Report returns the report of the last completed run.
func (h *SyncHandler) Report(w http.ResponseWriter, r *http.Request) {
	report, ok := h.syncService.LastReport()
	if !ok {
		respondError(w, http.StatusNotFound, domain.ErrCodeResourceNotFound, "no run has completed yet")
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// ListPairings lists the configured pairings.
func (h *SyncHandler) ListPairings(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.syncService.Pairings())
}

// Plan returns the change set of one pairing without applying it.
func (h *SyncHandler) Plan(w http.ResponseWriter, r *http.Request) {
	report, err := h.syncService.Plan(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}
