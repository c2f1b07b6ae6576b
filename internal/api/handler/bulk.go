package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bcnelson/bulk-vm-provisioner/internal/api/middleware"
	"github.com/bcnelson/bulk-vm-provisioner/internal/domain"
	"github.com/bcnelson/bulk-vm-provisioner/internal/service"
	"github.com/bcnelson/bulk-vm-provisioner/internal/storage"
)

// BulkHandler handles batch submission and history.
type BulkHandler struct {
	store        storage.Storage
	provisioning *service.ProvisioningService
}

// NewBulkHandler creates a new BulkHandler.
func NewBulkHandler(store storage.Storage, provisioning *service.ProvisioningService) *BulkHandler {
	return &BulkHandler{store: store, provisioning: provisioning}
}

// Run provisions a CSV batch. Commit defaults to false, which makes the
// request a dry run.
func (h *BulkHandler) Run(w http.ResponseWriter, r *http.Request) {
	var req domain.BulkRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, domain.ErrCodeInvalidInput, "invalid request body")
		return
	}
	if req.CSV == "" {
		respondStandardError(w, http.StatusBadRequest, domain.ErrCodeValidationError, "csv is required", "csv", nil)
		return
	}
	if key := middleware.GetAPIKeyFromContext(r.Context()); key != nil {
		req.SubmittedBy = key.Name
		req.APIKeyID = key.ID
	}

	run, err := h.provisioning.RunBatch(r.Context(), req)
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, run)
}

// ListRuns lists recorded batch runs, newest first.
func (h *BulkHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 50)
	if err != nil {
		handleError(w, err)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		handleError(w, err)
		return
	}

	runs, err := h.store.ListBatchRuns(r.Context(), limit, offset)
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, runs)
}

// GetRun returns one batch run with its outcomes.
func (h *BulkHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.store.GetBatchRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleError(w, err)
		return
	}
	if respondCached(w, r, BatchRunETag(run)) {
		return
	}
	respondJSON(w, http.StatusOK, run)
}
