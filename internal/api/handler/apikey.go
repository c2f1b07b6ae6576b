package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bcnelson/bulk-vm-provisioner/internal/domain"
	"github.com/bcnelson/bulk-vm-provisioner/internal/storage"
)

// APIKeyHandler handles API key endpoints.
type APIKeyHandler struct {
	store storage.Storage
}

// NewAPIKeyHandler creates a new APIKeyHandler.
func NewAPIKeyHandler(store storage.Storage) *APIKeyHandler {
	return &APIKeyHandler{store: store}
}

// Create creates a new API key. The key itself is only returned here.
func (h *APIKeyHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateAPIKeyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, domain.ErrCodeInvalidInput, "invalid request body")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		respondStandardError(w, http.StatusBadRequest, domain.ErrCodeValidationError, "name is required", "name", nil)
		return
	}

	issued, err := domain.IssueAPIKey(req.Name, time.Now())
	if err != nil {
		respondError(w, http.StatusInternalServerError, domain.ErrCodeInternalError, "failed to generate API key")
		return
	}
	if err := h.store.CreateAPIKey(r.Context(), &issued.APIKey); err != nil {
		handleError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, issued)
}

// List lists all API keys with their batch usage, without the key values.
func (h *APIKeyHandler) List(w http.ResponseWriter, r *http.Request) {
	keys, err := h.store.ListAPIKeys(r.Context())
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, keys)
}

// Delete deletes an API key.
func (h *APIKeyHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteAPIKey(r.Context(), chi.URLParam(r, "id")); err != nil {
		handleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
