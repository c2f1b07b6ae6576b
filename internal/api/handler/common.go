package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/bcnelson/bulk-vm-provisioner/internal/domain"
	"github.com/bcnelson/bulk-vm-provisioner/internal/validation"
)

// maxBodyBytes caps request bodies. A CSV batch of a few thousand rows fits comfortably.
const maxBodyBytes = 4 << 20

// respondJSON writes a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondStandardError writes a StandardError body.
func respondStandardError(w http.ResponseWriter, status int, code, message, field string, details map[string]any) {
	respondJSON(w, status, &domain.StandardErrorResponse{
		Error: domain.StandardError{
			Code:    code,
			Message: message,
			Field:   field,
			Details: details,
		},
	})
}

// respondError writes a StandardError body without field or details.
func respondError(w http.ResponseWriter, status int, code, message string) {
	respondStandardError(w, status, code, message, "", nil)
}

// handleError converts domain errors to HTTP errors.
func handleError(w http.ResponseWriter, err error) {
	var verr *validation.ValidationError
	var verrs validation.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		respondValidationErrors(w, verrs)
	case errors.As(err, &verr):
		respondStandardError(w, http.StatusBadRequest, domain.ErrCodeValidationError, verr.Message, verr.Field, nil)
	case errors.Is(err, domain.ErrNotFound):
		respondError(w, http.StatusNotFound, domain.ErrCodeResourceNotFound, "not found")
	case errors.Is(err, domain.ErrAlreadyExists):
		respondError(w, http.StatusConflict, domain.ErrCodeResourceAlreadyExists, "already exists")
	case errors.Is(err, domain.ErrBatchInProgress):
		respondError(w, http.StatusConflict, domain.ErrCodeBatchInProgress, "another batch is running")
	case errors.Is(err, domain.ErrInvalidInput):
		respondError(w, http.StatusBadRequest, domain.ErrCodeInvalidInput, err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		respondError(w, http.StatusUnauthorized, domain.ErrCodeUnauthorized, "unauthorized")
	default:
		respondError(w, http.StatusInternalServerError, domain.ErrCodeInternalError, "internal server error")
	}
}

// respondValidationErrors writes every validation error with its field.
func respondValidationErrors(w http.ResponseWriter, errs validation.ValidationErrors) {
	fields := make(map[string]any, len(errs))
	for _, e := range errs {
		fields[e.Field] = e.Message
	}
	respondStandardError(w, http.StatusBadRequest, domain.ErrCodeValidationError, errs.Error(), "", fields)
}

// decodeJSON decodes JSON from request body.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return domain.ErrInvalidInput
	}
	return nil
}

// queryInt reads a non-negative integer query parameter.
func queryInt(r *http.Request, name string, def int) (int, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, validation.NewValidationError(name, s, "must be a non-negative integer")
	}
	return n, nil
}
