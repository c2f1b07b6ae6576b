package domain

import (
	"errors"
	"fmt"
)

// Common errors used throughout the application.
var (
	ErrNotFound        = errors.New("not found")
	ErrAlreadyExists   = errors.New("already exists")
	ErrInvalidInput    = errors.New("invalid input")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrBatchInProgress = errors.New("batch already in progress")

	ErrUnresolved       = errors.New("unresolved reference")
	ErrDuplicateAddress = errors.New("address already assigned")
	ErrPoolExhausted    = errors.New("no free address in pool")
	ErrConfigurationGap = errors.New("configuration gap")
	ErrPersistence      = errors.New("persistence failure")
)

// Error codes for standardized API error responses.
const (
	ErrCodeResourceNotFound      = "RESOURCE_NOT_FOUND"
	ErrCodeResourceAlreadyExists = "RESOURCE_ALREADY_EXISTS"
	ErrCodeInvalidInput          = "INVALID_INPUT"
	ErrCodeUnauthorized          = "UNAUTHORIZED"
	ErrCodeValidationError       = "VALIDATION_ERROR"
	ErrCodeBatchInProgress       = "BATCH_IN_PROGRESS"
	ErrCodeInternalError         = "INTERNAL_ERROR"
)

// ResolutionError reports a referenced entity that is missing from the catalog.
type ResolutionError struct {
	Field  string // input field, e.g. "cluster"
	Entity string // catalog entity, e.g. "cluster"
	Key    string
	Err    error
}

func (e *ResolutionError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("%s: no %s given", e.Field, e.Entity)
	}
	msg := fmt.Sprintf("%s: %s %q does not exist", e.Field, e.Entity, e.Key)
	if e.Err != nil && !errors.Is(e.Err, ErrNotFound) {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ResolutionError) Unwrap() error        { return e.Err }
func (e *ResolutionError) Is(target error) bool { return target == ErrUnresolved }

// DuplicateAddressError reports an explicit address that already exists.
type DuplicateAddressError struct {
	Address string
}

func (e *DuplicateAddressError) Error() string {
	return fmt.Sprintf("%s is already assigned", e.Address)
}

func (e *DuplicateAddressError) Is(target error) bool { return target == ErrDuplicateAddress }

// PoolExhaustedError reports a pool prefix without a free address.
type PoolExhaustedError struct {
	Prefix string
}

func (e *PoolExhaustedError) Error() string {
	return fmt.Sprintf("no free address in prefix %s", e.Prefix)
}

func (e *PoolExhaustedError) Is(target error) bool { return target == ErrPoolExhausted }

// Configuration gap kinds.
const (
	GapMonitoringEnv     = "monitoring-env"
	GapInterfaceTemplate = "interface-template"
)

// ConfigurationGapError reports a lookup into static configuration that has no entry.
type ConfigurationGapError struct {
	Kind     string
	Site     string
	Env      string
	Platform string
	Role     string
}

func (e *ConfigurationGapError) Error() string {
	switch e.Kind {
	case GapMonitoringEnv:
		return fmt.Sprintf("no monitoring environment for site %q env %q", e.Site, e.Env)
	case GapInterfaceTemplate:
		return fmt.Sprintf("no interface template nic0 for platform %q role %q", e.Platform, e.Role)
	default:
		return fmt.Sprintf("configuration gap (%s)", e.Kind)
	}
}

func (e *ConfigurationGapError) Is(target error) bool { return target == ErrConfigurationGap }

// PersistenceError wraps a failed catalog write.
type PersistenceError struct {
	Op     string // "create", "update" or "delete"
	Entity string
	Err    error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Entity, e.Err)
}

func (e *PersistenceError) Unwrap() error        { return e.Err }
func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

// Persist wraps err in a PersistenceError, passing nil through.
func Persist(op, entity string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, Entity: entity, Err: err}
}

// ErrorKind classifies err for outcome records and metric labels.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnresolved):
		return "resolution"
	case errors.Is(err, ErrDuplicateAddress):
		return "duplicate_address"
	case errors.Is(err, ErrPoolExhausted):
		return "pool_exhausted"
	case errors.Is(err, ErrConfigurationGap):
		return "configuration_gap"
	case errors.Is(err, ErrPersistence):
		return "persistence"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	default:
		return "unknown"
	}
}

// StandardError represents a standardized error response from the API.
type StandardError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Field   string         `json:"field,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// StandardErrorResponse wraps a StandardError for JSON responses.
type StandardErrorResponse struct {
	Error StandardError `json:"error"`
}
