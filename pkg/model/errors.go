package model

import (
	"errors"
	"fmt"
)

// ErrorCode represents a structured API error code.
type ErrorCode string

const (
	ErrValidation  ErrorCode = "VALIDATION_ERROR"
	ErrNotFound    ErrorCode = "NOT_FOUND"
	ErrConflict    ErrorCode = "CONFLICT"
	ErrUnreachable ErrorCode = "UNREACHABLE"
	ErrUnavailable ErrorCode = "UNAVAILABLE"
	ErrInternal    ErrorCode = "INTERNAL_ERROR"
)

// APIError is a structured error returned by the control API.
type APIError struct {
	Code    ErrorCode    `json:"code"`
	Message string       `json:"message"`
	Details []FieldError `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// FieldError describes a validation error on a specific field.
type FieldError struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// NewValidationError creates an APIError with validation details.
func NewValidationError(msg string, details ...FieldError) *APIError {
	return &APIError{Code: ErrValidation, Message: msg, Details: details}
}

// NewNotFoundError creates a NOT_FOUND APIError.
func NewNotFoundError(resource, id string) *APIError {
	return &APIError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s '%s' not found", resource, id),
	}
}

// NewInternalError creates an INTERNAL_ERROR APIError.
func NewInternalError(msg string) *APIError {
	return &APIError{Code: ErrInternal, Message: msg}
}

// Engine errors.
var (
	ErrDuplicateWorker = errors.New("worker already exists")
	ErrUnknownWorker   = errors.New("unknown worker")
	ErrUnknownJob      = errors.New("unknown job")
	ErrWorkerBusy      = errors.New("worker has a live job")
	ErrShuttingDown    = errors.New("scheduler is shutting down")
	ErrNoState         = errors.New("no prior state")
	ErrInvalidState    = errors.New("invalid state")
)

// LaunchError reports that a job's executable could not be started.
type LaunchError struct {
	JobID      string
	Executable string
	Err        error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launch job %s (%s): %v", e.JobID, e.Executable, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// PersistenceError reports a failed durable read or write.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// StateCorruptionError reports a snapshot that exists but cannot be read.
type StateCorruptionError struct {
	Path string
	Err  error
}

func (e *StateCorruptionError) Error() string {
	return fmt.Sprintf("state %s is unreadable: %v", e.Path, e.Err)
}

func (e *StateCorruptionError) Unwrap() error { return e.Err }
