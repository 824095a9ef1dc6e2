package export

import (
	"errors"
	"fmt"
)

// ErrNotFound matches every NotFoundError through errors.Is.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned by stores when a conditional update lost a race
// or a uniqueness constraint was violated.
var ErrConflict = errors.New("conflict")

// ValidationError represents an invalid request or profile.
// It maps to a client error at any outer surface.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error [field=%s]: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// NotFoundError reports a missing profile, process, deployment or revision.
type NotFoundError struct {
	Kind string
	ID   string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found [id=%s]", e.Kind, e.ID)
}

// Is lets errors.Is(err, ErrNotFound) match any NotFoundError.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(kind, id string) *NotFoundError {
	return &NotFoundError{Kind: kind, ID: id}
}

// AlreadyRunningError is returned when the requester already has an export
// in flight for the same export type.
type AlreadyRunningError struct {
	RequesterID string
	ExportType  ExportType
	ProcessID   string
}

// Error implements the error interface.
func (e *AlreadyRunningError) Error() string {
	return fmt.Sprintf("export already running [requester=%s, type=%s, process=%s]", e.RequesterID, e.ExportType, e.ProcessID)
}

// ProcessingError wraps a background export failure with its process id.
type ProcessingError struct {
	ProcessID string
	Cause     error
}

// Error implements the error interface.
func (e *ProcessingError) Error() string {
	return fmt.Sprintf("export processing failed [process=%s]: %v", e.ProcessID, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *ProcessingError) Unwrap() error {
	return e.Cause
}

// NewProcessingError creates a new ProcessingError.
func NewProcessingError(processID string, cause error) *ProcessingError {
	return &ProcessingError{ProcessID: processID, Cause: cause}
}

// StorageError represents an error from a persistence backend.
type StorageError struct {
	Backend   string // "sqlite", "memory", "mongo", "minio"
	Operation string // operation that failed
	Cause     error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error [backend=%s, operation=%s]: %v", e.Backend, e.Operation, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *StorageError) Unwrap() error {
	return e.Cause
}

// NewStorageError creates a new StorageError.
func NewStorageError(backend, operation string, cause error) *StorageError {
	return &StorageError{Backend: backend, Operation: operation, Cause: cause}
}

// StageError reports a failed pipeline stage. The run is aborted.
type StageError struct {
	Stage    string
	Category string
	Cause    error
}

// Error implements the error interface.
func (e *StageError) Error() string {
	if e.Category != "" {
		return fmt.Sprintf("stage %s failed [category=%s]: %v", e.Stage, e.Category, e.Cause)
	}
	return fmt.Sprintf("stage %s failed: %v", e.Stage, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *StageError) Unwrap() error {
	return e.Cause
}

// NewStageError creates a new StageError.
func NewStageError(stage, category string, cause error) *StageError {
	return &StageError{Stage: stage, Category: category, Cause: cause}
}

// FetchError reports a failed module fetch.
type FetchError struct {
	Module       string
	DeploymentID string
	Cause        error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch error [module=%s, deployment=%s]: %v", e.Module, e.DeploymentID, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *FetchError) Unwrap() error {
	return e.Cause
}

// NewFetchError creates a new FetchError.
func NewFetchError(module, deploymentID string, cause error) *FetchError {
	return &FetchError{Module: module, DeploymentID: deploymentID, Cause: cause}
}

// BinaryResolutionError reports a binary reference that could not be
// resolved while strict binary handling is enabled.
type BinaryResolutionError struct {
	RecordID string
	Path     string
	Ref      ObjectRef
	Cause    error
}

// Error implements the error interface.
func (e *BinaryResolutionError) Error() string {
	return fmt.Sprintf("binary resolution error [record=%s, path=%s, object=%s/%s]: %v",
		e.RecordID, e.Path, e.Ref.Bucket, e.Ref.Key, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *BinaryResolutionError) Unwrap() error {
	return e.Cause
}

// NewBinaryResolutionError creates a new BinaryResolutionError.
func NewBinaryResolutionError(recordID, path string, ref ObjectRef, cause error) *BinaryResolutionError {
	return &BinaryResolutionError{RecordID: recordID, Path: path, Ref: ref, Cause: cause}
}

// RenderError reports a failure while rendering an output file.
type RenderError struct {
	Format      Format
	Path        string
	RecordCount int
	Cause       error
}

// Error implements the error interface.
func (e *RenderError) Error() string {
	return fmt.Sprintf("render error [format=%s, path=%s, record_count=%d]: %v", e.Format, e.Path, e.RecordCount, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *RenderError) Unwrap() error {
	return e.Cause
}

// NewRenderError creates a new RenderError.
func NewRenderError(format Format, path string, recordCount int, cause error) *RenderError {
	return &RenderError{Format: format, Path: path, RecordCount: recordCount, Cause: cause}
}

// IsValidation reports whether err is or wraps a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
