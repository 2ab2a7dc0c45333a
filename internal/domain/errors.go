package domain

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for common error conditions.
var (
	// ErrNotFound indicates that a requested entity was not found.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates that an entity already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates that the input data is invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrRateLimited indicates that the request was rate limited.
	ErrRateLimited = errors.New("rate limited")

	// ErrServiceUnavailable indicates that an external service is unavailable.
	ErrServiceUnavailable = errors.New("service unavailable")
)

// Load and reconciliation failures. Manifest and document failures abort
// initialization; remote failures degrade the like counters only.
var (
	// ErrManifestUnavailable indicates the corpus manifest could not be fetched or decoded.
	ErrManifestUnavailable = errors.New("manifest unavailable")

	// ErrDocumentUnavailable indicates a per-document fetch or decode failed.
	ErrDocumentUnavailable = errors.New("document unavailable")

	// ErrRemoteFetchFailed indicates the remote counter store could not be read.
	ErrRemoteFetchFailed = errors.New("remote fetch failed")

	// ErrRemoteWriteFailed indicates a like count could not be persisted.
	ErrRemoteWriteFailed = errors.New("remote write failed")

	// ErrRemoteUnconfigured indicates no remote counter store was initialized.
	ErrRemoteUnconfigured = errors.New("remote store unconfigured")
)

// ValidationError represents a validation error for a specific field.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// NotFoundError provides details about a not found entity.
type NotFoundError struct {
	Entity string
	ID     string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// AlreadyExistsError provides details about a duplicate entity.
type AlreadyExistsError struct {
	Entity string
	ID     string
}

// Error implements the error interface.
func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("%s already exists: %s", e.Entity, e.ID)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *AlreadyExistsError) Unwrap() error {
	return ErrAlreadyExists
}

// RateLimitError provides details about a rate limit error.
type RateLimitError struct {
	Source     string
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited by %s: retry after %s", e.Source, e.RetryAfter)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *RateLimitError) Unwrap() error {
	return ErrRateLimited
}

// ExternalAPIError provides details about an external API error.
type ExternalAPIError struct {
	Source     string
	StatusCode int
	Message    string
	Cause      error
}

// Error implements the error interface.
func (e *ExternalAPIError) Error() string {
	return fmt.Sprintf("%s API error (status %d): %s", e.Source, e.StatusCode, e.Message)
}

// Unwrap returns the underlying cause error.
func (e *ExternalAPIError) Unwrap() error {
	return e.Cause
}

// DocumentError reports a failed per-document fetch. It matches
// ErrDocumentUnavailable as well as its cause.
type DocumentError struct {
	Location string
	Cause    error
}

// Error implements the error interface.
func (e *DocumentError) Error() string {
	return fmt.Sprintf("document %s unavailable: %v", e.Location, e.Cause)
}

// Unwrap exposes both the sentinel and the cause to errors.Is/As.
func (e *DocumentError) Unwrap() []error {
	return []error{ErrDocumentUnavailable, e.Cause}
}

// RemoteError reports a failed call against the remote counter store.
// Kind is one of the remote sentinels.
type RemoteError struct {
	Op    string
	Key   string
	Kind  error
	Cause error
}

// Error implements the error interface.
func (e *RemoteError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("%v: %s: %v", e.Kind, e.Op, e.Cause)
	}
	return fmt.Sprintf("%v: %s %s: %v", e.Kind, e.Op, e.Key, e.Cause)
}

// Unwrap exposes both the sentinel kind and the cause to errors.Is/As.
func (e *RemoteError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(entity, id string) *NotFoundError {
	return &NotFoundError{
		Entity: entity,
		ID:     id,
	}
}

// NewAlreadyExistsError creates a new AlreadyExistsError.
func NewAlreadyExistsError(entity, id string) *AlreadyExistsError {
	return &AlreadyExistsError{
		Entity: entity,
		ID:     id,
	}
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// NewRateLimitError creates a new RateLimitError.
func NewRateLimitError(source string, retryAfter time.Duration) *RateLimitError {
	return &RateLimitError{
		Source:     source,
		RetryAfter: retryAfter,
	}
}

// NewExternalAPIError creates a new ExternalAPIError.
func NewExternalAPIError(source string, statusCode int, message string, cause error) *ExternalAPIError {
	return &ExternalAPIError{
		Source:     source,
		StatusCode: statusCode,
		Message:    message,
		Cause:      cause,
	}
}

// NewDocumentError creates a new DocumentError.
func NewDocumentError(location string, cause error) *DocumentError {
	return &DocumentError{Location: location, Cause: cause}
}

// NewRemoteFetchError wraps a failed bulk read of the counter store.
func NewRemoteFetchError(op string, cause error) *RemoteError {
	return &RemoteError{Op: op, Kind: ErrRemoteFetchFailed, Cause: cause}
}

// NewRemoteWriteError wraps a failed counter write for key.
func NewRemoteWriteError(op, key string, cause error) *RemoteError {
	return &RemoteError{Op: op, Key: key, Kind: ErrRemoteWriteFailed, Cause: cause}
}

// ErrorKind returns a stable label for err suitable for log fields and metric labels.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrManifestUnavailable):
		return "manifest_unavailable"
	case errors.Is(err, ErrDocumentUnavailable):
		return "document_unavailable"
	case errors.Is(err, ErrRemoteFetchFailed):
		return "remote_fetch_failed"
	case errors.Is(err, ErrRemoteWriteFailed):
		return "remote_write_failed"
	case errors.Is(err, ErrRemoteUnconfigured):
		return "remote_unconfigured"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrAlreadyExists):
		return "already_exists"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	default:
		return "internal"
	}
}
