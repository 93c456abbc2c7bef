package errors

import (
	stderrors "errors"
	"fmt"
)

// BeaconError is the structured error type for Beacon.
// It provides rich context for error handling, logging, and user presentation.
type BeaconError struct {
	// Code is the unique error code (e.g., "ERR_302_RATE_LIMITED").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, Datastore, Throttle, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *BeaconError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *BeaconError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with BeaconError.
func (e *BeaconError) Is(target error) bool {
	if t, ok := target.(*BeaconError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *BeaconError) WithDetail(key, value string) *BeaconError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
// Returns the error for method chaining.
func (e *BeaconError) WithSuggestion(suggestion string) *BeaconError {
	e.Suggestion = suggestion
	return e
}

// New creates a new BeaconError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *BeaconError {
	return &BeaconError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a BeaconError from an existing error.
// The error's message becomes the BeaconError message.
func Wrap(code string, err error) *BeaconError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *BeaconError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// DatastoreError creates an entity-store error.
// Datastore errors are typically retryable.
func DatastoreError(message string, cause error) *BeaconError {
	return New(ErrCodeDatastoreQuery, message, cause)
}

// TimeoutError creates a deadline-exceeded error.
func TimeoutError(message string, cause error) *BeaconError {
	return New(ErrCodeTimeout, message, cause)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *BeaconError {
	return New(ErrCodeInvalidInput, message, cause)
}

// ExecutionError creates a pipeline execution error.
func ExecutionError(message string, cause error) *BeaconError {
	return New(ErrCodeExecutionFailed, message, cause)
}

// UnknownError creates an error for failures no other code describes.
// Used at the outermost boundary so callers never see an unstructured panic.
func UnknownError(message string, cause error) *BeaconError {
	return New(ErrCodeUnknown, message, cause)
}

// IsRetryable checks if an error is retryable.
// Returns true if the error chain contains a BeaconError with the
// Retryable flag set.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var be *BeaconError
	if stderrors.As(err, &be) {
		return be.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
// Fatal errors should abort the current operation.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var be *BeaconError
	if stderrors.As(err, &be) {
		return be.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from a BeaconError.
// Returns empty string if the chain holds no BeaconError.
func GetCode(err error) string {
	var be *BeaconError
	if stderrors.As(err, &be) {
		return be.Code
	}
	return ""
}

// GetCategory extracts the category from a BeaconError.
// Returns empty string if the chain holds no BeaconError.
func GetCategory(err error) Category {
	var be *BeaconError
	if stderrors.As(err, &be) {
		return be.Category
	}
	return ""
}
