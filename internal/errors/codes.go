// Package errors provides structured error handling for Beacon.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Datastore errors
//   - 3XX: Throttling and timing errors
//   - 4XX: Validation errors
//   - 5XX: Execution errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryDatastore indicates entity store errors.
	CategoryDatastore Category = "DATASTORE"
	// CategoryThrottle indicates rate-limit, timeout, and cancellation errors.
	CategoryThrottle Category = "THROTTLE"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryExecution indicates worker-pool and pipeline errors.
	CategoryExecution Category = "EXECUTION"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
	// SeverityInfo indicates informational only.
	SeverityInfo Severity = "INFO"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// Datastore errors (200-299)
	ErrCodeDatastoreUnavailable = "ERR_201_DATASTORE_UNAVAILABLE"
	ErrCodeDatastoreQuery       = "ERR_202_DATASTORE_QUERY"
	ErrCodeStoreCorrupt         = "ERR_203_STORE_CORRUPT"
	ErrCodeSeedInvalid          = "ERR_204_SEED_INVALID"

	// Throttling errors (300-399)
	ErrCodeTimeout     = "ERR_301_TIMEOUT"
	ErrCodeRateLimited = "ERR_302_RATE_LIMITED"
	ErrCodeInterrupted = "ERR_303_INTERRUPTED"

	// Validation errors (400-499)
	ErrCodeInvalidInput = "ERR_401_INVALID_INPUT"
	ErrCodeUnauthorized = "ERR_402_UNAUTHORIZED"

	// Execution errors (500-599)
	ErrCodePoolExhausted   = "ERR_501_POOL_EXHAUSTED"
	ErrCodePoolShutdown    = "ERR_502_POOL_SHUTDOWN"
	ErrCodeExecutionFailed = "ERR_503_EXECUTION_FAILED"
	ErrCodeSearchFailed    = "ERR_504_SEARCH_FAILED"
	ErrCodeUnknown         = "ERR_599_UNKNOWN"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryExecution
	}

	// Extract numeric portion (e.g., "302" from "ERR_302_RATE_LIMITED")
	numStr := code[4:7]
	if len(numStr) < 1 {
		return CategoryExecution
	}

	switch numStr[0] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryDatastore
	case '3':
		return CategoryThrottle
	case '4':
		return CategoryValidation
	default:
		return CategoryExecution
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	// Fatal errors
	if code == ErrCodeStoreCorrupt {
		return SeverityFatal
	}

	// Retryable errors get warning severity
	if isRetryableCode(code) {
		return SeverityWarning
	}

	// Default to error severity
	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
// The retriable set mirrors the engine's error taxonomy: timeouts, rate
// limits, interrupts, datastore hiccups, and pool saturation are transient;
// invalid input, shutdown, and execution failures are not.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeDatastoreUnavailable, ErrCodeDatastoreQuery,
		ErrCodeTimeout, ErrCodeRateLimited, ErrCodeInterrupted,
		ErrCodePoolExhausted:
		return true
	default:
		return false
	}
}
