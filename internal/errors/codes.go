// Package errors provides structured error handling for tasksearch.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Storage errors (primary store, disk)
//   - 3XX: Network errors
//   - 4XX: Validation and lookup errors
//   - 5XX: Internal errors (embedding, vector index, search)
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryStorage indicates primary store and disk errors.
	CategoryStorage Category = "STORAGE"
	// CategoryNetwork indicates network-related errors.
	CategoryNetwork Category = "NETWORK"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryNotFound indicates a referenced entity does not exist.
	CategoryNotFound Category = "NOT_FOUND"
	// CategoryModel indicates embedding provider errors.
	CategoryModel Category = "MODEL"
	// CategoryIndex indicates vector index errors.
	CategoryIndex Category = "INDEX"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
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
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// Storage errors (200-299)
	ErrCodeStorageFailed  = "ERR_201_STORAGE_FAILED"
	ErrCodeStorageCorrupt = "ERR_205_STORAGE_CORRUPT"

	// Network errors (300-399)
	ErrCodeNetworkTimeout     = "ERR_301_NETWORK_TIMEOUT"
	ErrCodeNetworkUnavailable = "ERR_302_NETWORK_UNAVAILABLE"

	// Validation errors (400-499)
	ErrCodeInvalidInput      = "ERR_401_INVALID_INPUT"
	ErrCodeDimensionMismatch = "ERR_402_DIMENSION_MISMATCH"
	ErrCodeInvalidQuery      = "ERR_403_INVALID_QUERY"
	ErrCodeNotFound          = "ERR_404_NOT_FOUND"
	ErrCodeDuplicate         = "ERR_405_DUPLICATE"
	ErrCodeUnknownUser       = "ERR_407_UNKNOWN_USER"

	// Internal errors (500-599)
	ErrCodeInternal         = "ERR_501_INTERNAL"
	ErrCodeEmbeddingFailed  = "ERR_502_EMBEDDING_FAILED"
	ErrCodeSearchFailed     = "ERR_503_SEARCH_FAILED"
	ErrCodeModelUnavailable = "ERR_504_MODEL_UNAVAILABLE"
	ErrCodeIndexFailed      = "ERR_505_INDEX_FAILED"
	ErrCodeIndexInitFailed  = "ERR_506_INDEX_INIT_FAILED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	switch code {
	case ErrCodeNotFound:
		return CategoryNotFound
	case ErrCodeEmbeddingFailed, ErrCodeModelUnavailable:
		return CategoryModel
	case ErrCodeIndexFailed, ErrCodeIndexInitFailed, ErrCodeSearchFailed:
		return CategoryIndex
	}

	if len(code) < 7 {
		return CategoryInternal
	}

	// "101" from "ERR_101_CONFIG_NOT_FOUND"
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryStorage
	case '3':
		return CategoryNetwork
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeStorageCorrupt:
		return SeverityFatal
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}
	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeNetworkTimeout, ErrCodeNetworkUnavailable, ErrCodeModelUnavailable:
		return true
	default:
		return false
	}
}
