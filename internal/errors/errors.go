package errors

import (
	stderrors "errors"
	"fmt"
)

// TaskError is the structured error type for tasksearch.
// It provides rich context for error handling, logging, and user presentation.
type TaskError struct {
	// Code is the unique error code (e.g., "ERR_404_NOT_FOUND").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Validation, Model, Index, etc.).
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
func (e *TaskError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *TaskError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a TaskError with the same code.
func (e *TaskError) Is(target error) bool {
	if t, ok := target.(*TaskError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
func (e *TaskError) WithDetail(key, value string) *TaskError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
func (e *TaskError) WithSuggestion(suggestion string) *TaskError {
	e.Suggestion = suggestion
	return e
}

// New creates a new TaskError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *TaskError {
	return &TaskError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a TaskError from an existing error.
// The error's message becomes the TaskError message.
func Wrap(code string, err error) *TaskError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *TaskError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// StorageError creates a primary store error.
func StorageError(message string, cause error) *TaskError {
	return New(ErrCodeStorageFailed, message, cause)
}

// ValidationError creates an input validation error.
// Nothing has been written when a ValidationError is returned.
func ValidationError(message string, cause error) *TaskError {
	return New(ErrCodeInvalidInput, message, cause)
}

// UnknownUserError reports a task referencing a user that does not exist.
func UnknownUserError(field string, userID int64) *TaskError {
	return New(ErrCodeUnknownUser, fmt.Sprintf("user with id %d does not exist", userID), nil).
		WithDetail("field", field).
		WithDetail("user_id", fmt.Sprintf("%d", userID))
}

// NotFoundError creates a lookup error for a missing entity.
func NotFoundError(kind string, id int64) *TaskError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s %d not found", kind, id), nil).
		WithDetail("kind", kind)
}

// ModelError creates an embedding provider error.
func ModelError(message string, cause error) *TaskError {
	return New(ErrCodeEmbeddingFailed, message, cause)
}

// IndexError creates a vector index error.
func IndexError(message string, cause error) *TaskError {
	return New(ErrCodeIndexFailed, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *TaskError {
	return New(ErrCodeInternal, message, cause)
}

// As returns the first TaskError in err's chain.
func As(err error) (*TaskError, bool) {
	var te *TaskError
	if stderrors.As(err, &te) {
		return te, true
	}
	return nil, false
}

// IsValidation reports whether err is a validation or unknown-user error.
func IsValidation(err error) bool {
	te, ok := As(err)
	return ok && te.Category == CategoryValidation
}

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool {
	te, ok := As(err)
	return ok && te.Category == CategoryNotFound
}

// IsModel reports whether err originated in the embedding provider.
func IsModel(err error) bool {
	te, ok := As(err)
	return ok && te.Category == CategoryModel
}

// IsIndex reports whether err originated in the vector index.
func IsIndex(err error) bool {
	te, ok := As(err)
	return ok && te.Category == CategoryIndex
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	te, ok := As(err)
	return ok && te.Retryable
}

// IsFatal checks if an error has fatal severity.
func IsFatal(err error) bool {
	te, ok := As(err)
	return ok && te.Severity == SeverityFatal
}

// GetCode extracts the error code from a TaskError.
// Returns empty string if err carries no TaskError.
func GetCode(err error) string {
	if te, ok := As(err); ok {
		return te.Code
	}
	return ""
}

// GetCategory extracts the category from a TaskError.
func GetCategory(err error) Category {
	if te, ok := As(err); ok {
		return te.Category
	}
	return ""
}
