package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskError_Unwrap_PreservesOriginalError(t *testing.T) {
	// Given: an original error
	originalErr := errors.New("connection refused")

	// When: wrapping it as an index error
	taskErr := IndexError("vector index unavailable", originalErr)

	// Then: unwrapping returns the original error
	require.NotNil(t, taskErr)
	assert.Equal(t, originalErr, errors.Unwrap(taskErr))
	assert.True(t, errors.Is(taskErr, originalErr))
}

func TestTaskError_Error_ReturnsFormattedMessage(t *testing.T) {
	tests := []struct {
		name     string
		err      *TaskError
		expected string
	}{
		{
			name:     "validation",
			err:      ValidationError("title is required", nil),
			expected: "[ERR_401_INVALID_INPUT] title is required",
		},
		{
			name:     "not found",
			err:      NotFoundError("task", 42),
			expected: "[ERR_404_NOT_FOUND] task 42 not found",
		},
		{
			name:     "unknown user",
			err:      UnknownUserError("user_id", 7),
			expected: "[ERR_407_UNKNOWN_USER] user with id 7 does not exist",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestTaskError_Is_MatchesByCode(t *testing.T) {
	err1 := NotFoundError("task", 1)
	err2 := NotFoundError("task", 2)
	other := ModelError("model offline", nil)

	assert.True(t, errors.Is(err1, err2))
	assert.False(t, errors.Is(err1, other))
}

func TestCategoryFromCode(t *testing.T) {
	tests := []struct {
		code     string
		expected Category
	}{
		{ErrCodeConfigInvalid, CategoryConfig},
		{ErrCodeStorageFailed, CategoryStorage},
		{ErrCodeNetworkTimeout, CategoryNetwork},
		{ErrCodeInvalidInput, CategoryValidation},
		{ErrCodeUnknownUser, CategoryValidation},
		{ErrCodeNotFound, CategoryNotFound},
		{ErrCodeEmbeddingFailed, CategoryModel},
		{ErrCodeModelUnavailable, CategoryModel},
		{ErrCodeIndexFailed, CategoryIndex},
		{ErrCodeIndexInitFailed, CategoryIndex},
		{ErrCodeSearchFailed, CategoryIndex},
		{"bogus", CategoryInternal},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.expected, categoryFromCode(tt.code))
		})
	}
}

func TestPredicates_SeeThroughWrapping(t *testing.T) {
	// Given: typed errors wrapped with fmt.Errorf
	validation := fmt.Errorf("create task: %w", UnknownUserError("created_by", 9))
	notFound := fmt.Errorf("update: %w", NotFoundError("task", 3))
	model := fmt.Errorf("index task: %w", ModelError("embed failed", nil))
	index := fmt.Errorf("index task: %w", New(ErrCodeIndexInitFailed, "init failed", nil))

	// Then: predicates match the wrapped category only
	assert.True(t, IsValidation(validation))
	assert.False(t, IsValidation(notFound))
	assert.True(t, IsNotFound(notFound))
	assert.True(t, IsModel(model))
	assert.False(t, IsIndex(model))
	assert.True(t, IsIndex(index))
	assert.Equal(t, ErrCodeUnknownUser, GetCode(validation))
	assert.Equal(t, CategoryIndex, GetCategory(index))
}

func TestPredicates_PlainErrors(t *testing.T) {
	plain := errors.New("boom")

	assert.False(t, IsValidation(plain))
	assert.False(t, IsNotFound(nil))
	assert.False(t, IsRetryable(plain))
	assert.Empty(t, GetCode(plain))
}

func TestRetryable_NetworkCodes(t *testing.T) {
	assert.True(t, IsRetryable(New(ErrCodeNetworkTimeout, "timeout", nil)))
	assert.True(t, IsRetryable(New(ErrCodeModelUnavailable, "ollama down", nil)))
	assert.False(t, IsRetryable(ValidationError("bad", nil)))
	assert.Equal(t, SeverityWarning, New(ErrCodeNetworkTimeout, "timeout", nil).Severity)
	assert.True(t, IsFatal(New(ErrCodeStorageCorrupt, "corrupt", nil)))
}

func TestWrap_NilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeInternal, nil))
}

func TestFormatForCLI_IncludesSuggestion(t *testing.T) {
	err := IndexError("vector index unavailable", nil).
		WithSuggestion("check that qdrant is running")

	out := FormatForCLI(err)

	assert.Contains(t, out, "Error: vector index unavailable")
	assert.Contains(t, out, "Suggestion: check that qdrant is running")
	assert.Contains(t, out, ErrCodeIndexFailed)
}

func TestFormatJSON_PlainErrorIsInternal(t *testing.T) {
	data, err := FormatJSON(errors.New("boom"))
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, ErrCodeInternal, decoded["code"])
	assert.Equal(t, "boom", decoded["message"])
}

func TestLogAttrs(t *testing.T) {
	attrs := LogAttrs(ModelError("embed failed", errors.New("eof")))

	assert.Contains(t, attrs, "error_code")
	assert.Contains(t, attrs, ErrCodeEmbeddingFailed)
	assert.Contains(t, attrs, "eof")
	assert.Nil(t, LogAttrs(nil))
}
