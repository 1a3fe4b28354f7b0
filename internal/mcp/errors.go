// Package mcp exposes task search to AI clients over the Model Context Protocol.
package mcp

import (
	"context"
	"errors"
	"fmt"

	taskerrors "github.com/Aman-CERP/tasksearch/internal/errors"
)

// Custom MCP error codes.
const (
	// ErrCodeIndexUnavailable indicates the vector index cannot be used.
	ErrCodeIndexUnavailable = -32001

	// ErrCodeEmbeddingFailed indicates embedding generation failed.
	ErrCodeEmbeddingFailed = -32002

	// ErrCodeTimeout indicates the request timed out or was cancelled.
	ErrCodeTimeout = -32003

	// ErrCodeNotFound indicates the requested task does not exist.
	ErrCodeNotFound = -32004

	// Standard JSON-RPC error codes.
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// MCPError is a protocol error with code and message.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// MapError converts internal errors to MCP errors.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	var mcpErr *MCPError
	if errors.As(err, &mcpErr) {
		return mcpErr
	}
	if te, ok := taskerrors.As(err); ok {
		return mapTaskError(te)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request timed out."}
	case errors.Is(err, context.Canceled):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request was canceled."}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: "Internal server error."}
	}
}

// NewInvalidParamsError creates an error for invalid parameters.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{Code: ErrCodeInvalidParams, Message: msg}
}

// NewMethodNotFoundError creates an error for unknown tools.
func NewMethodNotFoundError(name string) *MCPError {
	return &MCPError{Code: ErrCodeMethodNotFound, Message: fmt.Sprintf("Tool '%s' not found.", name)}
}

func mapTaskError(te *taskerrors.TaskError) *MCPError {
	message := te.Message
	if te.Suggestion != "" {
		message = fmt.Sprintf("%s %s", te.Message, te.Suggestion)
	}

	switch te.Category {
	case taskerrors.CategoryValidation:
		return &MCPError{Code: ErrCodeInvalidParams, Message: message}
	case taskerrors.CategoryNotFound:
		return &MCPError{Code: ErrCodeNotFound, Message: message}
	case taskerrors.CategoryModel:
		return &MCPError{Code: ErrCodeEmbeddingFailed, Message: message}
	case taskerrors.CategoryIndex:
		return &MCPError{Code: ErrCodeIndexUnavailable, Message: message}
	case taskerrors.CategoryNetwork:
		return &MCPError{Code: ErrCodeTimeout, Message: message}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: message}
	}
}
