package errors

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FormatForCLI formats an error for CLI output.
func FormatForCLI(err error) string {
	if err == nil {
		return ""
	}

	te, ok := As(err)
	if !ok {
		te = Wrap(ErrCodeInternal, err)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Error: %s\n", te.Message))
	if te.Suggestion != "" {
		sb.WriteString(fmt.Sprintf("  Suggestion: %s\n", te.Suggestion))
	}
	sb.WriteString(fmt.Sprintf("  Code: %s\n", te.Code))
	return sb.String()
}

// jsonError is the wire form of a TaskError.
type jsonError struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Category   string            `json:"category"`
	Details    map[string]string `json:"details,omitempty"`
	Suggestion string            `json:"suggestion,omitempty"`
	Retryable  bool              `json:"retryable"`
}

// FormatJSON returns a JSON representation of the error.
func FormatJSON(err error) ([]byte, error) {
	if err == nil {
		return json.Marshal(nil)
	}

	te, ok := As(err)
	if !ok {
		te = Wrap(ErrCodeInternal, err)
	}

	return json.Marshal(jsonError{
		Code:       te.Code,
		Message:    te.Message,
		Category:   string(te.Category),
		Details:    te.Details,
		Suggestion: te.Suggestion,
		Retryable:  te.Retryable,
	})
}

// LogAttrs returns key-value pairs suitable for slog.
func LogAttrs(err error) []any {
	if err == nil {
		return nil
	}

	te, ok := As(err)
	if !ok {
		return []any{"error", err.Error()}
	}

	attrs := []any{
		"error", te.Error(),
		"error_code", te.Code,
		"category", string(te.Category),
	}
	if te.Cause != nil {
		attrs = append(attrs, "cause", te.Cause.Error())
	}
	return attrs
}
