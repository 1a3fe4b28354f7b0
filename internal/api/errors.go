package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	taskerrors "github.com/Aman-CERP/tasksearch/internal/errors"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
}

// StatusFor maps an error to its HTTP status.
func StatusFor(err error) int {
	if taskerrors.GetCode(err) == taskerrors.ErrCodeDuplicate {
		return http.StatusConflict
	}
	switch taskerrors.GetCategory(err) {
	case taskerrors.CategoryValidation:
		return http.StatusBadRequest
	case taskerrors.CategoryNotFound:
		return http.StatusNotFound
	case taskerrors.CategoryModel, taskerrors.CategoryIndex:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	detail := errorDetail{Code: taskerrors.GetCode(err), Message: err.Error()}
	if te, ok := taskerrors.As(err); ok {
		detail.Message = te.Message
		detail.Suggestion = te.Suggestion
	}
	if detail.Code == "" {
		detail.Code = taskerrors.ErrCodeInternal
	}
	if status >= http.StatusInternalServerError {
		// Internal causes stay in the log.
		if status == http.StatusInternalServerError {
			detail.Message = "internal error"
		}
		attrs := append([]any{slog.String("request_id", RequestID(r.Context()))}, taskerrors.LogAttrs(err)...)
		s.logger.Error("http_request_failed", attrs...)
	}
	writeJSON(w, status, errorBody{Error: detail})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
