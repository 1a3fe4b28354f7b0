package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	taskerrors "github.com/Aman-CERP/tasksearch/internal/errors"
	"github.com/Aman-CERP/tasksearch/internal/search"
	"github.com/Aman-CERP/tasksearch/internal/store"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// maxSearchTopK bounds top_k on /tasks/search.
const maxSearchTopK = 100

type registerUserRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type statusRequest struct {
	Status store.Status `json:"status"`
}

type assignRequest struct {
	UserID *int64 `json:"user_id"`
}

type searchResponse struct {
	Query   string          `json:"query"`
	Count   int             `json:"count"`
	Results []search.Result `json:"results"`
}

func (s *Server) handleRegisterUser(w http.ResponseWriter, r *http.Request) {
	var req registerUserRequest
	if !s.decode(w, r, &req) {
		return
	}
	u, err := s.tasks.RegisterUser(r.Context(), req.Username, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, "id")
	if !ok {
		return
	}
	u, err := s.tasks.GetUser(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var in store.TaskInput
	if !s.decode(w, r, &in) {
		return
	}
	task, err := s.tasks.CreateTask(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	page, ok := s.page(w, r)
	if !ok {
		return
	}
	list, err := s.tasks.ListTasks(r.Context(), page)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	topK, _, err := parseQueryIntParam(r.URL.Query(), "top_k")
	if err == nil && topK > maxSearchTopK {
		err = fmt.Errorf("value must be at most %d", maxSearchTopK)
	}
	if err != nil {
		s.writeError(w, r, taskerrors.New(taskerrors.ErrCodeInvalidQuery, "top_k: "+err.Error(), nil).
			WithDetail("field", "top_k"))
		return
	}
	results, err := s.search.Search(r.Context(), query, topK)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, searchResponse{Query: query, Count: len(results), Results: results})
}

func (s *Server) handleListByUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.pathID(w, r, "userID")
	if !ok {
		return
	}
	page, ok := s.page(w, r)
	if !ok {
		return
	}
	list, err := s.tasks.ListByUser(r.Context(), userID, page)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleListByStatus(w http.ResponseWriter, r *http.Request) {
	page, ok := s.page(w, r)
	if !ok {
		return
	}
	list, err := s.tasks.ListByStatus(r.Context(), store.Status(r.PathValue("status")), page)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleListByDate(w http.ResponseWriter, r *http.Request) {
	start, err := parseDate(r.PathValue("start"))
	if err != nil {
		s.writeError(w, r, taskerrors.ValidationError("invalid start date", err).WithDetail("field", "start"))
		return
	}
	end, err := parseDate(r.PathValue("end"))
	if err != nil {
		s.writeError(w, r, taskerrors.ValidationError("invalid end date", err).WithDetail("field", "end"))
		return
	}
	page, ok := s.page(w, r)
	if !ok {
		return
	}
	list, err := s.tasks.ListByDateRange(r.Context(), start, end, page)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, "id")
	if !ok {
		return
	}
	task, err := s.tasks.GetTask(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, "id")
	if !ok {
		return
	}
	var patch store.TaskPatch
	if !s.decode(w, r, &patch) {
		return
	}
	task, err := s.tasks.UpdateTask(r.Context(), id, patch)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, "id")
	if !ok {
		return
	}
	var req statusRequest
	if !s.decode(w, r, &req) {
		return
	}
	task, err := s.tasks.SetStatus(r.Context(), id, req.Status)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleAssign(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, "id")
	if !ok {
		return
	}
	var req assignRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.UserID == nil {
		s.writeError(w, r, taskerrors.ValidationError("user_id is required", nil).WithDetail("field", "user_id"))
		return
	}
	task, err := s.tasks.Assign(r.Context(), id, *req.UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, "id")
	if !ok {
		return
	}
	if err := s.tasks.DeleteTask(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type healthResponse struct {
	Status   string       `json:"status"`
	Embedder string       `json:"embedder"`
	Index    *indexHealth `json:"index"`
}

type indexHealth struct {
	Ready   bool   `json:"ready"`
	Records int    `json:"records"`
	Error   string `json:"error,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Embedder: s.embedder.ModelName(), Index: &indexHealth{}}
	healthy := s.embedder.Available(r.Context())

	n, err := s.index.Count(r.Context())
	if err != nil {
		healthy = false
		resp.Index.Error = err.Error()
	} else {
		resp.Index.Ready = true
		resp.Index.Records = n
	}

	code := http.StatusOK
	if !healthy {
		resp.Status = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

// decode reads a JSON body into v, writing a 400 on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		s.writeError(w, r, taskerrors.ValidationError("invalid request body", err).
			WithSuggestion("send a JSON object with the documented fields"))
		return false
	}
	return true
}

func (s *Server) pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	raw := r.PathValue(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		s.writeError(w, r, taskerrors.ValidationError(fmt.Sprintf("invalid %s %q", name, raw), err).
			WithDetail("field", name))
		return 0, false
	}
	return id, true
}

func (s *Server) page(w http.ResponseWriter, r *http.Request) (store.Page, bool) {
	q := r.URL.Query()
	skip, _, err := parseQueryIntParam(q, "skip")
	if err != nil {
		s.writeError(w, r, taskerrors.ValidationError("skip: "+err.Error(), nil).WithDetail("field", "skip"))
		return store.Page{}, false
	}
	limit, provided, err := parseQueryIntParam(q, "limit")
	if err == nil && provided && limit == 0 {
		err = fmt.Errorf("value must be positive")
	}
	if err != nil {
		s.writeError(w, r, taskerrors.ValidationError("limit: "+err.Error(), nil).WithDetail("field", "limit"))
		return store.Page{}, false
	}
	return store.Page{Skip: skip, Limit: limit}, true
}

// parseQueryIntParam extracts a non-negative integer query parameter.
// Returns (value, provided, error).
func parseQueryIntParam(query url.Values, name string) (int, bool, error) {
	raw := strings.TrimSpace(query.Get(name))
	if raw == "" {
		return 0, false, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, true, err
	}
	if value < 0 {
		return 0, true, fmt.Errorf("value must be non-negative")
	}
	return value, true, nil
}

// parseDate accepts RFC 3339 timestamps and plain dates.
func parseDate(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, raw)
}
