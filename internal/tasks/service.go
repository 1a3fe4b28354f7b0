// Package tasks is the write path for tasks: validate, commit to the
// primary store, then hand the committed task to the indexer.
package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	taskerrors "github.com/Aman-CERP/tasksearch/internal/errors"
	"github.com/Aman-CERP/tasksearch/internal/index"
	"github.com/Aman-CERP/tasksearch/internal/store"
)

// Store is the primary store as seen by the service.
type Store interface {
	Get(ctx context.Context, id int64) (*store.Task, error)
	Create(ctx context.Context, in store.TaskInput) (*store.Task, error)
	Update(ctx context.Context, id int64, patch store.TaskPatch) (*store.Task, error)
	Delete(ctx context.Context, id int64) (bool, error)
	List(ctx context.Context, page store.Page) ([]*store.Task, error)
	ListByUser(ctx context.Context, userID int64, page store.Page) ([]*store.Task, error)
	ListByStatus(ctx context.Context, status store.Status, page store.Page) ([]*store.Task, error)
	ListByDateRange(ctx context.Context, start, end time.Time, page store.Page) ([]*store.Task, error)

	CreateUser(ctx context.Context, username, password string) (*store.User, error)
	GetUser(ctx context.Context, id int64) (*store.User, error)
	UserExists(ctx context.Context, id int64) (bool, error)
}

// Service implements task and user operations.
type Service struct {
	store   Store
	indexer index.Indexer
	logger  *slog.Logger
}

// NewService returns a Service. indexer is a Pipeline for inline indexing
// or a Queue for asynchronous indexing.
func NewService(s Store, indexer index.Indexer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: s, indexer: indexer, logger: logger}
}

// CreateTask validates in, commits it and indexes the new task.
//
// Unknown users are rejected before anything is written. When indexing
// fails under the fatal policy the committed task is returned together
// with the error; the row is not rolled back.
func (s *Service) CreateTask(ctx context.Context, in store.TaskInput) (*store.Task, error) {
	in.Normalize()
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if err := s.checkUser(ctx, "user_id", in.AssigneeID); err != nil {
		return nil, err
	}
	if err := s.checkUser(ctx, "created_by", in.CreatorID); err != nil {
		return nil, err
	}

	task, err := s.store.Create(ctx, in)
	if err != nil {
		return nil, err
	}
	s.logger.Info("task_created", slog.Int64("task_id", task.ID))

	if err := s.indexer.IndexTask(ctx, task, index.OpCreate); err != nil {
		return task, err
	}
	return task, nil
}

// UpdateTask applies patch and re-indexes the task. A missing task is a
// NotFoundError.
func (s *Service) UpdateTask(ctx context.Context, id int64, patch store.TaskPatch) (*store.Task, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	if patch.AssigneeID != nil {
		if err := s.checkUser(ctx, "user_id", *patch.AssigneeID); err != nil {
			return nil, err
		}
	}

	task, err := s.store.Update(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, taskerrors.NotFoundError("task", id)
	}
	s.logger.Info("task_updated", slog.Int64("task_id", id))

	if err := s.indexer.IndexTask(ctx, task, index.OpUpdate); err != nil {
		return task, err
	}
	return task, nil
}

// SetStatus changes a task's status through the update path.
func (s *Service) SetStatus(ctx context.Context, id int64, status store.Status) (*store.Task, error) {
	return s.UpdateTask(ctx, id, store.TaskPatch{Status: &status})
}

// Assign changes a task's assignee through the update path. userID 0
// clears the assignment.
func (s *Service) Assign(ctx context.Context, id, userID int64) (*store.Task, error) {
	return s.UpdateTask(ctx, id, store.TaskPatch{AssigneeID: &userID})
}

// DeleteTask removes the task and its index record.
func (s *Service) DeleteTask(ctx context.Context, id int64) error {
	existed, err := s.store.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !existed {
		return taskerrors.NotFoundError("task", id)
	}
	s.logger.Info("task_deleted", slog.Int64("task_id", id))
	return s.indexer.RemoveTask(ctx, id)
}

// GetTask returns the task or a NotFoundError.
func (s *Service) GetTask(ctx context.Context, id int64) (*store.Task, error) {
	task, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, taskerrors.NotFoundError("task", id)
	}
	return task, nil
}

// ListTasks lists tasks by priority.
func (s *Service) ListTasks(ctx context.Context, page store.Page) ([]*store.Task, error) {
	return s.store.List(ctx, page)
}

// ListByUser lists tasks assigned to userID.
func (s *Service) ListByUser(ctx context.Context, userID int64, page store.Page) ([]*store.Task, error) {
	return s.store.ListByUser(ctx, userID, page)
}

// ListByStatus lists tasks with status.
func (s *Service) ListByStatus(ctx context.Context, status store.Status, page store.Page) ([]*store.Task, error) {
	if !status.Valid() {
		return nil, taskerrors.ValidationError(fmt.Sprintf("invalid status %q", status), nil).
			WithDetail("field", "status")
	}
	return s.store.ListByStatus(ctx, status, page)
}

// ListByDateRange lists tasks that start on or after start and end on or
// before end.
func (s *Service) ListByDateRange(ctx context.Context, start, end time.Time, page store.Page) ([]*store.Task, error) {
	if end.Before(start) {
		return nil, taskerrors.ValidationError("end is before start", nil).WithDetail("field", "end")
	}
	return s.store.ListByDateRange(ctx, start, end, page)
}

// RegisterUser creates a user. Usernames are unique.
func (s *Service) RegisterUser(ctx context.Context, username, password string) (*store.User, error) {
	u, err := s.store.CreateUser(ctx, strings.TrimSpace(username), password)
	if err != nil {
		return nil, err
	}
	s.logger.Info("user_registered", slog.Int64("user_id", u.ID))
	return u, nil
}

// GetUser returns the user or a NotFoundError.
func (s *Service) GetUser(ctx context.Context, id int64) (*store.User, error) {
	u, err := s.store.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, taskerrors.NotFoundError("user", id)
	}
	return u, nil
}

// checkUser rejects a non-zero reference to a user that does not exist.
func (s *Service) checkUser(ctx context.Context, field string, id int64) error {
	if id == 0 {
		return nil
	}
	ok, err := s.store.UserExists(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return taskerrors.UnknownUserError(field, id)
	}
	return nil
}
