package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	taskerrors "github.com/Aman-CERP/tasksearch/internal/errors"
)

// getManyChunk keeps IN lists well below SQLite's bound-variable limit.
const getManyChunk = 500

const taskColumns = `t.id, t.title, t.description, t.status, t.priority, t.user_id, t.created_by,
	t.start_date, t.end_date, t.jira_link, t.pull_requests_links, t.created_at, t.updated_at,
	COALESCE(u.username, '')`

const taskFrom = ` FROM tasks t LEFT JOIN users u ON u.id = t.user_id`

// priorityOrder ranks high, medium, low, then anything else; ties break on id.
const priorityOrder = ` ORDER BY CASE t.priority
	WHEN 'high' THEN 1 WHEN 'medium' THEN 2 WHEN 'low' THEN 3 ELSE 4 END, t.id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*Task, error) {
	var (
		t                    Task
		status, priority     string
		userID, createdBy    sql.NullInt64
		start, end           sql.NullString
		createdAt, updatedAt string
	)
	if err := row.Scan(&t.ID, &t.Title, &t.Description, &status, &priority, &userID, &createdBy,
		&start, &end, &t.JiraLink, &t.PullRequestLinks, &createdAt, &updatedAt, &t.AssigneeName); err != nil {
		return nil, err
	}
	t.Status = Status(status)
	t.Priority = Priority(priority)
	t.AssigneeID = userID.Int64
	t.CreatorID = createdBy.Int64

	var err error
	if t.StartDate, err = parseNullTime(start); err != nil {
		return nil, fmt.Errorf("task %d start_date: %w", t.ID, err)
	}
	if t.EndDate, err = parseNullTime(end); err != nil {
		return nil, fmt.Errorf("task %d end_date: %w", t.ID, err)
	}
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("task %d created_at: %w", t.ID, err)
	}
	if t.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("task %d updated_at: %w", t.ID, err)
	}
	return &t, nil
}

func (s *SQLiteStore) queryTasks(ctx context.Context, query string, args ...any) ([]*Task, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, taskerrors.StorageError("failed to query tasks", err)
	}
	defer func() { _ = rows.Close() }()

	tasks := make([]*Task, 0)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, taskerrors.StorageError("failed to scan task", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, taskerrors.StorageError("failed to read tasks", err)
	}
	return tasks, nil
}

// Get returns the task with id, or nil if it does not exist.
func (s *SQLiteStore) Get(ctx context.Context, id int64) (*Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+taskFrom+` WHERE t.id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, taskerrors.StorageError(fmt.Sprintf("failed to get task %d", id), err)
	}
	return t, nil
}

// GetMany returns the existing tasks among ids, in no particular order.
func (s *SQLiteStore) GetMany(ctx context.Context, ids []int64) ([]*Task, error) {
	tasks := make([]*Task, 0, len(ids))
	for start := 0; start < len(ids); start += getManyChunk {
		chunk := ids[start:min(start+getManyChunk, len(ids))]
		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}
		found, err := s.queryTasks(ctx,
			`SELECT `+taskColumns+taskFrom+` WHERE t.id IN (`+placeholders(len(chunk))+`)`, args...)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, found...)
	}
	return tasks, nil
}

// Create inserts a task and returns it with its id and timestamps.
// An unknown user reference is rejected by the foreign key.
func (s *SQLiteStore) Create(ctx context.Context, in TaskInput) (*Task, error) {
	in.Normalize()
	if err := in.Validate(); err != nil {
		return nil, err
	}
	now := formatTime(s.now())

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (title, description, status, priority, user_id, created_by,
			start_date, end_date, jira_link, pull_requests_links, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		in.Title, in.Description, string(in.Status), string(in.Priority),
		nullID(in.AssigneeID), nullID(in.CreatorID),
		nullTime(in.StartDate), nullTime(in.EndDate),
		in.JiraLink, in.PullRequestLinks, now, now)
	if isForeignKeyViolation(err) {
		return nil, taskerrors.New(taskerrors.ErrCodeUnknownUser, "task references a user that does not exist", err)
	}
	if err != nil {
		return nil, taskerrors.StorageError("failed to create task", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, taskerrors.StorageError("failed to read new task id", err)
	}
	return s.mustGet(ctx, id)
}

// Update applies patch to task id and refreshes UpdatedAt. It returns nil
// if the task does not exist.
func (s *SQLiteStore) Update(ctx context.Context, id int64, patch TaskPatch) (*Task, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, taskerrors.StorageError("failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	t, err := scanTask(tx.QueryRowContext(ctx, `SELECT `+taskColumns+taskFrom+` WHERE t.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, taskerrors.StorageError(fmt.Sprintf("failed to load task %d", id), err)
	}

	patch.Apply(t)
	if err := validateDates(t.StartDate, t.EndDate); err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE tasks SET title = ?, description = ?, status = ?, priority = ?, user_id = ?,
			start_date = ?, end_date = ?, jira_link = ?, pull_requests_links = ?, updated_at = ?
		WHERE id = ?`,
		t.Title, t.Description, string(t.Status), string(t.Priority), nullID(t.AssigneeID),
		nullTime(t.StartDate), nullTime(t.EndDate), t.JiraLink, t.PullRequestLinks,
		formatTime(s.now()), id)
	if isForeignKeyViolation(err) {
		return nil, taskerrors.UnknownUserError("user_id", t.AssigneeID)
	}
	if err != nil {
		return nil, taskerrors.StorageError(fmt.Sprintf("failed to update task %d", id), err)
	}
	if err := tx.Commit(); err != nil {
		return nil, taskerrors.StorageError("failed to commit task update", err)
	}

	return s.mustGet(ctx, id)
}

// mustGet reads back a row this store just wrote.
func (s *SQLiteStore) mustGet(ctx context.Context, id int64) (*Task, error) {
	t, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, taskerrors.InternalError(fmt.Sprintf("task %d vanished after write", id), nil)
	}
	return t, nil
}

// Delete removes task id and reports whether it existed.
func (s *SQLiteStore) Delete(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return false, taskerrors.StorageError(fmt.Sprintf("failed to delete task %d", id), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, taskerrors.StorageError("failed to read affected rows", err)
	}
	return n > 0, nil
}

// List returns tasks by priority (high, medium, low, other), then id.
func (s *SQLiteStore) List(ctx context.Context, page Page) ([]*Task, error) {
	page, err := page.normalize()
	if err != nil {
		return nil, err
	}
	return s.queryTasks(ctx, `SELECT `+taskColumns+taskFrom+priorityOrder+` LIMIT ? OFFSET ?`,
		page.Limit, page.Skip)
}

// ListByUser returns tasks assigned to userID.
func (s *SQLiteStore) ListByUser(ctx context.Context, userID int64, page Page) ([]*Task, error) {
	page, err := page.normalize()
	if err != nil {
		return nil, err
	}
	return s.queryTasks(ctx, `SELECT `+taskColumns+taskFrom+` WHERE t.user_id = ? ORDER BY t.id LIMIT ? OFFSET ?`,
		userID, page.Limit, page.Skip)
}

// ListByStatus returns tasks with status.
func (s *SQLiteStore) ListByStatus(ctx context.Context, status Status, page Page) ([]*Task, error) {
	page, err := page.normalize()
	if err != nil {
		return nil, err
	}
	return s.queryTasks(ctx, `SELECT `+taskColumns+taskFrom+` WHERE t.status = ? ORDER BY t.id LIMIT ? OFFSET ?`,
		string(status), page.Limit, page.Skip)
}

// ListByDateRange returns tasks with start_date >= start and end_date <= end.
// Tasks without dates never match.
func (s *SQLiteStore) ListByDateRange(ctx context.Context, start, end time.Time, page Page) ([]*Task, error) {
	page, err := page.normalize()
	if err != nil {
		return nil, err
	}
	return s.queryTasks(ctx, `SELECT `+taskColumns+taskFrom+`
		WHERE t.start_date >= ? AND t.end_date <= ? ORDER BY t.id LIMIT ? OFFSET ?`,
		formatTime(start), formatTime(end), page.Limit, page.Skip)
}

// All returns every task ordered by id.
func (s *SQLiteStore) All(ctx context.Context) ([]*Task, error) {
	return s.queryTasks(ctx, `SELECT `+taskColumns+taskFrom+` ORDER BY t.id`)
}

// IDs returns every task id in ascending order.
func (s *SQLiteStore) IDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM tasks ORDER BY id`)
	if err != nil {
		return nil, taskerrors.StorageError("failed to list task ids", err)
	}
	defer func() { _ = rows.Close() }()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, taskerrors.StorageError("failed to scan task id", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, taskerrors.StorageError("failed to read task ids", err)
	}
	return ids, nil
}

// Count returns the number of tasks.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks`).Scan(&n); err != nil {
		return 0, taskerrors.StorageError("failed to count tasks", err)
	}
	return n, nil
}
