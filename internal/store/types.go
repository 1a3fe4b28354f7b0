// Package store is the primary relational store for users and tasks.
//
// It is the system of record: the vector index holds derived data keyed by
// task id and can always be rebuilt from here.
package store

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	taskerrors "github.com/Aman-CERP/tasksearch/internal/errors"
)

// Status is a task's workflow state.
type Status string

// Task statuses.
const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusOverdue    Status = "overdue"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusOverdue:
		return true
	}
	return false
}

// Priority orders task listings.
type Priority string

// Task priorities.
const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// Pagination limits.
const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

// CurrentSchemaVersion is recorded in schema_meta on creation.
const CurrentSchemaVersion = 1

// Task is a stored task.
type Task struct {
	ID               int64     `json:"id"`
	Title            string    `json:"title"`
	Description      string    `json:"description"`
	Status           Status    `json:"status"`
	Priority         Priority  `json:"priority"`
	AssigneeID       int64     `json:"user_id"`
	CreatorID        int64     `json:"created_by"`
	StartDate        time.Time `json:"start_date"`
	EndDate          time.Time `json:"end_date"`
	JiraLink         string    `json:"jira_link"`
	PullRequestLinks string    `json:"pull_requests_links"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`

	// AssigneeName is filled by listings that join users.
	AssigneeName string `json:"username,omitempty"`
}

// EmbeddingText is the text the index embeds for t.
func (t *Task) EmbeddingText() string {
	return t.Title + " " + t.Description
}

// TaskInput holds the fields of a new task.
type TaskInput struct {
	Title            string    `json:"title"`
	Description      string    `json:"description"`
	Status           Status    `json:"status"`
	Priority         Priority  `json:"priority"`
	AssigneeID       int64     `json:"user_id"`
	CreatorID        int64     `json:"created_by"`
	StartDate        time.Time `json:"start_date"`
	EndDate          time.Time `json:"end_date"`
	JiraLink         string    `json:"jira_link"`
	PullRequestLinks string    `json:"pull_requests_links"`
}

// Normalize fills defaults: pending status and medium priority.
func (in *TaskInput) Normalize() {
	in.Title = strings.TrimSpace(in.Title)
	if in.Status == "" {
		in.Status = StatusPending
	}
	if in.Priority == "" {
		in.Priority = PriorityMedium
	}
}

// Validate checks field values. It does not check user references.
func (in *TaskInput) Validate() error {
	if strings.TrimSpace(in.Title) == "" {
		return taskerrors.ValidationError("title is required", nil).WithDetail("field", "title")
	}
	if err := validateStatus(in.Status); err != nil {
		return err
	}
	if err := validatePriority(in.Priority); err != nil {
		return err
	}
	return validateDates(in.StartDate, in.EndDate)
}

// TaskPatch is a partial update. Nil fields keep their stored value.
type TaskPatch struct {
	Title            *string    `json:"title,omitempty"`
	Description      *string    `json:"description,omitempty"`
	Status           *Status    `json:"status,omitempty"`
	Priority         *Priority  `json:"priority,omitempty"`
	AssigneeID       *int64     `json:"user_id,omitempty"`
	StartDate        *time.Time `json:"start_date,omitempty"`
	EndDate          *time.Time `json:"end_date,omitempty"`
	JiraLink         *string    `json:"jira_link,omitempty"`
	PullRequestLinks *string    `json:"pull_requests_links,omitempty"`
}

// Validate checks the fields that are set.
func (p *TaskPatch) Validate() error {
	if p.Title != nil && strings.TrimSpace(*p.Title) == "" {
		return taskerrors.ValidationError("title must not be empty", nil).WithDetail("field", "title")
	}
	if p.Status != nil {
		if err := validateStatus(*p.Status); err != nil {
			return err
		}
	}
	if p.Priority != nil {
		if err := validatePriority(*p.Priority); err != nil {
			return err
		}
	}
	if p.StartDate != nil && p.EndDate != nil {
		return validateDates(*p.StartDate, *p.EndDate)
	}
	return nil
}

// Apply copies the set fields of p onto t.
func (p *TaskPatch) Apply(t *Task) {
	if p.Title != nil {
		t.Title = strings.TrimSpace(*p.Title)
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.AssigneeID != nil {
		t.AssigneeID = *p.AssigneeID
	}
	if p.StartDate != nil {
		t.StartDate = *p.StartDate
	}
	if p.EndDate != nil {
		t.EndDate = *p.EndDate
	}
	if p.JiraLink != nil {
		t.JiraLink = *p.JiraLink
	}
	if p.PullRequestLinks != nil {
		t.PullRequestLinks = *p.PullRequestLinks
	}
}

// Empty reports whether p sets no field.
func (p *TaskPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Status == nil && p.Priority == nil &&
		p.AssigneeID == nil && p.StartDate == nil && p.EndDate == nil &&
		p.JiraLink == nil && p.PullRequestLinks == nil
}

func validateStatus(s Status) error {
	if !s.Valid() {
		return taskerrors.ValidationError(fmt.Sprintf("invalid status %q", s), nil).
			WithDetail("field", "status").
			WithSuggestion("use one of: pending, in_progress, completed, overdue")
	}
	return nil
}

func validatePriority(p Priority) error {
	if !p.Valid() {
		return taskerrors.ValidationError(fmt.Sprintf("invalid priority %q", p), nil).
			WithDetail("field", "priority").
			WithSuggestion("use one of: high, medium, low")
	}
	return nil
}

func validateDates(start, end time.Time) error {
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return taskerrors.ValidationError("end_date is before start_date", nil).
			WithDetail("field", "end_date")
	}
	return nil
}

// Page selects a window of a listing.
type Page struct {
	Skip  int
	Limit int
}

// normalize applies the default limit and rejects out-of-range values.
func (p Page) normalize() (Page, error) {
	if p.Skip < 0 {
		return p, taskerrors.ValidationError("skip must be >= 0", nil).WithDetail("field", "skip")
	}
	if p.Limit == 0 {
		p.Limit = DefaultLimit
	}
	if p.Limit < 1 || p.Limit > MaxLimit {
		return p, taskerrors.ValidationError(
			fmt.Sprintf("limit must be between 1 and %d", MaxLimit), nil).WithDetail("field", "limit")
	}
	return p, nil
}

// User is a registered user. Users exist so task references can be checked.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// CheckPassword reports whether password matches the stored hash.
func (u *User) CheckPassword(password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil
}
