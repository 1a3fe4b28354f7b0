package mcp

import (
	"fmt"
	"strings"
	"time"

	"github.com/Aman-CERP/tasksearch/internal/store"
)

// FormatSearchResults formats search output as markdown.
func FormatSearchResults(out SearchOutput) string {
	if len(out.Results) == 0 {
		return fmt.Sprintf("No tasks found for \"%s\"", out.Query)
	}

	var sb strings.Builder
	if out.Query == "" {
		sb.WriteString("## All Tasks\n\n")
	} else {
		fmt.Fprintf(&sb, "## Tasks matching \"%s\"\n\n", out.Query)
	}
	fmt.Fprintf(&sb, "Found %d task", len(out.Results))
	if len(out.Results) != 1 {
		sb.WriteString("s")
	}
	sb.WriteString("\n\n")

	for i, r := range out.Results {
		fmt.Fprintf(&sb, "### %d. #%d %s (distance: %.3f)\n", i+1, r.ID, r.Title, r.Distance)
		writeTaskLine(&sb, r.Status, r.Priority, r.Assignee)
		if r.Description != "" {
			fmt.Fprintf(&sb, "\n%s\n", r.Description)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// FormatTask formats a single task as markdown.
func FormatTask(t TaskOutput) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## #%d %s\n\n", t.ID, t.Title)
	writeTaskLine(&sb, t.Status, t.Priority, t.Assignee)
	if t.StartDate != "" || t.EndDate != "" {
		fmt.Fprintf(&sb, "**Dates:** %s to %s\n", orDash(t.StartDate), orDash(t.EndDate))
	}
	if t.JiraLink != "" {
		fmt.Fprintf(&sb, "**Jira:** %s\n", t.JiraLink)
	}
	if t.PullRequestLinks != "" {
		fmt.Fprintf(&sb, "**Pull requests:** %s\n", t.PullRequestLinks)
	}
	if t.Description != "" {
		fmt.Fprintf(&sb, "\n%s\n", t.Description)
	}
	return sb.String()
}

func writeTaskLine(sb *strings.Builder, status, priority, assignee string) {
	fmt.Fprintf(sb, "**Status:** %s | **Priority:** %s", status, priority)
	if assignee != "" {
		fmt.Fprintf(sb, " | **Assignee:** %s", assignee)
	}
	sb.WriteString("\n")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// clampLimit ensures limit is within bounds.
func clampLimit(limit, defaultVal, min, max int) int {
	if limit <= 0 {
		return defaultVal
	}
	if limit < min {
		return min
	}
	if limit > max {
		return max
	}
	return limit
}

func toTaskResult(t *store.Task, distance float32) TaskResult {
	return TaskResult{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Status:      string(t.Status),
		Priority:    string(t.Priority),
		Assignee:    t.AssigneeName,
		Distance:    distance,
	}
}

func toTaskOutput(t *store.Task) TaskOutput {
	return TaskOutput{
		ID:               t.ID,
		Title:            t.Title,
		Description:      t.Description,
		Status:           string(t.Status),
		Priority:         string(t.Priority),
		Assignee:         t.AssigneeName,
		JiraLink:         t.JiraLink,
		PullRequestLinks: t.PullRequestLinks,
		StartDate:        formatDate(t.StartDate),
		EndDate:          formatDate(t.EndDate),
		CreatedAt:        t.CreatedAt.Format(time.RFC3339),
		UpdatedAt:        t.UpdatedAt.Format(time.RFC3339),
	}
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}
