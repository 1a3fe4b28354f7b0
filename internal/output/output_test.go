package output

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/tasksearch/internal/search"
	"github.com/Aman-CERP/tasksearch/internal/store"
)

func TestWriter_StatusIcons(t *testing.T) {
	tests := []struct {
		name  string
		write func(w *Writer)
		icon  string
		msg   string
	}{
		{"status", func(w *Writer) { w.Status("🔍", "Checking embedder...") }, "🔍", "Checking embedder..."},
		{"success", func(w *Writer) { w.Successf("Indexed %d tasks", 3) }, "✅", "Indexed 3 tasks"},
		{"warning", func(w *Writer) { w.Warning("Embedder not available") }, "⚠️", "Embedder not available"},
		{"error", func(w *Writer) { w.Errorf("Failed: %s", "boom") }, "❌", "Failed: boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Given: a writer with a buffer
			buf := &bytes.Buffer{}

			// When: writing the message
			tt.write(New(buf))

			// Then: icon and message are present without escape codes
			assert.Contains(t, buf.String(), tt.icon)
			assert.Contains(t, buf.String(), tt.msg)
			assert.NotContains(t, buf.String(), "\x1b[")
		})
	}
}

func TestWriter_Status_NoIconIndents(t *testing.T) {
	buf := &bytes.Buffer{}

	New(buf).Status("", "detail")

	assert.Equal(t, "   detail\n", buf.String())
}

func TestWriter_Progress_NonTTYPrintsOnlyFinalLine(t *testing.T) {
	// Given: a writer on a buffer
	buf := &bytes.Buffer{}
	w := New(buf)

	// When: reporting intermediate and final progress
	w.Progress(5, 10, "indexing")
	w.Progress(10, 10, "indexing")

	// Then: only the completed bar is printed
	assert.Equal(t, 1, strings.Count(buf.String(), "indexing"))
	assert.Contains(t, buf.String(), "100%")
	assert.True(t, strings.HasSuffix(buf.String(), "\n"))
}

func TestWriter_Progress_ZeroTotal_NoOutput(t *testing.T) {
	buf := &bytes.Buffer{}

	New(buf).Progress(0, 0, "nothing")

	assert.Empty(t, buf.String())
}

func TestProgressBar_Render(t *testing.T) {
	tests := []struct {
		name     string
		current  int
		total    int
		width    int
		wantFull int
	}{
		{"0 percent", 0, 100, 10, 0},
		{"50 percent", 50, 100, 10, 5},
		{"100 percent", 100, 100, 10, 10},
		{"25 percent", 25, 100, 20, 5},
		{"overflow", 150, 100, 10, 10},
		{"zero total", 3, 0, 8, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bar := renderProgressBar(tt.current, tt.total, tt.width)

			assert.Equal(t, tt.wantFull, strings.Count(bar, "█"))
			assert.Equal(t, tt.width, len([]rune(bar)))
		})
	}
}

func TestWriter_Tasks(t *testing.T) {
	// Given: two tasks, one assigned
	buf := &bytes.Buffer{}
	tasks := []*store.Task{
		{ID: 1, Title: "Rotate certs", Priority: store.PriorityHigh, Status: store.StatusPending, AssigneeName: "ana"},
		{ID: 12, Title: "Write docs", Priority: store.PriorityLow, Status: store.StatusCompleted},
	}

	// When: printing the table
	New(buf).Tasks(tasks)

	// Then: header and rows line up
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "ID"))
	titleCol := strings.Index(lines[0], "TITLE")
	assert.Equal(t, titleCol, strings.Index(lines[1], "Rotate certs"))
	assert.Equal(t, titleCol, strings.Index(lines[2], "Write docs"))
	assert.Contains(t, lines[2], "-")
}

func TestWriter_TasksEmpty(t *testing.T) {
	buf := &bytes.Buffer{}

	New(buf).Tasks(nil)

	assert.Contains(t, buf.String(), "no tasks")
}

func TestWriter_SearchResults(t *testing.T) {
	t.Run("hits", func(t *testing.T) {
		buf := &bytes.Buffer{}
		results := []search.Result{
			{Task: &store.Task{ID: 3, Title: "Rotate certs", Status: store.StatusPending}, Distance: 0.4},
		}

		New(buf).SearchResults("certs", results)

		assert.Contains(t, buf.String(), "DISTANCE")
		assert.Contains(t, buf.String(), "0.400")
		assert.Contains(t, buf.String(), "Rotate certs")
	})

	t.Run("none", func(t *testing.T) {
		buf := &bytes.Buffer{}

		New(buf).SearchResults("payroll", []search.Result{})

		assert.Contains(t, buf.String(), `No tasks found for "payroll"`)
	})
}

func TestWriter_Task(t *testing.T) {
	buf := &bytes.Buffer{}
	task := &store.Task{
		ID:          5,
		Title:       "Ship release",
		Description: "tag and publish",
		Status:      store.StatusInProgress,
		Priority:    store.PriorityMedium,
		StartDate:   time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC),
		UpdatedAt:   time.Now(),
	}

	New(buf).Task(task)

	out := buf.String()
	assert.Contains(t, out, "#5 Ship release")
	assert.Contains(t, out, "2026-04-02")
	assert.Contains(t, out, "in_progress")
	assert.Contains(t, out, "tag and publish")
}

func TestWriter_JSON(t *testing.T) {
	buf := &bytes.Buffer{}

	require.NoError(t, New(buf).JSON(map[string]int{"tasks": 2}))

	assert.Equal(t, "{\n  \"tasks\": 2\n}\n", buf.String())
}

func TestIsTTY_Buffer(t *testing.T) {
	assert.False(t, IsTTY(&bytes.Buffer{}))
}
