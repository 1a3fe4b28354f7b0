package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	taskerrors "github.com/Aman-CERP/tasksearch/internal/errors"
	"github.com/Aman-CERP/tasksearch/internal/search"
	"github.com/Aman-CERP/tasksearch/internal/store"
	"github.com/Aman-CERP/tasksearch/internal/vectorindex"
)

// cliEnv points configuration at a temp directory with the static embedder.
type cliEnv struct {
	dir       string
	dbPath    string
	vectorDir string
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	dir := t.TempDir()
	env := &cliEnv{
		dir:       dir,
		dbPath:    filepath.Join(dir, "data", "tasks.db"),
		vectorDir: filepath.Join(dir, "data", "vectors"),
	}
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))
	t.Setenv("TASKSEARCH_DB_PATH", env.dbPath)
	t.Setenv("TASKSEARCH_VECTOR_DIR", env.vectorDir)
	t.Setenv("TASKSEARCH_VECTOR_BACKEND", "hnsw")
	t.Setenv("TASKSEARCH_EMBEDDINGS_PROVIDER", "static")
	t.Setenv("TASKSEARCH_ASYNC_INDEXING", "false")
	t.Setenv("TASKSEARCH_INDEXING_POLICY", "fatal")
	t.Setenv("TASKSEARCH_PASSWORD", "")
	return env
}

// run executes the CLI and returns stdout.
func (e *cliEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetArgs(append([]string{"--dir", e.dir}, args...))
	err := root.ExecuteContext(context.Background())
	return stdout.String(), err
}

func (e *cliEnv) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := e.run(t, args...)
	require.NoError(t, err, "tasksearch %s", strings.Join(args, " "))
	return out
}

func decodeJSON[T any](t *testing.T, s string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(s), &v), "output: %s", s)
	return v
}

func (e *cliEnv) addTask(t *testing.T, title, description string, extra ...string) *store.Task {
	t.Helper()
	args := append([]string{"--json", "task", "add", title, "-d", description}, extra...)
	return decodeJSON[*store.Task](t, e.mustRun(t, args...))
}

func TestRootCmd_HasSubcommands(t *testing.T) {
	root := NewRootCmd()

	for _, name := range []string{"serve", "search", "task", "user", "reindex", "check", "doctor", "logs", "version"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := root.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestTaskLifecycle(t *testing.T) {
	// Given: an empty workspace and a registered user
	env := newCLIEnv(t)
	user := decodeJSON[*store.User](t, env.mustRun(t, "--json", "user", "add", "alice", "--password", "pw"))
	require.Equal(t, int64(1), user.ID)

	// When: creating a task assigned to the user
	task := env.addTask(t, "Renew TLS certificates", "certs expire in march",
		"-p", "high", "--assignee", strconv.FormatInt(user.ID, 10), "--start", "2026-03-01")

	// Then: it is stored with the given fields
	assert.Equal(t, store.PriorityHigh, task.Priority)
	assert.Equal(t, store.StatusPending, task.Status)
	assert.Equal(t, user.ID, task.AssigneeID)

	id := strconv.FormatInt(task.ID, 10)

	// When: updating, setting status and unassigning
	updated := decodeJSON[*store.Task](t, env.mustRun(t, "--json", "task", "update", id, "--description", "rotate intermediate CA too"))
	assert.Equal(t, "rotate intermediate CA too", updated.Description)
	assert.Equal(t, "Renew TLS certificates", updated.Title)

	updated = decodeJSON[*store.Task](t, env.mustRun(t, "--json", "task", "status", id, "in_progress"))
	assert.Equal(t, store.StatusInProgress, updated.Status)

	updated = decodeJSON[*store.Task](t, env.mustRun(t, "--json", "task", "assign", id, "0"))
	assert.Zero(t, updated.AssigneeID)

	// Then: get reflects every change
	got := decodeJSON[*store.Task](t, env.mustRun(t, "--json", "task", "get", id))
	assert.Equal(t, updated.Description, got.Description)
	assert.Equal(t, store.StatusInProgress, got.Status)

	// When: deleting the task
	out := env.mustRun(t, "task", "delete", id)
	assert.Contains(t, out, "Deleted task "+id)

	// Then: it is gone
	_, err := env.run(t, "task", "get", id)
	require.Error(t, err)
	assert.True(t, taskerrors.IsNotFound(err))
}

func TestTaskCmd_Errors(t *testing.T) {
	env := newCLIEnv(t)

	tests := []struct {
		name string
		args []string
	}{
		{"missing title", []string{"task", "add"}},
		{"bad status", []string{"task", "add", "x", "--status", "blocked"}},
		{"bad date", []string{"task", "add", "x", "--start", "march"}},
		{"unknown assignee", []string{"task", "add", "x", "--assignee", "42"}},
		{"bad id", []string{"task", "get", "abc"}},
		{"zero id", []string{"task", "get", "0"}},
		{"empty update", []string{"task", "update", "1"}},
		{"negative assignee", []string{"task", "assign", "1", "-1"}},
		{"user without password", []string{"user", "add", "bob"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.run(t, tt.args...)
			require.Error(t, err)
		})
	}

	// Then: nothing was written
	list := decodeJSON[[]*store.Task](t, env.mustRun(t, "--json", "task", "list"))
	assert.Empty(t, list)
}

func TestTaskListCmd_Filters(t *testing.T) {
	// Given: tasks with different statuses, assignees and dates
	env := newCLIEnv(t)
	env.mustRun(t, "user", "add", "alice", "--password", "pw")
	env.addTask(t, "Low task", "a", "-p", "low")
	env.addTask(t, "High task", "b", "-p", "high", "--assignee", "1")
	env.addTask(t, "Dated task", "c", "-s", "completed", "--start", "2026-02-01", "--end", "2026-02-10")

	tests := []struct {
		name   string
		args   []string
		titles []string
	}{
		{"by priority", nil, []string{"High task", "Dated task", "Low task"}},
		{"by user", []string{"--user", "1"}, []string{"High task"}},
		{"by status", []string{"--status", "completed"}, []string{"Dated task"}},
		{"by dates", []string{"--from", "2026-01-01", "--to", "2026-03-01"}, []string{"Dated task"}},
		{"paged", []string{"--skip", "1", "--limit", "1"}, []string{"Dated task"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"--json", "task", "list"}, tt.args...)
			list := decodeJSON[[]*store.Task](t, env.mustRun(t, args...))

			titles := make([]string, len(list))
			for i, task := range list {
				titles[i] = task.Title
			}
			assert.Equal(t, tt.titles, titles)
		})
	}

	t.Run("from without to", func(t *testing.T) {
		_, err := env.run(t, "task", "list", "--from", "2026-01-01")
		require.Error(t, err)
	})
}

func TestSearchCmd(t *testing.T) {
	// Given: two unrelated tasks
	env := newCLIEnv(t)
	certs := env.addTask(t, "Rotate TLS certificates", "renew the edge proxy certificates before expiry")
	env.addTask(t, "Migrate billing database", "move invoices from postgres to the new cluster")

	t.Run("exact text finds only that task", func(t *testing.T) {
		out := env.mustRun(t, "--json", "search", "Rotate TLS certificates renew the edge proxy certificates before expiry")
		results := decodeJSON[[]search.Result](t, out)

		require.Len(t, results, 1)
		assert.Equal(t, certs.ID, results[0].Task.ID)
		assert.InDelta(t, 0, results[0].Distance, 1e-4)
	})

	t.Run("no query lists every task", func(t *testing.T) {
		results := decodeJSON[[]search.Result](t, env.mustRun(t, "--json", "search"))
		assert.Len(t, results, 2)
	})

	t.Run("table output", func(t *testing.T) {
		out := env.mustRun(t, "search", "Rotate", "TLS", "certificates", "renew", "the", "edge", "proxy", "certificates", "before", "expiry")
		assert.Contains(t, out, "Rotate TLS certificates")
		assert.NotContains(t, out, "Migrate billing database")
	})
}

func TestCheckCmd_DetectsAndRepairsMissingRecord(t *testing.T) {
	// Given: one indexed task and one written straight to the store
	env := newCLIEnv(t)
	env.addTask(t, "Indexed task", "has a record")

	s, err := store.Open(env.dbPath)
	require.NoError(t, err)
	orphanless, err := s.Create(context.Background(), store.TaskInput{Title: "Unindexed task"})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	// When: checking
	report := decodeJSON[map[string]any](t, env.mustRun(t, "--json", "check"))

	// Then: the task is reported missing
	assert.Equal(t, false, report["consistent"])
	assert.EqualValues(t, 2, report["tasks"])
	assert.EqualValues(t, 1, report["records"])
	assert.Nil(t, report["repair"])

	// When: repairing
	report = decodeJSON[map[string]any](t, env.mustRun(t, "--json", "check", "--repair"))
	require.NotNil(t, report["repair"])
	assert.EqualValues(t, 1, report["repair"].(map[string]any)["reindexed"])

	// Then: a second check is clean and the task is searchable
	report = decodeJSON[map[string]any](t, env.mustRun(t, "--json", "check"))
	assert.Equal(t, true, report["consistent"])

	results := decodeJSON[[]search.Result](t, env.mustRun(t, "--json", "search", "Unindexed task "))
	require.NotEmpty(t, results)
	assert.Equal(t, orphanless.ID, results[0].Task.ID)
}

func TestReindexCmd(t *testing.T) {
	env := newCLIEnv(t)
	env.addTask(t, "First", "one")
	env.addTask(t, "Second", "two")

	t.Run("rebuilds every task", func(t *testing.T) {
		report := decodeJSON[map[string]any](t, env.mustRun(t, "--json", "reindex"))
		assert.EqualValues(t, 2, report["cleared"])
		assert.EqualValues(t, 2, report["indexed"])
	})

	t.Run("force recreates the collection files", func(t *testing.T) {
		path := vectorindex.HNSWPath(vectorindex.Config{Dir: env.vectorDir, Collection: "tasks"})
		require.FileExists(t, path)

		// The JSON report is the whole of stdout.
		report := decodeJSON[map[string]any](t, env.mustRun(t, "--json", "reindex", "--force"))
		assert.Positive(t, report["removed_files"])
		assert.EqualValues(t, 0, report["cleared"])
		assert.EqualValues(t, 2, report["indexed"])
		assert.FileExists(t, path)
	})

	t.Run("profiles the rebuild", func(t *testing.T) {
		cpu := filepath.Join(env.dir, "cpu.prof")
		heap := filepath.Join(env.dir, "heap.prof")
		env.mustRun(t, "--json", "reindex", "--cpuprofile", cpu, "--memprofile", heap)
		assert.FileExists(t, cpu)
		assert.FileExists(t, heap)
	})

	t.Run("human output", func(t *testing.T) {
		out := env.mustRun(t, "reindex", "--plain")
		assert.Contains(t, out, "[INDEX] 2/2 (100%)")
		assert.Contains(t, out, "Complete: 2 tasks indexed")
		assert.Contains(t, out, "Backend:  hnsw (static-384, 384 dims)")
	})

	t.Run("human output with force", func(t *testing.T) {
		out := env.mustRun(t, "reindex", "--force", "--plain")
		assert.Contains(t, out, "Removed existing index files")
		assert.Contains(t, out, "Complete: 2 tasks indexed")
	})
}

func TestDoctorCmd(t *testing.T) {
	env := newCLIEnv(t)

	report := decodeJSON[map[string]any](t, env.mustRun(t, "--json", "doctor"))

	assert.Contains(t, []any{"ready", "ready_with_warnings"}, report["status"])
	checks, ok := report["checks"].([]any)
	require.True(t, ok)

	byName := map[string]string{}
	for _, c := range checks {
		check := c.(map[string]any)
		byName[check["name"].(string)] = check["status"].(string)
	}
	assert.Equal(t, "pass", byName["embedder"])
	assert.Equal(t, "pass", byName["vector_index"])
}

func TestUserCmd(t *testing.T) {
	env := newCLIEnv(t)

	t.Run("password from environment", func(t *testing.T) {
		t.Setenv(passwordEnv, "from-env")
		out := env.mustRun(t, "user", "add", "carol")
		assert.Contains(t, out, "Registered user carol with id 1")
	})

	t.Run("get", func(t *testing.T) {
		user := decodeJSON[*store.User](t, env.mustRun(t, "--json", "user", "get", "1"))
		assert.Equal(t, "carol", user.Username)
	})

	t.Run("duplicate", func(t *testing.T) {
		_, err := env.run(t, "user", "add", "carol", "--password", "x")
		require.Error(t, err)
		assert.Equal(t, taskerrors.ErrCodeDuplicate, taskerrors.GetCode(err))
	})
}

func TestLogsCmd(t *testing.T) {
	env := newCLIEnv(t)
	logFile := filepath.Join(env.dir, "tasksearch.log")
	lines := []string{
		`{"time":"2026-10-16T10:00:00.000Z","level":"INFO","msg":"server_started","addr":":8080"}`,
		`{"time":"2026-10-16T10:00:01.000Z","level":"ERROR","msg":"upsert_failed","task_id":3}`,
		`{"time":"2026-10-16T10:00:02.000Z","level":"DEBUG","msg":"search_done","results":2}`,
	}
	require.NoError(t, os.WriteFile(logFile, []byte(strings.Join(lines, "\n")+"\n"), 0o644))

	t.Run("tail", func(t *testing.T) {
		out := env.mustRun(t, "logs", "--file", logFile, "-n", "2", "--no-color")
		assert.NotContains(t, out, "server_started")
		assert.Contains(t, out, "10:00:01.000 ERROR upsert_failed task_id=3")
		assert.Contains(t, out, "search_done results=2")
	})

	t.Run("level and filter", func(t *testing.T) {
		out := env.mustRun(t, "logs", "--file", logFile, "--level", "warn", "--no-color")
		assert.Equal(t, 1, strings.Count(out, "\n"))
		assert.Contains(t, out, "upsert_failed")

		out = env.mustRun(t, "logs", "--file", logFile, "--filter", "server_\\w+", "--no-color")
		assert.Contains(t, out, "server_started")
		assert.NotContains(t, out, "upsert_failed")
	})

	t.Run("errors", func(t *testing.T) {
		_, err := env.run(t, "logs", "--file", filepath.Join(env.dir, "missing.log"))
		assert.Equal(t, taskerrors.ErrCodeNotFound, taskerrors.GetCode(err))

		_, err = env.run(t, "logs", "--file", logFile, "--level", "loud")
		assert.Equal(t, taskerrors.ErrCodeInvalidInput, taskerrors.GetCode(err))

		_, err = env.run(t, "logs", "--file", logFile, "--filter", "(")
		assert.Equal(t, taskerrors.ErrCodeInvalidInput, taskerrors.GetCode(err))
	})
}

func TestFormatError(t *testing.T) {
	plain := formatError(os.ErrNotExist)
	assert.Equal(t, "Error: file does not exist\n", plain)

	structured := formatError(taskerrors.NotFoundError("task", 9))
	assert.Contains(t, structured, "Code: "+taskerrors.ErrCodeNotFound)
}
