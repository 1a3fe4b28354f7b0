package logging

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeLog(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tasksearch.log")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	return path
}

func TestParseLine(t *testing.T) {
	e := ParseLine(`{"time":"2026-10-16T09:30:00.5Z","level":"WARN","msg":"upsert_failed","task_id":4}`)

	require.True(t, e.Valid)
	assert.Equal(t, "WARN", e.Level)
	assert.Equal(t, "upsert_failed", e.Msg)
	assert.Equal(t, time.Date(2026, 10, 16, 9, 30, 0, 5e8, time.UTC), e.Time)
	assert.Equal(t, map[string]any{"task_id": float64(4)}, e.Attrs)

	raw := ParseLine("panic: something broke")
	assert.False(t, raw.Valid)
	assert.Equal(t, "panic: something broke", raw.Raw)
}

func TestViewer_Tail(t *testing.T) {
	path := writeLog(t,
		`{"time":"2026-10-16T09:00:00Z","level":"DEBUG","msg":"a"}`,
		`{"time":"2026-10-16T09:00:01Z","level":"INFO","msg":"b"}`,
		`not json`,
		`{"time":"2026-10-16T09:00:02Z","level":"ERROR","msg":"c","err":"disk full"}`,
	)

	tests := []struct {
		name string
		cfg  ViewerConfig
		n    int
		want []string
	}{
		{name: "last n", n: 2, want: []string{"not json", "c"}},
		{name: "all", n: 10, want: []string{"a", "b", "not json", "c"}},
		{name: "level", cfg: ViewerConfig{Level: "info"}, n: 10, want: []string{"b", "not json", "c"}},
		{name: "level error", cfg: ViewerConfig{Level: "error"}, n: 10, want: []string{"c"}},
		{name: "pattern", cfg: ViewerConfig{Pattern: regexp.MustCompile(`disk`)}, n: 10, want: []string{"c"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := NewViewer(tt.cfg, &bytes.Buffer{}).Tail(path, tt.n)
			require.NoError(t, err)

			got := make([]string, len(entries))
			for i, e := range entries {
				got[i] = e.Msg
				if !e.Valid {
					got[i] = e.Raw
				}
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestViewer_TailMissingFile(t *testing.T) {
	_, err := NewViewer(ViewerConfig{}, &bytes.Buffer{}).Tail(filepath.Join(t.TempDir(), "nope.log"), 5)
	require.Error(t, err)
}

func TestViewer_Format(t *testing.T) {
	v := NewViewer(ViewerConfig{NoColor: true}, &bytes.Buffer{})

	e := ParseLine(`{"time":"2026-10-16T09:00:02.250Z","level":"INFO","msg":"task_indexed","task_id":7,"batch":1}`)
	assert.Equal(t, "09:00:02.250 INFO  task_indexed batch=1 task_id=7", v.Format(e))
	assert.Equal(t, "oops", v.Format(ParseLine("oops")))
}

func TestViewer_Print(t *testing.T) {
	var buf bytes.Buffer
	v := NewViewer(ViewerConfig{NoColor: true}, &buf)

	v.Print([]Entry{ParseLine("first"), ParseLine("second")})

	assert.Equal(t, "first\nsecond\n", buf.String())
}

func TestViewer_Follow(t *testing.T) {
	// Given: a log with one existing line
	path := writeLog(t, `{"time":"2026-10-16T09:00:00Z","level":"INFO","msg":"old"}`)
	v := NewViewer(ViewerConfig{Level: "warn"}, &bytes.Buffer{})

	ctx, cancel := context.WithCancel(context.Background())
	entries := make(chan Entry, 10)
	done := make(chan error, 1)
	go func() { done <- v.Follow(ctx, path, entries) }()

	// Wait for Follow to seek to the end before appending.
	time.Sleep(3 * followInterval)

	// When: lines are appended
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"time":"2026-10-16T09:00:01Z","level":"INFO","msg":"quiet"}` + "\n" +
		`{"time":"2026-10-16T09:00:02Z","level":"WARN","msg":"loud"}` + "\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	// Then: only the new line that passes the filter arrives
	select {
	case e := <-entries:
		assert.Equal(t, "loud", e.Msg)
	case <-time.After(5 * time.Second):
		t.Fatal("no entry received")
	}

	cancel()
	require.NoError(t, <-done)
	assert.Empty(t, entries)
}
