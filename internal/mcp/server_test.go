package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/tasksearch/internal/embed"
	"github.com/Aman-CERP/tasksearch/internal/index"
	"github.com/Aman-CERP/tasksearch/internal/search"
	"github.com/Aman-CERP/tasksearch/internal/store"
	"github.com/Aman-CERP/tasksearch/internal/telemetry"
	"github.com/Aman-CERP/tasksearch/internal/vectorindex"
)

type fixture struct {
	server   *Server
	store    *store.SQLiteStore
	index    *vectorindex.HNSWIndex
	pipeline *index.Pipeline
	queryLog *telemetry.QueryLog
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := store.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	embedder := embed.NewStaticEmbedder()
	idx, _, err := vectorindex.OpenHNSW(vectorindex.HNSWConfig{Dimensions: embedder.Dimensions()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })

	queryLog := telemetry.NewQueryLog(telemetry.QueryLogConfig{})
	pipeline := index.NewPipeline(embedder, idx, index.Options{})
	orch, err := search.NewOrchestrator(embedder, idx, db, search.WithQueryLog(queryLog))
	require.NoError(t, err)

	srv, err := NewServer(Deps{
		Search:   orch,
		Tasks:    db,
		Embedder: embedder,
		Index:    idx,
		Checker:  index.NewConsistencyChecker(db, idx, pipeline),
		Lag:      func() int { return 3 },
		QueryLog: queryLog,
	})
	require.NoError(t, err)
	return &fixture{server: srv, store: db, index: idx, pipeline: pipeline, queryLog: queryLog}
}

func (f *fixture) addTask(t *testing.T, title, description string) *store.Task {
	t.Helper()
	task, err := f.store.Create(context.Background(), store.TaskInput{Title: title, Description: description})
	require.NoError(t, err)
	require.NoError(t, f.pipeline.IndexTask(context.Background(), task, index.OpCreate))
	return task
}

func TestNewServer_RequiresDependencies(t *testing.T) {
	_, err := NewServer(Deps{})
	assert.Error(t, err)
}

func TestServer_ListTools(t *testing.T) {
	f := newFixture(t)

	got := f.server.ListTools()

	names := make([]string, 0, len(got))
	for _, tool := range got {
		names = append(names, tool.Name)
		assert.NotEmpty(t, tool.Description)
	}
	assert.Equal(t, []string{ToolSearchTasks, ToolGetTask, ToolIndexStatus}, names)
}

func TestServer_SearchTasks(t *testing.T) {
	// Given: two indexed tasks
	f := newFixture(t)
	certs := f.addTask(t, "Rotate TLS certificates", "renew the edge proxy certificates before expiry")
	f.addTask(t, "Migrate billing database", "move invoices from postgres to the new cluster")

	// When: searching with the certificates text
	out, err := f.server.searchTasks(context.Background(), SearchInput{
		Query: "Rotate TLS certificates renew the edge proxy certificates before expiry",
	})

	// Then: only the certificates task is returned
	require.NoError(t, err)
	require.Len(t, out.Results, 1)
	assert.Equal(t, certs.ID, out.Results[0].ID)
	assert.Equal(t, "pending", out.Results[0].Status)
}

func TestServer_CallTool(t *testing.T) {
	f := newFixture(t)
	task := f.addTask(t, "Write onboarding guide", "for new hires")
	ctx := context.Background()

	t.Run("search_tasks returns markdown", func(t *testing.T) {
		got, err := f.server.CallTool(ctx, ToolSearchTasks, map[string]any{"query": "", "top_k": float64(3)})
		require.NoError(t, err)
		assert.Contains(t, got, "## All Tasks")
		assert.Contains(t, got, "Write onboarding guide")
	})

	t.Run("get_task returns markdown", func(t *testing.T) {
		got, err := f.server.CallTool(ctx, ToolGetTask, map[string]any{"id": float64(task.ID)})
		require.NoError(t, err)
		assert.Contains(t, got, "Write onboarding guide")
	})

	t.Run("get_task without id", func(t *testing.T) {
		_, err := f.server.CallTool(ctx, ToolGetTask, map[string]any{})
		require.Error(t, err)
		assert.Equal(t, ErrCodeInvalidParams, MapError(err).Code)
	})

	t.Run("get_task missing", func(t *testing.T) {
		_, err := f.server.CallTool(ctx, ToolGetTask, map[string]any{"id": float64(999)})
		require.Error(t, err)
		assert.Equal(t, ErrCodeNotFound, MapError(err).Code)
	})

	t.Run("unknown tool", func(t *testing.T) {
		_, err := f.server.CallTool(ctx, "search_code", nil)
		require.Error(t, err)
		assert.Equal(t, ErrCodeMethodNotFound, MapError(err).Code)
	})
}

func TestServer_IndexStatus(t *testing.T) {
	// Given: two tasks of which only one is indexed
	f := newFixture(t)
	f.addTask(t, "indexed", "")
	unindexed, err := f.store.Create(context.Background(), store.TaskInput{Title: "not indexed"})
	require.NoError(t, err)

	// When: asking for status
	out := f.server.indexStatus(context.Background())

	// Then: counts, embedder and the drift are reported
	assert.Equal(t, 2, out.Tasks)
	assert.True(t, out.Index.Ready)
	assert.Equal(t, 1, out.Index.Records)
	assert.Equal(t, "hnsw", out.Index.Backend)
	assert.Equal(t, 3, out.Index.QueueLag)
	assert.Equal(t, "static-384", out.Embeddings.Model)
	assert.True(t, out.Embeddings.Available)
	assert.InDelta(t, search.DefaultThreshold, out.Threshold, 1e-9)
	assert.True(t, out.Consistency.Checked)
	assert.False(t, out.Consistency.Consistent)
	assert.Equal(t, []int64{unindexed.ID}, out.Consistency.Missing)
}

func TestServer_IndexStatusWithClosedIndex(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.index.Close())

	out := f.server.indexStatus(context.Background())

	assert.False(t, out.Index.Ready)
	assert.NotEmpty(t, out.Index.Error)
	assert.False(t, out.Consistency.Checked)
}

func TestServer_QueryLog(t *testing.T) {
	// Given: one search with hits and one without
	f := newFixture(t)
	f.addTask(t, "Rotate TLS certificates", "renew the edge proxy certificates before expiry")
	_, err := f.server.searchTasks(context.Background(), SearchInput{Query: "Rotate TLS certificates renew the edge proxy certificates before expiry"})
	require.NoError(t, err)
	_, err = f.server.searchTasks(context.Background(), SearchInput{Query: "quarterly planning"})
	require.NoError(t, err)

	// When: reading the query log
	got := f.server.QueryLog()

	// Then: the zero-result query is listed
	assert.Equal(t, int64(2), got.TotalQueries)
	assert.Equal(t, []string{"quarterly planning"}, got.ZeroResultQueries)
	assert.InDelta(t, 50.0, got.ZeroResultPct, 1e-9)
}

func TestServer_OverTransport(t *testing.T) {
	// Given: a client connected over in-memory transports
	f := newFixture(t)
	task := f.addTask(t, "Rotate TLS certificates", "renew the edge proxy certificates before expiry")
	ctx := context.Background()

	serverT, clientT := mcp.NewInMemoryTransports()
	ss, err := f.server.MCPServer().Connect(ctx, serverT, nil)
	require.NoError(t, err)
	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	cs, err := client.Connect(ctx, clientT, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = cs.Close()
		_ = ss.Wait()
	})

	// When: listing and calling tools
	listed, err := cs.ListTools(ctx, nil)
	require.NoError(t, err)
	res, err := cs.CallTool(ctx, &mcp.CallToolParams{
		Name:      ToolSearchTasks,
		Arguments: map[string]any{"query": "Rotate TLS certificates renew the edge proxy certificates before expiry"},
	})
	require.NoError(t, err)

	// Then: all tools are advertised and the search result is structured
	assert.Len(t, listed.Tools, 3)
	require.False(t, res.IsError)
	raw, err := json.Marshal(res.StructuredContent)
	require.NoError(t, err)
	var out SearchOutput
	require.NoError(t, json.Unmarshal(raw, &out))
	require.Len(t, out.Results, 1)
	assert.Equal(t, task.ID, out.Results[0].ID)
}
