package mcp

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/tasksearch/internal/embed"
	taskerrors "github.com/Aman-CERP/tasksearch/internal/errors"
	"github.com/Aman-CERP/tasksearch/internal/index"
	"github.com/Aman-CERP/tasksearch/internal/search"
	"github.com/Aman-CERP/tasksearch/internal/store"
	"github.com/Aman-CERP/tasksearch/internal/telemetry"
	"github.com/Aman-CERP/tasksearch/internal/vectorindex"
	"github.com/Aman-CERP/tasksearch/pkg/version"
)

// Tool names.
const (
	ToolSearchTasks = "search_tasks"
	ToolGetTask     = "get_task"
	ToolIndexStatus = "index_status"
)

// QueryLogURI is the resource exposing recent query statistics.
const QueryLogURI = "tasksearch://query_log"

const (
	maxTopK      = 50
	checkTimeout = 5 * time.Second
)

// Searcher runs semantic searches.
type Searcher interface {
	Search(ctx context.Context, query string, topK int) ([]search.Result, error)
	Threshold() float64
}

// TaskReader reads tasks from the primary store.
type TaskReader interface {
	Get(ctx context.Context, id int64) (*store.Task, error)
	Count(ctx context.Context) (int, error)
}

// Deps are the collaborators of a Server. Checker, Lag, QueryLog and
// Logger are optional.
type Deps struct {
	Search   Searcher
	Tasks    TaskReader
	Embedder embed.Embedder
	Index    vectorindex.Index
	Checker  *index.ConsistencyChecker
	Lag      func() int
	QueryLog *telemetry.QueryLog
	Logger   *slog.Logger
}

// ToolInfo describes a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

var tools = []ToolInfo{
	{
		Name:        ToolSearchTasks,
		Description: "Find tasks by meaning. Embeds the query and returns tasks whose title and description are within the distance threshold, nearest first. An empty query lists every task.",
	},
	{
		Name:        ToolGetTask,
		Description: "Fetch one task by id with its dates, links and assignee.",
	},
	{
		Name:        ToolIndexStatus,
		Description: "Report task and index record counts, the active embedder, and whether the index agrees with the task store.",
	},
}

// Server is the MCP server.
type Server struct {
	mcp  *mcp.Server
	deps Deps
	log  *slog.Logger
}

// NewServer registers the tools and the query log resource.
func NewServer(d Deps) (*Server, error) {
	if d.Search == nil {
		return nil, errors.New("searcher is required")
	}
	if d.Tasks == nil {
		return nil, errors.New("task reader is required")
	}
	if d.Embedder == nil || d.Index == nil {
		return nil, errors.New("embedder and index are required")
	}
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{deps: d, log: logger}
	s.mcp = mcp.NewServer(&mcp.Implementation{Name: version.Name, Version: version.Version}, nil)
	s.registerTools()
	s.registerQueryLogResource()
	return s, nil
}

// MCPServer returns the underlying SDK server.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// ListTools returns the registered tools.
func (s *Server) ListTools() []ToolInfo {
	return append([]ToolInfo(nil), tools...)
}

// CallTool invokes a tool by name. Search and get_task return markdown;
// index_status returns *IndexStatusOutput.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	switch name {
	case ToolSearchTasks:
		in := SearchInput{}
		in.Query, _ = args["query"].(string)
		if k, ok := args["top_k"].(float64); ok {
			in.TopK = int(k)
		}
		out, err := s.searchTasks(ctx, in)
		if err != nil {
			return nil, err
		}
		return FormatSearchResults(out), nil
	case ToolGetTask:
		id, ok := args["id"].(float64)
		if !ok {
			return nil, NewInvalidParamsError("id parameter is required and must be a number")
		}
		out, err := s.getTask(ctx, GetTaskInput{ID: int64(id)})
		if err != nil {
			return nil, err
		}
		return FormatTask(out), nil
	case ToolIndexStatus:
		return s.indexStatus(ctx), nil
	default:
		return nil, NewMethodNotFoundError(name)
	}
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{Name: ToolSearchTasks, Description: tools[0].Description}, s.mcpSearchHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: ToolGetTask, Description: tools[1].Description}, s.mcpGetTaskHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: ToolIndexStatus, Description: tools[2].Description}, s.mcpIndexStatusHandler)
	s.log.Debug("mcp_tools_registered", slog.Int("count", len(tools)))
}

func (s *Server) mcpSearchHandler(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (
	*mcp.CallToolResult,
	SearchOutput,
	error,
) {
	out, err := s.searchTasks(ctx, input)
	if err != nil {
		return nil, SearchOutput{}, err
	}
	return nil, out, nil
}

func (s *Server) mcpGetTaskHandler(ctx context.Context, _ *mcp.CallToolRequest, input GetTaskInput) (
	*mcp.CallToolResult,
	TaskOutput,
	error,
) {
	out, err := s.getTask(ctx, input)
	if err != nil {
		return nil, TaskOutput{}, err
	}
	return nil, out, nil
}

func (s *Server) mcpIndexStatusHandler(ctx context.Context, _ *mcp.CallToolRequest, _ IndexStatusInput) (
	*mcp.CallToolResult,
	*IndexStatusOutput,
	error,
) {
	return nil, s.indexStatus(ctx), nil
}

func (s *Server) searchTasks(ctx context.Context, input SearchInput) (SearchOutput, error) {
	start := time.Now()
	requestID := generateRequestID()
	topK := clampLimit(input.TopK, search.DefaultTopK, 1, maxTopK)

	s.log.Info("mcp_search_started",
		slog.String("request_id", requestID),
		slog.String("query", input.Query),
		slog.Int("top_k", topK))

	results, err := s.deps.Search.Search(ctx, strings.TrimSpace(input.Query), topK)
	if err != nil {
		s.log.Error("mcp_search_failed",
			slog.String("request_id", requestID),
			slog.Duration("duration", time.Since(start)),
			slog.String("error", err.Error()))
		return SearchOutput{}, MapError(err)
	}

	out := SearchOutput{Query: input.Query, Results: make([]TaskResult, 0, len(results))}
	for _, r := range results {
		out.Results = append(out.Results, toTaskResult(r.Task, r.Distance))
	}
	s.log.Info("mcp_search_completed",
		slog.String("request_id", requestID),
		slog.Duration("duration", time.Since(start)),
		slog.Int("result_count", len(out.Results)))
	return out, nil
}

func (s *Server) getTask(ctx context.Context, input GetTaskInput) (TaskOutput, error) {
	if input.ID <= 0 {
		return TaskOutput{}, NewInvalidParamsError("id must be a positive task id")
	}
	task, err := s.deps.Tasks.Get(ctx, input.ID)
	if err != nil {
		return TaskOutput{}, MapError(err)
	}
	if task == nil {
		return TaskOutput{}, MapError(taskerrors.NotFoundError("task", input.ID))
	}
	return toTaskOutput(task), nil
}

// indexStatus never fails; problems are reported in the output.
func (s *Server) indexStatus(ctx context.Context) *IndexStatusOutput {
	out := &IndexStatusOutput{
		Threshold: s.deps.Search.Threshold(),
		Embeddings: EmbeddingInfo{
			Model:      s.deps.Embedder.ModelName(),
			Dimensions: s.deps.Embedder.Dimensions(),
			Available:  s.deps.Embedder.Available(ctx),
		},
	}

	if n, err := s.deps.Tasks.Count(ctx); err == nil {
		out.Tasks = n
	} else {
		s.log.Warn("mcp_status_task_count_failed", slog.String("error", err.Error()))
	}

	if n, err := s.deps.Index.Count(ctx); err != nil {
		out.Index.Error = err.Error()
	} else {
		out.Index.Ready = true
		out.Index.Records = n
	}
	if sp, ok := s.deps.Index.(vectorindex.StatsProvider); ok {
		st := sp.Stats()
		out.Index.Backend = st.Backend
		out.Index.Dimensions = st.Dimensions
		out.Index.Orphans = st.Orphans
	}
	if s.deps.Lag != nil {
		out.Index.QueueLag = s.deps.Lag()
	}

	if s.deps.Checker != nil && out.Index.Ready {
		checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
		defer cancel()
		res, err := s.deps.Checker.Check(checkCtx)
		if err != nil {
			s.log.Warn("mcp_status_check_failed", slog.String("error", err.Error()))
		} else {
			out.Consistency = ConsistencyInfo{
				Checked:    true,
				Consistent: res.Consistent(),
				Orphans:    len(res.Orphans()),
				Missing:    res.Missing(),
			}
		}
	}
	return out
}

// Serve runs the server on transport until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, transport string) error {
	s.log.Info("mcp_server_starting", slog.String("transport", transport))

	switch transport {
	case "stdio":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.log.Error("mcp_server_stopped", slog.String("error", err.Error()))
			return err
		}
		s.log.Info("mcp_server_stopped")
		return nil
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}

// generateRequestID creates a short id for log correlation.
func generateRequestID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
