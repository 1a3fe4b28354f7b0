package mcp

import "github.com/Aman-CERP/tasksearch/internal/telemetry"

// SearchInput is the input schema of the search_tasks tool.
type SearchInput struct {
	Query string `json:"query" jsonschema:"natural-language description of the tasks to find; empty lists every task"`
	TopK  int    `json:"top_k,omitempty" jsonschema:"number of nearest neighbours to consider, default 5, max 50"`
}

// SearchOutput is the output schema of the search_tasks tool.
type SearchOutput struct {
	Query   string       `json:"query"`
	Results []TaskResult `json:"results" jsonschema:"tasks within the distance threshold, nearest first"`
}

// TaskResult is one search hit.
type TaskResult struct {
	ID          int64   `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Status      string  `json:"status"`
	Priority    string  `json:"priority"`
	Assignee    string  `json:"assignee,omitempty"`
	Distance    float32 `json:"distance" jsonschema:"squared euclidean distance; 0 is identical, 4 is opposite"`
}

// GetTaskInput is the input schema of the get_task tool.
type GetTaskInput struct {
	ID int64 `json:"id" jsonschema:"task id"`
}

// TaskOutput is the full task record.
type TaskOutput struct {
	ID               int64  `json:"id"`
	Title            string `json:"title"`
	Description      string `json:"description"`
	Status           string `json:"status"`
	Priority         string `json:"priority"`
	Assignee         string `json:"assignee,omitempty"`
	JiraLink         string `json:"jira_link,omitempty"`
	PullRequestLinks string `json:"pull_requests_links,omitempty"`
	StartDate        string `json:"start_date,omitempty"`
	EndDate          string `json:"end_date,omitempty"`
	CreatedAt        string `json:"created_at"`
	UpdatedAt        string `json:"updated_at"`
}

// IndexStatusInput is the input schema of the index_status tool (no parameters).
type IndexStatusInput struct{}

// IndexStatusOutput is the output schema of the index_status tool.
type IndexStatusOutput struct {
	Tasks       int             `json:"tasks"`
	Index       IndexInfo       `json:"index"`
	Embeddings  EmbeddingInfo   `json:"embeddings"`
	Consistency ConsistencyInfo `json:"consistency"`
	Threshold   float64         `json:"threshold"`
}

// IndexInfo describes the vector index.
type IndexInfo struct {
	Backend    string `json:"backend,omitempty"`
	Ready      bool   `json:"ready"`
	Records    int    `json:"records"`
	Dimensions int    `json:"dimensions,omitempty"`
	Orphans    int    `json:"orphans,omitempty"`
	QueueLag   int    `json:"queue_lag,omitempty"`
	Error      string `json:"error,omitempty"`
}

// EmbeddingInfo describes the active embedder.
type EmbeddingInfo struct {
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions"`
	Available  bool   `json:"available"`
}

// ConsistencyInfo compares store and index contents.
type ConsistencyInfo struct {
	Checked    bool    `json:"checked"`
	Consistent bool    `json:"consistent"`
	Orphans    int     `json:"orphans"`
	Missing    []int64 `json:"missing,omitempty"`
}

// QueryLogOutput is the body of the query_log resource.
type QueryLogOutput struct {
	telemetry.QuerySnapshot
	ZeroResultPct float64 `json:"zero_result_pct"`
}
