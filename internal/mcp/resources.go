package mcp

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func (s *Server) registerQueryLogResource() {
	s.mcp.AddResource(
		&mcp.Resource{
			Name:        "query_log",
			URI:         QueryLogURI,
			Description: "Recent search statistics: top terms, zero-result queries and latency buckets",
			MIMEType:    "application/json",
		},
		s.readQueryLog,
	)
}

func (s *Server) readQueryLog(_ context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	content, err := json.MarshalIndent(s.QueryLog(), "", "  ")
	if err != nil {
		return nil, MapError(err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{
			{URI: QueryLogURI, MIMEType: "application/json", Text: string(content)},
		},
	}, nil
}

// QueryLog returns the current query statistics.
func (s *Server) QueryLog() QueryLogOutput {
	snap := s.deps.QueryLog.Snapshot()
	out := QueryLogOutput{QuerySnapshot: snap}
	if snap.TotalQueries > 0 {
		out.ZeroResultPct = float64(snap.ZeroResultCount) / float64(snap.TotalQueries) * 100
	}
	return out
}
