package index

import (
	"context"
	"log/slog"
	"slices"
	"strconv"
	"time"

	"github.com/Aman-CERP/tasksearch/internal/store"
	"github.com/Aman-CERP/tasksearch/internal/vectorindex"
)

// InconsistencyType categorizes detected issues.
type InconsistencyType int

const (
	// InconsistencyOrphanRecord is an index record whose task no longer exists.
	InconsistencyOrphanRecord InconsistencyType = iota
	// InconsistencyMissingRecord is a task without an index record.
	InconsistencyMissingRecord
)

// String returns a human-readable description of the inconsistency type.
func (t InconsistencyType) String() string {
	switch t {
	case InconsistencyOrphanRecord:
		return "orphan_record"
	case InconsistencyMissingRecord:
		return "missing_record"
	default:
		return "unknown"
	}
}

// Inconsistency is one detected cross-store issue.
type Inconsistency struct {
	Type     InconsistencyType `json:"type"`
	RecordID string            `json:"record_id"`
	Details  string            `json:"details"`
}

// CheckResult contains the outcome of a consistency check.
type CheckResult struct {
	// Tasks is the number of tasks in the primary store.
	Tasks int `json:"tasks"`
	// Records is the number of records in the vector index.
	Records int `json:"records"`

	Inconsistencies []Inconsistency `json:"inconsistencies"`
	Duration        time.Duration   `json:"duration"`
}

// Orphans returns the record ids with no task.
func (r *CheckResult) Orphans() []string {
	var out []string
	for _, issue := range r.Inconsistencies {
		if issue.Type == InconsistencyOrphanRecord {
			out = append(out, issue.RecordID)
		}
	}
	return out
}

// Missing returns the ids of tasks with no record.
func (r *CheckResult) Missing() []int64 {
	var out []int64
	for _, issue := range r.Inconsistencies {
		if issue.Type != InconsistencyMissingRecord {
			continue
		}
		if id, err := strconv.ParseInt(issue.RecordID, 10, 64); err == nil {
			out = append(out, id)
		}
	}
	return out
}

// Consistent reports whether no issue was found.
func (r *CheckResult) Consistent() bool {
	return len(r.Inconsistencies) == 0
}

// TaskSource is the part of the primary store the checker reads.
type TaskSource interface {
	IDs(ctx context.Context) ([]int64, error)
	GetMany(ctx context.Context, ids []int64) ([]*store.Task, error)
}

// ConsistencyChecker compares the primary store (source of truth) with the
// vector index. A crash between the two writes of a task leaves exactly the
// kinds of drift it reports.
type ConsistencyChecker struct {
	tasks    TaskSource
	index    vectorindex.Index
	pipeline *Pipeline
}

// NewConsistencyChecker returns a checker. pipeline is used by Repair to
// re-index missing tasks.
func NewConsistencyChecker(tasks TaskSource, index vectorindex.Index, pipeline *Pipeline) *ConsistencyChecker {
	return &ConsistencyChecker{tasks: tasks, index: index, pipeline: pipeline}
}

// Check lists orphan and missing records. This is O(tasks + records).
func (c *ConsistencyChecker) Check(ctx context.Context) (*CheckResult, error) {
	start := time.Now()

	taskIDs, err := c.tasks.IDs(ctx)
	if err != nil {
		return nil, err
	}
	recordIDs, err := c.index.IDs(ctx)
	if err != nil {
		return nil, err
	}

	known := make(map[string]bool, len(taskIDs))
	for _, id := range taskIDs {
		known[RecordID(id)] = true
	}
	indexed := make(map[string]bool, len(recordIDs))
	for _, id := range recordIDs {
		indexed[id] = true
	}

	issues := make([]Inconsistency, 0)
	slices.Sort(recordIDs)
	for _, id := range recordIDs {
		if !known[id] {
			issues = append(issues, Inconsistency{
				Type:     InconsistencyOrphanRecord,
				RecordID: id,
				Details:  "index record without matching task",
			})
		}
	}
	for _, id := range taskIDs {
		rid := RecordID(id)
		if !indexed[rid] {
			issues = append(issues, Inconsistency{
				Type:     InconsistencyMissingRecord,
				RecordID: rid,
				Details:  "task missing from vector index",
			})
		}
	}

	return &CheckResult{
		Tasks:           len(taskIDs),
		Records:         len(recordIDs),
		Inconsistencies: issues,
		Duration:        time.Since(start),
	}, nil
}

// RepairResult counts what Repair changed.
type RepairResult struct {
	Deleted   int `json:"deleted"`
	Reindexed int `json:"reindexed"`
}

// Repair deletes orphan records and re-indexes missing tasks.
func (c *ConsistencyChecker) Repair(ctx context.Context, result *CheckResult) (*RepairResult, error) {
	out := &RepairResult{}

	if orphans := result.Orphans(); len(orphans) > 0 {
		if err := c.index.Delete(ctx, orphans); err != nil {
			return out, err
		}
		out.Deleted = len(orphans)
		slog.Info("deleted orphan index records", slog.Int("count", out.Deleted))
	}

	if missing := result.Missing(); len(missing) > 0 {
		tasks, err := c.tasks.GetMany(ctx, missing)
		if err != nil {
			return out, err
		}
		res, err := c.pipeline.IndexAll(ctx, tasks)
		if res != nil {
			out.Reindexed = res.Indexed
		}
		if err != nil {
			return out, err
		}
		slog.Info("re-indexed missing tasks", slog.Int("count", out.Reindexed))
	}

	return out, nil
}

// QuickCheck only compares counts.
func (c *ConsistencyChecker) QuickCheck(ctx context.Context) (bool, error) {
	taskIDs, err := c.tasks.IDs(ctx)
	if err != nil {
		return false, err
	}
	records, err := c.index.Count(ctx)
	if err != nil {
		return false, err
	}
	if len(taskIDs) != records {
		slog.Debug("index counts mismatch",
			slog.Int("tasks", len(taskIDs)),
			slog.Int("records", records))
		return false, nil
	}
	return true, nil
}
