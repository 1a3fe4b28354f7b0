// Package search answers free-text queries over tasks.
//
// A search embeds the query, asks the vector index for the nearest records,
// drops hits beyond the distance threshold and re-hydrates the survivors
// from the primary store in similarity order.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/Aman-CERP/tasksearch/internal/embed"
	taskerrors "github.com/Aman-CERP/tasksearch/internal/errors"
	"github.com/Aman-CERP/tasksearch/internal/store"
	"github.com/Aman-CERP/tasksearch/internal/telemetry"
	"github.com/Aman-CERP/tasksearch/internal/vectorindex"
)

const (
	// DefaultTopK is used when a caller passes topK <= 0.
	DefaultTopK = 5

	// DefaultThreshold keeps hits whose rounded distance is at most 1.
	DefaultThreshold = 1.0
)

// ErrNilDependency is returned when a required dependency is nil.
var ErrNilDependency = errors.New("nil dependency")

// TaskFetcher is the part of the primary store a search reads.
type TaskFetcher interface {
	// GetMany returns the existing tasks among ids, in any order.
	GetMany(ctx context.Context, ids []int64) ([]*store.Task, error)
	// All returns every task; used for blank queries.
	All(ctx context.Context) ([]*store.Task, error)
}

// Result is a task and its distance from the query.
type Result struct {
	Task     *store.Task `json:"task"`
	Distance float32     `json:"distance"`
}

// Orchestrator runs searches.
type Orchestrator struct {
	embedder  embed.Embedder
	index     vectorindex.Index
	tasks     TaskFetcher
	threshold float64
	topK      int
	metrics   *telemetry.Metrics
	queries   *telemetry.QueryLog
	logger    *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithThreshold sets the distance threshold. Negative values are ignored.
func WithThreshold(threshold float64) Option {
	return func(o *Orchestrator) {
		if threshold >= 0 {
			o.threshold = threshold
		}
	}
}

// WithDefaultTopK sets the result cap used when a caller passes topK <= 0.
func WithDefaultTopK(topK int) Option {
	return func(o *Orchestrator) {
		if topK > 0 {
			o.topK = topK
		}
	}
}

// WithMetrics records latency and result counts.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithQueryLog records queries, including the ones that found nothing.
func WithQueryLog(l *telemetry.QueryLog) Option {
	return func(o *Orchestrator) {
		o.queries = l
	}
}

// WithLogger overrides slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// NewOrchestrator returns an Orchestrator over the given dependencies.
func NewOrchestrator(embedder embed.Embedder, index vectorindex.Index, tasks TaskFetcher, opts ...Option) (*Orchestrator, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrNilDependency)
	}
	if index == nil {
		return nil, fmt.Errorf("%w: vector index is required", ErrNilDependency)
	}
	if tasks == nil {
		return nil, fmt.Errorf("%w: task store is required", ErrNilDependency)
	}
	o := &Orchestrator{
		embedder:  embedder,
		index:     index,
		tasks:     tasks,
		threshold: DefaultThreshold,
		topK:      DefaultTopK,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Threshold returns the configured distance threshold.
func (o *Orchestrator) Threshold() float64 {
	return o.threshold
}

// Search returns at most topK tasks ordered by ascending distance from
// query. A blank query lists every task with distance 0 instead.
//
// Embedding and index failures fail the whole call; there are no partial
// results. No hit within the threshold yields an empty, non-nil slice.
func (o *Orchestrator) Search(ctx context.Context, query string, topK int) ([]Result, error) {
	start := time.Now()
	if topK <= 0 {
		topK = o.topK
	}

	if strings.TrimSpace(query) == "" {
		results, err := o.listAll(ctx)
		if err != nil {
			return nil, err
		}
		o.record(query, len(results), 0, start)
		return results, nil
	}

	vec, err := o.embedder.Embed(ctx, query)
	if err != nil {
		if _, ok := taskerrors.As(err); !ok {
			err = taskerrors.ModelError("failed to embed query", err)
		}
		return nil, err
	}

	hits, err := o.index.Query(ctx, vec, topK)
	if err != nil {
		if _, ok := taskerrors.As(err); !ok {
			err = taskerrors.New(taskerrors.ErrCodeSearchFailed, "vector query failed", err)
		}
		return nil, err
	}

	kept := FilterByThreshold(hits, o.threshold)
	filtered := len(hits) - len(kept)

	ids, distances := parseIDs(kept, o.logger)
	if len(ids) == 0 {
		o.record(query, 0, filtered, start)
		return []Result{}, nil
	}

	tasks, err := o.tasks.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}

	results := Reorder(ids, distances, tasks)
	if dropped := len(ids) - len(results); dropped > 0 {
		o.logger.Debug("search_dropped_missing_tasks", slog.Int("count", dropped))
	}

	o.record(query, len(results), filtered, start)
	return results, nil
}

// SearchTasks is Search without distances.
func (o *Orchestrator) SearchTasks(ctx context.Context, query string, topK int) ([]*store.Task, error) {
	results, err := o.Search(ctx, query, topK)
	if err != nil {
		return nil, err
	}
	tasks := make([]*store.Task, len(results))
	for i, r := range results {
		tasks[i] = r.Task
	}
	return tasks, nil
}

func (o *Orchestrator) listAll(ctx context.Context) ([]Result, error) {
	tasks, err := o.tasks.All(ctx)
	if err != nil {
		return nil, err
	}
	results := make([]Result, len(tasks))
	for i, t := range tasks {
		results[i] = Result{Task: t}
	}
	return results, nil
}

func (o *Orchestrator) record(query string, results, filtered int, start time.Time) {
	d := time.Since(start)
	o.metrics.ObserveSearch(d, results, filtered)
	o.queries.Record(telemetry.QueryEvent{Query: query, ResultCount: results, Latency: d})
	o.logger.Debug("search_completed",
		slog.Int("results", results),
		slog.Int("filtered", filtered),
		slog.Duration("duration", d))
}

// FilterByThreshold keeps hits whose distance, rounded half to even, is at
// most threshold. Order is preserved.
func FilterByThreshold(hits []vectorindex.Hit, threshold float64) []vectorindex.Hit {
	kept := make([]vectorindex.Hit, 0, len(hits))
	for _, h := range hits {
		if math.RoundToEven(float64(h.Distance)) <= threshold {
			kept = append(kept, h)
		}
	}
	return kept
}

// parseIDs converts record ids to task ids in rank order, skipping ids that
// are not integers.
func parseIDs(hits []vectorindex.Hit, logger *slog.Logger) ([]int64, []float32) {
	ids := make([]int64, 0, len(hits))
	distances := make([]float32, 0, len(hits))
	for _, h := range hits {
		id, err := strconv.ParseInt(h.ID, 10, 64)
		if err != nil {
			logger.Warn("search_skipped_bad_record_id", slog.String("record_id", h.ID))
			continue
		}
		ids = append(ids, id)
		distances = append(distances, h.Distance)
	}
	return ids, distances
}

// Reorder arranges tasks in the order of ids. distances[i] belongs to
// ids[i]. Ids with no task are dropped.
func Reorder(ids []int64, distances []float32, tasks []*store.Task) []Result {
	byID := make(map[int64]*store.Task, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}
	results := make([]Result, 0, len(ids))
	for i, id := range ids {
		if t, ok := byID[id]; ok {
			results = append(results, Result{Task: t, Distance: distances[i]})
		}
	}
	return results
}
