// Package index keeps the vector index in step with the primary store.
//
// Every task write commits to the store first; the Pipeline then derives
// the embedding text, embeds it and upserts the record keyed by task id.
// The second write is never rolled back into the first: a failure is
// either returned (fatal policy) or logged and counted (best_effort).
package index

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/tasksearch/internal/config"
	"github.com/Aman-CERP/tasksearch/internal/embed"
	taskerrors "github.com/Aman-CERP/tasksearch/internal/errors"
	"github.com/Aman-CERP/tasksearch/internal/store"
	"github.com/Aman-CERP/tasksearch/internal/telemetry"
	"github.com/Aman-CERP/tasksearch/internal/vectorindex"
)

// Op says which task write triggered indexing.
type Op int

const (
	OpCreate Op = iota
	OpUpdate
)

func (o Op) String() string {
	switch o {
	case OpCreate:
		return "create"
	case OpUpdate:
		return "update"
	default:
		return "unknown"
	}
}

// Metadata keys stored with each record.
const (
	MetaTaskID      = "task_id"
	MetaTitle       = "title"
	MetaDescription = "description"
	MetaText        = "text"
)

const (
	// DefaultBatchSize is the number of tasks embedded per request by IndexAll.
	DefaultBatchSize = embed.DefaultBatchSize

	// DefaultConcurrency bounds in-flight embedding batches in IndexAll.
	DefaultConcurrency = 4
)

// Indexer applies the index side of task writes. Pipeline applies them
// inline; Queue defers them to background workers.
type Indexer interface {
	IndexTask(ctx context.Context, task *store.Task, op Op) error
	RemoveTask(ctx context.Context, taskID int64) error
}

var (
	_ Indexer = (*Pipeline)(nil)
	_ Indexer = (*Queue)(nil)
)

// Options configures a Pipeline.
type Options struct {
	// TextMode is config.TextModeUnified (default) or config.TextModeLegacy.
	TextMode string

	// FailurePolicy is config.PolicyBestEffort (default) or config.PolicyFatal.
	FailurePolicy string

	BatchSize   int
	Concurrency int

	// Progress, when set, is called after each IndexAll batch with the
	// number of tasks indexed so far. Calls are serialized.
	Progress func(done, total int)

	Metrics *telemetry.Metrics
	Logger  *slog.Logger
}

// Pipeline derives, embeds and stores task records.
type Pipeline struct {
	embedder embed.Embedder
	index    vectorindex.Index
	opts     Options
	logger   *slog.Logger
}

// NewPipeline returns a Pipeline writing to index with embedder.
func NewPipeline(embedder embed.Embedder, index vectorindex.Index, opts Options) *Pipeline {
	if opts.TextMode == "" {
		opts.TextMode = config.TextModeUnified
	}
	if opts.FailurePolicy == "" {
		opts.FailurePolicy = config.PolicyBestEffort
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{embedder: embedder, index: index, opts: opts, logger: logger}
}

// RecordID is the vector index key for a task.
func RecordID(taskID int64) string {
	return strconv.FormatInt(taskID, 10)
}

// Document returns the text to embed and the metadata snapshot for task.
//
// In unified mode both writes embed "<title> <description>". Legacy mode
// embeds the description alone on create and "<title> <description>" with
// only the text as metadata on update. A legacy create with a blank
// description embeds "<title> <description>" instead.
func (p *Pipeline) Document(task *store.Task, op Op) (string, map[string]string) {
	id := RecordID(task.ID)
	if p.opts.TextMode == config.TextModeLegacy {
		if op == OpCreate {
			text := task.Description
			if strings.TrimSpace(text) == "" {
				text = task.EmbeddingText()
			}
			return text, map[string]string{
				MetaTaskID:      id,
				MetaTitle:       task.Title,
				MetaDescription: task.Description,
			}
		}
		text := task.EmbeddingText()
		return text, map[string]string{MetaText: text}
	}

	text := task.EmbeddingText()
	return text, map[string]string{
		MetaTaskID:      id,
		MetaTitle:       task.Title,
		MetaDescription: task.Description,
		MetaText:        text,
	}
}

// IndexTask embeds task and upserts its record. Call it after the store
// commit for op.
func (p *Pipeline) IndexTask(ctx context.Context, task *store.Task, op Op) error {
	start := time.Now()
	id := RecordID(task.ID)
	text, metadata := p.Document(task, op)

	vec, err := p.embedder.Embed(ctx, text)
	if err != nil {
		return p.fail(telemetry.OpUpsert, id, err)
	}

	err = p.index.Upsert(ctx, []string{id}, [][]float32{vec}, []map[string]string{metadata})
	p.opts.Metrics.IndexOp(telemetry.OpUpsert, err)
	if err != nil {
		return p.fail(telemetry.OpUpsert, id, err)
	}

	p.logger.Debug("task_indexed",
		slog.String("task_id", id),
		slog.String("op", op.String()),
		slog.Duration("duration", time.Since(start)))
	return nil
}

// RemoveTask deletes the record of a deleted task.
func (p *Pipeline) RemoveTask(ctx context.Context, taskID int64) error {
	id := RecordID(taskID)
	err := p.index.Delete(ctx, []string{id})
	p.opts.Metrics.IndexOp(telemetry.OpDelete, err)
	if err != nil {
		return p.fail(telemetry.OpDelete, id, err)
	}
	p.logger.Debug("task_unindexed", slog.String("task_id", id))
	return nil
}

// fail applies the failure policy to an indexing error.
func (p *Pipeline) fail(op, id string, err error) error {
	if !taskerrors.IsModel(err) && !taskerrors.IsIndex(err) {
		err = taskerrors.IndexError(fmt.Sprintf("failed to %s record %s", op, id), err)
	}
	if p.opts.FailurePolicy == config.PolicyFatal {
		return err
	}
	p.opts.Metrics.IndexFailureTolerated(op)
	p.logger.Warn("task_index_failed",
		slog.String("task_id", id),
		slog.String("op", op),
		slog.String("error", err.Error()))
	return nil
}

// IndexResult summarizes a bulk run.
type IndexResult struct {
	Indexed  int
	Batches  int
	Duration time.Duration
}

// IndexAll embeds and upserts tasks in batches with bounded concurrency.
// Unlike IndexTask it always stops on the first error: it backs operator
// commands, where a partial rebuild must be visible.
func (p *Pipeline) IndexAll(ctx context.Context, tasks []*store.Task) (*IndexResult, error) {
	start := time.Now()
	var (
		indexed    atomic.Int64
		progressMu sync.Mutex
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Concurrency)

	batches := 0
	for lo := 0; lo < len(tasks); lo += p.opts.BatchSize {
		batch := tasks[lo:min(lo+p.opts.BatchSize, len(tasks))]
		batches++
		g.Go(func() error {
			n, err := p.indexBatch(gctx, batch)
			indexed.Add(int64(n))
			if err == nil && p.opts.Progress != nil {
				progressMu.Lock()
				p.opts.Progress(int(indexed.Load()), len(tasks))
				progressMu.Unlock()
			}
			return err
		})
	}
	err := g.Wait()

	result := &IndexResult{
		Indexed:  int(indexed.Load()),
		Batches:  batches,
		Duration: time.Since(start),
	}
	if err != nil {
		return result, err
	}
	p.logger.Info("index_rebuilt",
		slog.Int("tasks", result.Indexed),
		slog.Int("batches", batches),
		slog.Duration("duration", result.Duration))
	return result, nil
}

func (p *Pipeline) indexBatch(ctx context.Context, batch []*store.Task) (int, error) {
	ids := make([]string, len(batch))
	texts := make([]string, len(batch))
	metadata := make([]map[string]string, len(batch))
	for i, task := range batch {
		ids[i] = RecordID(task.ID)
		texts[i], metadata[i] = p.Document(task, OpUpdate)
	}

	vectors, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embed batch starting at task %s: %w", ids[0], err)
	}
	err = p.index.Upsert(ctx, ids, vectors, metadata)
	p.opts.Metrics.IndexOp(telemetry.OpUpsert, err)
	if err != nil {
		return 0, fmt.Errorf("upsert batch starting at task %s: %w", ids[0], err)
	}
	return len(batch), nil
}

// Reset deletes every record from the index.
func (p *Pipeline) Reset(ctx context.Context) (int, error) {
	ids, err := p.index.IDs(ctx)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	if err := p.index.Delete(ctx, ids); err != nil {
		return 0, err
	}
	p.logger.Info("index_reset", slog.Int("records", len(ids)))
	return len(ids), nil
}

// Index returns the vector index the pipeline writes to.
func (p *Pipeline) Index() vectorindex.Index {
	return p.index
}
