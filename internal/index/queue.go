package index

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	taskerrors "github.com/Aman-CERP/tasksearch/internal/errors"
	"github.com/Aman-CERP/tasksearch/internal/store"
	"github.com/Aman-CERP/tasksearch/internal/telemetry"
)

// JobKind selects what a queued job does.
type JobKind int

const (
	JobIndex JobKind = iota
	JobRemove
)

// Job is one deferred index write.
type Job struct {
	Kind JobKind

	// Task and Op are set for JobIndex.
	Task *store.Task
	Op   Op

	// TaskID is set for JobRemove.
	TaskID int64
}

// IndexJob returns a job that indexes task.
func IndexJob(task *store.Task, op Op) Job {
	return Job{Kind: JobIndex, Task: task, Op: op, TaskID: task.ID}
}

// RemoveJob returns a job that deletes the record of taskID.
func RemoveJob(taskID int64) Job {
	return Job{Kind: JobRemove, TaskID: taskID}
}

// QueueConfig sizes a Queue.
type QueueConfig struct {
	Workers int
	Size    int
	Metrics *telemetry.Metrics
}

// Queue applies index writes in background workers so task writes return
// as soon as the store commits. Searchability lags by Lag() jobs.
type Queue struct {
	pipeline *Pipeline
	jobs     chan Job
	metrics  *telemetry.Metrics

	pending atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewQueue starts cfg.Workers workers draining into pipeline.
func NewQueue(pipeline *Pipeline, cfg QueueConfig) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Size <= 0 {
		cfg.Size = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		pipeline: pipeline,
		jobs:     make(chan Job, cfg.Size),
		metrics:  cfg.Metrics,
		ctx:      ctx,
		cancel:   cancel,
	}
	for i := 0; i < cfg.Workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}
	return q
}

// Enqueue hands job to the workers, waiting for room while ctx allows.
func (q *Queue) Enqueue(ctx context.Context, job Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return taskerrors.IndexError("indexing queue is closed", nil)
	}

	q.setPending(q.pending.Add(1))
	select {
	case q.jobs <- job:
		return nil
	case <-ctx.Done():
		q.setPending(q.pending.Add(-1))
		return ctx.Err()
	}
}

// Lag returns the number of accepted jobs not yet applied.
func (q *Queue) Lag() int {
	return int(q.pending.Load())
}

// Close stops accepting jobs and waits for the backlog to drain. If ctx
// ends first, in-flight jobs are cancelled and ctx.Err() is returned.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.jobs)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.cancel()
		return nil
	case <-ctx.Done():
		pending := q.Lag()
		q.cancel()
		<-done
		slog.Warn("index_queue_abandoned", slog.Int("pending", pending))
		return ctx.Err()
	}
}

func (q *Queue) worker(n int) {
	defer q.wg.Done()
	for job := range q.jobs {
		if q.ctx.Err() != nil {
			// Draining after an abandoned Close: drop without applying.
			q.setPending(q.pending.Add(-1))
			continue
		}
		if err := q.apply(job); err != nil {
			slog.Warn("async_index_failed",
				slog.Int("worker", n),
				slog.Int64("task_id", job.TaskID),
				slog.String("error", err.Error()))
		}
		q.setPending(q.pending.Add(-1))
	}
}

func (q *Queue) apply(job Job) error {
	switch job.Kind {
	case JobRemove:
		return q.pipeline.RemoveTask(q.ctx, job.TaskID)
	default:
		return q.pipeline.IndexTask(q.ctx, job.Task, job.Op)
	}
}

func (q *Queue) setPending(n int64) {
	q.metrics.SetQueueDepth(int(n))
}

// IndexTask enqueues an index job; it lets a Queue stand in for a Pipeline.
func (q *Queue) IndexTask(ctx context.Context, task *store.Task, op Op) error {
	return q.Enqueue(ctx, IndexJob(task, op))
}

// RemoveTask enqueues a remove job.
func (q *Queue) RemoveTask(ctx context.Context, taskID int64) error {
	return q.Enqueue(ctx, RemoveJob(taskID))
}
