package tasks

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/Aman-CERP/tasksearch/internal/config"
	"github.com/Aman-CERP/tasksearch/internal/embed"
	taskerrors "github.com/Aman-CERP/tasksearch/internal/errors"
	"github.com/Aman-CERP/tasksearch/internal/index"
	"github.com/Aman-CERP/tasksearch/internal/store"
	"github.com/Aman-CERP/tasksearch/internal/vectorindex"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// recordingIndexer wraps an Indexer and records calls.
type recordingIndexer struct {
	next index.Indexer
	err  error

	mu      sync.Mutex
	indexed []int64
	ops     []index.Op
	removed []int64
}

func (r *recordingIndexer) IndexTask(ctx context.Context, task *store.Task, op index.Op) error {
	r.mu.Lock()
	r.indexed = append(r.indexed, task.ID)
	r.ops = append(r.ops, op)
	r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	return r.next.IndexTask(ctx, task, op)
}

func (r *recordingIndexer) RemoveTask(ctx context.Context, id int64) error {
	r.mu.Lock()
	r.removed = append(r.removed, id)
	r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	return r.next.RemoveTask(ctx, id)
}

type fixture struct {
	svc     *Service
	db      *store.SQLiteStore
	idx     *vectorindex.HNSWIndex
	indexer *recordingIndexer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := store.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	idx, _, err := vectorindex.OpenHNSW(vectorindex.HNSWConfig{Dimensions: 64})
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })

	pipeline := index.NewPipeline(embed.NewStaticEmbedderWithDimensions(64), idx, index.Options{
		FailurePolicy: config.PolicyFatal,
	})
	rec := &recordingIndexer{next: pipeline}
	return &fixture{svc: NewService(db, rec, nil), db: db, idx: idx, indexer: rec}
}

func (f *fixture) records(t *testing.T) int {
	t.Helper()
	n, err := f.idx.Count(context.Background())
	require.NoError(t, err)
	return n
}

func TestService_CreateTask(t *testing.T) {
	// Given: a registered user
	f := newFixture(t)
	ctx := context.Background()
	u, err := f.svc.RegisterUser(ctx, "  frank ", "pw")
	require.NoError(t, err)
	assert.Equal(t, "frank", u.Username)

	// When: creating a task assigned to them
	task, err := f.svc.CreateTask(ctx, store.TaskInput{
		Title:       "Write release notes",
		Description: "summarize the changes for version two",
		AssigneeID:  u.ID,
		CreatorID:   u.ID,
	})

	// Then: the task is committed and indexed under its id
	require.NoError(t, err)
	assert.Equal(t, []int64{task.ID}, f.indexer.indexed)
	assert.Equal(t, []index.Op{index.OpCreate}, f.indexer.ops)
	rec, err := f.idx.Get(ctx, index.RecordID(task.ID))
	require.NoError(t, err)
	require.NotNil(t, rec)
}

func TestService_CreateTaskRejectsUnknownUser(t *testing.T) {
	tests := []struct {
		name  string
		in    store.TaskInput
		field string
	}{
		{"unknown assignee", store.TaskInput{Title: "t", AssigneeID: 41}, "user_id"},
		{"unknown creator", store.TaskInput{Title: "t", CreatorID: 42}, "created_by"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()

			_, err := f.svc.CreateTask(ctx, tt.in)

			// Then: a validation error, no row, no index call
			require.Error(t, err)
			assert.True(t, taskerrors.IsValidation(err))
			assert.Equal(t, taskerrors.ErrCodeUnknownUser, taskerrors.GetCode(err))
			te, ok := taskerrors.As(err)
			require.True(t, ok)
			assert.Equal(t, tt.field, te.Details["field"])

			tasks, err := f.db.All(ctx)
			require.NoError(t, err)
			assert.Empty(t, tasks)
			assert.Empty(t, f.indexer.indexed)
			assert.Zero(t, f.records(t))
		})
	}
}

func TestService_CreateTaskInvalidInputWritesNothing(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateTask(context.Background(), store.TaskInput{Title: " "})

	assert.True(t, taskerrors.IsValidation(err))
	assert.Empty(t, f.indexer.indexed)
}

func TestService_IndexFailureKeepsCommittedTask(t *testing.T) {
	// Given: an indexer that fails under the fatal policy
	f := newFixture(t)
	f.indexer.err = taskerrors.ModelError("model unavailable", nil)
	ctx := context.Background()

	// When: creating a task
	task, err := f.svc.CreateTask(ctx, store.TaskInput{Title: "survives", Description: "still stored"})

	// Then: the error reaches the caller but the row stays
	require.Error(t, err)
	assert.True(t, taskerrors.IsModel(err))
	require.NotNil(t, task)
	got, err := f.db.Get(ctx, task.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
}

func TestService_UpdateTask(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task, err := f.svc.CreateTask(ctx, store.TaskInput{Title: "Plan offsite", Description: "book a venue"})
	require.NoError(t, err)

	desc := "book a venue and catering"
	updated, err := f.svc.UpdateTask(ctx, task.ID, store.TaskPatch{Description: &desc})

	require.NoError(t, err)
	assert.Equal(t, desc, updated.Description)
	assert.Equal(t, []index.Op{index.OpCreate, index.OpUpdate}, f.indexer.ops)
	rec, err := f.idx.Get(ctx, index.RecordID(task.ID))
	require.NoError(t, err)
	assert.Equal(t, desc, rec.Metadata[index.MetaDescription])
	assert.Equal(t, 1, f.records(t))
}

func TestService_UpdateTaskErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task, err := f.svc.CreateTask(ctx, store.TaskInput{Title: "t", Description: "d"})
	require.NoError(t, err)
	calls := len(f.indexer.indexed)

	title := "x"
	_, err = f.svc.UpdateTask(ctx, 999, store.TaskPatch{Title: &title})
	assert.True(t, taskerrors.IsNotFound(err))

	_, err = f.svc.SetStatus(ctx, task.ID, store.Status("archived"))
	assert.True(t, taskerrors.IsValidation(err))

	_, err = f.svc.Assign(ctx, task.ID, 555)
	assert.Equal(t, taskerrors.ErrCodeUnknownUser, taskerrors.GetCode(err))

	assert.Len(t, f.indexer.indexed, calls, "failed updates must not touch the index")
}

func TestService_SetStatusAndAssign(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u, err := f.svc.RegisterUser(ctx, "gina", "pw")
	require.NoError(t, err)
	task, err := f.svc.CreateTask(ctx, store.TaskInput{Title: "t", Description: "d"})
	require.NoError(t, err)

	done, err := f.svc.SetStatus(ctx, task.ID, store.StatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, store.StatusCompleted, done.Status)

	assigned, err := f.svc.Assign(ctx, task.ID, u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.ID, assigned.AssigneeID)
	assert.Equal(t, "gina", assigned.AssigneeName)

	cleared, err := f.svc.Assign(ctx, task.ID, 0)
	require.NoError(t, err)
	assert.Zero(t, cleared.AssigneeID)

	assert.Len(t, f.indexer.ops, 4)
}

func TestService_DeleteTask(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task, err := f.svc.CreateTask(ctx, store.TaskInput{Title: "t", Description: "d"})
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteTask(ctx, task.ID))

	assert.Equal(t, []int64{task.ID}, f.indexer.removed)
	assert.Zero(t, f.records(t))
	_, err = f.svc.GetTask(ctx, task.ID)
	assert.True(t, taskerrors.IsNotFound(err))

	err = f.svc.DeleteTask(ctx, task.ID)
	assert.True(t, taskerrors.IsNotFound(err))
	assert.Len(t, f.indexer.removed, 1)
}

func TestService_Listings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	day := func(d int) time.Time { return time.Date(2025, 9, d, 0, 0, 0, 0, time.UTC) }
	_, err := f.svc.CreateTask(ctx, store.TaskInput{Title: "a", Description: "d", StartDate: day(1), EndDate: day(3)})
	require.NoError(t, err)

	all, err := f.svc.ListTasks(ctx, store.Page{})
	require.NoError(t, err)
	assert.Len(t, all, 1)

	pending, err := f.svc.ListByStatus(ctx, store.StatusPending, store.Page{})
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	_, err = f.svc.ListByStatus(ctx, store.Status("nope"), store.Page{})
	assert.True(t, taskerrors.IsValidation(err))

	inRange, err := f.svc.ListByDateRange(ctx, day(1), day(30), store.Page{})
	require.NoError(t, err)
	assert.Len(t, inRange, 1)

	_, err = f.svc.ListByDateRange(ctx, day(30), day(1), store.Page{})
	assert.True(t, taskerrors.IsValidation(err))

	byUser, err := f.svc.ListByUser(ctx, 1, store.Page{})
	require.NoError(t, err)
	assert.Empty(t, byUser)
}

func TestService_Users(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u, err := f.svc.RegisterUser(ctx, "hana", "pw")
	require.NoError(t, err)

	_, err = f.svc.RegisterUser(ctx, "hana", "other")
	assert.Equal(t, taskerrors.ErrCodeDuplicate, taskerrors.GetCode(err))

	got, err := f.svc.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "hana", got.Username)

	_, err = f.svc.GetUser(ctx, 12345)
	assert.True(t, taskerrors.IsNotFound(err))
}

func TestService_AsyncIndexing(t *testing.T) {
	// Given: a service whose indexer is a queue
	db, err := store.Open("")
	require.NoError(t, err)
	defer func() { _ = db.Close() }()
	idx, _, err := vectorindex.OpenHNSW(vectorindex.HNSWConfig{Dimensions: 64})
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()
	pipeline := index.NewPipeline(embed.NewStaticEmbedderWithDimensions(64), idx, index.Options{})
	queue := index.NewQueue(pipeline, index.QueueConfig{Workers: 2, Size: 8})
	svc := NewService(db, queue, nil)
	ctx := context.Background()

	// When: creating then deleting tasks and draining the queue
	keep, err := svc.CreateTask(ctx, store.TaskInput{Title: "keep", Description: "stays indexed"})
	require.NoError(t, err)
	drop, err := svc.CreateTask(ctx, store.TaskInput{Title: "drop", Description: "removed later"})
	require.NoError(t, err)
	require.NoError(t, queue.Close(ctx))

	// Then: both were applied after the commit
	n, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// And: a closed queue surfaces as an index error without undoing the delete
	err = svc.DeleteTask(ctx, drop.ID)
	assert.True(t, taskerrors.IsIndex(err))
	got, err := db.Get(ctx, drop.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NotNil(t, keep)
}

func TestService_StoreErrorIsFatal(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.db.Close())

	_, err := f.svc.CreateTask(context.Background(), store.TaskInput{Title: "t"})

	require.Error(t, err)
	assert.False(t, errors.Is(err, context.Canceled))
	assert.Equal(t, taskerrors.CategoryStorage, taskerrors.GetCategory(err))
	assert.Empty(t, f.indexer.indexed)
}
