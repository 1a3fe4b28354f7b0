package index

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/tasksearch/internal/config"
	"github.com/Aman-CERP/tasksearch/internal/embed"
	taskerrors "github.com/Aman-CERP/tasksearch/internal/errors"
	"github.com/Aman-CERP/tasksearch/internal/store"
	"github.com/Aman-CERP/tasksearch/internal/telemetry"
)

func TestPipeline_Document(t *testing.T) {
	task := testTask(42, "Export invoices", "monthly finance export")

	tests := []struct {
		name     string
		mode     string
		op       Op
		wantText string
		wantMeta map[string]string
	}{
		{
			name:     "unified create",
			mode:     config.TextModeUnified,
			op:       OpCreate,
			wantText: "Export invoices monthly finance export",
			wantMeta: map[string]string{
				MetaTaskID: "42", MetaTitle: "Export invoices",
				MetaDescription: "monthly finance export", MetaText: "Export invoices monthly finance export",
			},
		},
		{
			name:     "unified update matches create",
			mode:     config.TextModeUnified,
			op:       OpUpdate,
			wantText: "Export invoices monthly finance export",
			wantMeta: map[string]string{
				MetaTaskID: "42", MetaTitle: "Export invoices",
				MetaDescription: "monthly finance export", MetaText: "Export invoices monthly finance export",
			},
		},
		{
			name:     "legacy create embeds description only",
			mode:     config.TextModeLegacy,
			op:       OpCreate,
			wantText: "monthly finance export",
			wantMeta: map[string]string{
				MetaTaskID: "42", MetaTitle: "Export invoices", MetaDescription: "monthly finance export",
			},
		},
		{
			name:     "legacy update stores text only",
			mode:     config.TextModeLegacy,
			op:       OpUpdate,
			wantText: "Export invoices monthly finance export",
			wantMeta: map[string]string{MetaText: "Export invoices monthly finance export"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPipeline(nil, nil, Options{TextMode: tt.mode})

			text, meta := p.Document(task, tt.op)

			assert.Equal(t, tt.wantText, text)
			assert.Equal(t, tt.wantMeta, meta)
		})
	}
}

func TestPipeline_DocumentLegacyCreateWithoutDescription(t *testing.T) {
	p := NewPipeline(nil, nil, Options{TextMode: config.TextModeLegacy})

	for _, description := range []string{"", "   "} {
		text, meta := p.Document(testTask(3, "Fix login", description), OpCreate)

		assert.Equal(t, "Fix login "+description, text)
		assert.Equal(t, map[string]string{
			MetaTaskID: "3", MetaTitle: "Fix login", MetaDescription: description,
		}, meta)
	}
}

func TestPipeline_IndexTaskLegacyCreateWithoutDescription(t *testing.T) {
	// Given: a legacy, fatal pipeline and a task with only a title
	idx := newTestIndex(t)
	p := newTestPipeline(t, idx, Options{TextMode: config.TextModeLegacy, FailurePolicy: config.PolicyFatal})
	ctx := context.Background()

	// When: indexing its creation
	err := p.IndexTask(ctx, testTask(1, "Fix login", ""), OpCreate)

	// Then: the record is written with the creation metadata
	require.NoError(t, err)
	rec, err := idx.Get(ctx, "1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "Fix login", rec.Metadata[MetaTitle])
}

func TestPipeline_IndexTaskUpsertsByTaskID(t *testing.T) {
	// Given: a pipeline over an empty index
	idx := newTestIndex(t)
	p := newTestPipeline(t, idx, Options{})
	ctx := context.Background()
	task := testTask(7, "Rotate TLS certificates", "renew the edge proxy certificates")

	// When: indexing the created task, then an edited version
	require.NoError(t, p.IndexTask(ctx, task, OpCreate))
	edited := *task
	edited.Description = "renew the internal mTLS certificates"
	require.NoError(t, p.IndexTask(ctx, &edited, OpUpdate))

	// Then: one record keyed "7" holds the latest snapshot
	count, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	rec, err := idx.Get(ctx, "7")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "renew the internal mTLS certificates", rec.Metadata[MetaDescription])
}

func TestPipeline_RemoveTask(t *testing.T) {
	idx := newTestIndex(t)
	p := newTestPipeline(t, idx, Options{})
	ctx := context.Background()
	require.NoError(t, p.IndexTask(ctx, testTask(3, "a", "b"), OpCreate))

	require.NoError(t, p.RemoveTask(ctx, 3))

	rec, err := idx.Get(ctx, "3")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestPipeline_FailurePolicy(t *testing.T) {
	modelErr := taskerrors.ModelError("model unavailable", nil)
	rawErr := errors.New("disk full")

	tests := []struct {
		name      string
		policy    string
		embedErr  error
		upsertErr error
		wantErr   func(error) bool
	}{
		{"best effort swallows embed failure", config.PolicyBestEffort, modelErr, nil, nil},
		{"best effort swallows upsert failure", config.PolicyBestEffort, nil, rawErr, nil},
		{"fatal returns model error", config.PolicyFatal, modelErr, nil, taskerrors.IsModel},
		{"fatal wraps raw index error", config.PolicyFatal, nil, rawErr, taskerrors.IsIndex},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Given: a pipeline whose embedder or index fails
			metrics := telemetry.NewMetrics()
			var embedder embed.Embedder = embed.NewStaticEmbedderWithDimensions(testDims)
			if tt.embedErr != nil {
				embedder = &failingEmbedder{Embedder: embedder, err: tt.embedErr}
			}
			idx := &flakyIndex{Index: newTestIndex(t), upsertErr: tt.upsertErr}
			p := NewPipeline(embedder, idx, Options{FailurePolicy: tt.policy, Metrics: metrics})

			// When: indexing
			err := p.IndexTask(context.Background(), testTask(1, "t", "d"), OpCreate)

			// Then: the policy decides whether the caller sees the failure
			if tt.wantErr == nil {
				require.NoError(t, err)
				assert.Equal(t, 1.0, metricValue(t, metrics, "tasksearch_index_failures_total"))
				return
			}
			require.Error(t, err)
			assert.True(t, tt.wantErr(err), "unexpected error: %v", err)
			assert.Zero(t, metricValue(t, metrics, "tasksearch_index_failures_total"))
		})
	}
}

func TestPipeline_RemoveTaskFatal(t *testing.T) {
	idx := &flakyIndex{Index: newTestIndex(t), deleteErr: errors.New("connection reset")}
	p := newTestPipeline(t, idx, Options{FailurePolicy: config.PolicyFatal})

	err := p.RemoveTask(context.Background(), 9)

	assert.True(t, taskerrors.IsIndex(err))
}

func TestPipeline_IndexAll(t *testing.T) {
	// Given: 70 tasks and small batches
	idx := newTestIndex(t)
	p := newTestPipeline(t, idx, Options{BatchSize: 8, Concurrency: 3})
	tasks := make([]*store.Task, 70)
	for i := range tasks {
		tasks[i] = testTask(int64(i+1), fmt.Sprintf("task %d", i+1), fmt.Sprintf("description number %d", i+1))
	}

	// When: rebuilding
	res, err := p.IndexAll(context.Background(), tasks)

	// Then: every task has a record
	require.NoError(t, err)
	assert.Equal(t, 70, res.Indexed)
	assert.Equal(t, 9, res.Batches)
	count, err := idx.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 70, count)
}

func TestPipeline_IndexAllReportsProgress(t *testing.T) {
	// Given: a pipeline with a progress callback
	var calls []int
	p := newTestPipeline(t, newTestIndex(t), Options{
		BatchSize:   4,
		Concurrency: 2,
		Progress: func(done, total int) {
			assert.Equal(t, 10, total)
			calls = append(calls, done)
		},
	})
	tasks := make([]*store.Task, 10)
	for i := range tasks {
		tasks[i] = testTask(int64(i+1), fmt.Sprintf("task %d", i+1), "")
	}

	// When: rebuilding
	_, err := p.IndexAll(context.Background(), tasks)

	// Then: one call per batch, ending at the total
	require.NoError(t, err)
	require.Len(t, calls, 3)
	assert.IsNonDecreasing(t, calls)
	assert.Equal(t, 10, calls[len(calls)-1])
}

func TestPipeline_IndexAllStopsOnError(t *testing.T) {
	embedder := &failingEmbedder{
		Embedder: embed.NewStaticEmbedderWithDimensions(testDims),
		err:      taskerrors.ModelError("model unavailable", nil),
	}
	p := NewPipeline(embedder, newTestIndex(t), Options{})

	res, err := p.IndexAll(context.Background(), []*store.Task{testTask(1, "a", "b")})

	require.Error(t, err)
	assert.True(t, taskerrors.IsModel(err))
	assert.Zero(t, res.Indexed)
}

func TestPipeline_IndexAllEmpty(t *testing.T) {
	p := newTestPipeline(t, newTestIndex(t), Options{})

	res, err := p.IndexAll(context.Background(), nil)

	require.NoError(t, err)
	assert.Zero(t, res.Indexed)
	assert.Zero(t, res.Batches)
}

func TestPipeline_Reset(t *testing.T) {
	idx := newTestIndex(t)
	p := newTestPipeline(t, idx, Options{})
	ctx := context.Background()
	_, err := p.IndexAll(ctx, []*store.Task{testTask(1, "a", "b"), testTask(2, "c", "d")})
	require.NoError(t, err)

	removed, err := p.Reset(ctx)

	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	count, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}
