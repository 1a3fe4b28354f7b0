package index

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/tasksearch/internal/embed"
	"github.com/Aman-CERP/tasksearch/internal/store"
	"github.com/Aman-CERP/tasksearch/internal/telemetry"
	"github.com/Aman-CERP/tasksearch/internal/vectorindex"
)

const testDims = 64

func newTestIndex(t *testing.T) *vectorindex.HNSWIndex {
	t.Helper()
	idx, _, err := vectorindex.OpenHNSW(vectorindex.HNSWConfig{Dimensions: testDims})
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func newTestPipeline(t *testing.T, idx vectorindex.Index, opts Options) *Pipeline {
	t.Helper()
	return NewPipeline(embed.NewStaticEmbedderWithDimensions(testDims), idx, opts)
}

func testTask(id int64, title, description string) *store.Task {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	return &store.Task{
		ID:          id,
		Title:       title,
		Description: description,
		Status:      store.StatusPending,
		Priority:    store.PriorityMedium,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// failingEmbedder wraps an Embedder and fails every call with err.
type failingEmbedder struct {
	embed.Embedder
	err   error
	calls atomic.Int32
}

func (f *failingEmbedder) Embed(context.Context, string) ([]float32, error) {
	f.calls.Add(1)
	return nil, f.err
}

func (f *failingEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) {
	f.calls.Add(1)
	return nil, f.err
}

// flakyIndex wraps an Index and fails writes while the error fields are set.
type flakyIndex struct {
	vectorindex.Index
	upsertErr error
	deleteErr error

	mu      sync.Mutex
	upserts int
}

func (f *flakyIndex) Upsert(ctx context.Context, ids []string, vectors [][]float32, metadata []map[string]string) error {
	f.mu.Lock()
	f.upserts++
	f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	return f.Index.Upsert(ctx, ids, vectors, metadata)
}

func (f *flakyIndex) Delete(ctx context.Context, ids []string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	return f.Index.Delete(ctx, ids)
}

// fakeTasks is an in-memory TaskSource.
type fakeTasks struct {
	tasks map[int64]*store.Task
}

func newFakeTasks(tasks ...*store.Task) *fakeTasks {
	f := &fakeTasks{tasks: make(map[int64]*store.Task)}
	for _, task := range tasks {
		f.tasks[task.ID] = task
	}
	return f
}

func (f *fakeTasks) IDs(context.Context) ([]int64, error) {
	ids := make([]int64, 0, len(f.tasks))
	for id := range f.tasks {
		ids = append(ids, id)
	}
	return ids, nil
}

func (f *fakeTasks) GetMany(_ context.Context, ids []int64) ([]*store.Task, error) {
	out := make([]*store.Task, 0, len(ids))
	for _, id := range ids {
		if task, ok := f.tasks[id]; ok {
			out = append(out, task)
		}
	}
	return out, nil
}

// metricValue sums the samples of a counter or gauge family.
func metricValue(t *testing.T, m *telemetry.Metrics, name string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	var total float64
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			total += sampleValue(metric)
		}
	}
	return total
}

func sampleValue(m *dto.Metric) float64 {
	switch {
	case m.GetCounter() != nil:
		return m.GetCounter().GetValue()
	case m.GetGauge() != nil:
		return m.GetGauge().GetValue()
	default:
		return 0
	}
}
