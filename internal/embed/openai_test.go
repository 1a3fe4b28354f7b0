package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	taskerrors "github.com/Aman-CERP/tasksearch/internal/errors"
)

// fakeOpenAI answers /v1/embeddings. dims returns the vector length for the
// n-th request. Entries are returned in reverse index order.
func fakeOpenAI(t *testing.T, dims func(n int32) int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			http.NotFound(w, r)
			return
		}
		n := calls.Add(1)

		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		type item struct {
			Object    string    `json:"object"`
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}
		data := make([]item, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			vec := make([]float32, dims(n))
			vec[0] = float32(i + 1)
			data = append(data, item{Object: "embedding", Embedding: vec, Index: i})
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   data,
			"model":  req.Model,
			"usage":  map[string]int{"prompt_tokens": 1, "total_tokens": 1},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestNewOpenAIEmbedder_RequiresAPIKey(t *testing.T) {
	_, err := NewOpenAIEmbedder(OpenAIConfig{})

	require.Error(t, err)
	assert.Equal(t, taskerrors.CategoryConfig, taskerrors.GetCategory(err))
}

func TestOpenAIEmbedder_EmbedBatch(t *testing.T) {
	// Given: a compatible server returning 8-dimensional vectors out of order
	srv, calls := fakeOpenAI(t, func(int32) int { return 8 })
	e, err := NewOpenAIEmbedder(OpenAIConfig{
		APIKey:    "test-key",
		BaseURL:   srv.URL + "/v1",
		BatchSize: 2,
		Retry:     fastRetry(),
	})
	require.NoError(t, err)
	assert.Equal(t, 0, e.Dimensions())

	// When: embedding three texts
	vecs, err := e.EmbedBatch(context.Background(), []string{"one", "two", "three"})

	// Then: vectors come back in input order, normalized, across two requests
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 8, e.Dimensions())
	for _, v := range vecs {
		assert.InDelta(t, 1.0, magnitude(v), 1e-6)
		assert.InDelta(t, 1.0, v[0], 1e-6)
	}
	assert.Equal(t, DefaultOpenAIModel, e.ModelName())
}

func TestOpenAIEmbedder_DimensionChangeIsModelError(t *testing.T) {
	srv, _ := fakeOpenAI(t, func(n int32) int {
		if n == 1 {
			return 8
		}
		return 16
	})
	e, err := NewOpenAIEmbedder(OpenAIConfig{APIKey: "k", BaseURL: srv.URL + "/v1", Retry: fastRetry()})
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), "first")
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), "second")
	require.Error(t, err)
	assert.True(t, taskerrors.IsModel(err))
}

func TestOpenAIEmbedder_Close(t *testing.T) {
	srv, calls := fakeOpenAI(t, func(int32) int { return 4 })
	e, err := NewOpenAIEmbedder(OpenAIConfig{APIKey: "k", BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)

	require.NoError(t, e.Close())

	assert.False(t, e.Available(context.Background()))
	_, err = e.Embed(context.Background(), "x")
	assert.True(t, taskerrors.IsModel(err))
	assert.Equal(t, int32(0), calls.Load())
}
