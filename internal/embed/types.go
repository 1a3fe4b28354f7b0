// Package embed turns task text into fixed-length vectors.
//
// Every Embedder is deterministic for a given model: the same text always
// yields the same vector. Failures surface as ModelError values; an embedder
// never substitutes a zero vector for text it could not embed.
package embed

import (
	"context"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	taskerrors "github.com/Aman-CERP/tasksearch/internal/errors"
)

const (
	// DefaultBatchSize is the default batch size for remote embedding requests.
	DefaultBatchSize = 32

	// DefaultTimeout is the default per-request timeout for remote providers.
	DefaultTimeout = 30 * time.Second

	// StaticDimensions matches the all-MiniLM-L6-v2 family so that indexes built
	// offline and with Ollama share a dimensionality.
	StaticDimensions = 384
)

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed generates embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension.
	Dimensions() int

	// ModelName returns the model identifier.
	ModelName() string

	// Available checks if the embedder is ready.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}

// ErrEmptyText is the cause attached to ModelErrors for blank input.
var ErrEmptyText = errors.New("text is empty")

// checkText rejects blank input before it reaches a model.
func checkText(text string) error {
	if strings.TrimSpace(text) == "" {
		return taskerrors.ModelError("cannot embed empty text", ErrEmptyText)
	}
	return nil
}

// checkDimensions validates that every vector has the expected length.
func checkDimensions(vectors [][]float32, want int) error {
	for _, v := range vectors {
		if len(v) != want {
			return taskerrors.ModelError("embedding has unexpected dimensions", nil).
				WithDetail("expected", strconv.Itoa(want)).
				WithDetail("got", strconv.Itoa(len(v)))
		}
	}
	return nil
}

// normalizeVector scales v to unit length in place and returns it.
// A zero vector is returned unchanged.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return v
	}
	inv := float32(1 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
	return v
}
