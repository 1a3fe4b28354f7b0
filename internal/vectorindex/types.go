// Package vectorindex stores task embeddings and answers nearest-neighbor
// queries over them.
//
// Distances are squared Euclidean over unit-length vectors: identical
// vectors are 0 apart, orthogonal vectors 2, opposite vectors 4. Both
// backends normalize incoming vectors so callers never see another scale.
package vectorindex

import (
	"context"
	"fmt"
	"math"

	taskerrors "github.com/Aman-CERP/tasksearch/internal/errors"
)

// Record is one stored embedding.
type Record struct {
	// ID is the task id in base-10 form.
	ID string

	// Vector is the unit-length embedding.
	Vector []float32

	// Metadata is a human-readable snapshot of the task; the primary store
	// remains the source of truth.
	Metadata map[string]string
}

// Hit is a single nearest-neighbor result.
type Hit struct {
	ID       string
	Distance float32
}

// Index is a keyed vector collection with one record per id.
type Index interface {
	// Upsert inserts or replaces records. metadata may be nil; otherwise it
	// must have the same length as ids.
	Upsert(ctx context.Context, ids []string, vectors [][]float32, metadata []map[string]string) error

	// Query returns at most topK hits ordered by ascending distance.
	Query(ctx context.Context, vector []float32, topK int) ([]Hit, error)

	// Delete removes records by id. Unknown ids are ignored.
	Delete(ctx context.Context, ids []string) error

	// Get returns the record for id, or nil if absent.
	Get(ctx context.Context, id string) (*Record, error)

	// IDs lists every record id.
	IDs(ctx context.Context) ([]string, error)

	// Count returns the number of records.
	Count(ctx context.Context) (int, error)

	// Close releases resources.
	Close() error
}

// Stats describes index internals for status reporting.
type Stats struct {
	Backend    string
	Records    int
	Dimensions int

	// Orphans counts lazily deleted graph nodes (HNSW only).
	Orphans int
}

// StatsProvider is implemented by indexes that can describe themselves.
type StatsProvider interface {
	Stats() Stats
}

// validateBatch checks the shape of an Upsert call.
func validateBatch(ids []string, vectors [][]float32, metadata []map[string]string, dims int) error {
	if len(ids) != len(vectors) {
		return taskerrors.IndexError(
			fmt.Sprintf("ids and vectors length mismatch: %d vs %d", len(ids), len(vectors)), nil)
	}
	if metadata != nil && len(metadata) != len(ids) {
		return taskerrors.IndexError(
			fmt.Sprintf("ids and metadata length mismatch: %d vs %d", len(ids), len(metadata)), nil)
	}
	for i, id := range ids {
		if id == "" {
			return taskerrors.IndexError(fmt.Sprintf("record %d has an empty id", i), nil)
		}
	}
	for _, v := range vectors {
		if err := checkDims(v, dims); err != nil {
			return err
		}
	}
	return nil
}

func checkDims(v []float32, dims int) error {
	if len(v) != dims {
		return taskerrors.IndexError(
			fmt.Sprintf("dimension mismatch: expected %d, got %d", dims, len(v)), nil).
			WithDetail("expected", fmt.Sprint(dims)).
			WithDetail("got", fmt.Sprint(len(v)))
	}
	return nil
}

// normalized returns a unit-length copy of v.
func normalized(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)

	var sumSquares float64
	for _, x := range out {
		sumSquares += float64(x) * float64(x)
	}
	if sumSquares == 0 {
		return out
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range out {
		out[i] *= inv
	}
	return out
}

func metadataAt(metadata []map[string]string, i int) map[string]string {
	if metadata == nil {
		return nil
	}
	return metadata[i]
}
