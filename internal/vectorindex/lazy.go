package vectorindex

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	taskerrors "github.com/Aman-CERP/tasksearch/internal/errors"
)

// Opener creates the underlying index on first use.
type Opener func(ctx context.Context) (Index, error)

// Lazy is an Index whose backend is opened on first use.
//
// Concurrent first callers share one Opener invocation. A failed open is
// returned to everyone who waited on it and is not remembered: the next
// call tries again.
type Lazy struct {
	open Opener

	ready atomic.Bool
	mu    sync.Mutex
	idx   Index
	group singleflight.Group

	closed bool
}

var (
	_ Index         = (*Lazy)(nil)
	_ StatsProvider = (*Lazy)(nil)
)

// NewLazy wraps open in a Lazy handle.
func NewLazy(open Opener) *Lazy {
	return &Lazy{open: open}
}

// Ready reports whether the backend has been opened.
func (l *Lazy) Ready() bool {
	return l.ready.Load()
}

// Index returns the opened backend, opening it if needed.
func (l *Lazy) Index(ctx context.Context) (Index, error) {
	if l.ready.Load() {
		l.mu.Lock()
		idx := l.idx
		l.mu.Unlock()
		if idx != nil {
			return idx, nil
		}
	}

	// The open outlives any single caller; each caller stops waiting on its own ctx.
	ch := l.group.DoChan("open", func() (any, error) {
		return l.openOnce(context.WithoutCancel(ctx))
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(Index), nil
	}
}

// openOnce runs under the singleflight group, so only the publish step
// needs mu. Stats and Close stay responsive during a slow open.
func (l *Lazy) openOnce(ctx context.Context) (Index, error) {
	l.mu.Lock()
	closed, idx := l.closed, l.idx
	l.mu.Unlock()

	if closed {
		return nil, errLazyClosed()
	}
	if idx != nil {
		return idx, nil
	}

	idx, err := l.open(ctx)
	if err != nil {
		return nil, taskerrors.New(taskerrors.ErrCodeIndexInitFailed, "failed to initialize vector index", err).
			WithSuggestion("check vector_index settings; the next request will retry")
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		// Closed while opening.
		_ = idx.Close()
		return nil, errLazyClosed()
	}
	l.idx = idx
	l.ready.Store(true)
	return idx, nil
}

func errLazyClosed() error {
	return taskerrors.IndexError("vector index is closed", nil)
}

// Upsert opens the backend if needed and delegates.
func (l *Lazy) Upsert(ctx context.Context, ids []string, vectors [][]float32, metadata []map[string]string) error {
	idx, err := l.Index(ctx)
	if err != nil {
		return err
	}
	return idx.Upsert(ctx, ids, vectors, metadata)
}

// Query opens the backend if needed and delegates.
func (l *Lazy) Query(ctx context.Context, vector []float32, topK int) ([]Hit, error) {
	idx, err := l.Index(ctx)
	if err != nil {
		return nil, err
	}
	return idx.Query(ctx, vector, topK)
}

// Delete opens the backend if needed and delegates.
func (l *Lazy) Delete(ctx context.Context, ids []string) error {
	idx, err := l.Index(ctx)
	if err != nil {
		return err
	}
	return idx.Delete(ctx, ids)
}

// Get opens the backend if needed and delegates.
func (l *Lazy) Get(ctx context.Context, id string) (*Record, error) {
	idx, err := l.Index(ctx)
	if err != nil {
		return nil, err
	}
	return idx.Get(ctx, id)
}

// IDs opens the backend if needed and delegates.
func (l *Lazy) IDs(ctx context.Context) ([]string, error) {
	idx, err := l.Index(ctx)
	if err != nil {
		return nil, err
	}
	return idx.IDs(ctx)
}

// Count opens the backend if needed and delegates.
func (l *Lazy) Count(ctx context.Context) (int, error) {
	idx, err := l.Index(ctx)
	if err != nil {
		return 0, err
	}
	return idx.Count(ctx)
}

// Stats describes the backend without opening it.
func (l *Lazy) Stats() Stats {
	l.mu.Lock()
	idx := l.idx
	l.mu.Unlock()

	if sp, ok := idx.(StatsProvider); ok {
		return sp.Stats()
	}
	return Stats{}
}

// Close closes the backend if it was opened. Later calls fail.
func (l *Lazy) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	l.ready.Store(false)

	if l.idx == nil {
		return nil
	}
	err := l.idx.Close()
	l.idx = nil
	return err
}
