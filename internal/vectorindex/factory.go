package vectorindex

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	taskerrors "github.com/Aman-CERP/tasksearch/internal/errors"
)

// Backend names.
const (
	BackendHNSW   = "hnsw"
	BackendQdrant = "qdrant"
)

// Config selects and configures a backend.
type Config struct {
	Backend    string
	Dir        string
	Collection string
	QdrantAddr string
	M          int
	EfSearch   int

	// LockTimeout bounds the wait for the cross-process collection lock.
	LockTimeout time.Duration
}

// DefaultLockTimeout is used when Config.LockTimeout is zero.
const DefaultLockTimeout = 10 * time.Second

// Open returns a Lazy handle for the configured backend. Nothing is opened
// or created until the first call on the handle.
func Open(cfg Config, dims int) (*Lazy, error) {
	open, err := NewOpener(cfg, dims)
	if err != nil {
		return nil, err
	}
	return NewLazy(open), nil
}

// NewOpener validates cfg and returns the backend's Opener, for callers
// that wrap it before handing it to NewLazy.
func NewOpener(cfg Config, dims int) (Opener, error) {
	if cfg.Collection == "" {
		return nil, taskerrors.ConfigError("vector_index.collection must not be empty", nil)
	}

	switch strings.ToLower(cfg.Backend) {
	case BackendHNSW, "":
		if cfg.Dir == "" {
			return nil, taskerrors.ConfigError("vector_index.dir must be set for the hnsw backend", nil)
		}
		return HNSWOpener(cfg, dims), nil
	case BackendQdrant:
		return QdrantOpener(cfg, dims), nil
	default:
		return nil, taskerrors.ConfigError(fmt.Sprintf("unknown vector index backend %q", cfg.Backend), nil).
			WithSuggestion("use hnsw or qdrant")
	}
}

// HNSWPath returns the graph file for cfg.
func HNSWPath(cfg Config) string {
	return filepath.Join(cfg.Dir, cfg.Collection+".hnsw")
}

// HNSWOpener opens or creates the on-disk collection while holding the
// collection's file lock, so two processes never both create it.
func HNSWOpener(cfg Config, dims int) Opener {
	return func(ctx context.Context) (Index, error) {
		timeout := cfg.LockTimeout
		if timeout <= 0 {
			timeout = DefaultLockTimeout
		}
		lockCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		lock := NewFileLock(cfg.Dir, cfg.Collection)
		if err := lock.Lock(lockCtx, DefaultLockRetryDelay); err != nil {
			return nil, err
		}
		defer func() {
			if err := lock.Unlock(); err != nil {
				slog.Warn("vector_index_unlock_failed", slog.String("error", err.Error()))
			}
		}()

		idx, created, err := OpenHNSW(HNSWConfig{
			Path:       HNSWPath(cfg),
			Dimensions: dims,
			M:          cfg.M,
			EfSearch:   cfg.EfSearch,
		})
		if err != nil {
			return nil, err
		}
		slog.Debug("vector_index_opened",
			slog.String("backend", BackendHNSW),
			slog.String("collection", cfg.Collection),
			slog.Bool("created", created))
		return idx, nil
	}
}

// QdrantOpener connects to Qdrant and ensures the collection.
func QdrantOpener(cfg Config, dims int) Opener {
	return func(ctx context.Context) (Index, error) {
		return NewQdrantIndex(ctx, QdrantConfig{
			Addr:       cfg.QdrantAddr,
			Collection: cfg.Collection,
			Dimensions: dims,
		})
	}
}
