package vectorindex

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// DefaultLockRetryDelay is how often a blocked Lock polls the lock file.
const DefaultLockRetryDelay = 50 * time.Millisecond

// FileLock is a cross-process exclusive lock on <dir>/<name>.lock.
// It serializes check-then-create of an on-disk collection between
// processes sharing a vector directory.
type FileLock struct {
	path  string
	flock *flock.Flock
}

// NewFileLock creates a lock for the named collection in dir.
func NewFileLock(dir, name string) *FileLock {
	path := filepath.Join(dir, name+".lock")
	return &FileLock{path: path, flock: flock.New(path)}
}

// Lock blocks until the lock is held or ctx is done.
func (l *FileLock) Lock(ctx context.Context, retryDelay time.Duration) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}
	if retryDelay <= 0 {
		retryDelay = DefaultLockRetryDelay
	}

	locked, err := l.flock.TryLockContext(ctx, retryDelay)
	if err != nil {
		return fmt.Errorf("acquire %s: %w", l.path, err)
	}
	if !locked {
		return fmt.Errorf("acquire %s: lock not obtained", l.path)
	}
	return nil
}

// Unlock releases the lock. Unlocking an unheld lock is a no-op.
func (l *FileLock) Unlock() error {
	if !l.flock.Locked() {
		return nil
	}
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("release %s: %w", l.path, err)
	}
	return nil
}

// Path returns the lock file path.
func (l *FileLock) Path() string {
	return l.path
}
