// Package lock provides the single-flight guard that keeps one reindex per
// alias running at a time, within a process and across processes.
package lock

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/gofrs/flock"

	serrors "github.com/Aman-CERP/searchsync/internal/errors"
)

// FileLock is a cross-process lock backed by gofrs/flock.
type FileLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// NewFileLock creates a lock at <dir>/<name>.lock.
func NewFileLock(dir, name string) *FileLock {
	lockPath := filepath.Join(dir, name+".lock")
	return &FileLock{
		path:  lockPath,
		flock: flock.New(lockPath),
	}
}

// TryLock attempts to acquire the lock without blocking.
// Returns false if another process holds it.
func (l *FileLock) TryLock() (bool, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return false, fmt.Errorf("failed to create lock directory: %w", err)
	}

	acquired, err := l.flock.TryLock()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if acquired {
		l.locked = true
	}
	return acquired, nil
}

// Unlock releases the lock. Safe to call on an unlocked FileLock.
func (l *FileLock) Unlock() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

// Path returns the path to the lock file.
func (l *FileLock) Path() string {
	return l.path
}

// IsLocked returns true if the lock is currently held.
func (l *FileLock) IsLocked() bool {
	return l.locked
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// Guard grants at most one holder per key.
// With an empty dir the guard only covers the current process.
type Guard struct {
	mu   sync.Mutex
	dir  string
	held map[string]*FileLock
}

// NewGuard creates a guard whose lock files live in dir.
func NewGuard(dir string) *Guard {
	return &Guard{dir: dir, held: make(map[string]*FileLock)}
}

// Acquire claims key. It fails fast with errors.ErrReindexInProgress when
// the key is already held here or by another process.
func (g *Guard) Acquire(key string) (release func(), err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, busy := g.held[key]; busy {
		return nil, inProgress(key)
	}

	var fl *FileLock
	if g.dir != "" {
		fl = NewFileLock(g.dir, "reindex-"+unsafeChars.ReplaceAllString(key, "_"))
		ok, err := fl.TryLock()
		if err != nil {
			return nil, serrors.New(serrors.ErrCodeLockFailed, "failed to lock "+key, err)
		}
		if !ok {
			return nil, inProgress(key).WithDetail("lock_file", fl.Path())
		}
	}
	g.held[key] = fl

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			defer g.mu.Unlock()
			delete(g.held, key)
			if fl != nil {
				_ = fl.Unlock()
			}
		})
	}, nil
}

// Held reports whether key is held by this process.
func (g *Guard) Held(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.held[key]
	return ok
}

func inProgress(key string) *serrors.SyncError {
	return serrors.New(serrors.ErrCodeReindexInProgress, "reindex of "+key+" already in progress", nil)
}
