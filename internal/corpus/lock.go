package corpus

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
)

// LockFileName is the lock file created in the data directory.
const LockFileName = "serve.lock"

// Lock is a cross-process lock that keeps one server per data directory.
type Lock struct {
	path  string
	flock *flock.Flock
}

// NewLock creates a lock in dir. Nothing is acquired yet.
func NewLock(dir string) *Lock {
	path := filepath.Join(dir, LockFileName)
	return &Lock{path: path, flock: flock.New(path)}
}

// TryLock acquires the lock without blocking. A lock held by another
// process is reported as ERR_204_LOCK_HELD.
func (l *Lock) TryLock() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}
	ok, err := l.flock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !ok {
		return amerrors.New(amerrors.ErrCodeLockHeld, "another amanrag server holds "+l.path, nil).
			WithSuggestion("Stop the other server or use a different data directory")
	}
	return nil
}

// Unlock releases the lock. Safe on an unlocked Lock.
func (l *Lock) Unlock() error {
	if !l.flock.Locked() {
		return nil
	}
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.path
}
