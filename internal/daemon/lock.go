package daemon

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// RunLocked calls fn while holding an exclusive lock on lockPath. If another
// process holds the lock, fn is not called and ran is false. An empty
// lockPath calls fn without locking.
func RunLocked(lockPath string, logger *log.Logger, fn func() error) (ran bool, err error) {
	if lockPath == "" {
		return true, fn()
	}

	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return false, fmt.Errorf("failed to create lock directory: %w", err)
	}

	lock := flock.New(lockPath)
	locked, err := lock.TryLock()
	if err != nil {
		return false, fmt.Errorf("failed to acquire run lock: %w", err)
	}
	if !locked {
		if logger != nil {
			logger.Printf("WARNING: Another sync is running (lock %s held), skipping", lockPath)
		}
		return false, nil
	}
	defer func() {
		if uerr := lock.Unlock(); uerr != nil && logger != nil {
			logger.Printf("WARNING: Failed to release run lock: %v", uerr)
		}
	}()

	return true, fn()
}
