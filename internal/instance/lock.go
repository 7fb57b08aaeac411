// pattern: Imperative Shell
package instance

import (
	"fmt"
	"path/filepath"

	"github.com/gofrs/flock"
)

const lockFileName = "wsx.lock"

// Lock acquires an exclusive file lock for single-instance enforcement
// (§4.9 C10: one wsx process per user owns the terminal and the config
// writer; a second launch must fail fast instead of racing the first).
// Returns the flock handle (caller must defer Cleanup) or an error if
// another instance already holds the lock.
func Lock(dataDir string) (*flock.Flock, error) {
	lockPath := filepath.Join(dataDir, lockFileName)
	fl := flock.New(lockPath)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("another wsx instance is already running")
	}
	return fl, nil
}

// Cleanup releases the file lock.
func Cleanup(_ string, fl *flock.Flock) {
	if fl != nil {
		_ = fl.Unlock()
	}
}
