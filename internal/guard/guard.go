// Package guard enforces that at most one daemon instance is active
// against a given data directory at a time, using an advisory flock on a
// PID file rather than trusting a stale PID left behind by a crashed
// process.
package guard

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gofrs/flock"

	"github.com/vkolb/waldb/internal/protocol"
)

// PIDFileName is the fixed name of the lock/PID file inside a data
// directory.
const PIDFileName = ".waldb.pid"

// Guard holds the single-instance lock for as long as the daemon runs.
// Release drops both the flock and (best-effort) the PID file.
type Guard struct {
	path string
	fl   *flock.Flock
}

// Acquire takes a non-blocking exclusive lock on dataDir's PID file. It
// returns an error immediately, without waiting, if another process
// already holds it; callers surface this as AlreadyRunning.
func Acquire(dataDir string) (*Guard, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("guard: create data dir: %w", err)
	}

	path := filepath.Join(dataDir, PIDFileName)
	fl := flock.New(path)

	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("guard: try lock %s: %w", path, err)
	}
	if !locked {
		return nil, protocol.NewCodedError(protocol.CodeAlreadyRunning,
			fmt.Errorf("guard: AlreadyRunning: another daemon already holds %s", path))
	}

	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		_ = fl.Unlock()
		return nil, fmt.Errorf("guard: write pid file: %w", err)
	}

	return &Guard{path: path, fl: fl}, nil
}

// Release drops the lock and removes the PID file. Safe to call once the
// daemon is shutting down; it does not error if the file is already gone.
func (g *Guard) Release() error {
	err := g.fl.Unlock()
	if rmErr := os.Remove(g.path); rmErr != nil && !os.IsNotExist(rmErr) {
		if err == nil {
			err = rmErr
		}
	}
	return err
}
