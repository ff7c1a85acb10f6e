package router

import (
	"fmt"
	"path/filepath"
)

// canonicalDBPath resolves raw to the absolute, symlink-resolved path
// that identifies the underlying database file, so that two requests
// naming the same file by different spellings ("d/t.db", "./d/t.db", an
// already-absolute form) are routed to the same worker instead of each
// spawning its own writer against the file.
//
// The file itself (or a directory in its path) may not exist yet, since
// a worker creates it on first open; EvalSymlinks is applied to the
// longest existing prefix of the path and the non-existent remainder is
// joined back on verbatim.
func canonicalDBPath(raw string) (string, error) {
	abs, err := filepath.Abs(raw)
	if err != nil {
		return "", fmt.Errorf("router: resolve absolute path for %q: %w", raw, err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}

	dir, file := filepath.Split(abs)
	if resolvedDir, err := filepath.EvalSymlinks(filepath.Clean(dir)); err == nil {
		return filepath.Join(resolvedDir, file), nil
	}
	return abs, nil
}
