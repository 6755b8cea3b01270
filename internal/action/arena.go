// Package action implements the per-entry encrypt/decrypt pipeline: stage
// into a scratch file, build the codec chain, drain it, then atomically
// rename into place.
package action

import (
	"fmt"
	"os"
	"path/filepath"

	csyncerr "csyncgo/internal/errors"
)

// Arena is a run-wide scratch directory with one subdirectory per worker,
// so concurrent workers never collide on a staging filename.
type Arena struct {
	root string
}

// NewArena creates (and claims ownership of) a fresh scratch directory
// under base. Close removes it and everything underneath.
func NewArena(base string) (*Arena, error) {
	root, err := os.MkdirTemp(base, "csyncgo-arena-")
	if err != nil {
		return nil, csyncerr.New(csyncerr.KindOther, "new-arena", err)
	}
	return &Arena{root: root}, nil
}

// For returns the staging directory for workerIdx, creating it on first
// use. Each worker gets its own subdirectory so staging filenames never
// collide across goroutines.
func (a *Arena) For(workerIdx int) (string, error) {
	dir := filepath.Join(a.root, fmt.Sprintf("worker-%d", workerIdx))
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", csyncerr.New(csyncerr.KindOther, "arena-for", err)
	}
	return dir, nil
}

// Stage returns the staging file path for workerIdx, named after name (an
// operation label, not a real filename). The path is fixed per (workerIdx,
// name) pair: two calls with the same pair return the same file.
func (a *Arena) Stage(workerIdx int, name string) (string, error) {
	dir, err := a.For(workerIdx)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

// Close removes the entire arena tree.
func (a *Arena) Close() error {
	return os.RemoveAll(a.root)
}
