// Package driver implements the parallel directory traversal that applies
// the action engine across every source entry: a streaming walker, a
// bounded worker pool, per-run aggregation, and a reporter callback.
package driver

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	csyncerr "csyncgo/internal/errors"
	"csyncgo/internal/pathmap"
)

// Entry is one walked filesystem node: the source root itself, or any of
// its descendants, file or directory. The root is always its own entry.
type Entry struct {
	AbsPath string
	Kind    pathmap.EntryKind
	ModTime time.Time
}

// walkChanBuf bounds how many entries the walker can produce ahead of the
// pool draining them, keeping the walker from materializing the full tree
// while still letting I/O overlap with dispatch.
const walkChanBuf = 64

// Walk streams every entry under root (root included) into the returned
// channel, following symlinks (os.Stat instead of os.Lstat at each node,
// so a symlink is walked as whatever it points to rather than preserved as
// a link).
// The entry channel is closed when the walk completes; at most one error is
// ever sent on the error channel, after which the entry channel is closed
// with no further sends.
func Walk(ctx context.Context, root string) (<-chan Entry, <-chan error) {
	entries := make(chan Entry, walkChanBuf)
	errc := make(chan error, 1)

	go func() {
		defer close(entries)
		defer close(errc)

		rootInfo, err := os.Stat(root)
		if err != nil {
			errc <- csyncerr.New(csyncerr.KindSourceDoesNotExist, "walk", err)
			return
		}
		if err := walkNode(ctx, root, rootInfo, entries); err != nil {
			errc <- err
		}
	}()

	return entries, errc
}

func walkNode(ctx context.Context, path string, info fs.FileInfo, out chan<- Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	kind := pathmap.KindFile
	if info.IsDir() {
		kind = pathmap.KindDir
	}

	select {
	case out <- Entry{AbsPath: path, Kind: kind, ModTime: info.ModTime()}:
	case <-ctx.Done():
		return ctx.Err()
	}

	if kind != pathmap.KindDir {
		return nil
	}

	children, err := os.ReadDir(path)
	if err != nil {
		return csyncerr.New(csyncerr.KindOther, "walk-readdir", err)
	}
	names := make([]string, 0, len(children))
	for _, c := range children {
		names = append(names, c.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		childPath := filepath.Join(path, name)
		childInfo, err := os.Stat(childPath) // os.Stat, not Lstat: follows symlinks
		if err != nil {
			return csyncerr.New(csyncerr.KindOther, "walk-stat", err)
		}
		if err := walkNode(ctx, childPath, childInfo, out); err != nil {
			return err
		}
	}
	return nil
}

// WalkCsyncFiles streams the path of every ".csync" file under outDir, in
// the order filepath.WalkDir visits them. Used by the decrypt driver, which
// iterates ciphertext files directly rather than a plaintext source tree.
func WalkCsyncFiles(ctx context.Context, outDir string) (<-chan string, <-chan error) {
	paths := make(chan string, walkChanBuf)
	errc := make(chan error, 1)

	go func() {
		defer close(paths)
		defer close(errc)

		err := filepath.WalkDir(outDir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return csyncerr.New(csyncerr.KindOther, "walk-csync-files", err)
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if d.IsDir() || filepath.Ext(path) != ".csync" {
				return nil
			}
			select {
			case paths <- path:
			case <-ctx.Done():
				return ctx.Err()
			}
			return nil
		})
		if err != nil {
			errc <- err
		}
	}()

	return paths, errc
}
