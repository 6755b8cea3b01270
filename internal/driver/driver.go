package driver

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"csyncgo/internal/action"
	csyncerr "csyncgo/internal/errors"
	"csyncgo/internal/log"
	"csyncgo/internal/metaspec"
	"csyncgo/internal/pathmap"
	"csyncgo/internal/secret"
)

// ProgressReporter is the UI-agnostic callback surface the driver drives
// during a run, implemented by internal/cli for the terminal and safely nil
// for headless/library callers.
type ProgressReporter interface {
	SetStatus(text string)
	SetProgress(fraction float32, info string)
	SetCanCancel(can bool)
	Update()
	IsCancelled() bool
}

// Summary aggregates what one run actually did, for the CLI's closing
// report.
type Summary struct {
	Count     int64
	SrcBytes  int64
	DestBytes int64
	Skipped   int64
}

// RunConfig bundles the inputs a run's worker pool needs that are not
// already carried on the SyncerSpec itself.
type RunConfig struct {
	Syncer      *metaspec.SyncerSpec
	DerivedKey  secret.DerivedKey
	Parallelism int              // 0 means runtime.GOMAXPROCS(0)
	Reporter    ProgressReporter // nil is legal; Update/IsCancelled are skipped
	Logger      log.Logger       // nil is legal; log.GetLogger() supplies the default
}

func (c RunConfig) parallelism() int {
	if c.Parallelism > 0 {
		return c.Parallelism
	}
	return runtime.GOMAXPROCS(0)
}

func (c RunConfig) logger() log.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return log.GetLogger()
}

type progressMsg struct {
	srcBytes, destBytes int64
	skipped             bool
}

// reporterChanBuf bounds the reporter channel. Every progress message is
// also folded into the returned Summary, so sends below block rather than
// drop; the buffer keeps workers from waiting on each status-line update.
const reporterChanBuf = 256

// runReporter drains progress messages from in on its own goroutine,
// folding them into totals and forwarding a status update to cfg.Reporter
// after every entry. This goroutine is the channel's sole consumer, so a
// reasonably sized buffer keeps producers from stalling on it.
func runReporter(cfg RunConfig, in <-chan progressMsg, done chan<- Summary) {
	var sum Summary
	for msg := range in {
		if msg.skipped {
			sum.Skipped++
			continue
		}
		sum.Count++
		sum.SrcBytes += msg.srcBytes
		sum.DestBytes += msg.destBytes
		if cfg.Reporter != nil {
			cfg.Reporter.SetProgress(0, fmt.Sprintf("%d entries processed", sum.Count))
			cfg.Reporter.Update()
		}
	}
	done <- sum
}

func sendProgress(ch chan<- progressMsg, msg progressMsg) {
	ch <- msg
}

// newArena creates a run-wide scratch directory under the system temp root
// and wraps it as an action.Arena, returning a cleanup func that removes
// both the arena and its parent scratch directory.
func newArena() (*action.Arena, func(), error) {
	base, err := os.MkdirTemp("", "csyncgo-run-")
	if err != nil {
		return nil, nil, csyncerr.New(csyncerr.KindOther, "driver-new-arena", err)
	}
	arena, err := action.NewArena(base)
	if err != nil {
		os.RemoveAll(base)
		return nil, nil, err
	}
	cleanup := func() {
		arena.Close()
		os.RemoveAll(base)
	}
	return arena, cleanup, nil
}

// isFresh stats dest (if it exists) and applies action.Freshness: strict
// mtime comparison, no ciphertext means always fresh.
func isFresh(dest string, srcMtime time.Time) (bool, error) {
	info, err := os.Stat(dest)
	if os.IsNotExist(err) {
		return action.Freshness(srcMtime, time.Time{}, false), nil
	}
	if err != nil {
		return false, csyncerr.New(csyncerr.KindOther, "driver-stat-dest", err)
	}
	return action.Freshness(srcMtime, info.ModTime(), true), nil
}

// Encrypt walks cfg.Syncer.Source (root included), applies the freshness
// filter to each entry, and runs action.EncryptOne across a bounded worker
// pool for every entry that passes.
func Encrypt(ctx context.Context, cfg RunConfig) (Summary, error) {
	logger := cfg.logger()
	if cfg.Reporter != nil {
		cfg.Reporter.SetStatus("encrypting")
		cfg.Reporter.SetCanCancel(true)
	}

	arena, cleanup, err := newArena()
	if err != nil {
		return Summary{}, err
	}
	defer cleanup()

	entries, walkErrc := Walk(ctx, cfg.Syncer.Source)

	progressCh := make(chan progressMsg, reporterChanBuf)
	summaryCh := make(chan Summary, 1)
	go runReporter(cfg, progressCh, summaryCh)

	grp, grpCtx := errgroup.WithContext(ctx)
	grp.SetLimit(cfg.parallelism())

	workerIdx := 0
	for entry := range entries {
		if grpCtx.Err() != nil || (cfg.Reporter != nil && cfg.Reporter.IsCancelled()) {
			go func() {
				for range entries {
				}
			}()
			break
		}
		entry := entry
		idx := workerIdx
		workerIdx++

		grp.Go(func() error {
			dest, err := pathmap.Forward(cfg.Syncer, cfg.DerivedKey, cfg.Syncer.Source, entry.AbsPath, entry.Kind)
			if err != nil {
				return err
			}

			fresh, err := isFresh(dest, entry.ModTime)
			if err != nil {
				return err
			}
			if !fresh {
				logger.Debug("skip-stale", log.String("src", entry.AbsPath), log.String("dest", dest))
				sendProgress(progressCh, progressMsg{skipped: true})
				return nil
			}

			logger.Debug("encrypt-entry", log.String("src", entry.AbsPath), log.String("dest", dest))
			result, err := action.EncryptOne(grpCtx, arena, idx, action.Action{
				Src: entry.AbsPath, Dest: dest, Kind: entry.Kind,
			}, cfg.Syncer, cfg.DerivedKey)
			if err != nil {
				logger.Error("encrypt-entry-failed", log.String("src", entry.AbsPath), log.Err(err))
				return err
			}
			sendProgress(progressCh, progressMsg{srcBytes: result.SrcBytes, destBytes: result.DestBytes})
			return nil
		})
	}

	runErr := grp.Wait()
	close(progressCh)
	summary := <-summaryCh

	if runErr == nil {
		if walkErr := <-walkErrc; walkErr != nil {
			runErr = walkErr
		}
	}

	if cfg.Reporter != nil {
		cfg.Reporter.Update()
	}
	return summary, runErr
}

// Decrypt walks cfg.Syncer.OutDir for ".csync" files and runs
// action.DecryptOne across a bounded worker pool for each, reconstructing
// the tree under cfg.Syncer.Source (the decrypt destination). Deletion
// detection falls out of driving the walk from what is actually present on
// disk, not from a remembered manifest.
func Decrypt(ctx context.Context, cfg RunConfig) (Summary, error) {
	logger := cfg.logger()
	if cfg.Reporter != nil {
		cfg.Reporter.SetStatus("decrypting")
		cfg.Reporter.SetCanCancel(true)
	}

	arena, cleanup, err := newArena()
	if err != nil {
		return Summary{}, err
	}
	defer cleanup()

	paths, walkErrc := WalkCsyncFiles(ctx, cfg.Syncer.OutDir)

	progressCh := make(chan progressMsg, reporterChanBuf)
	summaryCh := make(chan Summary, 1)
	go runReporter(cfg, progressCh, summaryCh)

	grp, grpCtx := errgroup.WithContext(ctx)
	grp.SetLimit(cfg.parallelism())

	workerIdx := 0
	for cipherPath := range paths {
		if grpCtx.Err() != nil || (cfg.Reporter != nil && cfg.Reporter.IsCancelled()) {
			go func() {
				for range paths {
				}
			}()
			break
		}
		cipherPath := cipherPath
		idx := workerIdx
		workerIdx++

		grp.Go(func() error {
			rel, kind, err := pathmap.Inverse(cfg.Syncer, cfg.DerivedKey, cfg.Syncer.OutDir, cipherPath)
			if err != nil {
				return err
			}
			dest := filepath.Join(cfg.Syncer.Source, rel)

			logger.Debug("decrypt-entry", log.String("src", cipherPath), log.String("dest", dest))
			result, err := action.DecryptOne(grpCtx, arena, idx, action.Action{
				Src: cipherPath, Dest: dest, Kind: kind,
			}, cfg.Syncer, cfg.DerivedKey)
			if err != nil {
				logger.Error("decrypt-entry-failed", log.String("src", cipherPath), log.Err(err))
				return err
			}
			sendProgress(progressCh, progressMsg{srcBytes: result.SrcBytes, destBytes: result.DestBytes})
			return nil
		})
	}

	runErr := grp.Wait()
	close(progressCh)
	summary := <-summaryCh

	if runErr == nil {
		if walkErr := <-walkErrc; walkErr != nil {
			runErr = walkErr
		}
	}

	if cfg.Reporter != nil {
		cfg.Reporter.Update()
	}
	return summary, runErr
}
