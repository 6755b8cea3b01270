package cli

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

// Reporter implements driver.ProgressReporter for terminal output: a single
// status line, overwritten in place.
type Reporter struct {
	mu        sync.Mutex
	status    string
	info      string
	quiet     bool
	cancelled atomic.Bool
	lastLine  int
}

// NewReporter creates a terminal reporter. If quiet is true, only errors are
// printed.
func NewReporter(quiet bool) *Reporter {
	return &Reporter{quiet: quiet}
}

func (r *Reporter) SetStatus(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = text
}

func (r *Reporter) SetProgress(_ float32, info string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.info = info
}

// SetCanCancel is a no-op for the terminal reporter: cancellation is always
// available via the signal handler root.go installs.
func (r *Reporter) SetCanCancel(bool) {}

func (r *Reporter) Update() {
	if r.quiet {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	line := fmt.Sprintf("\r%s | %s", r.status, r.info)
	if len(line) < r.lastLine {
		line += strings.Repeat(" ", r.lastLine-len(line))
	}
	r.lastLine = len(line)
	fmt.Fprint(os.Stderr, line)
}

func (r *Reporter) IsCancelled() bool {
	return r.cancelled.Load()
}

// Cancel marks the run as cancelled; the driver stops issuing new work
// after its current dispatch loop observes it.
func (r *Reporter) Cancel() {
	r.cancelled.Store(true)
}

// Finish prints a trailing newline to move past the progress line.
func (r *Reporter) Finish() {
	if !r.quiet {
		fmt.Fprintln(os.Stderr)
	}
}

func (r *Reporter) PrintError(format string, args ...any) {
	r.mu.Lock()
	hadLine := r.lastLine > 0
	r.mu.Unlock()
	if !r.quiet && hadLine {
		fmt.Fprintln(os.Stderr)
	}
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}

func (r *Reporter) PrintSuccess(format string, args ...any) {
	if r.quiet {
		return
	}
	fmt.Fprintf(os.Stderr, format+"\n", args...)
}
