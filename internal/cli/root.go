// Package cli wires cobra's command tree to the synchronizer core: flag
// parsing into a Config, password acquisition, SyncerSpec construction, and
// reporting.
package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	csyncerr "csyncgo/internal/errors"
)

// Version is set by main.go.
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "csyncgo",
	Short: "Encrypting, path-obfuscating directory synchronizer",
	Long: `csyncgo mirrors a source file or directory tree into an authenticated,
compressed, encrypted, path-obfuscating output directory, and reconstructs
the original tree bit-exactly from that mirror given the same passphrase.`,
	Version: Version,
}

// globalReporter receives Cancel() from the signal handler below; it is set
// by whichever of encrypt/decrypt is currently running.
var globalReporter *Reporter

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// Execute parses os.Args and runs the matched subcommand, translating any
// returned error into the process's exit code via csyncerr.ExitCode.
func Execute(version string) {
	Version = version
	rootCmd.Version = version

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		if globalReporter != nil {
			globalReporter.Cancel()
			fmt.Fprintln(os.Stderr, "\ncancelling, finishing in-flight entries...")
		} else {
			os.Exit(1)
		}
	}()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(csyncerr.ExitCode(err))
	}
}
