package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"csyncgo/internal/driver"
	"csyncgo/internal/log"
	"csyncgo/internal/secret"
)

func init() {
	decryptCmd.SilenceErrors = true
	decryptCmd.SilenceUsage = true
}

var decryptCmd = &cobra.Command{
	Use:   "decrypt <out_dir> <dest>",
	Short: "Reconstruct the original tree from an encrypted mirror",
	Long: `Decrypt reconstructs the original source tree, bit-exactly (content and
Unix permission bits), from a csyncgo-encrypted mirror at out_dir into dest.
dest must not already exist or must be empty.

Examples:
  csyncgo decrypt ./photos.csync ./photos-restored
  echo "hunter2" | csyncgo decrypt ./photos.csync ./photos-restored --password-stdin`,
	Args: cobra.ExactArgs(2),
	RunE: runDecrypt,
}

var (
	decVerbose       bool
	decParallelism   int
	decPassword      string
	decPasswordStdin bool
	decQuiet         bool
)

func init() {
	rootCmd.AddCommand(decryptCmd)

	decryptCmd.Flags().BoolVarP(&decVerbose, "verbose", "v", false, "enable debug logging")
	decryptCmd.Flags().IntVar(&decParallelism, "parallelism", 0, "worker pool size (default: available parallelism)")
	decryptCmd.Flags().StringVarP(&decPassword, "password", "p", "", "passphrase (prefer --password-stdin; this is visible in shell history)")
	decryptCmd.Flags().BoolVarP(&decPasswordStdin, "password-stdin", "P", false, "read passphrase from stdin")
	decryptCmd.Flags().BoolVarP(&decQuiet, "quiet", "q", false, "suppress progress output")
}

func runDecrypt(cmd *cobra.Command, args []string) error {
	outDir, dest := args[0], args[1]

	cfg := Config{Source: dest, OutDir: outDir, Verbose: decVerbose}

	password, err := resolvePassword(decPassword, decPasswordStdin, false)
	if err != nil {
		return err
	}
	initial := secret.NewInitialKey([]byte(password))
	defer initial.Close()

	if decVerbose {
		log.EnableDebugLogging()
	}

	syncerSpec, derivedKey, err := cfg.BuildDecryptSpec(initial)
	if err != nil {
		return err
	}
	defer derivedKey.Close()

	reporter := NewReporter(decQuiet)
	globalReporter = reporter
	defer func() { globalReporter = nil }()

	if !decQuiet {
		fmt.Printf("decrypting %s -> %s\n", outDir, dest)
	}

	summary, err := driver.Decrypt(context.Background(), driver.RunConfig{
		Syncer: syncerSpec, DerivedKey: derivedKey, Parallelism: decParallelism, Reporter: reporter,
	})
	reporter.Finish()
	if err != nil {
		reporter.PrintError("%v", err)
		return err
	}

	reporter.PrintSuccess("decrypted %d entries, %d bytes -> %d bytes", summary.Count, summary.SrcBytes, summary.DestBytes)
	return nil
}
