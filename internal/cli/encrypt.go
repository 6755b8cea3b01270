package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"csyncgo/internal/driver"
	"csyncgo/internal/log"
	"csyncgo/internal/secret"
)

func init() {
	encryptCmd.SilenceErrors = true
	encryptCmd.SilenceUsage = true
}

var encryptCmd = &cobra.Command{
	Use:   "encrypt <source> <out_dir>",
	Short: "Encrypt source into an authenticated, obfuscated mirror at out_dir",
	Long: `Encrypt mirrors source (a file or directory tree) into out_dir as an
authenticated, compressed, encrypted, path-obfuscating copy. Re-running
against the same out_dir performs an incremental update: only entries newer
than their ciphertext counterpart are re-encrypted.

Examples:
  csyncgo encrypt ./photos ./photos.csync
  csyncgo encrypt ./photos ./photos.csync --cipher chacha20 --spread-depth 16
  echo "hunter2" | csyncgo encrypt ./photos ./photos.csync --password-stdin`,
	Args: cobra.ExactArgs(2),
	RunE: runEncrypt,
}

var (
	encVerbose         bool
	encSpreadDepth     int
	encSaltLen         int
	encCipher          string
	encZstdLevel       int
	encKeyDerivAlg     string
	encKeyDerivTime    time.Duration
	encPbkdf2Alg       string
	encPbkdf2NumIter   int
	encScryptLogN      int
	encScryptR         int
	encScryptP         int
	encScryptOutputLen int
	encParallelism     int
	encPassword        string
	encPasswordStdin   bool
	encQuiet           bool
)

func init() {
	rootCmd.AddCommand(encryptCmd)

	encryptCmd.Flags().BoolVarP(&encVerbose, "verbose", "v", false, "enable debug logging")
	encryptCmd.Flags().IntVar(&encSpreadDepth, "spread-depth", 0, "ciphertext directory fan-out depth, 1..86 (default 8)")
	encryptCmd.Flags().IntVar(&encSaltLen, "salt-len", 0, "init_salt/IV length in bytes (default 64)")
	encryptCmd.Flags().StringVar(&encCipher, "cipher", "aes256cbc", "body cipher: aes256cbc or chacha20")
	encryptCmd.Flags().IntVar(&encZstdLevel, "zstd-level", 0, "zstd compression level, 0..22 (default 3)")

	encryptCmd.Flags().StringVar(&encKeyDerivAlg, "key-deriv-alg", "scrypt", "key derivation function: scrypt or pbkdf2")
	encryptCmd.Flags().DurationVar(&encKeyDerivTime, "key-deriv-time", 0, "calibrate KDF parameters to take about this long")
	encryptCmd.Flags().StringVar(&encPbkdf2Alg, "pbkdf2-alg", "hmac-sha512", "PBKDF2 HMAC hash: hmac-sha256 or hmac-sha512")
	encryptCmd.Flags().IntVar(&encPbkdf2NumIter, "pbkdf2-num-iter", 0, "PBKDF2 iteration count")
	encryptCmd.Flags().IntVar(&encScryptLogN, "scrypt-log-n", 0, "scrypt log2(N) cost parameter")
	encryptCmd.Flags().IntVar(&encScryptR, "scrypt-r", 0, "scrypt r (block size) parameter")
	encryptCmd.Flags().IntVar(&encScryptP, "scrypt-p", 0, "scrypt p (parallelization) parameter")
	encryptCmd.Flags().IntVar(&encScryptOutputLen, "scrypt-output-len", 0, "derived key length in bytes (default 64)")

	encryptCmd.Flags().IntVar(&encParallelism, "parallelism", 0, "worker pool size (default: available parallelism)")
	encryptCmd.Flags().StringVarP(&encPassword, "password", "p", "", "passphrase (prefer --password-stdin; this is visible in shell history)")
	encryptCmd.Flags().BoolVarP(&encPasswordStdin, "password-stdin", "P", false, "read passphrase from stdin")
	encryptCmd.Flags().BoolVarP(&encQuiet, "quiet", "q", false, "suppress progress output")
}

func runEncrypt(cmd *cobra.Command, args []string) error {
	source, outDir := args[0], args[1]

	cfg := Config{
		Source: source, OutDir: outDir, Verbose: encVerbose,
		SpreadDepth: encSpreadDepth, SaltLen: encSaltLen,
		Cipher: encCipher, Compressor: "zstd", ZstdLevel: encZstdLevel,
		KeyDerivAlg: encKeyDerivAlg, KeyDerivTime: encKeyDerivTime,
		Pbkdf2Alg: encPbkdf2Alg, Pbkdf2NumIter: encPbkdf2NumIter,
		ScryptLogN: encScryptLogN, ScryptR: encScryptR, ScryptP: encScryptP, ScryptOutputLen: encScryptOutputLen,
	}

	password, err := resolvePassword(encPassword, encPasswordStdin, true)
	if err != nil {
		return err
	}
	initial := secret.NewInitialKey([]byte(password))
	defer initial.Close()

	if encVerbose {
		log.EnableDebugLogging()
	}

	syncerSpec, derivedKey, err := cfg.BuildEncryptSpec(initial)
	if err != nil {
		return err
	}
	defer derivedKey.Close()

	reporter := NewReporter(encQuiet)
	globalReporter = reporter
	defer func() { globalReporter = nil }()

	if !encQuiet {
		fmt.Printf("encrypting %s -> %s\n", source, outDir)
	}

	summary, err := driver.Encrypt(context.Background(), driver.RunConfig{
		Syncer: syncerSpec, DerivedKey: derivedKey, Parallelism: encParallelism, Reporter: reporter,
	})
	reporter.Finish()
	if err != nil {
		reporter.PrintError("%v", err)
		return err
	}

	reporter.PrintSuccess("encrypted %d entries (%d skipped), %d bytes -> %d bytes",
		summary.Count, summary.Skipped, summary.SrcBytes, summary.DestBytes)
	return nil
}

// resolvePassword resolves the --password/--password-stdin flags into a
// passphrase, prompting interactively (with confirmation for encrypt) only
// when neither flag was supplied.
func resolvePassword(flagValue string, fromStdin, confirm bool) (string, error) {
	if fromStdin {
		return readPasswordFromStdin()
	}
	if flagValue != "" {
		return flagValue, nil
	}
	return readPasswordInteractive(confirm)
}
