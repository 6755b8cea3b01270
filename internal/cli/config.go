package cli

import (
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
	"time"

	csyncerr "csyncgo/internal/errors"
	"csyncgo/internal/kdf"
	"csyncgo/internal/metaspec"
	"csyncgo/internal/secret"
)

// Config is the parsed configuration struct the core consumes: whatever
// internal/cli's cobra flags resolve to, independent of how they were typed
// in.
type Config struct {
	Source  string
	OutDir  string
	Verbose bool

	SpreadDepth int
	SaltLen     int

	Cipher        string // "aes256cbc" | "chacha20"
	Authenticator string // "hmac-sha512" (only)
	Compressor    string // "zstd" (only)
	ZstdLevel     int

	KeyDerivAlg  string // "scrypt" | "pbkdf2"
	KeyDerivTime time.Duration

	Pbkdf2Alg     string // "hmac-sha256" | "hmac-sha512"
	Pbkdf2NumIter int

	ScryptLogN      int
	ScryptR         int
	ScryptP         int
	ScryptOutputLen int
}

// Default knob values, used whenever a flag is left at its zero value.
const (
	DefaultSpreadDepth   = 8
	DefaultSaltLen       = 64
	DefaultZstdLevel     = 3
	DefaultPbkdf2NumIter = 600_000
	DefaultScryptLogN    = 15
	DefaultScryptR       = 8
	DefaultScryptP       = 1
)

func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, csyncerr.New(csyncerr.KindOther, "cli-random-bytes", err)
	}
	return b, nil
}

// explicitKeyDerivParamsGiven reports whether the user supplied explicit
// KDF parameters rather than (or in addition to) a calibration time.
func (c Config) explicitKeyDerivParamsGiven() bool {
	return c.Pbkdf2NumIter > 0 || c.ScryptLogN > 0
}

// buildKeyDerivSpec turns Config's KDF knobs into a metaspec.KeyDerivSpec,
// generating a fresh salt. Specifying both a calibration time and explicit
// parameters is a HashSpecConflict.
func (c Config) buildKeyDerivSpec() (metaspec.KeyDerivSpec, error) {
	if c.KeyDerivTime > 0 && c.explicitKeyDerivParamsGiven() {
		return metaspec.KeyDerivSpec{}, csyncerr.New(csyncerr.KindHashSpecConflict, "build-key-deriv-spec",
			fmt.Errorf("both key_deriv_time and explicit KDF parameters were supplied"))
	}

	saltLen := c.SaltLen
	if saltLen == 0 {
		saltLen = DefaultSaltLen
	}
	salt, err := randomBytes(saltLen)
	if err != nil {
		return metaspec.KeyDerivSpec{}, err
	}

	switch c.KeyDerivAlg {
	case "", "scrypt":
		if c.KeyDerivTime > 0 {
			spec, err := kdf.Calibrate(c.KeyDerivTime, salt)
			if err != nil {
				return metaspec.KeyDerivSpec{}, err
			}
			return metaspec.NewKeyDerivScrypt(spec), nil
		}
		logN, r, p := c.ScryptLogN, c.ScryptR, c.ScryptP
		if logN == 0 {
			logN = DefaultScryptLogN
		}
		if r == 0 {
			r = DefaultScryptR
		}
		if p == 0 {
			p = DefaultScryptP
		}
		return metaspec.NewKeyDerivScrypt(kdf.NewScryptSpec(logN, r, p, salt, c.ScryptOutputLen)), nil
	case "pbkdf2":
		alg := kdf.HmacSha512
		if c.Pbkdf2Alg == "hmac-sha256" {
			alg = kdf.HmacSha256
		}
		if c.KeyDerivTime > 0 {
			spec, err := kdf.CalibratePbkdf2(c.KeyDerivTime, alg, salt)
			if err != nil {
				return metaspec.KeyDerivSpec{}, err
			}
			return metaspec.NewKeyDerivPbkdf2(spec), nil
		}
		numIter := c.Pbkdf2NumIter
		if numIter == 0 {
			numIter = DefaultPbkdf2NumIter
		}
		return metaspec.NewKeyDerivPbkdf2(kdf.NewPbkdf2Spec(alg, numIter, salt, 0)), nil
	default:
		return metaspec.KeyDerivSpec{}, csyncerr.New(csyncerr.KindOther, "build-key-deriv-spec",
			fmt.Errorf("unknown key_deriv_alg %q", c.KeyDerivAlg))
	}
}

// validateSourceOutDir checks the path preconditions:
// source exists, has a filename, out_dir (if it exists) is a directory, and
// source/out_dir do not resolve to the same canonical path.
func validateSourceOutDir(source, outDir string) error {
	if filepath.Base(source) == "." || filepath.Base(source) == ".." || filepath.Base(source) == string(filepath.Separator) {
		return csyncerr.New(csyncerr.KindSourceDoesNotHaveFilename, "validate-source-outdir",
			fmt.Errorf("%q has no final path component", source))
	}
	if _, err := os.Stat(source); err != nil {
		return csyncerr.New(csyncerr.KindSourceDoesNotExist, "validate-source-outdir", err)
	}

	if info, err := os.Stat(outDir); err == nil && !info.IsDir() {
		return csyncerr.New(csyncerr.KindOutdirIsNotDir, "validate-source-outdir",
			fmt.Errorf("%q exists and is not a directory", outDir))
	}

	srcAbs, err := filepath.Abs(source)
	if err != nil {
		return csyncerr.New(csyncerr.KindOther, "validate-source-outdir", err)
	}
	outAbs, err := filepath.Abs(outDir)
	if err != nil {
		return csyncerr.New(csyncerr.KindOther, "validate-source-outdir", err)
	}
	if srcReal, err := filepath.EvalSymlinks(srcAbs); err == nil {
		if outReal, err := filepath.EvalSymlinks(outAbs); err == nil && srcReal == outReal {
			return csyncerr.New(csyncerr.KindSourceEqOutdir, "validate-source-outdir",
				fmt.Errorf("source and out_dir both resolve to %q", srcReal))
		}
	}
	return nil
}

// dirIsEmpty reports whether dir has no entries, treating a missing
// directory as empty.
func dirIsEmpty(dir string) (bool, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return true, nil
	}
	if err != nil {
		return false, csyncerr.New(csyncerr.KindOther, "dir-is-empty", err)
	}
	return len(entries) == 0, nil
}

// BuildEncryptSpec constructs the SyncerSpec for an encrypt run. When out_dir
// already holds ciphertext, the run resumes: metadata must be recoverable
// under initial, or the run refuses with IncrementalEncryptionDisabledForNow.
// Returns the spec and the run's derived key.
func (c Config) BuildEncryptSpec(initial secret.InitialKey) (*metaspec.SyncerSpec, secret.DerivedKey, error) {
	if c.SpreadDepth != 0 && (c.SpreadDepth < 1 || c.SpreadDepth > 86) {
		return nil, secret.DerivedKey{}, csyncerr.New(csyncerr.KindInvalidSpreadDepth, "build-encrypt-spec",
			fmt.Errorf("spread_depth %d outside [1, 86]", c.SpreadDepth))
	}
	if err := validateSourceOutDir(c.Source, c.OutDir); err != nil {
		return nil, secret.DerivedKey{}, err
	}

	empty, err := dirIsEmpty(c.OutDir)
	if err != nil {
		return nil, secret.DerivedKey{}, err
	}
	if !empty {
		spec, derived, err := metaspec.DiscoverSyncerSpec(c.OutDir, initial)
		if err != nil {
			if csyncerr.KindOf(err) == csyncerr.KindAuthenticationFail {
				return nil, secret.DerivedKey{}, err
			}
			return nil, secret.DerivedKey{}, csyncerr.New(csyncerr.KindIncrementalEncryptionDisabledForNow,
				"build-encrypt-spec", err)
		}
		spec.Source = c.Source
		spec.OutDir = c.OutDir
		spec.Verbose = c.Verbose
		spec.Mode = metaspec.ModeEncrypt
		return spec, derived, nil
	}

	spreadDepth := c.SpreadDepth
	if spreadDepth == 0 {
		spreadDepth = DefaultSpreadDepth
	}
	saltLen := c.SaltLen
	if saltLen == 0 {
		saltLen = DefaultSaltLen
	}
	zstdLevel := c.ZstdLevel
	if zstdLevel == 0 {
		zstdLevel = DefaultZstdLevel
	}
	cipherKind, err := metaspec.ParseCipherKind(orDefault(c.Cipher, "aes256cbc"))
	if err != nil {
		return nil, secret.DerivedKey{}, err
	}

	keyDeriv, err := c.buildKeyDerivSpec()
	if err != nil {
		return nil, secret.DerivedKey{}, err
	}

	initSalt, err := randomBytes(saltLen)
	if err != nil {
		return nil, secret.DerivedKey{}, err
	}

	spec, err := metaspec.NewSyncerSpec(metaspec.ModeEncrypt,
		metaspec.AuthenticatorSpec{Kind: metaspec.AuthenticatorHmacSha512},
		cipherKind, metaspec.CompressorSpec{Level: zstdLevel}, keyDeriv, initSalt,
		spreadDepth, saltLen, c.Source, c.OutDir, c.Verbose)
	if err != nil {
		return nil, secret.DerivedKey{}, err
	}

	derived, err := keyDeriv.Underlying().Derive(initial)
	if err != nil {
		return nil, secret.DerivedKey{}, err
	}
	return spec, derived, nil
}

// BuildDecryptSpec recovers the authoritative SyncerSpec from ciphertext
// under c.OutDir, then overrides Source with the requested decrypt
// destination and OutDir, Verbose and Mode with this run's values: the values recorded in the
// ciphertext header describe the machine the encrypt run happened on, not
// necessarily this one.
func (c Config) BuildDecryptSpec(initial secret.InitialKey) (*metaspec.SyncerSpec, secret.DerivedKey, error) {
	if info, err := os.Stat(c.OutDir); err != nil {
		return nil, secret.DerivedKey{}, csyncerr.New(csyncerr.KindOutdirIsNotDir, "build-decrypt-spec", err)
	} else if !info.IsDir() {
		return nil, secret.DerivedKey{}, csyncerr.New(csyncerr.KindOutdirIsNotDir, "build-decrypt-spec",
			fmt.Errorf("%q is not a directory", c.OutDir))
	}

	empty, err := dirIsEmpty(c.Source)
	if err != nil {
		return nil, secret.DerivedKey{}, err
	}
	if !empty {
		return nil, secret.DerivedKey{}, csyncerr.New(csyncerr.KindDecryptionOutdirIsNonempty, "build-decrypt-spec",
			fmt.Errorf("decrypt destination %q is not empty", c.Source))
	}

	spec, derived, err := metaspec.DiscoverSyncerSpec(c.OutDir, initial)
	if err != nil {
		return nil, secret.DerivedKey{}, err
	}
	spec.Source = c.Source
	spec.OutDir = c.OutDir
	spec.Verbose = c.Verbose
	spec.Mode = metaspec.ModeDecrypt
	return spec, derived, nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
