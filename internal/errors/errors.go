// Package errors provides the typed error taxonomy for csyncgo. Every kind
// carries a stable, unique, non-zero exit code so internal/cli can propagate
// a precise process exit status without re-inspecting error strings.
package errors

import (
	"errors"
	"fmt"
)

// Kind identifies one of the fixed failure categories a run can end in.
type Kind int

const (
	// KindAuthenticationFail covers both a wrong password and a tampered
	// ciphertext: the rehash or the HMAC tag did not verify.
	KindAuthenticationFail Kind = iota + 1
	// KindDecryptionOutdirIsNonempty is returned when a decrypt target
	// directory already contains entries.
	KindDecryptionOutdirIsNonempty
	// KindHashSpecConflict is returned when mutually exclusive KDF flags
	// (calibration time vs explicit parameters) are both supplied.
	KindHashSpecConflict
	// KindIncrementalEncryptionDisabledForNow is returned when encrypting
	// into a non-empty output directory whose metadata could not be
	// recovered. This is a deliberate refusal, not a
	// missing feature.
	KindIncrementalEncryptionDisabledForNow
	// KindInvalidSpreadDepth is returned when spread_depth falls outside
	// [1, 86].
	KindInvalidSpreadDepth
	// KindMetadataLoadFailed is returned when no readable .csync header was
	// found under an output directory believed to hold one.
	KindMetadataLoadFailed
	// KindOutdirIsNotDir is returned when the output path exists and is not
	// a directory.
	KindOutdirIsNotDir
	// KindPasswordConfirmationFail is returned when interactive password
	// confirmation does not match.
	KindPasswordConfirmationFail
	// KindPathContainsInvalidUtf8Bytes is returned when a path cannot be
	// represented as valid UTF-8.
	KindPathContainsInvalidUtf8Bytes
	// KindSerdeFailed is returned when metadata (de)serialization fails.
	KindSerdeFailed
	// KindSourceDoesNotExist is returned when the source path cannot be
	// stat'd.
	KindSourceDoesNotExist
	// KindSourceDoesNotHaveFilename is returned when the source path has no
	// final path component (e.g. "/", "..").
	KindSourceDoesNotHaveFilename
	// KindSourceEqOutdir is returned when source and output directory
	// resolve to the same canonical path.
	KindSourceEqOutdir
	// KindOther wraps any error that does not fit a named kind (filesystem
	// errors bubbling up from the OS, for instance).
	KindOther
)

// exitCodes maps each Kind to its stable, non-zero process exit status.
var exitCodes = map[Kind]int{
	KindAuthenticationFail:                  10,
	KindDecryptionOutdirIsNonempty:          11,
	KindHashSpecConflict:                    12,
	KindIncrementalEncryptionDisabledForNow: 13,
	KindInvalidSpreadDepth:                  14,
	KindMetadataLoadFailed:                  15,
	KindOutdirIsNotDir:                      16,
	KindPasswordConfirmationFail:            17,
	KindPathContainsInvalidUtf8Bytes:        18,
	KindSerdeFailed:                         19,
	KindSourceDoesNotExist:                  20,
	KindSourceDoesNotHaveFilename:           21,
	KindSourceEqOutdir:                      22,
	KindOther:                               1,
}

func (k Kind) String() string {
	switch k {
	case KindAuthenticationFail:
		return "AuthenticationFail"
	case KindDecryptionOutdirIsNonempty:
		return "DecryptionOutdirIsNonempty"
	case KindHashSpecConflict:
		return "HashSpecConflict"
	case KindIncrementalEncryptionDisabledForNow:
		return "IncrementalEncryptionDisabledForNow"
	case KindInvalidSpreadDepth:
		return "InvalidSpreadDepth"
	case KindMetadataLoadFailed:
		return "MetadataLoadFailed"
	case KindOutdirIsNotDir:
		return "OutdirIsNotDir"
	case KindPasswordConfirmationFail:
		return "PasswordConfirmationFail"
	case KindPathContainsInvalidUtf8Bytes:
		return "PathContainsInvalidUtf8Bytes"
	case KindSerdeFailed:
		return "SerdeFailed"
	case KindSourceDoesNotExist:
		return "SourceDoesNotExist"
	case KindSourceDoesNotHaveFilename:
		return "SourceDoesNotHaveFilename"
	case KindSourceEqOutdir:
		return "SourceEqOutdir"
	default:
		return "Other"
	}
}

// ExitCode returns the stable exit code for k.
func (k Kind) ExitCode() int {
	if code, ok := exitCodes[k]; ok {
		return code
	}
	return exitCodes[KindOther]
}

// Error is a taxonomy-tagged error. Op names the operation that failed
// ("derive-key", "path-obfuscate", "stage-rename", ...); Err is the
// underlying cause, if any.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Op)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New constructs an *Error of the given kind.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Is checks if target matches any error in err's chain.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// KindOf extracts the Kind of err, or KindOther if err is not (or does not
// wrap) a *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindOther
}

// ExitCode returns the process exit code that should be used to report err.
// nil errors map to 0.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	return KindOf(err).ExitCode()
}
