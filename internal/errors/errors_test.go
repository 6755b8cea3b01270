package errors

import (
	"errors"
	"testing"
)

func TestKindStringAndExitCode(t *testing.T) {
	tests := []struct {
		kind     Kind
		name     string
		wantCode int
	}{
		{KindAuthenticationFail, "AuthenticationFail", 10},
		{KindDecryptionOutdirIsNonempty, "DecryptionOutdirIsNonempty", 11},
		{KindHashSpecConflict, "HashSpecConflict", 12},
		{KindIncrementalEncryptionDisabledForNow, "IncrementalEncryptionDisabledForNow", 13},
		{KindInvalidSpreadDepth, "InvalidSpreadDepth", 14},
		{KindMetadataLoadFailed, "MetadataLoadFailed", 15},
		{KindOutdirIsNotDir, "OutdirIsNotDir", 16},
		{KindPasswordConfirmationFail, "PasswordConfirmationFail", 17},
		{KindPathContainsInvalidUtf8Bytes, "PathContainsInvalidUtf8Bytes", 18},
		{KindSerdeFailed, "SerdeFailed", 19},
		{KindSourceDoesNotExist, "SourceDoesNotExist", 20},
		{KindSourceDoesNotHaveFilename, "SourceDoesNotHaveFilename", 21},
		{KindSourceEqOutdir, "SourceEqOutdir", 22},
		{KindOther, "Other", 1},
	}

	seen := map[int]Kind{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.kind.String() != tt.name {
				t.Errorf("String() = %q, want %q", tt.kind.String(), tt.name)
			}
			if tt.kind.ExitCode() != tt.wantCode {
				t.Errorf("ExitCode() = %d, want %d", tt.kind.ExitCode(), tt.wantCode)
			}
		})
		if other, ok := seen[tt.wantCode]; ok {
			t.Errorf("exit code %d reused by both %s and %s", tt.wantCode, other, tt.kind)
		}
		seen[tt.wantCode] = tt.kind
	}
}

func TestErrorMessage(t *testing.T) {
	base := errors.New("bad rehash")
	err := New(KindAuthenticationFail, "verify-rehash", base)

	if err.Error() != "AuthenticationFail: verify-rehash: bad rehash" {
		t.Errorf("unexpected message: %s", err.Error())
	}
	if err.Unwrap() != base {
		t.Error("Unwrap should return underlying error")
	}

	noCause := New(KindInvalidSpreadDepth, "validate-spec", nil)
	if noCause.Error() != "InvalidSpreadDepth: validate-spec" {
		t.Errorf("unexpected message for nil cause: %s", noCause.Error())
	}
}

func TestIsAndAs(t *testing.T) {
	base := errors.New("denied")
	err := New(KindOutdirIsNotDir, "stat-outdir", base)

	if !Is(err, base) {
		t.Error("Is should find wrapped base error")
	}

	var target *Error
	if !As(err, &target) {
		t.Error("As should find *Error")
	}
	if target.Kind != KindOutdirIsNotDir {
		t.Errorf("unexpected kind: %s", target.Kind)
	}
}

func TestKindOfAndExitCode(t *testing.T) {
	err := New(KindMetadataLoadFailed, "discover-spec", nil)
	if KindOf(err) != KindMetadataLoadFailed {
		t.Errorf("KindOf mismatch: %s", KindOf(err))
	}
	if ExitCode(err) != 15 {
		t.Errorf("ExitCode mismatch: %d", ExitCode(err))
	}

	plain := errors.New("unrelated")
	if KindOf(plain) != KindOther {
		t.Error("KindOf should fall back to KindOther for untagged errors")
	}
	if ExitCode(plain) != 1 {
		t.Error("ExitCode should fall back to 1 for untagged errors")
	}

	if ExitCode(nil) != 0 {
		t.Error("ExitCode(nil) should be 0")
	}
}
