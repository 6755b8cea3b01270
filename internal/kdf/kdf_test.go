package kdf

import (
	"testing"
	"time"

	"csyncgo/internal/secret"
)

func TestPbkdf2DeriveDeterministic(t *testing.T) {
	spec := NewPbkdf2Spec(HmacSha512, 4096, []byte("salt-bytes-here-salt-bytes-here"), 64)
	initial := secret.NewInitialKey([]byte("hunter2"))
	defer initial.Close()

	a, err := spec.Derive(initial)
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}
	defer a.Close()
	b, err := spec.Derive(initial)
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}
	defer b.Close()

	if !a.Equal(&b.Bytes) {
		t.Error("same spec and key should derive identical output")
	}
	if a.Len() != 64 {
		t.Errorf("expected 64-byte output, got %d", a.Len())
	}
}

func TestScryptDeriveDeterministic(t *testing.T) {
	spec := NewScryptSpec(10, 8, 1, []byte("0123456789abcdef"), 64)
	initial := secret.NewInitialKey([]byte("hunter2"))
	defer initial.Close()

	a, err := spec.Derive(initial)
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}
	defer a.Close()
	b, err := spec.Derive(initial)
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}
	defer b.Close()

	if !a.Equal(&b.Bytes) {
		t.Error("same spec and key should derive identical output")
	}
}

func TestPbkdf2RejectsNonPositiveIterations(t *testing.T) {
	spec := NewPbkdf2Spec(HmacSha256, 0, []byte("salt"), 32)
	initial := secret.NewInitialKey([]byte("pw"))
	defer initial.Close()

	if _, err := spec.Derive(initial); err == nil {
		t.Error("expected error for non-positive NumIter")
	}
}

func TestRehashRoundTrip(t *testing.T) {
	initial := secret.NewInitialKey([]byte("hunter2"))
	defer initial.Close()
	spec := NewScryptSpec(10, 8, 1, []byte("some-salt-value-"), 64)
	derived, err := spec.Derive(initial)
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}
	defer derived.Close()

	rehash, err := ComputeRehash(derived, []byte("rehash-salt-64-bytes-padding-xxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxx"))
	if err != nil {
		t.Fatalf("ComputeRehash: %v", err)
	}

	if !VerifyRehash(derived, rehash) {
		t.Error("VerifyRehash should succeed for the key that produced the rehash")
	}

	wrongInitial := secret.NewInitialKey([]byte("wrong password"))
	defer wrongInitial.Close()
	wrongDerived, err := spec.Derive(wrongInitial)
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}
	defer wrongDerived.Close()

	if VerifyRehash(wrongDerived, rehash) {
		t.Error("VerifyRehash should fail for a different derived key")
	}
}

func TestCalibrateReturnsIncreasingWorkForLongerTargets(t *testing.T) {
	salt := []byte("calibration-salt")
	short, err := Calibrate(0, salt)
	if err != nil {
		t.Fatalf("Calibrate: %v", err)
	}
	if short.LogN < 10 {
		t.Errorf("expected LogN >= 10, got %d", short.LogN)
	}

	// A near-zero target should stop at the first trial.
	immediate, err := Calibrate(1*time.Nanosecond, salt)
	if err != nil {
		t.Fatalf("Calibrate: %v", err)
	}
	if immediate.LogN < 10 {
		t.Errorf("expected LogN >= 10, got %d", immediate.LogN)
	}
}
