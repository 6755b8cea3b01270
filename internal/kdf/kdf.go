// Package kdf implements the key-derivation half of the metadata model:
// turning a passphrase (secret.InitialKey) into a derived key
// (secret.DerivedKey) via PBKDF2 or Scrypt, calibrating parameters to a
// wall-clock target, and the cheap second-stage rehash used to verify a
// candidate derived key without revealing it.
package kdf

import (
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"hash"
	"time"

	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/crypto/scrypt"

	csyncerr "csyncgo/internal/errors"
	"csyncgo/internal/secret"
)

// HmacAlg names the HMAC hash PBKDF2 is keyed with.
type HmacAlg int

const (
	HmacSha256 HmacAlg = iota
	HmacSha512
)

func (a HmacAlg) newHash() func() hash.Hash {
	switch a {
	case HmacSha512:
		return sha512.New
	default:
		return sha256.New
	}
}

func (a HmacAlg) String() string {
	if a == HmacSha512 {
		return "hmac-sha512"
	}
	return "hmac-sha256"
}

// DefaultOutputLen is the default derived-key length, 64 bytes.
const DefaultOutputLen = 64

// Spec is a key-derivation-function parameter set. It is immutable once
// constructed and is itself part of the serialized ActionSpec/SyncerSpec, so
// that decrypt can rediscover exactly which parameters produced the key.
type Spec interface {
	// Derive turns an initial key into a derived key of OutputLen() bytes.
	Derive(initial secret.InitialKey) (secret.DerivedKey, error)
	// OutputLen returns the number of bytes Derive produces.
	OutputLen() int
	isSpec()
}

// Pbkdf2Spec is the PBKDF2 variant of Spec.
type Pbkdf2Spec struct {
	Alg       HmacAlg
	NumIter   int
	Salt      []byte
	outputLen int
}

// NewPbkdf2Spec builds a Pbkdf2Spec producing outputLen bytes (DefaultOutputLen
// if 0).
func NewPbkdf2Spec(alg HmacAlg, numIter int, salt []byte, outputLen int) Pbkdf2Spec {
	if outputLen == 0 {
		outputLen = DefaultOutputLen
	}
	return Pbkdf2Spec{Alg: alg, NumIter: numIter, Salt: salt, outputLen: outputLen}
}

func (s Pbkdf2Spec) isSpec() {}

func (s Pbkdf2Spec) OutputLen() int {
	if s.outputLen == 0 {
		return DefaultOutputLen
	}
	return s.outputLen
}

func (s Pbkdf2Spec) Derive(initial secret.InitialKey) (secret.DerivedKey, error) {
	if s.NumIter <= 0 {
		return secret.DerivedKey{}, csyncerr.New(csyncerr.KindOther, "pbkdf2-derive",
			fmt.Errorf("num_iter must be positive, got %d", s.NumIter))
	}
	out := pbkdf2.Key(initial.Expose(), s.Salt, s.NumIter, s.OutputLen(), s.Alg.newHash())
	return secret.NewDerivedKey(out), nil
}

// ScryptSpec is the Scrypt variant of Spec.
type ScryptSpec struct {
	LogN    int
	R       int
	P       int
	Salt    []byte
	outLen  int
}

// NewScryptSpec builds a ScryptSpec producing outputLen bytes (DefaultOutputLen
// if 0).
func NewScryptSpec(logN, r, p int, salt []byte, outputLen int) ScryptSpec {
	if outputLen == 0 {
		outputLen = DefaultOutputLen
	}
	return ScryptSpec{LogN: logN, R: r, P: p, Salt: salt, outLen: outputLen}
}

func (s ScryptSpec) isSpec() {}

// OutputLen implements Spec.
func (s ScryptSpec) OutputLen() int {
	if s.outLen == 0 {
		return DefaultOutputLen
	}
	return s.outLen
}

func (s ScryptSpec) Derive(initial secret.InitialKey) (secret.DerivedKey, error) {
	n := 1 << uint(s.LogN)
	out, err := scrypt.Key(initial.Expose(), s.Salt, n, s.R, s.P, s.OutputLen())
	if err != nil {
		return secret.DerivedKey{}, csyncerr.New(csyncerr.KindOther, "scrypt-derive", err)
	}
	return secret.NewDerivedKey(out), nil
}

// RehashSpec is the fixed, cheap Scrypt parameter set used to verify a
// candidate derived key without ever storing the derived key itself: the
// derived key is put through this second KDF and only the rehash output is
// persisted alongside its salt.
type RehashSpec struct {
	Salt   []byte // 64 bytes
	Output []byte // 64 bytes, the rehash itself
}

// Fixed rehash parameters: log_n=12, r=8, p=1, 64-byte salt/output.
const (
	RehashLogN      = 12
	RehashR         = 8
	RehashP         = 1
	RehashSaltLen   = 64
	RehashOutputLen = 64
)

func rehashSpecAsScrypt(salt []byte) ScryptSpec {
	return NewScryptSpec(RehashLogN, RehashR, RehashP, salt, RehashOutputLen)
}

// ComputeRehash derives the rehash of derived under salt.
func ComputeRehash(derived secret.DerivedKey, salt []byte) (RehashSpec, error) {
	asInitial := secret.NewInitialKey(derived.Expose())
	defer asInitial.Close()
	out, err := rehashSpecAsScrypt(salt).Derive(asInitial)
	if err != nil {
		return RehashSpec{}, err
	}
	defer out.Close()
	return RehashSpec{Salt: salt, Output: append([]byte(nil), out.Expose()...)}, nil
}

// VerifyRehash recomputes the rehash of candidate under want.Salt and
// compares it against want.Output in constant time.
func VerifyRehash(candidate secret.DerivedKey, want RehashSpec) bool {
	got, err := ComputeRehash(candidate, want.Salt)
	if err != nil {
		return false
	}
	gotBytes := secret.NewBytes(got.Output)
	wantBytes := secret.NewBytes(want.Output)
	defer gotBytes.Close()
	defer wantBytes.Close()
	return gotBytes.Equal(&wantBytes)
}

// Calibrate runs short trial derivations with increasing LogN until a trial
// takes at least target, then returns those parameters. The chosen
// parameters — not the target duration — are what callers embed in the
// recorded SyncerSpec.
func Calibrate(target time.Duration, salt []byte) (ScryptSpec, error) {
	probe := secret.NewInitialKey([]byte("csyncgo-calibration-probe"))
	defer probe.Close()

	logN := 10
	for {
		spec := NewScryptSpec(logN, 8, 1, salt, DefaultOutputLen)
		start := time.Now()
		dk, err := spec.Derive(probe)
		if err != nil {
			return ScryptSpec{}, err
		}
		dk.Close()
		elapsed := time.Since(start)
		if elapsed >= target || logN >= 24 {
			return spec, nil
		}
		logN++
	}
}

// CalibratePbkdf2 mirrors Calibrate for the Pbkdf2 variant: it doubles
// NumIter starting from a small floor until a trial derivation takes at
// least target, then returns those parameters. As with Calibrate, the
// chosen iteration count is what gets embedded in the recorded SyncerSpec,
// not the target duration itself.
func CalibratePbkdf2(target time.Duration, alg HmacAlg, salt []byte) (Pbkdf2Spec, error) {
	probe := secret.NewInitialKey([]byte("csyncgo-calibration-probe"))
	defer probe.Close()

	numIter := 1 << 14
	const maxNumIter = 1 << 24
	for {
		spec := NewPbkdf2Spec(alg, numIter, salt, DefaultOutputLen)
		start := time.Now()
		dk, err := spec.Derive(probe)
		if err != nil {
			return Pbkdf2Spec{}, err
		}
		dk.Close()
		elapsed := time.Since(start)
		if elapsed >= target || numIter >= maxNumIter {
			return spec, nil
		}
		numIter *= 2
	}
}
