// Package secret wraps sensitive byte material (passphrases and derived
// keys) in containers that compare in constant time, refuse to print their
// contents, and are zeroed on Close.
//
// Two nominal refinements exist so the two kinds of key material can never
// be passed for one another by accident: InitialKey holds raw passphrase
// bytes, DerivedKey holds the output of a KDF. They wrap the same Bytes
// primitive but are distinct Go types, so swapping them at a call site is a
// compile error rather than a runtime surprise.
package secret

import (
	"crypto/subtle"
)

// Bytes is a zero-on-close, constant-time-comparable byte container.
type Bytes struct {
	data   []byte
	closed bool
}

// NewBytes copies b into a new Bytes, taking ownership of the copy. The
// caller's original slice is left untouched and should be zeroed separately
// if it must not linger in memory.
func NewBytes(b []byte) Bytes {
	cp := make([]byte, len(b))
	copy(cp, b)
	return Bytes{data: cp}
}

// Len returns the length of the held data, or 0 once closed.
func (b *Bytes) Len() int {
	if b.closed {
		return 0
	}
	return len(b.data)
}

// Expose returns the underlying bytes. The returned slice aliases internal
// storage: callers must not retain it past the container's Close.
func (b *Bytes) Expose() []byte {
	if b.closed {
		return nil
	}
	return b.data
}

// Equal compares b to other in constant time.
func (b *Bytes) Equal(other *Bytes) bool {
	if b.closed || other.closed {
		return false
	}
	if len(b.data) != len(other.data) {
		return false
	}
	return subtle.ConstantTimeCompare(b.data, other.data) == 1
}

// String never prints the contents, only a fixed placeholder, so Bytes is safe to
// pass to fmt/log without leaking key material.
func (b *Bytes) String() string {
	return "secret.Bytes{...}"
}

// Close zeroes the held data. Idempotent.
func (b *Bytes) Close() {
	if b.closed {
		return
	}
	zero(b.data)
	b.data = nil
	b.closed = true
}

func zero(b []byte) {
	if len(b) == 0 {
		return
	}
	zeros := make([]byte, len(b))
	subtle.ConstantTimeCopy(1, b, zeros)
}

// InitialKey holds the passphrase as typed by the user. It is the only
// legal input to a kdf.Spec's Derive method.
type InitialKey struct{ Bytes }

// NewInitialKey wraps passphrase bytes as an InitialKey.
func NewInitialKey(b []byte) InitialKey {
	return InitialKey{Bytes: NewBytes(b)}
}

// DerivedKey holds the 64-byte (by default) output of a KDF applied to an
// InitialKey. It is produced exactly once per run and used by every codec
// stage and the path obfuscation scheme.
type DerivedKey struct{ Bytes }

// NewDerivedKey wraps KDF output bytes as a DerivedKey.
func NewDerivedKey(b []byte) DerivedKey {
	return DerivedKey{Bytes: NewBytes(b)}
}
