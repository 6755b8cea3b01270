// Package pathmap implements the deterministic, keyed bijection between a
// source-relative path and its on-disk ciphertext path: spread-directory
// fan-out, deterministic padding, and an AES-256-CBC-encrypted, base32-path
// text-encoded augmented path.
package pathmap

import (
	"bytes"
	"crypto/sha512"
	"encoding/binary"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/crypto/chacha20"

	"csyncgo/internal/codec"
	csyncerr "csyncgo/internal/errors"
	"csyncgo/internal/metaspec"
	"csyncgo/internal/secret"
)

// EntryKind distinguishes a regular file from a directory in an augmented
// path's single-char marker.
type EntryKind uint8

const (
	KindFile EntryKind = iota
	KindDir
)

func (k EntryKind) marker() string {
	if k == KindDir {
		return "d"
	}
	return "f"
}

func parseMarker(s string) (EntryKind, error) {
	switch s {
	case "f":
		return KindFile, nil
	case "d":
		return KindDir, nil
	default:
		return 0, csyncerr.New(csyncerr.KindSerdeFailed, "parse-entry-marker", fmt.Errorf("unknown marker %q", s))
	}
}

const (
	minPadDrawLen = 40
	maxPadDrawLen = 200
	chunkLen      = 64
	cipherKeyLen  = 32
	fileSuffix    = "csync"
)

// pathAsUnixString normalizes an OS path to forward-slash form for hashing
// and encryption purposes, so the map is stable across host path separators.
func pathAsUnixString(p string) string {
	return filepath.ToSlash(p)
}

// spreadPrefix computes the first spreadDepth characters of
// base32path(SHA-512(pathString ++ initSalt)) — the characters used both
// to build the spread directories and (re-hashed, without separators) the
// path cipher's IV.
func spreadPrefix(pathString string, initSalt []byte, spreadDepth int) (string, error) {
	h := sha512.New()
	h.Write([]byte(pathString))
	h.Write(initSalt)
	sum := h.Sum(nil)

	encoded, err := base32PathEncodeAll(sum)
	if err != nil {
		return "", err
	}
	if spreadDepth > len(encoded) {
		return "", csyncerr.New(csyncerr.KindOther, "spread-prefix",
			fmt.Errorf("spread_depth %d exceeds encoded hash length %d", spreadDepth, len(encoded)))
	}
	return encoded[:spreadDepth], nil
}

func base32PathEncodeAll(b []byte) (string, error) {
	enc := codec.NewBase32PathEncodeReader(bytes.NewReader(b))
	out, err := io.ReadAll(enc)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func base32PathDecodeAll(s string) ([]byte, error) {
	dec := codec.NewBase32PathDecodeReader(strings.NewReader(s))
	return io.ReadAll(dec)
}

// spreadHash hashes the spread prefix characters (with any '/' separators
// stripped) to derive the path cipher's IV.
func spreadHash(prefix string) []byte {
	stripped := strings.ReplaceAll(prefix, "/", "")
	sum := sha512.Sum512([]byte(stripped))
	return sum[:]
}

// deterministicPadString draws a uniform length in [40, 200] and that many
// pseudo-random bytes from a ChaCha20 keystream seeded by the first 32 bytes
// of SHA-512(rel), keeps only printable-ASCII bytes, and returns the
// base32-path encoding of the result. The draw must be deterministic per
// rel or the forward map stops being a function.
func deterministicPadString(rel string) (string, error) {
	seedHash := sha512.Sum512([]byte(rel))
	seed := seedHash[:32]

	zeroNonce := make([]byte, chacha20.NonceSize)
	lenStream, err := chacha20.NewUnauthenticatedCipher(seed, zeroNonce)
	if err != nil {
		return "", err
	}
	var lenBuf [8]byte
	lenStream.XORKeyStream(lenBuf[:], lenBuf[:])
	width := uint64(maxPadDrawLen - minPadDrawLen + 1)
	drawLen := minPadDrawLen + int(binary.BigEndian.Uint64(lenBuf[:])%width)

	byteStream, err := chacha20.NewUnauthenticatedCipher(seed, zeroNonce)
	if err != nil {
		return "", err
	}
	raw := make([]byte, drawLen)
	byteStream.XORKeyStream(raw, raw)

	filtered := raw[:0]
	for _, b := range raw {
		if b >= 32 && b <= 126 {
			filtered = append(filtered, b)
		}
	}
	if len(filtered) == 0 {
		return "", csyncerr.New(csyncerr.KindOther, "deterministic-pad-string",
			fmt.Errorf("no printable bytes drawn for rel %q", rel))
	}
	return base32PathEncodeAll(filtered)
}

func cbcEncryptAll(plain []byte, derivedKey, ivSpec []byte) ([]byte, error) {
	enc, err := codec.NewCbcEncryptReader(bytes.NewReader(plain), derivedKey, ivSpec)
	if err != nil {
		return nil, err
	}
	return io.ReadAll(enc)
}

func cbcDecryptAll(cipher []byte, derivedKey, ivSpec []byte) ([]byte, error) {
	dec, err := codec.NewCbcDecryptReader(bytes.NewReader(cipher), derivedKey, ivSpec)
	if err != nil {
		return nil, err
	}
	return io.ReadAll(dec)
}

func chunk64(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i += chunkLen {
		end := i + chunkLen
		if end > len(s) {
			end = len(s)
		}
		if i > 0 {
			b.WriteByte('/')
		}
		b.WriteString(s[i:end])
	}
	return b.String()
}

// Forward maps a source path to its ciphertext path under spec.OutDir:
// spread dirs, then the encrypted, chunked, ".csync"-suffixed basename.
func Forward(spec *metaspec.SyncerSpec, key secret.DerivedKey, root, srcPath string, kind EntryKind) (string, error) {
	rel, err := filepath.Rel(root, srcPath)
	if err != nil {
		return "", csyncerr.New(csyncerr.KindOther, "pathmap-forward", err)
	}
	if strings.HasPrefix(rel, "..") {
		return "", csyncerr.New(csyncerr.KindOther, "pathmap-forward",
			fmt.Errorf("%q is not a descendant of %q", srcPath, root))
	}
	relUnix := pathAsUnixString(rel)
	if !utf8.ValidString(relUnix) {
		return "", csyncerr.New(csyncerr.KindPathContainsInvalidUtf8Bytes, "pathmap-forward",
			fmt.Errorf("path %q is not valid UTF-8", srcPath))
	}

	prefix, err := spreadPrefix(pathAsUnixString(srcPath), spec.InitSalt, spec.SpreadDepth)
	if err != nil {
		return "", err
	}
	spread := strings.Join(strings.Split(prefix, ""), "/")
	ivSpec := spreadHash(prefix)

	padString, err := deterministicPadString(relUnix)
	if err != nil {
		return "", err
	}

	augmented := padString + "/" + kind.marker() + "/" + relUnix

	derivedKeyBytes := key.Expose()
	if len(derivedKeyBytes) < cipherKeyLen {
		return "", csyncerr.New(csyncerr.KindOther, "pathmap-forward",
			fmt.Errorf("derived key too short: need %d bytes, have %d", cipherKeyLen, len(derivedKeyBytes)))
	}

	ciphertext, err := cbcEncryptAll([]byte(augmented), derivedKeyBytes, ivSpec)
	if err != nil {
		return "", err
	}
	encoded, err := base32PathEncodeAll(ciphertext)
	if err != nil {
		return "", err
	}

	basename := chunk64(encoded) + "." + fileSuffix
	return filepath.Join(spec.OutDir, spread, basename), nil
}

// Inverse recovers the source-relative path and entry kind from a ".csync"
// path under outDir.
func Inverse(spec *metaspec.SyncerSpec, key secret.DerivedKey, outDir, cipherPath string) (string, EntryKind, error) {
	rel, err := filepath.Rel(outDir, cipherPath)
	if err != nil {
		return "", 0, csyncerr.New(csyncerr.KindOther, "pathmap-inverse", err)
	}
	comps := strings.Split(pathAsUnixString(rel), "/")
	if len(comps) <= spec.SpreadDepth {
		return "", 0, csyncerr.New(csyncerr.KindSerdeFailed, "pathmap-inverse",
			fmt.Errorf("ciphertext path %q has too few components for spread_depth %d", cipherPath, spec.SpreadDepth))
	}
	spreadComps := comps[:spec.SpreadDepth]
	rest := strings.Join(comps[spec.SpreadDepth:], "")

	prefix := strings.ToLower(strings.Join(spreadComps, ""))
	ivSpec := spreadHash(prefix)

	if !strings.HasSuffix(rest, "."+fileSuffix) {
		return "", 0, csyncerr.New(csyncerr.KindSerdeFailed, "pathmap-inverse",
			fmt.Errorf("ciphertext path %q missing .%s suffix", cipherPath, fileSuffix))
	}
	encoded := strings.TrimSuffix(rest, "."+fileSuffix)

	ciphertext, err := base32PathDecodeAll(encoded)
	if err != nil {
		return "", 0, csyncerr.New(csyncerr.KindSerdeFailed, "pathmap-inverse", err)
	}

	derivedKeyBytes := key.Expose()
	if len(derivedKeyBytes) < cipherKeyLen {
		return "", 0, csyncerr.New(csyncerr.KindOther, "pathmap-inverse",
			fmt.Errorf("derived key too short: need %d bytes, have %d", cipherKeyLen, len(derivedKeyBytes)))
	}
	plain, err := cbcDecryptAll(ciphertext, derivedKeyBytes, ivSpec)
	if err != nil {
		return "", 0, err
	}

	augmented := string(plain)
	augComps := strings.SplitN(augmented, "/", 3)
	if len(augComps) != 3 {
		return "", 0, csyncerr.New(csyncerr.KindSerdeFailed, "pathmap-inverse",
			fmt.Errorf("decrypted augmented path %q does not have pad/marker/rel form", augmented))
	}
	kind, err := parseMarker(augComps[1])
	if err != nil {
		return "", 0, err
	}
	return filepath.FromSlash(augComps[2]), kind, nil
}
