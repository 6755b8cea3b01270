package action

import (
	"bytes"
	"context"
	"crypto/rand"
	"io"
	"os"
	"path/filepath"
	"time"

	"csyncgo/internal/codec"
	csyncerr "csyncgo/internal/errors"
	"csyncgo/internal/kdf"
	"csyncgo/internal/metaspec"
	"csyncgo/internal/pathmap"
	"csyncgo/internal/secret"
)

// Action is one source-to-destination mapping: encrypt src (a plaintext
// path) into dest (its .csync path), or decrypt src into dest. Spec carries
// an already-parsed header when the caller has one (DecryptOne re-derives
// it from src regardless, since every .csync file is self-describing).
type Action struct {
	Src  string
	Dest string
	Kind pathmap.EntryKind
	Spec *metaspec.ActionSpec
}

// Result reports what EncryptOne/DecryptOne actually did, for the driver's
// progress aggregation.
type Result struct {
	Src, Dest           string
	SrcBytes, DestBytes int64
}

// Freshness reports whether src needs re-syncing: only when it is strictly
// newer than the existing ciphertext ('>', not '>='), or when no ciphertext
// exists yet.
func Freshness(srcMtime, cipherMtime time.Time, cipherExists bool) bool {
	if !cipherExists {
		return true
	}
	return srcMtime.Sub(cipherMtime) > 0
}

func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, csyncerr.New(csyncerr.KindOther, "random-bytes", err)
	}
	return b, nil
}

// buildActionSpec mints a fresh per-file ActionSpec: a freshly drawn cipher
// IV seed, the source entry's Unix mode bits, and a fresh rehash of
// derivedKey so any single output file can later confirm a candidate
// password without ever touching another file.
func buildActionSpec(syncerSpec *metaspec.SyncerSpec, derivedKey secret.DerivedKey, kind pathmap.EntryKind, src string) (*metaspec.ActionSpec, error) {
	// The recorded IV is SaltLen bytes like every other salt in the spec; the
	// cipher's actual IV is derived from it by hashing, so its length need
	// not match any block or nonce size.
	iv, err := randomBytes(syncerSpec.SaltLen)
	if err != nil {
		return nil, err
	}

	// Mode bits are recorded for directories as well as files, so decrypt
	// restores both. A directory that vanished mid-run is tolerated (its
	// ciphertext just carries no mode); a vanished file is an error.
	var unixMode *uint32
	info, err := os.Stat(src)
	switch {
	case err == nil:
		m := uint32(info.Mode().Perm())
		unixMode = &m
	case kind == pathmap.KindFile:
		return nil, csyncerr.New(csyncerr.KindSourceDoesNotExist, "build-action-spec", err)
	}

	rehashSalt, err := randomBytes(kdf.RehashSaltLen)
	if err != nil {
		return nil, err
	}
	rehash, err := kdf.ComputeRehash(derivedKey, rehashSalt)
	if err != nil {
		return nil, err
	}

	return &metaspec.ActionSpec{
		Cipher:   metaspec.CipherSpec{Kind: syncerSpec.Cipher, IV: iv},
		UnixMode: unixMode,
		Rehash:   rehash,
	}, nil
}

// openSource returns the reader EncryptOne should pull plaintext from: the
// real file's contents for KindFile, or a random filler blob for KindDir, so
// a directory's .csync entry is indistinguishable in shape from a small
// file's.
func openSource(kind pathmap.EntryKind, src string) (io.ReadCloser, error) {
	if kind == pathmap.KindDir {
		r, err := dirFillerReader()
		if err != nil {
			return nil, err
		}
		return io.NopCloser(r), nil
	}
	f, err := os.Open(src)
	if err != nil {
		return nil, csyncerr.New(csyncerr.KindSourceDoesNotExist, "open-source", err)
	}
	return f, nil
}

func mkdirParent(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "/" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return csyncerr.New(csyncerr.KindOther, "mkdir-parent", err)
	}
	return nil
}

// EncryptOne stages a.Src's (padded, compressed, encrypted, MAC'd) body
// under arena's scratch directory for workerIdx, then atomically renames it
// into place at a.Dest. Any failure removes the partial staging file.
func EncryptOne(ctx context.Context, arena *Arena, workerIdx int, a Action, syncerSpec *metaspec.SyncerSpec, derivedKey secret.DerivedKey) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	actionSpec, err := buildActionSpec(syncerSpec, derivedKey, a.Kind, a.Src)
	if err != nil {
		return Result{}, err
	}

	source, err := openSource(a.Kind, a.Src)
	if err != nil {
		return Result{}, err
	}
	defer source.Close()

	padded, err := padPlaintext(source)
	if err != nil {
		return Result{}, err
	}

	stagePath, err := arena.Stage(workerIdx, "encrypt")
	if err != nil {
		return Result{}, err
	}

	result, err := encryptToStaging(padded, stagePath, syncerSpec, actionSpec, derivedKey)
	if err != nil {
		os.Remove(stagePath)
		return Result{}, err
	}

	if err := mkdirParent(a.Dest); err != nil {
		os.Remove(stagePath)
		return Result{}, err
	}
	if err := os.Rename(stagePath, a.Dest); err != nil {
		os.Remove(stagePath)
		return Result{}, csyncerr.New(csyncerr.KindOther, "encrypt-rename", err)
	}

	result.Src = a.Src
	result.Dest = a.Dest
	if a.Kind == pathmap.KindFile {
		if info, statErr := os.Stat(a.Src); statErr == nil {
			result.SrcBytes = info.Size()
		}
	}
	return result, nil
}

func encryptToStaging(source io.Reader, stagePath string, syncerSpec *metaspec.SyncerSpec, actionSpec *metaspec.ActionSpec, derivedKey secret.DerivedKey) (Result, error) {
	fout, err := os.OpenFile(stagePath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return Result{}, csyncerr.New(csyncerr.KindOther, "encrypt-create-staging", err)
	}
	defer fout.Close()

	tagValueOffset, err := metaspec.WriteHeaderPrefix(fout, syncerSpec.Authenticator)
	if err != nil {
		return Result{}, err
	}

	var prefix bytes.Buffer
	if err := metaspec.WriteSyncerAndAction(&prefix, syncerSpec, actionSpec); err != nil {
		return Result{}, err
	}

	chain, mac, err := codec.BuildEncodeChain(source, prefix.Bytes(), actionSpec, syncerSpec.Compressor, derivedKey.Expose(), derivedKey.Expose())
	if err != nil {
		return Result{}, err
	}

	n, err := io.Copy(fout, chain)
	if err != nil {
		return Result{}, csyncerr.New(csyncerr.KindOther, "encrypt-write-body", err)
	}

	tag := mac.Sum()
	if tag == nil {
		return Result{}, csyncerr.New(csyncerr.KindOther, "encrypt-finalize", nil)
	}
	if err := metaspec.PatchAuthTag(fout, tagValueOffset, tag); err != nil {
		return Result{}, err
	}

	return Result{DestBytes: n}, nil
}

// DecryptOne reads a.Src's header to recover that file's own ActionSpec
// (every .csync file is self-describing), verifies the rehash before
// touching the body, drains the decode chain into staging, and only renames
// into place once the HMAC tag verifies. A tag mismatch removes the
// staging file and returns KindAuthenticationFail — the ciphertext is never
// trusted into its final location unverified.
func DecryptOne(ctx context.Context, arena *Arena, workerIdx int, a Action, syncerSpec *metaspec.SyncerSpec, derivedKey secret.DerivedKey) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	fin, err := os.Open(a.Src)
	if err != nil {
		return Result{}, csyncerr.New(csyncerr.KindSourceDoesNotExist, "decrypt-open-src", err)
	}
	defer fin.Close()

	dec := metaspec.NewDecoder(fin)
	if _, err := metaspec.DecodeAuthenticatorSpec(dec); err != nil {
		return Result{}, err
	}
	tag, err := dec.ReadBytes()
	if err != nil {
		return Result{}, csyncerr.New(csyncerr.KindSerdeFailed, "decrypt-read-tag", err)
	}
	if len(tag) != metaspec.AuthTagLen {
		return Result{}, csyncerr.New(csyncerr.KindSerdeFailed, "decrypt-read-tag", nil)
	}

	fileSyncer, fileAction, raw, err := metaspec.ReadSyncerAndActionWithRaw(fin)
	if err != nil {
		return Result{}, err
	}
	_ = fileSyncer // each file carries its own copy; the run-level spec already matched via discovery

	if !kdf.VerifyRehash(derivedKey, fileAction.Rehash) {
		return Result{}, csyncerr.New(csyncerr.KindAuthenticationFail, "decrypt-verify-rehash", nil)
	}

	chain, mac, err := codec.BuildDecodeChain(fin, raw, fileAction, derivedKey.Expose(), derivedKey.Expose())
	if err != nil {
		return Result{}, err
	}
	// A modified body usually surfaces as a decode error before the tag is
	// compared; in that case drain the MAC stage and report a tag mismatch as
	// an authentication failure.
	decodeFailed := func(err error) error {
		if _, drainErr := io.Copy(io.Discard, mac); drainErr == nil && !mac.Verify(tag) {
			return csyncerr.New(csyncerr.KindAuthenticationFail, "decrypt-verify-tag", err)
		}
		return err
	}
	stripped, err := stripPadding(chain)
	if err != nil {
		return Result{}, decodeFailed(err)
	}

	stagePath, err := arena.Stage(workerIdx, "decrypt")
	if err != nil {
		return Result{}, err
	}

	var destBytes int64
	switch a.Kind {
	case pathmap.KindDir:
		destBytes, err = io.Copy(io.Discard, stripped)
	default:
		destBytes, err = drainToStaging(stripped, stagePath)
	}
	if err != nil {
		os.Remove(stagePath)
		return Result{}, decodeFailed(err)
	}

	// The decompressor may leave trailing ciphertext unread once its frame
	// ends; the tag covers every post-header byte, so drain the MAC stage to
	// EOF before comparing.
	if _, err := io.Copy(io.Discard, mac); err != nil {
		os.Remove(stagePath)
		return Result{}, csyncerr.New(csyncerr.KindOther, "decrypt-drain-mac", err)
	}

	if !mac.Verify(tag) {
		os.Remove(stagePath)
		return Result{}, csyncerr.New(csyncerr.KindAuthenticationFail, "decrypt-verify-tag", nil)
	}

	if err := mkdirParent(a.Dest); err != nil {
		os.Remove(stagePath)
		return Result{}, err
	}

	switch a.Kind {
	case pathmap.KindDir:
		os.Remove(stagePath)
		if err := os.MkdirAll(a.Dest, 0o700); err != nil {
			return Result{}, csyncerr.New(csyncerr.KindOther, "decrypt-mkdir", err)
		}
		if err := chmodIfSet(a.Dest, fileAction.UnixMode); err != nil {
			return Result{}, err
		}
	default:
		if err := chmodIfSet(stagePath, fileAction.UnixMode); err != nil {
			os.Remove(stagePath)
			return Result{}, err
		}
		if err := os.Rename(stagePath, a.Dest); err != nil {
			os.Remove(stagePath)
			return Result{}, csyncerr.New(csyncerr.KindOther, "decrypt-rename", err)
		}
	}

	srcInfo, err := os.Stat(a.Src)
	var srcBytes int64
	if err == nil {
		srcBytes = srcInfo.Size()
	}

	return Result{Src: a.Src, Dest: a.Dest, SrcBytes: srcBytes, DestBytes: destBytes}, nil
}

func drainToStaging(r io.Reader, stagePath string) (int64, error) {
	fout, err := os.OpenFile(stagePath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return 0, csyncerr.New(csyncerr.KindOther, "decrypt-create-staging", err)
	}
	defer fout.Close()
	n, err := io.Copy(fout, r)
	if err != nil {
		return n, csyncerr.New(csyncerr.KindOther, "decrypt-write-body", err)
	}
	return n, nil
}

func chmodIfSet(path string, mode *uint32) error {
	if mode == nil {
		return nil
	}
	if err := os.Chmod(path, os.FileMode(*mode)); err != nil {
		return csyncerr.New(csyncerr.KindOther, "chmod", err)
	}
	return nil
}
