package action

import (
	"bytes"
	"context"
	"crypto/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	csyncerr "csyncgo/internal/errors"
	"csyncgo/internal/kdf"
	"csyncgo/internal/metaspec"
	"csyncgo/internal/pathmap"
	"csyncgo/internal/secret"
)

func randomTestBytes(t *testing.T, n int) []byte {
	t.Helper()
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}
	return b
}

func testDerivedKey(t *testing.T) secret.DerivedKey {
	t.Helper()
	return secret.NewDerivedKey(randomTestBytes(t, 64))
}

func testSyncerSpec(t *testing.T, cipher metaspec.CipherKind) *metaspec.SyncerSpec {
	t.Helper()
	keyDeriv := metaspec.NewKeyDerivPbkdf2(kdf.NewPbkdf2Spec(kdf.HmacSha512, 4096, randomTestBytes(t, 16), 64))
	spec, err := metaspec.NewSyncerSpec(
		metaspec.ModeEncrypt,
		metaspec.AuthenticatorSpec{Kind: metaspec.AuthenticatorHmacSha512},
		cipher,
		metaspec.CompressorSpec{Level: 3},
		keyDeriv,
		randomTestBytes(t, 64),
		8,
		64,
		"/src",
		"/out",
		false,
	)
	if err != nil {
		t.Fatalf("NewSyncerSpec: %v", err)
	}
	return spec
}

func TestFreshness(t *testing.T) {
	now := time.Now()
	earlier := now.Add(-time.Hour)
	later := now.Add(time.Hour)

	if !Freshness(now, time.Time{}, false) {
		t.Error("no existing ciphertext should always be fresh")
	}
	if Freshness(earlier, now, true) {
		t.Error("src strictly older than ciphertext should not be fresh")
	}
	if Freshness(now, now, true) {
		t.Error("equal mtimes should not be fresh (strict >, not >=)")
	}
	if !Freshness(later, now, true) {
		t.Error("src strictly newer than ciphertext should be fresh")
	}
}

func runEncryptDecryptFileRoundTrip(t *testing.T, cipher metaspec.CipherKind) {
	t.Helper()
	srcDir := t.TempDir()
	outDir := t.TempDir()
	restoreDir := t.TempDir()
	arenaDir := t.TempDir()

	content := bytes.Repeat([]byte("round trip content "), 200)
	srcPath := filepath.Join(srcDir, "hello.txt")
	if err := os.WriteFile(srcPath, content, 0o640); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	syncerSpec := testSyncerSpec(t, cipher)
	key := testDerivedKey(t)
	arena, err := NewArena(arenaDir)
	if err != nil {
		t.Fatalf("NewArena: %v", err)
	}
	defer arena.Close()

	cipherPath := filepath.Join(outDir, "hello.csync")
	encRes, err := EncryptOne(context.Background(), arena, 0, Action{
		Src: srcPath, Dest: cipherPath, Kind: pathmap.KindFile,
	}, syncerSpec, key)
	if err != nil {
		t.Fatalf("EncryptOne: %v", err)
	}
	if encRes.DestBytes == 0 {
		t.Fatal("expected a nonzero ciphertext size")
	}
	if _, err := os.Stat(cipherPath); err != nil {
		t.Fatalf("ciphertext not written: %v", err)
	}

	restoredPath := filepath.Join(restoreDir, "hello.txt")
	decRes, err := DecryptOne(context.Background(), arena, 0, Action{
		Src: cipherPath, Dest: restoredPath, Kind: pathmap.KindFile,
	}, syncerSpec, key)
	if err != nil {
		t.Fatalf("DecryptOne: %v", err)
	}
	if decRes.DestBytes != int64(len(content)) {
		t.Fatalf("decrypted size = %d, want %d", decRes.DestBytes, len(content))
	}

	got, err := os.ReadFile(restoredPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Fatal("round-tripped content does not match original")
	}

	info, err := os.Stat(restoredPath)
	if err != nil {
		t.Fatalf("Stat restored: %v", err)
	}
	if info.Mode().Perm() != 0o640 {
		t.Fatalf("restored mode = %o, want %o", info.Mode().Perm(), 0o640)
	}
}

func TestEncryptDecryptFileRoundTripAesCbc(t *testing.T) {
	runEncryptDecryptFileRoundTrip(t, metaspec.CipherAes256Cbc)
}

func TestEncryptDecryptFileRoundTripChaCha20(t *testing.T) {
	runEncryptDecryptFileRoundTrip(t, metaspec.CipherChaCha20)
}

func TestEncryptDecryptDirRoundTrip(t *testing.T) {
	srcDir := t.TempDir()
	outDir := t.TempDir()
	restoreDir := t.TempDir()
	arenaDir := t.TempDir()

	srcPath := filepath.Join(srcDir, "subdir")
	if err := os.Mkdir(srcPath, 0o700); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	if err := os.Chmod(srcPath, 0o750); err != nil {
		t.Fatalf("Chmod: %v", err)
	}

	syncerSpec := testSyncerSpec(t, metaspec.CipherAes256Cbc)
	key := testDerivedKey(t)
	arena, err := NewArena(arenaDir)
	if err != nil {
		t.Fatalf("NewArena: %v", err)
	}
	defer arena.Close()

	cipherPath := filepath.Join(outDir, "subdir.csync")
	if _, err := EncryptOne(context.Background(), arena, 0, Action{
		Src: srcPath, Dest: cipherPath, Kind: pathmap.KindDir,
	}, syncerSpec, key); err != nil {
		t.Fatalf("EncryptOne(dir): %v", err)
	}

	restoredPath := filepath.Join(restoreDir, "subdir")
	if _, err := DecryptOne(context.Background(), arena, 0, Action{
		Src: cipherPath, Dest: restoredPath, Kind: pathmap.KindDir,
	}, syncerSpec, key); err != nil {
		t.Fatalf("DecryptOne(dir): %v", err)
	}

	info, err := os.Stat(restoredPath)
	if err != nil {
		t.Fatalf("Stat restored dir: %v", err)
	}
	if !info.IsDir() {
		t.Fatal("expected a directory at the restored path")
	}
	if info.Mode().Perm() != 0o750 {
		t.Fatalf("restored dir mode = %o, want %o", info.Mode().Perm(), 0o750)
	}
}

func TestDecryptOneRejectsTamperedBody(t *testing.T) {
	srcDir := t.TempDir()
	outDir := t.TempDir()
	restoreDir := t.TempDir()
	arenaDir := t.TempDir()

	srcPath := filepath.Join(srcDir, "a.txt")
	if err := os.WriteFile(srcPath, []byte("some content to tamper with"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	syncerSpec := testSyncerSpec(t, metaspec.CipherAes256Cbc)
	key := testDerivedKey(t)
	arena, err := NewArena(arenaDir)
	if err != nil {
		t.Fatalf("NewArena: %v", err)
	}
	defer arena.Close()

	cipherPath := filepath.Join(outDir, "a.csync")
	if _, err := EncryptOne(context.Background(), arena, 0, Action{
		Src: srcPath, Dest: cipherPath, Kind: pathmap.KindFile,
	}, syncerSpec, key); err != nil {
		t.Fatalf("EncryptOne: %v", err)
	}

	raw, err := os.ReadFile(cipherPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	raw[len(raw)-1] ^= 0xFF
	if err := os.WriteFile(cipherPath, raw, 0o600); err != nil {
		t.Fatalf("WriteFile tampered: %v", err)
	}

	restoredPath := filepath.Join(restoreDir, "a.txt")
	_, err = DecryptOne(context.Background(), arena, 0, Action{
		Src: cipherPath, Dest: restoredPath, Kind: pathmap.KindFile,
	}, syncerSpec, key)
	if err == nil {
		t.Fatal("expected an error decrypting a tampered ciphertext")
	}
	if csyncerr.KindOf(err) != csyncerr.KindAuthenticationFail {
		t.Fatalf("KindOf(err) = %v, want KindAuthenticationFail", csyncerr.KindOf(err))
	}
	if _, err := os.Stat(restoredPath); !os.IsNotExist(err) {
		t.Fatal("tampered ciphertext should not have been renamed into place")
	}
}

func TestDecryptOneRejectsWrongKey(t *testing.T) {
	srcDir := t.TempDir()
	outDir := t.TempDir()
	restoreDir := t.TempDir()
	arenaDir := t.TempDir()

	srcPath := filepath.Join(srcDir, "a.txt")
	if err := os.WriteFile(srcPath, []byte("content"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	syncerSpec := testSyncerSpec(t, metaspec.CipherAes256Cbc)
	key := testDerivedKey(t)
	wrongKey := testDerivedKey(t)
	arena, err := NewArena(arenaDir)
	if err != nil {
		t.Fatalf("NewArena: %v", err)
	}
	defer arena.Close()

	cipherPath := filepath.Join(outDir, "a.csync")
	if _, err := EncryptOne(context.Background(), arena, 0, Action{
		Src: srcPath, Dest: cipherPath, Kind: pathmap.KindFile,
	}, syncerSpec, key); err != nil {
		t.Fatalf("EncryptOne: %v", err)
	}

	_, err = DecryptOne(context.Background(), arena, 0, Action{
		Src: cipherPath, Dest: filepath.Join(restoreDir, "a.txt"), Kind: pathmap.KindFile,
	}, syncerSpec, wrongKey)
	if csyncerr.KindOf(err) != csyncerr.KindAuthenticationFail {
		t.Fatalf("KindOf(err) = %v, want KindAuthenticationFail", csyncerr.KindOf(err))
	}
}
