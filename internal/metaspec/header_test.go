package metaspec

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"csyncgo/internal/kdf"
)

func testSyncerSpec(t *testing.T) *SyncerSpec {
	t.Helper()
	spec, err := NewSyncerSpec(ModeEncrypt, AuthenticatorSpec{Kind: AuthenticatorHmacSha512}, CipherAes256Cbc,
		CompressorSpec{Level: 3}, NewKeyDerivScrypt(kdf.NewScryptSpec(12, 8, 1, make([]byte, 64), 64)),
		make([]byte, 64), 10, 64, "/src", "/out", false)
	if err != nil {
		t.Fatalf("NewSyncerSpec: %v", err)
	}
	return spec
}

func testActionSpec() *ActionSpec {
	return &ActionSpec{
		Cipher: CipherSpec{Kind: CipherAes256Cbc, IV: bytes.Repeat([]byte{0x07}, 16)},
		Rehash: kdf.RehashSpec{Salt: bytes.Repeat([]byte{0x08}, 64), Output: bytes.Repeat([]byte{0x09}, 64)},
	}
}

func TestHeaderWriteAndReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sample.csync")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	tagOffset, err := WriteHeaderPrefix(f, AuthenticatorSpec{Kind: AuthenticatorHmacSha512})
	if err != nil {
		t.Fatalf("WriteHeaderPrefix: %v", err)
	}

	syncer := testSyncerSpec(t)
	action := testActionSpec()
	if err := WriteSyncerAndAction(f, syncer, action); err != nil {
		t.Fatalf("WriteSyncerAndAction: %v", err)
	}
	if _, err := f.Write([]byte("fake ciphertext body")); err != nil {
		t.Fatalf("Write body: %v", err)
	}

	realTag := bytes.Repeat([]byte{0xAB}, AuthTagLen)
	if err := PatchAuthTag(f, tagOffset, realTag); err != nil {
		t.Fatalf("PatchAuthTag: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	rf, err := os.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rf.Close()

	header, err := ReadHeader(rf)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if !bytes.Equal(header.AuthTag, realTag) {
		t.Error("patched auth tag did not round-trip")
	}
	if header.Syncer.SpreadDepth != syncer.SpreadDepth || header.Syncer.Source != syncer.Source {
		t.Errorf("syncer spec mismatch: got %+v", header.Syncer)
	}
	if !bytes.Equal(header.Action.Cipher.IV, action.Cipher.IV) {
		t.Error("action spec cipher IV mismatch")
	}

	rest, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.HasSuffix(rest, []byte("fake ciphertext body")) {
		t.Error("body bytes were not preserved after patching the tag")
	}
}

func TestReadSyncerAndActionWithRawCapturesExactBytes(t *testing.T) {
	var buf bytes.Buffer
	syncer := testSyncerSpec(t)
	action := testActionSpec()
	if err := WriteSyncerAndAction(&buf, syncer, action); err != nil {
		t.Fatalf("WriteSyncerAndAction: %v", err)
	}
	want := append([]byte(nil), buf.Bytes()...)

	gotSyncer, gotAction, raw, err := ReadSyncerAndActionWithRaw(&buf)
	if err != nil {
		t.Fatalf("ReadSyncerAndActionWithRaw: %v", err)
	}
	if !bytes.Equal(raw, want) {
		t.Error("raw bytes did not match exactly what was written")
	}
	if gotSyncer.Source != syncer.Source || gotAction.Cipher.Kind != action.Cipher.Kind {
		t.Error("decoded values did not match what was written")
	}
}
