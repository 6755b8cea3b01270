package codec

import (
	"bytes"
	"io"
	"testing"

	"csyncgo/internal/metaspec"
)

func buildChainFixture(t *testing.T, cipherKind metaspec.CipherKind) (*metaspec.ActionSpec, []byte, []byte) {
	t.Helper()
	derivedKey := randomBytes(t, 64)
	prefixBytes := []byte("fake-serialized-syncer-and-action-spec")
	iv := randomBytes(t, 12)
	action := &metaspec.ActionSpec{
		Cipher: metaspec.CipherSpec{Kind: cipherKind, IV: iv},
	}
	return action, derivedKey, prefixBytes
}

func runChainRoundTrip(t *testing.T, cipherKind metaspec.CipherKind, plaintext []byte) {
	t.Helper()
	action, derivedKey, prefixBytes := buildChainFixture(t, cipherKind)
	compressor := metaspec.CompressorSpec{Level: 6}

	encChain, encHmac, err := BuildEncodeChain(bytes.NewReader(plaintext), prefixBytes, action, compressor, derivedKey, derivedKey)
	if err != nil {
		t.Fatalf("BuildEncodeChain: %v", err)
	}
	onDisk, err := io.ReadAll(encChain)
	if err != nil {
		t.Fatalf("drain encode chain: %v", err)
	}
	tag := encHmac.Sum()
	if tag == nil {
		t.Fatal("expected a tag after draining the encode chain")
	}

	if len(onDisk) < len(prefixBytes) || !bytes.Equal(onDisk[:len(prefixBytes)], prefixBytes) {
		t.Fatal("expected the HMAC-covered stream to start with the prefix bytes")
	}
	body := onDisk[len(prefixBytes):]

	decChain, decHmac, err := BuildDecodeChain(bytes.NewReader(body), prefixBytes, action, derivedKey, derivedKey)
	if err != nil {
		t.Fatalf("BuildDecodeChain: %v", err)
	}
	got, err := io.ReadAll(decChain)
	if err != nil {
		t.Fatalf("drain decode chain: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("chain round trip mismatch: got %d bytes, want %d", len(got), len(plaintext))
	}
	if !decHmac.Verify(tag) {
		t.Fatal("recomputed tag should verify against the one produced on encode")
	}
}

func TestChainRoundTripAesCbc(t *testing.T) {
	runChainRoundTrip(t, metaspec.CipherAes256Cbc, bytes.Repeat([]byte("payload bytes "), 500))
}

func TestChainRoundTripChaCha20(t *testing.T) {
	runChainRoundTrip(t, metaspec.CipherChaCha20, bytes.Repeat([]byte("payload bytes "), 500))
}

func TestChainRoundTripEmptySource(t *testing.T) {
	runChainRoundTrip(t, metaspec.CipherAes256Cbc, nil)
}

func TestChainDecodeDetectsTamperedBody(t *testing.T) {
	action, derivedKey, prefixBytes := buildChainFixture(t, metaspec.CipherAes256Cbc)
	compressor := metaspec.CompressorSpec{Level: 3}
	plaintext := []byte("detect any tampering with the body bytes")

	encChain, encHmac, err := BuildEncodeChain(bytes.NewReader(plaintext), prefixBytes, action, compressor, derivedKey, derivedKey)
	if err != nil {
		t.Fatalf("BuildEncodeChain: %v", err)
	}
	onDisk, err := io.ReadAll(encChain)
	if err != nil {
		t.Fatalf("drain encode chain: %v", err)
	}
	tag := encHmac.Sum()
	body := append([]byte(nil), onDisk[len(prefixBytes):]...)
	body[len(body)-1] ^= 0xFF

	decChain, decHmac, err := BuildDecodeChain(bytes.NewReader(body), prefixBytes, action, derivedKey, derivedKey)
	if err != nil {
		t.Fatalf("BuildDecodeChain: %v", err)
	}
	_, _ = io.ReadAll(decChain)
	if decHmac.Verify(tag) {
		t.Fatal("expected Verify to fail after tampering with the body")
	}
}
