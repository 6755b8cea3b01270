package codec

import (
	"bytes"
	"fmt"
	"io"

	csyncerr "csyncgo/internal/errors"
	"csyncgo/internal/metaspec"
)

// cipherEncryptReader picks the cipher stage named by spec, wrapping upstream for
// the encrypt direction.
func cipherEncryptReader(upstream io.Reader, spec metaspec.CipherSpec, derivedKey []byte) (io.Reader, error) {
	switch spec.Kind {
	case metaspec.CipherAes256Cbc:
		return NewCbcEncryptReader(upstream, derivedKey, spec.IV)
	case metaspec.CipherChaCha20:
		return NewChaChaEncryptReader(upstream, derivedKey, spec.IV)
	default:
		return nil, csyncerr.New(csyncerr.KindOther, "cipher-encrypt-reader", fmt.Errorf("unknown cipher kind %d", spec.Kind))
	}
}

func cipherDecryptReader(upstream io.Reader, spec metaspec.CipherSpec, derivedKey []byte) (io.Reader, error) {
	switch spec.Kind {
	case metaspec.CipherAes256Cbc:
		return NewCbcDecryptReader(upstream, derivedKey, spec.IV)
	case metaspec.CipherChaCha20:
		return NewChaChaDecryptReader(upstream, derivedKey, spec.IV)
	default:
		return nil, csyncerr.New(csyncerr.KindOther, "cipher-decrypt-reader", fmt.Errorf("unknown cipher kind %d", spec.Kind))
	}
}

// BuildEncodeChain assembles the fixed composition order
// HMAC(prefixBytes ++ Encrypt(Compress(source))). source is expected to
// already be random_pad ++ 0x00 ++ plaintext. prefixBytes is the exact
// serialized SyncerSpec++ActionSpec that precedes the body in the on-disk
// file; it is folded into the same MultiReader the HMAC stage covers so
// the tag authenticates the header alongside the body.
func BuildEncodeChain(source io.Reader, prefixBytes []byte, action *metaspec.ActionSpec, compressor metaspec.CompressorSpec,
	derivedKey, hmacKey []byte,
) (io.Reader, *MacStage, error) {
	compressed := NewZstdEncodeReader(source, compressor.Level)
	encrypted, err := cipherEncryptReader(compressed, action.Cipher, derivedKey)
	if err != nil {
		return nil, nil, err
	}
	combined := io.MultiReader(bytes.NewReader(prefixBytes), encrypted)
	h := newMacStage(combined, hmacKey, nil)
	return h, h, nil
}

// BuildDecodeChain is the mirror of BuildEncodeChain. upstream must be
// positioned immediately after the SyncerSpec/ActionSpec records (i.e. at
// the start of the encrypted-compressed body); rawPrefixBytes are the exact
// bytes already consumed to parse those records, fed into the HMAC
// accumulator before any body byte so the tag covers header and body alike.
func BuildDecodeChain(upstream io.Reader, rawPrefixBytes []byte, action *metaspec.ActionSpec, derivedKey, hmacKey []byte,
) (io.Reader, *MacStage, error) {
	h := newMacStage(upstream, hmacKey, rawPrefixBytes)
	decrypted, err := cipherDecryptReader(h, action.Cipher, derivedKey)
	if err != nil {
		return nil, nil, err
	}
	decompressed, err := NewZstdDecodeReader(decrypted)
	if err != nil {
		return nil, nil, err
	}
	return decompressed, h, nil
}
