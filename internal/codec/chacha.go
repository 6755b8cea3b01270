package codec

import (
	"io"

	"golang.org/x/crypto/chacha20"
)

const chachaKeyLen = 32

// chachaStreamReader streams bytes pulled from upstream through
// ChaCha20's XOR keystream. The operation is its own inverse, so the same
// type backs both the encrypt and decrypt stages.
type chachaStreamReader struct {
	upstream io.Reader
	cipher   *chacha20.Cipher
}

func newChachaStreamReader(upstream io.Reader, derivedKey, ivSpec []byte) (*chachaStreamReader, error) {
	key, nonce, err := deriveCipherKeyAndIV(derivedKey, ivSpec, chachaKeyLen, chacha20.NonceSize)
	if err != nil {
		return nil, err
	}
	c, err := chacha20.NewUnauthenticatedCipher(key, nonce)
	if err != nil {
		return nil, err
	}
	return &chachaStreamReader{upstream: upstream, cipher: c}, nil
}

// NewChaChaEncryptReader builds a ChaCha20 encrypting stage over upstream.
func NewChaChaEncryptReader(upstream io.Reader, derivedKey, ivSpec []byte) (io.Reader, error) {
	return newChachaStreamReader(upstream, derivedKey, ivSpec)
}

// NewChaChaDecryptReader builds a ChaCha20 decrypting stage over upstream.
func NewChaChaDecryptReader(upstream io.Reader, derivedKey, ivSpec []byte) (io.Reader, error) {
	return newChachaStreamReader(upstream, derivedKey, ivSpec)
}

func (r *chachaStreamReader) Upstream() io.Reader { return r.upstream }

func (r *chachaStreamReader) Read(p []byte) (int, error) {
	n, err := r.upstream.Read(p)
	if n > 0 {
		r.cipher.XORKeyStream(p[:n], p[:n])
	}
	return n, err
}
