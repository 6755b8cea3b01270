package codec

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha512"
	"fmt"
	"io"

	csyncerr "csyncgo/internal/errors"
	"csyncgo/internal/util"
)

const aesKeyLen = 32

// deriveCipherKeyAndIV is the key/IV derivation shared by AES-256-CBC and
// ChaCha20: key is the first keyLen bytes of the derived key, IV is the
// first ivLen bytes of SHA-512(ivSpec).
func deriveCipherKeyAndIV(derivedKey, ivSpec []byte, keyLen, ivLen int) ([]byte, []byte, error) {
	if len(derivedKey) < keyLen {
		return nil, nil, fmt.Errorf("codec: derived key too short: need %d bytes, have %d", keyLen, len(derivedKey))
	}
	sum := sha512.Sum512(ivSpec)
	return derivedKey[:keyLen], append([]byte(nil), sum[:ivLen]...), nil
}

// cbcEncryptReader streams plaintext pulled from upstream through
// AES-256-CBC, applying PKCS#7 padding once upstream reaches EOF.
type cbcEncryptReader struct {
	upstream io.Reader
	mode     cipher.BlockMode
	pending  bytes.Buffer
	ready    bytes.Buffer
	srcEOF   bool
	finished bool
	readBuf  []byte
}

// NewCbcEncryptReader builds an AES-256-CBC encrypting stage over upstream.
func NewCbcEncryptReader(upstream io.Reader, derivedKey, ivSpec []byte) (*cbcEncryptReader, error) {
	key, iv, err := deriveCipherKeyAndIV(derivedKey, ivSpec, aesKeyLen, aes.BlockSize)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return &cbcEncryptReader{
		upstream: upstream,
		mode:     cipher.NewCBCEncrypter(block, iv),
		readBuf:  make([]byte, util.DefaultBufferSize),
	}, nil
}

func (r *cbcEncryptReader) Upstream() io.Reader { return r.upstream }

func (r *cbcEncryptReader) Read(p []byte) (int, error) {
	blockSize := r.mode.BlockSize()
	for r.ready.Len() == 0 {
		if r.finished {
			return 0, io.EOF
		}
		if !r.srcEOF {
			n, err := r.upstream.Read(r.readBuf)
			if n > 0 {
				r.pending.Write(r.readBuf[:n])
			}
			switch {
			case err == io.EOF:
				r.srcEOF = true
			case err != nil:
				return 0, err
			}
		}
		for r.pending.Len() >= blockSize {
			block := r.pending.Next(blockSize)
			out := make([]byte, blockSize)
			r.mode.CryptBlocks(out, block)
			r.ready.Write(out)
		}
		if r.srcEOF && !r.finished {
			padLen := blockSize - r.pending.Len()
			padded := make([]byte, r.pending.Len(), r.pending.Len()+padLen)
			copy(padded, r.pending.Bytes())
			for i := 0; i < padLen; i++ {
				padded = append(padded, byte(padLen))
			}
			out := make([]byte, len(padded))
			r.mode.CryptBlocks(out, padded)
			r.ready.Write(out)
			r.pending.Reset()
			r.finished = true
		}
	}
	return r.ready.Read(p)
}

// cbcDecryptReader is the inverse of cbcEncryptReader: it holds back the
// most recently decrypted block until upstream EOF confirms it is the last
// one, then strips its PKCS#7 padding.
type cbcDecryptReader struct {
	upstream  io.Reader
	mode      cipher.BlockMode
	pending   bytes.Buffer
	heldPlain []byte
	ready     bytes.Buffer
	srcEOF    bool
	finished  bool
	readBuf   []byte
}

// NewCbcDecryptReader builds an AES-256-CBC decrypting stage over upstream.
func NewCbcDecryptReader(upstream io.Reader, derivedKey, ivSpec []byte) (*cbcDecryptReader, error) {
	key, iv, err := deriveCipherKeyAndIV(derivedKey, ivSpec, aesKeyLen, aes.BlockSize)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return &cbcDecryptReader{
		upstream: upstream,
		mode:     cipher.NewCBCDecrypter(block, iv),
		readBuf:  make([]byte, util.DefaultBufferSize),
	}, nil
}

func (r *cbcDecryptReader) Upstream() io.Reader { return r.upstream }

func (r *cbcDecryptReader) Read(p []byte) (int, error) {
	blockSize := r.mode.BlockSize()
	for r.ready.Len() == 0 {
		if r.finished {
			return 0, io.EOF
		}
		if !r.srcEOF {
			n, err := r.upstream.Read(r.readBuf)
			if n > 0 {
				r.pending.Write(r.readBuf[:n])
			}
			switch {
			case err == io.EOF:
				r.srcEOF = true
			case err != nil:
				return 0, err
			}
		}
		for r.pending.Len() >= blockSize && (r.pending.Len() > blockSize || r.srcEOF) {
			block := r.pending.Next(blockSize)
			out := make([]byte, blockSize)
			r.mode.CryptBlocks(out, block)
			if r.heldPlain != nil {
				r.ready.Write(r.heldPlain)
			}
			r.heldPlain = out
		}
		if r.srcEOF && r.pending.Len() == 0 {
			if r.heldPlain == nil {
				return 0, csyncerr.New(csyncerr.KindSerdeFailed, "cbc-decrypt", fmt.Errorf("empty ciphertext"))
			}
			stripped, err := stripPkcs7(r.heldPlain, blockSize)
			if err != nil {
				return 0, err
			}
			r.ready.Write(stripped)
			r.heldPlain = nil
			r.finished = true
		} else if r.srcEOF && r.pending.Len() > 0 && r.pending.Len() < blockSize {
			return 0, csyncerr.New(csyncerr.KindSerdeFailed, "cbc-decrypt",
				fmt.Errorf("ciphertext length not a multiple of block size %d", blockSize))
		}
	}
	return r.ready.Read(p)
}

func stripPkcs7(block []byte, blockSize int) ([]byte, error) {
	if len(block) == 0 {
		return nil, csyncerr.New(csyncerr.KindSerdeFailed, "strip-pkcs7", fmt.Errorf("empty final block"))
	}
	padLen := int(block[len(block)-1])
	if padLen == 0 || padLen > blockSize || padLen > len(block) {
		return nil, csyncerr.New(csyncerr.KindSerdeFailed, "strip-pkcs7", fmt.Errorf("invalid padding length %d", padLen))
	}
	for _, b := range block[len(block)-padLen:] {
		if int(b) != padLen {
			return nil, csyncerr.New(csyncerr.KindSerdeFailed, "strip-pkcs7", fmt.Errorf("invalid padding bytes"))
		}
	}
	return block[:len(block)-padLen], nil
}
