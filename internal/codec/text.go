package codec

import (
	"encoding/base32"
	"encoding/base64"
	"encoding/hex"
	"io"
)

// Base32Path is the lowercase, slash-free alphabet used for spread hashes
// and obfuscated paths. Every symbol (padding included) is legal in a
// filename on common filesystems.
var Base32Path = base32.NewEncoding("abcdefghijklmnopqrstuvwxyz012345").WithPadding('_')

// NewBase32PathEncodeReader text-encodes bytes pulled from upstream.
func NewBase32PathEncodeReader(upstream io.Reader) io.Reader {
	return bridgeWriter(upstream, func(w io.Writer) (io.WriteCloser, error) {
		return base32.NewEncoder(Base32Path, w), nil
	})
}

// NewBase32PathDecodeReader decodes text pulled from upstream back to bytes.
func NewBase32PathDecodeReader(upstream io.Reader) io.Reader {
	return base32.NewDecoder(Base32Path, upstream)
}

// NewBase64EncodeReader text-encodes bytes pulled from upstream.
func NewBase64EncodeReader(upstream io.Reader) io.Reader {
	return bridgeWriter(upstream, func(w io.Writer) (io.WriteCloser, error) {
		return base64.NewEncoder(base64.StdEncoding, w), nil
	})
}

// NewBase64DecodeReader decodes text pulled from upstream back to bytes.
func NewBase64DecodeReader(upstream io.Reader) io.Reader {
	return base64.NewDecoder(base64.StdEncoding, upstream)
}

// NewHexEncodeReader text-encodes bytes pulled from upstream.
func NewHexEncodeReader(upstream io.Reader) io.Reader {
	return bridgeWriter(upstream, func(w io.Writer) (io.WriteCloser, error) {
		return nopCloseWriter{hex.NewEncoder(w)}, nil
	})
}

// NewHexDecodeReader decodes text pulled from upstream back to bytes.
func NewHexDecodeReader(upstream io.Reader) io.Reader {
	return hex.NewDecoder(upstream)
}
