// Package codec implements the layered streaming codec chain: compression,
// ciphers, the HMAC authenticator, and binary-to-text encodings, composed as
// io.Reader decorators so the whole pipeline pulls from its upstream one
// buffer at a time regardless of input size.
package codec

import "io"

// Stage is a codec decorator: it reads from an upstream reader and exposes
// an accessor back to it, so state like a MAC can be recovered after the
// stream has fully drained. Most stages in this package satisfy it;
// the pipe-bridged compress/text-encode stages (which run their underlying
// push-based writer on a goroutine) are plain io.Reader since nothing needs
// to reach back through them.
type Stage interface {
	io.Reader
	Upstream() io.Reader
}

// Identity is a passthrough stage, used where the codec table calls for one
// explicitly (e.g. an uncompressed, unencrypted chain for testing).
type Identity struct {
	upstream io.Reader
}

// NewIdentity wraps upstream as a no-op stage.
func NewIdentity(upstream io.Reader) *Identity {
	return &Identity{upstream: upstream}
}

func (id *Identity) Upstream() io.Reader { return id.upstream }

func (id *Identity) Read(p []byte) (int, error) {
	return id.upstream.Read(p)
}
