package codec

import (
	"crypto/hmac"
	"crypto/sha512"
	"crypto/subtle"
	"hash"
	"io"
)

// MacStage is a passthrough that accumulates an HMAC-SHA-512 context over
// every byte pulled from upstream, in both directions: on encode it covers
// the prefix records plus the encrypted-compressed body; on decode it
// recomputes the same tag over the same bytes so it can be compared
// against the one recorded in the header.
type MacStage struct {
	upstream io.Reader
	mac      hash.Hash
	sum      []byte
}

// newMacStage builds a MacStage keyed by key. primed, if non-empty, is
// written into the mac before any upstream byte is pulled — used to cover
// header bytes that were parsed (and so already consumed from the
// underlying reader) before the stage was constructed.
func newMacStage(upstream io.Reader, key, primed []byte) *MacStage {
	mac := hmac.New(sha512.New, key)
	if len(primed) > 0 {
		mac.Write(primed)
	}
	return &MacStage{upstream: upstream, mac: mac}
}

func (h *MacStage) Upstream() io.Reader { return h.upstream }

func (h *MacStage) Read(p []byte) (int, error) {
	n, err := h.upstream.Read(p)
	if n > 0 {
		h.mac.Write(p[:n])
	}
	if err == io.EOF && h.sum == nil {
		h.sum = h.mac.Sum(nil)
	}
	return n, err
}

// Sum returns the accumulated tag. It is nil until upstream has returned
// io.EOF at least once.
func (h *MacStage) Sum() []byte {
	return h.sum
}

// Verify compares want against the accumulated tag in constant time.
// Returns false (never panics) if the stage has not yet drained.
func (h *MacStage) Verify(want []byte) bool {
	if h.sum == nil || len(h.sum) != len(want) {
		return false
	}
	return subtle.ConstantTimeCompare(h.sum, want) == 1
}
