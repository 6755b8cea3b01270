package action

import (
	"bufio"
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"io"

	csyncerr "csyncgo/internal/errors"
)

// Padding bounds for the per-file random prefix and the filler content
// substituted for a directory entry's (nonexistent) body.
const (
	minRandPadLen = 1
	maxRandPadLen = 2048
	padDelimiter  = 0x00
	minDirDataLen = 16
	maxDirDataLen = 1024
)

// randomPadding draws a uniformly random length in [min, max], then that
// many random bytes none of which equal padDelimiter, followed by exactly
// one padDelimiter byte.
func randomPadding(min, max int) ([]byte, error) {
	width := uint64(max - min + 1)
	var lenBuf [8]byte
	if _, err := rand.Read(lenBuf[:]); err != nil {
		return nil, csyncerr.New(csyncerr.KindOther, "random-padding", err)
	}
	n := min + int(binary.BigEndian.Uint64(lenBuf[:])%width)

	out := make([]byte, 0, n+1)
	for len(out) < n {
		chunk := make([]byte, n-len(out))
		if _, err := rand.Read(chunk); err != nil {
			return nil, csyncerr.New(csyncerr.KindOther, "random-padding", err)
		}
		for _, b := range chunk {
			if b != padDelimiter {
				out = append(out, b)
			}
		}
	}
	out = append(out[:n], padDelimiter)
	return out, nil
}

// padPlaintext prepends the random pad and its 0x00 delimiter to source,
// producing the reader codec.BuildEncodeChain expects as its body source.
func padPlaintext(source io.Reader) (io.Reader, error) {
	pad, err := randomPadding(minRandPadLen, maxRandPadLen)
	if err != nil {
		return nil, err
	}
	return io.MultiReader(bytes.NewReader(pad), source), nil
}

// dirFillerReader returns a reader over a random blob of [minDirDataLen,
// maxDirDataLen] bytes, used as the "source" for a directory entry, whose
// on-disk ciphertext otherwise looks exactly like a small file's.
func dirFillerReader() (io.Reader, error) {
	blob, err := randomPadding(minDirDataLen, maxDirDataLen)
	if err != nil {
		return nil, err
	}
	// randomPadding ends its blob with a 0x00 delimiter; drop it so the
	// filler length stays within the stated range.
	return bytes.NewReader(blob[:len(blob)-1]), nil
}

// stripPadding reads and discards bytes up to and including the first
// padDelimiter byte, then returns a reader over whatever remains (the real
// plaintext).
func stripPadding(r io.Reader) (io.Reader, error) {
	br := bufio.NewReader(r)
	if _, err := br.ReadBytes(padDelimiter); err != nil {
		return nil, csyncerr.New(csyncerr.KindSerdeFailed, "strip-padding", err)
	}
	return br, nil
}
