package codec

import (
	"io"

	"github.com/klauspost/compress/zstd"
)

// NewZstdEncodeReader compresses upstream at the given level (0..=22,
// clamped to klauspost's supported speed levels) as it is pulled.
func NewZstdEncodeReader(upstream io.Reader, level int) io.Reader {
	return bridgeWriter(upstream, func(w io.Writer) (io.WriteCloser, error) {
		return zstd.NewWriter(w, zstd.WithEncoderLevel(zstdEncoderLevel(level)))
	})
}

func zstdEncoderLevel(level int) zstd.EncoderLevel {
	switch {
	case level <= 1:
		return zstd.SpeedFastest
	case level <= 6:
		return zstd.SpeedDefault
	case level <= 12:
		return zstd.SpeedBetterCompression
	default:
		return zstd.SpeedBestCompression
	}
}

// zstdDecodeReader decompresses upstream as it is pulled.
type zstdDecodeReader struct {
	upstream io.Reader
	dec      *zstd.Decoder
}

// NewZstdDecodeReader wraps upstream, decompressing on Read.
func NewZstdDecodeReader(upstream io.Reader) (*zstdDecodeReader, error) {
	dec, err := zstd.NewReader(upstream)
	if err != nil {
		return nil, err
	}
	return &zstdDecodeReader{upstream: upstream, dec: dec}, nil
}

func (r *zstdDecodeReader) Upstream() io.Reader { return r.upstream }

func (r *zstdDecodeReader) Read(p []byte) (int, error) {
	return r.dec.Read(p)
}

// Close releases the decoder's background resources.
func (r *zstdDecodeReader) Close() {
	r.dec.Close()
}
