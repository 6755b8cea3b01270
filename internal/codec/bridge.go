package codec

import (
	"io"

	"csyncgo/internal/util"
)

// bridgeWriter adapts a push-based io.WriteCloser decorator (zstd's
// compressing Encoder, base32/base64's padding Encoder) into a pull-based
// io.Reader: wrap runs on its own goroutine against one end of an in-memory
// pipe while Read on the returned reader drains the other end, so the
// overall chain keeps its single pull-model contract even though the
// underlying library is write-oriented.
func bridgeWriter(upstream io.Reader, wrap func(io.Writer) (io.WriteCloser, error)) io.Reader {
	pr, pw := io.Pipe()
	go func() {
		w, err := wrap(pw)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		buf := util.GetStageBuffer()
		defer util.PutStageBuffer(buf)
		_, copyErr := io.CopyBuffer(w, upstream, buf)
		if closeErr := w.Close(); copyErr == nil {
			copyErr = closeErr
		}
		pw.CloseWithError(copyErr)
	}()
	return pr
}

// nopCloseWriter adapts an io.Writer with no flush requirement (hex's
// encoder) to io.WriteCloser for bridgeWriter.
type nopCloseWriter struct {
	io.Writer
}

func (nopCloseWriter) Close() error { return nil }
