package resource

import (
	"context"
	"io"
)

// ioChunk bounds a single throttled write so that large artifact buffers
// are released to the sink progressively instead of after one long wait.
const ioChunk = 256 << 10

// RateLimitedWriter throttles writes through a Controller's IO limiter.
// A nil controller passes writes straight through.
type RateLimitedWriter struct {
	ctx     context.Context
	w       io.Writer
	rc      *Controller
	written int64
}

// NewRateLimitedWriter wraps w.
func NewRateLimitedWriter(ctx context.Context, w io.Writer, rc *Controller) *RateLimitedWriter {
	return &RateLimitedWriter{ctx: ctx, w: w, rc: rc}
}

// Write implements io.Writer.
func (w *RateLimitedWriter) Write(p []byte) (int, error) {
	var n int
	for len(p) > 0 {
		chunk := p[:min(len(p), ioChunk)]
		if err := w.rc.AcquireIO(w.ctx, len(chunk)); err != nil {
			return n, err
		}
		m, err := w.w.Write(chunk)
		n += m
		w.written += int64(m)
		if err != nil {
			return n, err
		}
		p = p[m:]
	}
	return n, nil
}

// Written returns the number of bytes passed to the underlying writer.
func (w *RateLimitedWriter) Written() int64 {
	return w.written
}
