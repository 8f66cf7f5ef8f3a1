package streamio

import (
	"context"
	"io"
	"sync/atomic"

	"github.com/kbukum/streamkit/loop"
	"github.com/kbukum/streamkit/stream"
)

// Copy pipes src into dst on a private loop and returns the number of
// bytes dst accepted. Unlike FromReader and ToWriter it closes neither end.
// Options apply to both streams.
func Copy(ctx context.Context, dst io.Writer, src io.Reader, opts ...stream.Option) (int64, error) {
	l := loop.New()
	opts = append([]stream.Option{stream.WithContext(ctx)}, opts...)

	r, err := FromReader(l, struct{ io.Reader }{src}, opts...)
	if err != nil {
		return 0, err
	}
	cw := &countingWriter{w: dst}
	w, err := ToWriter(l, cw, opts...)
	if err != nil {
		return 0, err
	}

	var result error
	if err := stream.Pipeline(func(err error) { result = err }, r, w); err != nil {
		return 0, err
	}

	if err := l.Run(ctx); err != nil {
		return cw.n.Load(), err
	}
	return cw.n.Load(), result
}

// countingWriter hides any Close or Flush of w and counts accepted bytes.
// Writes happen on the sink goroutine.
type countingWriter struct {
	w io.Writer
	n atomic.Int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n.Add(int64(n))
	return n, err
}
