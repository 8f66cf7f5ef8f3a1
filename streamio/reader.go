package streamio

import (
	"io"

	"github.com/kbukum/streamkit/config"
	"github.com/kbukum/streamkit/loop"
	"github.com/kbukum/streamkit/stream"
)

// readerSource reads from an io.Reader on a helper goroutine, one read at
// a time.
type readerSource struct {
	l        *loop.Loop
	rd       io.Reader
	inflight bool
	closed   bool
}

// FromReader returns a Readable producing the bytes of rd. rd is closed
// when the stream is destroyed if it implements io.Closer.
func FromReader(l *loop.Loop, rd io.Reader, opts ...stream.Option) (*stream.Readable, error) {
	return stream.NewReadable(l, &readerSource{l: l, rd: rd}, opts...)
}

func (s *readerSource) Read(r *stream.Readable, size int) {
	if s.inflight || s.closed {
		return
	}
	if size <= 0 {
		size = config.DefaultHighWaterMark
	}
	s.inflight = true
	s.l.Ref()

	go func() {
		buf := make([]byte, size)
		n, err := s.rd.Read(buf)
		s.l.Post(func() {
			defer s.l.Unref()
			s.inflight = false
			if s.closed {
				return
			}
			s.deliver(r, buf[:n], err)
		})
	}()
}

func (s *readerSource) deliver(r *stream.Readable, data []byte, err error) {
	// A (0, nil) read still pushes so the stream asks again.
	if len(data) > 0 || err == nil {
		r.Push(data)
	}
	switch {
	case err == io.EOF:
		r.Push(nil)
	case err != nil:
		r.Fail(err)
	}
}

func (s *readerSource) Destroy(error) error {
	if s.closed {
		return nil
	}
	s.closed = true
	if c, ok := s.rd.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
