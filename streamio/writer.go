package streamio

import (
	"fmt"
	"io"
	"sync"

	"github.com/kbukum/streamkit/errors"
	"github.com/kbukum/streamkit/loop"
	"github.com/kbukum/streamkit/stream"
)

// flusher is implemented by buffered writers such as bufio.Writer.
type flusher interface {
	Flush() error
}

type writerSink struct {
	l *loop.Loop
	w io.Writer

	closeOnce sync.Once
	closeErr  error
}

// ToWriter returns a Writable that writes every chunk to w. On finish w is
// flushed and, if it implements io.Closer, closed.
func ToWriter(l *loop.Loop, w io.Writer, opts ...stream.Option) (*stream.Writable, error) {
	return stream.NewWritable(l, &writerSink{l: l, w: w}, opts...)
}

func (s *writerSink) Write(chunk any, done func(error)) {
	var data []byte
	switch v := chunk.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		done(errors.InvalidInput("chunk", fmt.Sprintf("cannot write %T to an io.Writer", chunk)))
		return
	}
	s.async(func() error {
		_, err := s.w.Write(data)
		return err
	}, done)
}

func (s *writerSink) Final(done func(error)) {
	s.async(func() error {
		if f, ok := s.w.(flusher); ok {
			if err := f.Flush(); err != nil {
				return err
			}
		}
		return s.close()
	}, done)
}

func (s *writerSink) Destroy(error) error {
	return s.close()
}

// close may run on a helper goroutine from Final or on the loop from
// Destroy.
func (s *writerSink) close() error {
	s.closeOnce.Do(func() {
		if c, ok := s.w.(io.Closer); ok {
			s.closeErr = c.Close()
		}
	})
	return s.closeErr
}

// async runs fn on a helper goroutine and reports its result on the loop.
func (s *writerSink) async(fn func() error, done func(error)) {
	s.l.Ref()
	go func() {
		err := fn()
		s.l.Post(func() {
			s.l.Unref()
			done(err)
		})
	}()
}
