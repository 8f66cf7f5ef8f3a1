package streamio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbukum/streamkit/errors"
	"github.com/kbukum/streamkit/loop"
	"github.com/kbukum/streamkit/stream"
	"github.com/kbukum/streamkit/testutil"
)

func collect(r *stream.Readable) *bytes.Buffer {
	var buf bytes.Buffer
	r.OnData(func(chunk any) { buf.Write(chunk.([]byte)) })
	return &buf
}

func TestFromReader(t *testing.T) {
	l := loop.New()
	r, err := FromReader(l, strings.NewReader("hello streaming world"), stream.WithHighWaterMark(4))
	require.NoError(t, err)

	got := collect(r)
	r.OnEnd(testutil.MustCallFunc(t, 1, nil))

	testutil.RunLoop(t, l)
	assert.Equal(t, "hello streaming world", got.String())
}

func TestFromReader_ZeroReadsKeepGoing(t *testing.T) {
	l := loop.New()
	src := iotest.OneByteReader(strings.NewReader("abc"))
	r, err := FromReader(l, &stutterReader{r: src}, stream.WithHighWaterMark(2))
	require.NoError(t, err)

	got := collect(r)
	r.OnEnd(testutil.MustCallFunc(t, 1, nil))

	testutil.RunLoop(t, l)
	assert.Equal(t, "abc", got.String())
}

func TestFromReader_Error(t *testing.T) {
	l := loop.New()
	boom := fmt.Errorf("disk on fire")
	r, err := FromReader(l, iotest.ErrReader(boom))
	require.NoError(t, err)

	var gotErr error
	r.OnError(testutil.MustCall(t, 1, func(err error) { gotErr = err }))
	r.OnData(testutil.MustNotCall[any](t, "data from a failing reader"))

	testutil.RunLoop(t, l)
	assert.ErrorIs(t, gotErr, boom)
	assert.Equal(t, errors.ErrCodeSourceFailed, errors.CodeOf(gotErr))
	assert.True(t, r.Destroyed())
}

func TestFromReader_ClosesOnDestroy(t *testing.T) {
	l := loop.New()
	rc := &closeTracker{Reader: strings.NewReader("abc")}
	r, err := FromReader(l, rc, stream.WithAutoDestroy())
	require.NoError(t, err)

	collect(r)
	r.OnClose(testutil.MustCallFunc(t, 1, nil))

	testutil.RunLoop(t, l)
	assert.Equal(t, 1, rc.closed)
}

func TestToWriter(t *testing.T) {
	l := loop.New()
	var buf bytes.Buffer
	w, err := ToWriter(l, &buf)
	require.NoError(t, err)

	w.Write("ab", testutil.MustCall(t, 1, func(err error) { assert.NoError(t, err) }))
	w.End([]byte("c"), testutil.MustCall(t, 1, func(err error) { assert.NoError(t, err) }))
	w.OnFinish(testutil.MustCallFunc(t, 1, nil))

	testutil.RunLoop(t, l)
	assert.Equal(t, "abc", buf.String())
}

func TestToWriter_ClosesOnFinish(t *testing.T) {
	l := loop.New()
	wc := &closeTracker{Writer: io.Discard}
	w, err := ToWriter(l, wc)
	require.NoError(t, err)

	w.End("bye", nil)

	testutil.RunLoop(t, l)
	assert.Equal(t, 1, wc.closed)
	assert.True(t, w.IsFinished())
}

func TestToWriter_Error(t *testing.T) {
	l := loop.New()
	boom := fmt.Errorf("pipe broke")
	w, err := ToWriter(l, &failingWriter{err: boom})
	require.NoError(t, err)

	var errs []error
	w.OnError(testutil.MustCall(t, 1, func(err error) { errs = append(errs, err) }))
	w.Write("a", testutil.MustCall(t, 1, func(err error) { errs = append(errs, err) }))
	w.Write("b", testutil.MustCall(t, 1, func(err error) { errs = append(errs, err) }))

	testutil.RunLoop(t, l)
	require.Len(t, errs, 3)
	for _, err := range errs {
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, errors.ErrCodeSinkFailed, errors.CodeOf(err))
	}
}

func TestToWriter_RejectsObjects(t *testing.T) {
	l := loop.New()
	w, err := ToWriter(l, io.Discard, stream.WithObjectMode())
	require.NoError(t, err)

	var gotErr error
	w.OnError(func(err error) { gotErr = err })
	w.Write(42, testutil.MustCall(t, 1, func(err error) {
		assert.Equal(t, errors.ErrCodeInvalidInput, errors.CodeOf(err))
	}))

	testutil.RunLoop(t, l)
	assert.Equal(t, errors.ErrCodeInvalidInput, errors.CodeOf(gotErr))
}

func TestCopy(t *testing.T) {
	payload := strings.Repeat("0123456789", 5000)
	var dst bytes.Buffer

	n, err := Copy(context.Background(), &dst, strings.NewReader(payload), stream.WithHighWaterMark(1024))
	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), n)
	assert.Equal(t, payload, dst.String())
}

func TestCopy_DoesNotClose(t *testing.T) {
	src := &closeTracker{Reader: strings.NewReader("abc")}
	dst := &closeTracker{Writer: io.Discard}

	_, err := Copy(context.Background(), dst, src)
	require.NoError(t, err)
	assert.Zero(t, src.closed)
	assert.Zero(t, dst.closed)
}

func TestCopy_ReaderError(t *testing.T) {
	boom := fmt.Errorf("truncated")
	_, err := Copy(context.Background(), io.Discard, io.MultiReader(strings.NewReader("abc"), iotest.ErrReader(boom)))
	assert.ErrorIs(t, err, boom)
}

func TestCopy_CountsAcceptedBytes(t *testing.T) {
	boom := fmt.Errorf("quota exceeded")
	dst := &limitWriter{limit: 4, err: boom}

	n, err := Copy(context.Background(), dst, strings.NewReader("abcdefgh"), stream.WithHighWaterMark(2))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int64(4), n)
	assert.Equal(t, "abcd", dst.buf.String())
}

// limitWriter accepts limit bytes, then fails.
type limitWriter struct {
	buf   bytes.Buffer
	limit int
	err   error
}

func (w *limitWriter) Write(p []byte) (int, error) {
	room := w.limit - w.buf.Len()
	if room <= 0 {
		return 0, w.err
	}
	if len(p) > room {
		w.buf.Write(p[:room])
		return room, w.err
	}
	return w.buf.Write(p)
}

type closeTracker struct {
	io.Reader
	io.Writer
	closed int
}

func (c *closeTracker) Close() error {
	c.closed++
	return nil
}

type failingWriter struct{ err error }

func (f *failingWriter) Write([]byte) (int, error) { return 0, f.err }

// stutterReader answers every other Read with (0, nil).
type stutterReader struct {
	r     io.Reader
	calls int
}

func (s *stutterReader) Read(p []byte) (int, error) {
	s.calls++
	if s.calls%2 == 1 {
		return 0, nil
	}
	return s.r.Read(p)
}
