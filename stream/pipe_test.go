package stream

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/kbukum/streamkit/event"
	"github.com/kbukum/streamkit/loop"
	"github.com/kbukum/streamkit/observability"
	"github.com/kbukum/streamkit/testutil"
)

// counterSource pushes n copies of chunk, then ends.
func counterSource(n int, chunk string) SourceFunc {
	return func(r *Readable, _ int) {
		if n == 0 {
			r.Push(nil)
			return
		}
		n--
		r.Push(chunk)
	}
}

// A pipe whose destination stalls must keep the source flowing for other
// data listeners once it is unpiped.
func TestPipe_FlowAfterUnpipe(t *testing.T) {
	l := loop.New()

	var rs *Readable
	reads := 0
	rs = mustReadable(t, l, SourceFunc(func(*Readable, int) {
		reads++
		rs.Push("foo")
	}), WithHighWaterMark(1))

	var ws *Writable
	write := testutil.MustCall(t, 1, func(any) {
		l.SetImmediate(func() { rs.Unpipe(ws) })
	})
	// The write never completes.
	ws = mustWritable(t, l, SinkFunc(func(chunk any, _ func(error)) { write(chunk) }), WithHighWaterMark(1))

	chunks := 0
	rs.OnData(func(any) {
		chunks++
		if chunks >= 20 {
			rs.Pause()
		}
	})
	rs.Pipe(ws)

	l.RunUntilIdle()
	assert.GreaterOrEqual(t, reads, 20)
	assert.Equal(t, 20, chunks)
	assert.True(t, rs.IsPaused())
}

func newErrorHandlingPair(t *testing.T, l *loop.Loop) (*Readable, *Writable, *[]*Writable) {
	t.Helper()
	count := 1000
	var source *Readable
	source = mustReadable(t, l, SourceFunc(func(_ *Readable, n int) {
		n = min(count, n)
		count -= n
		source.Push(make([]byte, n))
	}))
	var unpiped []*Writable
	source.InterceptUnpipe(func(dest *Writable, next func(*Writable)) {
		unpiped = append(unpiped, dest)
		next(dest)
	})

	dest := mustWritable(t, l, SinkFunc(func(_ any, done func(error)) { done(nil) }))
	source.Pipe(dest)
	return source, dest, &unpiped
}

func TestPipe_ErrorHandling(t *testing.T) {
	t.Run("handled by destination listener", func(t *testing.T) {
		l := loop.New()
		source, dest, unpiped := newErrorHandlingPair(t, l)

		var gotErr error
		dest.OnError(func(err error) { gotErr = err })
		var unpipedSource *Readable
		dest.OnUnpipe(func(src *Readable) { unpipedSource = src })

		err := fmt.Errorf("this stream turned into bacon")
		dest.Emit(event.Error, err)

		assert.Same(t, err, gotErr)
		assert.Same(t, source, unpipedSource)
		assert.Equal(t, []*Writable{dest}, *unpiped)
		assert.Zero(t, dest.ListenerCount(event.Drain), "coupling listeners are gone")
		assert.Zero(t, source.ListenerCount(event.Data))
	})

	t.Run("unhandled error is raised after teardown", func(t *testing.T) {
		l := loop.New()
		source, dest, unpiped := newErrorHandlingPair(t, l)

		var unpipedSource *Readable
		dest.OnUnpipe(func(src *Readable) { unpipedSource = src })

		err := fmt.Errorf("this stream turned into bacon")
		assert.PanicsWithValue(t, err, func() { dest.Emit(event.Error, err) })

		assert.Same(t, source, unpipedSource)
		assert.Equal(t, []*Writable{dest}, *unpiped)
	})
}

func TestPipe_BackpressureAndEnd(t *testing.T) {
	l := loop.New()
	src := mustReadable(t, l, counterSource(10, "abcd"), WithHighWaterMark(8))
	sink := &asyncSink{l: l}
	dest := mustWritable(t, l, sink, WithHighWaterMark(8))

	pauses := 0
	src.On(event.Pause, func(any) { pauses++ })
	dest.OnPipe(testutil.MustCall(t, 1, func(r *Readable) { assert.Same(t, src, r) }))
	dest.OnUnpipe(testutil.MustCall(t, 1, func(r *Readable) { assert.Same(t, src, r) }))
	dest.OnFinish(testutil.MustCallFunc(t, 1, nil))

	assert.Same(t, dest, src.Pipe(dest))
	l.RunUntilIdle()

	assert.Equal(t, strings.Repeat("abcd", 10), strings.Join(sink.chunks, ""))
	assert.Positive(t, pauses, "a slow destination pauses the source")
	assert.True(t, src.EndEmitted())
	assert.True(t, dest.IsFinished())
	assert.Empty(t, src.pipes)
	assert.Empty(t, dest.sources)
}

func TestPipe_WithEndFalse(t *testing.T) {
	l := loop.New()
	src := mustReadable(t, l, counterSource(2, "x"))
	dest := mustWritable(t, l, nil)
	dest.OnFinish(testutil.MustNotCallFunc(t, "destination stays open"))

	src.Pipe(dest, WithEnd(false))
	l.RunUntilIdle()

	assert.True(t, src.EndEmitted())
	assert.False(t, dest.Ended())
	assert.Empty(t, src.pipes)
}

func TestPipe_AfterEndEmitted(t *testing.T) {
	l := loop.New()
	src := mustReadable(t, l, nil)
	src.Push(nil)
	src.Resume()
	l.RunUntilIdle()
	require.True(t, src.EndEmitted())

	dest := mustWritable(t, l, nil)
	dest.OnFinish(testutil.MustCallFunc(t, 1, nil))
	src.Pipe(dest)
	l.RunUntilIdle()
}

func TestPipe_DuplicateIsNoop(t *testing.T) {
	l := loop.New()
	src := mustReadable(t, l, counterSource(3, "x"))
	var writes int
	dest := mustWritable(t, l, SinkFunc(func(_ any, done func(error)) {
		writes++
		done(nil)
	}))
	dest.OnPipe(testutil.MustCall[*Readable](t, 1, nil))

	src.Pipe(dest)
	src.Pipe(dest)
	l.RunUntilIdle()

	assert.Equal(t, 3, writes)
}

func TestPipe_FanOutSlowDestinationPausesSource(t *testing.T) {
	l := loop.New()
	src := mustReadable(t, l, counterSource(100, "x"), WithHighWaterMark(4))

	var fastGot int
	fast := mustWritable(t, l, SinkFunc(func(_ any, done func(error)) {
		fastGot++
		done(nil)
	}))
	var pending []func(error)
	slow := mustWritable(t, l, SinkFunc(func(_ any, done func(error)) {
		pending = append(pending, done)
	}), WithHighWaterMark(1))

	src.Pipe(fast)
	src.Pipe(slow)
	l.RunUntilIdle()

	assert.Equal(t, 1, fastGot, "one saturated destination throttles all")
	assert.True(t, src.IsPaused())
	assert.Equal(t, 4, src.Len())

	pending[0](nil)
	l.RunUntilIdle()
	assert.Greater(t, fastGot, 1)
}

func TestPipe_UnpipeAll(t *testing.T) {
	l := loop.New()
	src := mustReadable(t, l, nil)
	a := mustWritable(t, l, nil)
	b := mustWritable(t, l, nil)
	a.OnUnpipe(testutil.MustCall[*Readable](t, 1, nil))
	b.OnUnpipe(testutil.MustCall[*Readable](t, 1, nil))

	src.Pipe(a)
	src.Pipe(b)
	src.Unpipe(nil)

	assert.Empty(t, src.pipes)
	assert.True(t, src.IsPaused())
	assert.Zero(t, src.ListenerCount(event.Data))

	src.Unpipe(a)
	l.RunUntilIdle()
}

func TestPipe_DestroyDestinationDetaches(t *testing.T) {
	l := loop.New()
	src := mustReadable(t, l, nil)
	dest := mustWritable(t, l, nil)
	dest.OnUnpipe(testutil.MustCall[*Readable](t, 1, nil))

	src.Pipe(dest)
	dest.Destroy(nil)

	assert.Empty(t, src.pipes)
	assert.Empty(t, dest.sources)
	l.RunUntilIdle()
}

func TestPipe_MetricsAndSpan(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = mp.Shutdown(ctx) }()
	metrics, err := observability.NewStreamMetrics(mp.Meter("stream-test"))
	require.NoError(t, err)

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer func() { _ = tp.Shutdown(ctx) }()

	l := loop.New()
	opts := []Option{WithMetrics(metrics), WithTracer(tp.Tracer("stream-test")), WithHighWaterMark(2)}
	src := mustReadable(t, l, counterSource(4, "ab"), opts...)
	dest := mustWritable(t, l, &asyncSink{l: l}, opts...)

	src.Pipe(dest)
	l.RunUntilIdle()
	require.True(t, dest.IsFinished())

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	sums := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if s, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range s.DataPoints {
					sums[m.Name] += dp.Value
				}
			}
		}
	}
	assert.Equal(t, int64(8), sums["stream.writable.size"])
	assert.Equal(t, int64(4), sums["stream.writable.chunks"])
	assert.Positive(t, sums["stream.pipe.backpressure"])
	assert.Positive(t, sums["stream.writable.drains"])
	assert.Zero(t, sums["stream.pipe.active"])

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, observability.SpanPipe, spans[0].Name())
	assert.Contains(t, spans[0].Attributes(), attribute.String(observability.AttrReason, "end"))
	assert.Contains(t, spans[0].Attributes(), attribute.String(observability.AttrSourceID, src.ID()))
}
