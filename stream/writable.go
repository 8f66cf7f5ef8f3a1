package stream

import (
	"slices"

	"github.com/gammazero/deque"

	"github.com/kbukum/streamkit/errors"
	"github.com/kbukum/streamkit/event"
	"github.com/kbukum/streamkit/logger"
	"github.com/kbukum/streamkit/loop"
)

// Sink consumes data for a Writable. Write is called with one chunk at a
// time and must call done exactly once, now or later, from the loop.
type Sink interface {
	Write(chunk any, done func(error))
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(chunk any, done func(error))

func (f SinkFunc) Write(chunk any, done func(error)) { f(chunk, done) }

// Finalizer is implemented by sinks that flush before finish. Final runs
// once after the last write completed.
type Finalizer interface {
	Final(done func(error))
}

// SinkDestroyer is implemented by sinks holding resources.
type SinkDestroyer interface {
	Destroy(err error) error
}

type writeReq struct {
	chunk any
	size  int
	cb    func(error)
}

// Writable is a push-based consumer with a bounded write queue.
type Writable struct {
	*base

	sink       Sink
	hwm        int
	objectMode bool

	queue  *deque.Deque[writeReq]
	length int

	writing  bool
	writeLen int
	writeCb  func(error)
	sync     bool

	needDrain        bool
	ending           bool
	ended            bool
	finished         bool
	finalCalled      bool
	prefinished      bool
	bufferProcessing bool
	pendingCb        int
	errored          error

	finishCallbacks []func(error)
	sources         []*pipeLink
}

// NewWritable creates a Writable draining into sink. A nil sink accepts
// and discards every chunk.
func NewWritable(l *loop.Loop, sink Sink, opts ...Option) (*Writable, error) {
	o, err := buildOptions(opts)
	if err != nil {
		return nil, err
	}
	b, err := newBase(l, KindWritable, o)
	if err != nil {
		return nil, err
	}
	return newWritable(b, sink, o), nil
}

func newWritable(b *base, sink Sink, o *options) *Writable {
	w := &Writable{
		base:       b,
		sink:       sink,
		hwm:        o.HighWaterMark,
		objectMode: o.ObjectMode,
		queue:      deque.New[writeReq](),
		sync:       true,
	}
	b.w = w
	b.teardown = append(b.teardown, w.teardown)
	return w
}

// WritableSide returns w itself.
func (w *Writable) WritableSide() *Writable { return w }

// HighWaterMark returns the queue threshold.
func (w *Writable) HighWaterMark() int { return w.hwm }

// ObjectMode reports whether the stream counts chunks instead of bytes.
func (w *Writable) ObjectMode() bool { return w.objectMode }

// Len returns the size written but not yet acknowledged by the sink.
func (w *Writable) Len() int { return w.length }

// NeedDrain reports whether a Write returned false and drain has not fired.
func (w *Writable) NeedDrain() bool { return w.needDrain }

// Ended reports whether End has been called.
func (w *Writable) Ended() bool { return w.ended }

// IsFinished reports whether the finish event has fired.
func (w *Writable) IsFinished() bool { return w.finished }

// Fail destroys the stream with cause wrapped as a sink failure.
func (w *Writable) Fail(cause error) {
	w.destroy(errors.SinkFailed(cause))
}

// Write queues chunk for the sink. cb, if non-nil, runs once the sink has
// taken the chunk or the write failed. It returns false once the queue has
// reached the high-water mark; callers should then wait for drain.
func (w *Writable) Write(chunk any, cb func(error)) bool {
	if cb == nil {
		cb = func(error) {}
	}

	var err error
	switch {
	case w.errored != nil:
		err = w.errored
	case w.destroyed:
		err = errors.StreamState("write", "stream destroyed")
	case w.ending:
		err = errors.StreamState("write", "write after end")
		w.errorOrDestroy(err)
	case chunk == nil:
		err = errors.InvalidInput("chunk", "nil chunk")
		w.errorOrDestroy(err)
	}

	data, size := chunk, 1
	if err == nil && !w.objectMode {
		var b []byte
		if b, err = toBytes(chunk); err != nil {
			w.errorOrDestroy(err)
		}
		data, size = b, len(b)
	}
	if err != nil {
		w.loop.NextTick(func() { cb(err) })
		return false
	}

	w.pendingCb++
	w.metrics.RecordWrite(w.ctx, w.kind.String(), size)
	return w.writeOrBuffer(data, size, cb)
}

func (w *Writable) writeOrBuffer(data any, size int, cb func(error)) bool {
	w.length += size
	ret := w.length < w.hwm
	if !ret {
		w.needDrain = true
	}

	if w.writing || w.errored != nil {
		w.queue.PushBack(writeReq{chunk: data, size: size, cb: cb})
	} else {
		w.doWrite(data, size, cb)
	}
	return ret && w.errored == nil && !w.destroyed
}

func (w *Writable) doWrite(data any, size int, cb func(error)) {
	w.writeLen = size
	w.writeCb = cb
	w.writing = true
	w.sync = true
	if w.sink == nil {
		w.onwrite(nil)
	} else {
		w.sink.Write(data, w.doneFunc())
	}
	w.sync = false
}

func (w *Writable) doneFunc() func(error) {
	called := false
	return func(err error) {
		if called {
			w.errorOrDestroy(errors.StreamState("write", "done called more than once"))
			return
		}
		called = true
		if err != nil && !errors.IsAppError(err) {
			err = errors.SinkFailed(err)
		}
		w.onwrite(err)
	}
}

func (w *Writable) onwrite(err error) {
	sync := w.sync
	cb := w.writeCb
	w.writing = false
	w.writeCb = nil
	w.length -= w.writeLen
	w.writeLen = 0

	if err != nil {
		w.onwriteError(err, sync, cb)
		return
	}

	if w.queue.Len() > 0 && !w.bufferProcessing {
		w.clearBuffer()
	}
	if sync {
		w.loop.NextTick(func() { w.afterWrite(cb) })
	} else {
		w.afterWrite(cb)
	}
}

// onwriteError fails the write in flight and everything queued behind it
// with err, then reports err once.
func (w *Writable) onwriteError(err error, sync bool, cb func(error)) {
	w.pendingCb--
	w.errored = err
	w.log.WithError(err).Warn("sink write failed")

	fail := func() {
		cb(err)
		w.failQueue(err)
		w.failFinish(err)
		w.reportError(err)
	}
	if sync {
		w.loop.NextTick(fail)
		return
	}
	fail()
}

func (w *Writable) failQueue(err error) {
	for w.queue.Len() > 0 {
		req := w.queue.PopFront()
		w.length -= req.size
		w.pendingCb--
		req.cb(err)
	}
}

func (w *Writable) failFinish(err error) {
	cbs := w.finishCallbacks
	w.finishCallbacks = nil
	for _, cb := range cbs {
		cb(err)
	}
}

func (w *Writable) afterWrite(cb func(error)) {
	if !w.ending && !w.destroyed && w.needDrain && (w.length == 0 || w.length < w.hwm) {
		w.needDrain = false
		w.metrics.RecordDrain(w.ctx)
		w.Emit(event.Drain, nil)
	}
	w.pendingCb--
	cb(nil)
	w.finishMaybe()
}

func (w *Writable) clearBuffer() {
	w.bufferProcessing = true
	for w.queue.Len() > 0 && !w.writing && w.errored == nil && !w.destroyed {
		req := w.queue.PopFront()
		w.doWrite(req.chunk, req.size, req.cb)
	}
	w.bufferProcessing = false
}

// End signals that no more data will be written. A non-nil chunk is
// written first. cb runs once the stream has finished or failed.
func (w *Writable) End(chunk any, cb func(error)) {
	if chunk != nil {
		w.Write(chunk, nil)
	}
	if !w.ending {
		w.ending = true
		w.debug("end requested", logger.FieldBuffered, w.length)
		w.finishMaybe()
		w.ended = true
	}
	if cb == nil {
		return
	}

	switch {
	case w.finished:
		w.loop.NextTick(func() { cb(nil) })
	case w.errored != nil:
		err := w.errored
		w.loop.NextTick(func() { cb(err) })
	case w.destroyed:
		w.loop.NextTick(func() { cb(errors.StreamState("end", "stream destroyed")) })
	default:
		w.finishCallbacks = append(w.finishCallbacks, cb)
	}
}

func (w *Writable) needFinish() bool {
	return w.ending && !w.destroyed && w.errored == nil &&
		w.length == 0 && w.queue.Len() == 0 && !w.finished && !w.writing
}

func (w *Writable) finishMaybe() {
	if !w.needFinish() {
		return
	}
	w.prefinish()
	if w.pendingCb == 0 && w.prefinished {
		w.finish()
	}
}

func (w *Writable) prefinish() {
	if w.prefinished || w.finalCalled {
		return
	}
	f, ok := w.sink.(Finalizer)
	if !ok {
		w.prefinished = true
		w.Emit(event.Prefinish, nil)
		return
	}

	w.finalCalled = true
	w.pendingCb++
	w.loop.NextTick(func() {
		if w.destroyed {
			w.pendingCb--
			return
		}
		f.Final(w.finalDone())
	})
}

func (w *Writable) finalDone() func(error) {
	called := false
	return func(err error) {
		if called {
			w.errorOrDestroy(errors.StreamState("final", "done called more than once"))
			return
		}
		called = true
		w.pendingCb--
		if err != nil {
			if !errors.IsAppError(err) {
				err = errors.SinkFailed(err)
			}
			w.errored = err
			w.failFinish(err)
			w.reportError(err)
			return
		}
		w.prefinished = true
		w.Emit(event.Prefinish, nil)
		w.finishMaybe()
	}
}

func (w *Writable) finish() {
	w.finished = true
	w.debug("stream finished")
	w.failFinish(nil)
	w.Emit(event.Finish, nil)

	if w.autoDestroy && (w.r == nil || w.r.endEmitted) {
		w.destroy(nil)
	}
}

func (w *Writable) teardown(err error) error {
	for _, ln := range slices.Clone(w.sources) {
		ln.unpipe(reasonDestroy)
	}

	cause := err
	if cause == nil {
		cause = errors.StreamState("write", "stream destroyed")
	}
	var reqs []writeReq
	for w.queue.Len() > 0 {
		req := w.queue.PopFront()
		w.length -= req.size
		reqs = append(reqs, req)
	}
	finish := w.finishCallbacks
	w.finishCallbacks = nil
	if len(reqs) > 0 || len(finish) > 0 {
		w.loop.NextTick(func() {
			for _, req := range reqs {
				w.pendingCb--
				req.cb(cause)
			}
			for _, cb := range finish {
				cb(cause)
			}
		})
	}

	if d, ok := w.sink.(SinkDestroyer); ok {
		return d.Destroy(err)
	}
	return nil
}

// OnDrain registers fn for the drain event.
func (w *Writable) OnDrain(fn func()) event.ListenerID {
	return w.On(event.Drain, func(any) { fn() })
}

// OnFinish registers fn for the finish event.
func (w *Writable) OnFinish(fn func()) event.ListenerID {
	return w.On(event.Finish, func(any) { fn() })
}

// OnPipe registers fn for pipe events; src is the attaching source.
func (w *Writable) OnPipe(fn func(src *Readable)) event.ListenerID {
	return w.On(event.Pipe, func(p any) {
		src, _ := p.(*Readable)
		fn(src)
	})
}

// OnUnpipe registers fn for unpipe events; src is the detaching source.
func (w *Writable) OnUnpipe(fn func(src *Readable)) event.ListenerID {
	return w.On(event.Unpipe, func(p any) {
		src, _ := p.(*Readable)
		fn(src)
	})
}
