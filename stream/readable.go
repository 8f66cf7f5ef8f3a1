package stream

import (
	"github.com/kbukum/streamkit/errors"
	"github.com/kbukum/streamkit/event"
	"github.com/kbukum/streamkit/logger"
	"github.com/kbukum/streamkit/loop"
)

// Source produces data for a Readable. Read is called when the stream
// wants more; the source answers, now or later, with Push. size is a hint.
type Source interface {
	Read(r *Readable, size int)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(r *Readable, size int)

func (f SourceFunc) Read(r *Readable, size int) { f(r, size) }

// SourceDestroyer is implemented by sources holding resources. Destroy is
// called once when the stream is destroyed; a returned error is emitted
// if the stream was destroyed without one.
type SourceDestroyer interface {
	Destroy(err error) error
}

type flowState int8

const (
	flowUnset flowState = iota
	flowOn
	flowOff
)

// sizeUnspecified marks a Read without an explicit size.
const sizeUnspecified = -1

// maxHighWaterMark caps growth from large ReadN requests.
const maxHighWaterMark = 1 << 30

// Readable is a pull-based producer. See the package documentation.
type Readable struct {
	*base

	src        Source
	buf        *ChunkBuffer
	hwm        int
	objectMode bool

	flowing           flowState
	paused            bool
	ended             bool
	endEmitted        bool
	reading           bool
	sync              bool
	needReadable      bool
	emittedReadable   bool
	readableListening bool
	resumeScheduled   bool
	readingMore       bool

	// awaitDrain counts pipe destinations that returned false from Write
	// and have not drained yet.
	awaitDrain int
	pipes      []*pipeLink

	unpipeHook func(dest *Writable, next func(*Writable))
}

// NewReadable creates a Readable fed by src. A nil src means chunks only
// arrive through Push called from elsewhere.
func NewReadable(l *loop.Loop, src Source, opts ...Option) (*Readable, error) {
	o, err := buildOptions(opts)
	if err != nil {
		return nil, err
	}
	b, err := newBase(l, KindReadable, o)
	if err != nil {
		return nil, err
	}
	return newReadable(b, src, o), nil
}

func newReadable(b *base, src Source, o *options) *Readable {
	r := &Readable{
		base:       b,
		src:        src,
		buf:        NewChunkBuffer(o.ObjectMode),
		hwm:        o.HighWaterMark,
		objectMode: o.ObjectMode,
		paused:     true,
		sync:       true,
	}
	b.r = r
	b.OnListenerAdded = r.onListenerAdded
	b.OnListenerRemoved = r.onListenerRemoved
	b.teardown = append(b.teardown, r.teardown)
	return r
}

func (r *Readable) readableSide() *Readable { return r }

// HighWaterMark returns the current buffering threshold.
func (r *Readable) HighWaterMark() int { return r.hwm }

// ObjectMode reports whether the stream counts chunks instead of bytes.
func (r *Readable) ObjectMode() bool { return r.objectMode }

// Len returns the buffered size.
func (r *Readable) Len() int { return r.buf.Size() }

// Ended reports whether the end-of-stream marker has been pushed.
func (r *Readable) Ended() bool { return r.ended }

// EndEmitted reports whether the end event has fired.
func (r *Readable) EndEmitted() bool { return r.endEmitted }

// IsPaused reports whether the stream was explicitly switched out of
// flowing mode.
func (r *Readable) IsPaused() bool { return r.flowing == flowOff }

// Flowing reports the flow state. decided is false until the stream has
// been resumed, paused or given a data listener.
func (r *Readable) Flowing() (flowing, decided bool) {
	return r.flowing == flowOn, r.flowing != flowUnset
}

// Push appends chunk to the buffer. A nil chunk marks the end of data.
// It returns false when the source should stop pushing for now.
func (r *Readable) Push(chunk any) bool {
	ok, _ := r.addChunkEntry(chunk, false)
	return ok
}

// TryPush is Push that also returns the error, if any. Errors caused by a
// bad chunk or a push after end are emitted as well; a push after destroy
// is only reported here.
func (r *Readable) TryPush(chunk any) (bool, error) {
	return r.addChunkEntry(chunk, false)
}

// Unshift puts chunk back at the front of the buffer. Unlike Push it never
// clears a fetch that is in flight.
func (r *Readable) Unshift(chunk any) bool {
	ok, _ := r.addChunkEntry(chunk, true)
	return ok
}

// Fail destroys the stream with cause wrapped as a source failure.
func (r *Readable) Fail(cause error) {
	r.destroy(errors.SourceFailed(cause))
}

func (r *Readable) addChunkEntry(chunk any, front bool) (bool, error) {
	if r.destroyed {
		op := "push"
		if front {
			op = "unshift"
		}
		return false, errors.StreamState(op, "stream destroyed")
	}

	if chunk == nil {
		r.reading = false
		r.onEOF()
		return r.pushResult(), nil
	}

	data, size := chunk, 1
	if !r.objectMode {
		b, err := toBytes(chunk)
		if err != nil {
			r.errorOrDestroy(err)
			return false, err
		}
		data, size = b, len(b)
	}

	switch {
	case size == 0:
		// Empty chunks deliver nothing. A push still ends the fetch in flight
		// so pull consumers can fetch again; see DESIGN.md, decision 1.
		if !front {
			r.reading = false
			r.maybeReadMore()
		}
	case front:
		if r.endEmitted {
			err := errors.StreamState("unshift", "unshift after end event")
			r.errorOrDestroy(err)
			return false, err
		}
		r.addChunk(data, size, true)
	case r.ended:
		err := errors.StreamState("push", "push after end of stream")
		r.errorOrDestroy(err)
		return false, err
	default:
		r.reading = false
		r.addChunk(data, size, false)
	}
	return r.pushResult(), nil
}

func (r *Readable) pushResult() bool {
	size := r.buf.Size()
	return !r.ended && (size < r.hwm || size == 0)
}

func (r *Readable) addChunk(data any, size int, front bool) {
	r.metrics.RecordPush(r.ctx, r.kind.String(), size)

	if r.flowing == flowOn && r.buf.Size() == 0 && !r.sync {
		r.awaitDrain = 0
		r.Emit(event.Data, data)
	} else {
		if front {
			r.buf.Prepend(data)
		} else {
			r.buf.Append(data)
		}
		if r.needReadable {
			r.emitReadable()
		}
	}
	r.maybeReadMore()
}

func (r *Readable) onEOF() {
	if r.ended {
		return
	}
	r.ended = true
	r.debug("end of data pushed", logger.FieldBuffered, r.buf.Size())

	if r.sync {
		r.emitReadable()
		return
	}
	r.needReadable = false
	if !r.emittedReadable {
		r.emittedReadable = true
		r.emitReadableNow()
	}
}

func (r *Readable) emitReadable() {
	r.needReadable = false
	if !r.emittedReadable {
		r.emittedReadable = true
		r.loop.NextTick(r.emitReadableNow)
	}
}

func (r *Readable) emitReadableNow() {
	if !r.destroyed && (r.buf.Size() > 0 || r.ended) {
		r.Emit(event.Readable, nil)
		r.emittedReadable = false
	}
	r.needReadable = r.flowing != flowOn && !r.ended && r.buf.Size() <= r.hwm
	r.flow()
}

func (r *Readable) maybeReadMore() {
	if r.readingMore {
		return
	}
	r.readingMore = true
	r.loop.NextTick(func() {
		for !r.reading && !r.ended &&
			(r.buf.Size() < r.hwm || (r.flowing == flowOn && r.buf.Size() == 0)) {
			before := r.buf.Size()
			r.read(0)
			if before == r.buf.Size() {
				break
			}
		}
		r.readingMore = false
	})
}

// Read returns buffered data, or nil if none is available yet. In object
// mode it returns one chunk. In byte mode it returns everything buffered,
// or just the head chunk while flowing.
func (r *Readable) Read() any {
	return r.read(sizeUnspecified)
}

// ReadN returns exactly n bytes when that many are buffered, or what is
// left once the stream has ended. ReadN(0) only asks the source for more.
// Object-mode streams return one chunk whatever n is.
func (r *Readable) ReadN(n int) any {
	if n < 0 {
		n = 0
	}
	return r.read(n)
}

func (r *Readable) read(n int) any {
	nOrig := n
	if n != 0 {
		r.emittedReadable = false
	}

	if n == 0 && r.needReadable && (r.full() || r.ended) {
		if r.buf.Size() == 0 && r.ended {
			r.endReadable()
		} else {
			r.emitReadable()
		}
		return nil
	}

	n = r.howMuchToRead(n)
	if n == 0 && r.ended {
		if r.buf.Size() == 0 {
			r.endReadable()
		}
		return nil
	}

	doRead := r.needReadable
	if r.buf.Size() == 0 || r.buf.Size()-n < r.hwm {
		doRead = true
	}
	if r.ended || r.reading {
		doRead = false
	} else if doRead {
		r.reading = true
		if r.buf.Size() == 0 {
			r.needReadable = true
		}
		r.scheduleFetch()
	}

	var ret any
	if n > 0 {
		ret = r.fromBuffer(n)
	}
	if ret == nil {
		r.needReadable = r.buf.Size() <= r.hwm
		n = 0
	} else {
		r.awaitDrain = 0
	}

	if r.buf.Size() == 0 {
		if !r.ended {
			r.needReadable = true
		}
		if nOrig != n && r.ended {
			r.endReadable()
		}
	}

	if ret != nil {
		r.Emit(event.Data, ret)
	}
	return ret
}

func (r *Readable) full() bool {
	if r.hwm != 0 {
		return r.buf.Size() >= r.hwm
	}
	return r.buf.Size() > 0
}

func (r *Readable) howMuchToRead(n int) int {
	size := r.buf.Size()
	if n == 0 || (size == 0 && r.ended) {
		return 0
	}
	if r.objectMode {
		return 1
	}
	if n == sizeUnspecified {
		if r.flowing == flowOn && size > 0 {
			return r.buf.headSize()
		}
		return size
	}
	if n > r.hwm {
		r.hwm = nextHighWaterMark(n)
	}
	if n <= size {
		return n
	}
	if !r.ended {
		r.needReadable = true
		return 0
	}
	return size
}

func nextHighWaterMark(n int) int {
	if n >= maxHighWaterMark {
		return maxHighWaterMark
	}
	m := 1
	for m < n {
		m <<= 1
	}
	return m
}

func (r *Readable) fromBuffer(n int) any {
	if r.buf.IsEmpty() {
		return nil
	}
	if r.objectMode {
		return r.buf.TakeOne()
	}
	return r.buf.TakeUpTo(n)
}

// scheduleFetch asks the source for more data on the next tick. The
// caller has already set reading.
func (r *Readable) scheduleFetch() {
	r.loop.NextTick(func() {
		if r.destroyed {
			return
		}
		r.sync = true
		if r.src != nil {
			r.src.Read(r, r.hwm)
		}
		r.sync = false
	})
}

func (r *Readable) endReadable() {
	if r.endEmitted {
		return
	}
	r.ended = true
	r.loop.NextTick(func() {
		if r.endEmitted || r.buf.Size() != 0 {
			return
		}
		r.endEmitted = true
		r.debug("stream ended")
		r.Emit(event.End, nil)

		if r.autoDestroy && (r.w == nil || r.w.finished) {
			r.destroy(nil)
		}
	})
}

// Resume switches the stream into flowing mode. Resuming a stream whose
// buffer is already above the mark only changes the delivery mode; the
// source is not asked for more until the buffer drains.
func (r *Readable) Resume() {
	if r.flowing != flowOn {
		if r.readableListening {
			r.flowing = flowOff
		} else {
			r.flowing = flowOn
		}
		if !r.resumeScheduled {
			r.resumeScheduled = true
			r.loop.NextTick(r.resumeNow)
		}
	}
	r.paused = false
}

func (r *Readable) resumeNow() {
	if !r.reading {
		r.read(0)
	}
	r.resumeScheduled = false
	r.Emit(event.Resume, nil)
	r.flow()
	if r.flowing == flowOn && !r.reading {
		r.read(0)
	}
}

// Pause stops data events. Buffered and incoming chunks stay queued.
func (r *Readable) Pause() {
	if r.flowing != flowOff {
		r.flowing = flowOff
		r.Emit(event.Pause, nil)
	}
	r.paused = true
}

func (r *Readable) flow() {
	for r.flowing == flowOn && r.read(sizeUnspecified) != nil {
	}
}

func (r *Readable) onListenerAdded(name event.Name) {
	switch name {
	case event.Data:
		r.readableListening = r.ListenerCount(event.Readable) > 0
		if r.flowing != flowOff {
			r.Resume()
		}
	case event.Readable:
		if r.endEmitted || r.readableListening {
			return
		}
		r.readableListening = true
		r.needReadable = true
		r.flowing = flowOff
		r.emittedReadable = false
		if r.buf.Size() > 0 {
			r.emitReadable()
		} else if !r.reading {
			r.loop.NextTick(func() { r.read(0) })
		}
	}
}

func (r *Readable) onListenerRemoved(name event.Name) {
	if name != event.Readable {
		return
	}
	r.loop.NextTick(func() {
		r.readableListening = r.ListenerCount(event.Readable) > 0
		if r.resumeScheduled && !r.paused {
			r.flowing = flowOn
		} else if r.ListenerCount(event.Data) > 0 {
			r.Resume()
		}
	})
}

// OnData registers fn for data events and starts the flow unless the
// stream was paused explicitly.
func (r *Readable) OnData(fn func(chunk any)) event.ListenerID {
	return r.On(event.Data, func(p any) { fn(p) })
}

// OnReadable registers fn for readable events and switches the stream to
// pull mode.
func (r *Readable) OnReadable(fn func()) event.ListenerID {
	return r.On(event.Readable, func(any) { fn() })
}

// OnEnd registers fn for the end event.
func (r *Readable) OnEnd(fn func()) event.ListenerID {
	return r.On(event.End, func(any) { fn() })
}

func (r *Readable) teardown(err error) error {
	r.Unpipe(nil)
	if d, ok := r.src.(SourceDestroyer); ok {
		return d.Destroy(err)
	}
	return nil
}
