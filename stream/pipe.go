package stream

import (
	"go.opentelemetry.io/otel/trace"

	"github.com/kbukum/streamkit/event"
	"github.com/kbukum/streamkit/logger"
	"github.com/kbukum/streamkit/observability"
)

// Pipe teardown reasons, recorded on the pipe span.
const (
	reasonUnpipe  = "unpipe"
	reasonEnd     = "end"
	reasonError   = "error"
	reasonClose   = "close"
	reasonFinish  = "finish"
	reasonDestroy = "destroy"
)

// pipeLink is one source to destination coupling.
type pipeLink struct {
	src  *Readable
	dest *Writable

	dataID, endID                                 event.ListenerID
	drainID, errorID, closeID, finishID, unpipeID event.ListenerID

	cleanedUp bool
	reason    string
	err       error
	span      trace.Span
}

// Pipe forwards every chunk of r into dest, pausing r while dest is
// saturated, and returns dest. dest is ended when r ends unless
// WithEnd(false) is given. Piping twice to the same destination is a no-op.
func (r *Readable) Pipe(dest Writer, opts ...PipeOption) Writer {
	w := dest.WritableSide()
	if r.linkTo(w) != nil {
		return dest
	}

	po := pipeOptions{end: true}
	for _, opt := range opts {
		opt(&po)
	}

	ln := &pipeLink{src: r, dest: w, reason: reasonUnpipe}
	r.pipes = append(r.pipes, ln)
	w.sources = append(w.sources, ln)
	ln.span = observability.StartPipeSpan(r.ctx, r.tracer, r.id, w.id)
	r.metrics.PipeAttached(r.ctx)
	r.debug("pipe attached", logger.FieldDestination, w.id)

	endFn := ln.onEnd
	if !po.end {
		endFn = func(any) { ln.unpipe(reasonEnd) }
	}
	if r.endEmitted {
		r.loop.NextTick(func() { endFn(nil) })
	} else {
		ln.endID = r.Once(event.End, endFn)
	}

	ln.unpipeID = w.On(event.Unpipe, ln.onUnpipe)
	ln.drainID = w.On(event.Drain, ln.onDrain)
	ln.dataID = r.On(event.Data, ln.onData)
	ln.errorID = w.Prepend(event.Error, ln.onError)
	ln.closeID = w.Once(event.Close, ln.onClose)
	ln.finishID = w.Once(event.Finish, ln.onFinish)

	w.Emit(event.Pipe, r)

	if r.flowing != flowOn {
		r.Resume()
	}
	return dest
}

// Unpipe detaches dest, or every destination when dest is nil. Detaching
// the last destination leaves r paused.
func (r *Readable) Unpipe(dest Writer) {
	var w *Writable
	if dest != nil {
		w = dest.WritableSide()
	}
	if r.unpipeHook != nil {
		r.unpipeHook(w, r.unpipe)
		return
	}
	r.unpipe(w)
}

// InterceptUnpipe routes every Unpipe of r through fn, including the ones
// a pipe performs on its own. fn receives the destination (nil for all)
// and must call next to detach.
func (r *Readable) InterceptUnpipe(fn func(dest *Writable, next func(*Writable))) {
	r.unpipeHook = fn
}

func (r *Readable) unpipe(w *Writable) {
	if len(r.pipes) == 0 {
		return
	}

	if w == nil {
		links := r.pipes
		r.pipes = nil
		r.flowing = flowOff
		for _, ln := range links {
			ln.dest.Emit(event.Unpipe, r)
		}
		return
	}

	idx := -1
	for i, ln := range r.pipes {
		if ln.dest == w {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}
	r.pipes = append(r.pipes[:idx:idx], r.pipes[idx+1:]...)
	if len(r.pipes) == 0 {
		r.flowing = flowOff
	}
	w.Emit(event.Unpipe, r)
}

func (r *Readable) linkTo(w *Writable) *pipeLink {
	for _, ln := range r.pipes {
		if ln.dest == w {
			return ln
		}
	}
	return nil
}

func (ln *pipeLink) unpipe(reason string) {
	ln.setReason(reason)
	ln.src.Unpipe(ln.dest)
}

// setReason keeps the first teardown cause.
func (ln *pipeLink) setReason(reason string) {
	if ln.reason == reasonUnpipe {
		ln.reason = reason
	}
}

func (ln *pipeLink) onEnd(any) {
	ln.setReason(reasonEnd)
	ln.dest.End(nil, nil)
}

func (ln *pipeLink) onData(chunk any) {
	if ln.dest.Write(chunk, nil) {
		return
	}
	src := ln.src
	if !ln.cleanedUp && src.linkTo(ln.dest) == ln {
		src.awaitDrain++
	}
	src.metrics.RecordBackpressure(src.ctx)
	src.Pause()
}

func (ln *pipeLink) onDrain(any) {
	src := ln.src
	if src.awaitDrain > 0 {
		src.awaitDrain--
	}
	if src.awaitDrain == 0 && src.ListenerCount(event.Data) > 0 {
		src.flowing = flowOn
		src.flow()
	}
}

func (ln *pipeLink) onUnpipe(p any) {
	if src, ok := p.(*Readable); ok && src == ln.src {
		ln.cleanup()
	}
}

// onError runs ahead of the destination's own error listeners so the
// coupling is gone before they see the error.
func (ln *pipeLink) onError(p any) {
	err := asError(p)
	ln.err = err
	ln.unpipe(reasonError)
	ln.dest.Off(event.Error, ln.errorID)
	if ln.dest.ListenerCount(event.Error) == 0 {
		ln.dest.errorOrDestroy(err)
	}
}

func (ln *pipeLink) onClose(any) {
	ln.dest.Off(event.Finish, ln.finishID)
	ln.unpipe(reasonClose)
}

func (ln *pipeLink) onFinish(any) {
	ln.dest.Off(event.Close, ln.closeID)
	ln.unpipe(reasonFinish)
}

func (ln *pipeLink) cleanup() {
	if ln.cleanedUp {
		return
	}
	src, dest := ln.src, ln.dest

	dest.Off(event.Close, ln.closeID)
	dest.Off(event.Finish, ln.finishID)
	dest.Off(event.Drain, ln.drainID)
	dest.Off(event.Error, ln.errorID)
	dest.Off(event.Unpipe, ln.unpipeID)
	src.Off(event.End, ln.endID)
	src.Off(event.Data, ln.dataID)
	ln.cleanedUp = true

	for i, other := range dest.sources {
		if other == ln {
			dest.sources = append(dest.sources[:i:i], dest.sources[i+1:]...)
			break
		}
	}

	src.metrics.PipeDetached(src.ctx)
	observability.EndPipeSpan(ln.span, ln.reason, ln.err)
	src.debug("pipe detached", logger.FieldDestination, dest.id, logger.FieldReason, ln.reason)

	// A destination that never drained would leave the source waiting.
	if src.awaitDrain > 0 && dest.needDrain {
		ln.onDrain(nil)
	}
}
