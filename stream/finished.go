package stream

import (
	"fmt"

	"github.com/kbukum/streamkit/errors"
	"github.com/kbukum/streamkit/event"
	"github.com/kbukum/streamkit/validation"
)

// Finished calls cb once when s is done: nil after end and finish, the
// error on an error event, or a premature close error if s closes first.
// The returned func removes the listeners Finished installed.
func Finished(s Stream, cb func(error)) func() {
	r, w := sidesOf(s)
	return finished(s, r, w, cb)
}

func finished(s Stream, r *Readable, w *Writable, cb func(error)) func() {
	called := false
	call := func(err error) {
		if called {
			return
		}
		called = true
		cb(err)
	}

	readableDone := func() bool { return r == nil || r.endEmitted }
	writableDone := func() bool { return w == nil || w.finished }

	onClose := func(any) {
		if r != nil && !r.endEmitted && !r.ended {
			call(errors.PrematureClose())
			return
		}
		if w != nil && !w.finished && !w.ended {
			call(errors.PrematureClose())
			return
		}
		call(nil)
	}

	type reg struct {
		name event.Name
		id   event.ListenerID
	}
	regs := []reg{
		{event.End, s.On(event.End, func(any) {
			if writableDone() {
				call(nil)
			}
		})},
		{event.Finish, s.On(event.Finish, func(any) {
			if readableDone() {
				call(nil)
			}
		})},
		{event.Error, s.On(event.Error, func(p any) { call(asError(p)) })},
		{event.Close, s.On(event.Close, onClose)},
	}

	b := baseOf(r, w)
	switch {
	case readableDone() && writableDone():
		b.loop.NextTick(func() { call(nil) })
	case b.closeEmitted:
		b.loop.NextTick(func() { onClose(nil) })
	}

	return func() {
		for _, rg := range regs {
			s.Off(rg.name, rg.id)
		}
	}
}

func baseOf(r *Readable, w *Writable) *base {
	if r != nil {
		return r.base
	}
	return w.base
}

// Pipeline pipes streams[0] through every stream to the last one. On the
// first failure every stream that has not completed is destroyed. cb runs
// once with that failure, or nil when the last stream has finished. The
// first stream must be readable, the last writable, and everything between
// both.
func Pipeline(cb func(error), streams ...Stream) error {
	if err := validatePipeline(streams); err != nil {
		return err
	}

	var (
		firstErr error
		reported bool
	)
	destroys := make([]func(error), len(streams))
	destroyAll := func(err error) {
		for _, destroy := range destroys {
			destroy(err)
		}
	}

	last := len(streams) - 1
	for i, s := range streams {
		reading, writing := i < last, i > 0
		r, w := sidesOf(s)
		if !reading {
			r = nil
		}
		if !writing {
			w = nil
		}

		closed := false
		finished(s, r, w, func(err error) {
			closed = err == nil
			if err != nil && firstErr == nil {
				firstErr = err
			}
			if err != nil {
				destroyAll(err)
			}
			if reading || reported {
				return
			}
			destroyAll(firstErr)
			reported = true
			if cb != nil {
				cb(firstErr)
			}
		})

		destroys[i] = func(err error) {
			if closed || s.Destroyed() {
				return
			}
			s.Destroy(err)
		}
	}

	for i := 0; i < last; i++ {
		r, _ := sidesOf(streams[i])
		_, w := sidesOf(streams[i+1])
		r.Pipe(w)
	}
	return nil
}

func validatePipeline(streams []Stream) error {
	v := validation.New()
	v.Custom(len(streams) >= 2, "streams", "pipeline needs at least two streams")
	for i, s := range streams {
		field := fmt.Sprintf("streams[%d]", i)
		if s == nil {
			v.AddError(field, "must not be nil")
			continue
		}
		r, w := sidesOf(s)
		if i < len(streams)-1 {
			v.Custom(r != nil, field, "must be readable")
		}
		if i > 0 {
			v.Custom(w != nil, field, "must be writable")
		}
	}
	if appErr := v.Validate(); appErr != nil {
		return appErr
	}
	return nil
}
