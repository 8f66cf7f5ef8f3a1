package stream

import (
	"github.com/kbukum/streamkit/event"
	"github.com/kbukum/streamkit/loop"
)

// Duplex is a readable half and a writable half under one identity. Both
// halves share the event channel and are destroyed together.
type Duplex struct {
	*Readable
	*Writable
}

// NewDuplex pairs a Readable fed by src with a Writable draining into sink.
func NewDuplex(l *loop.Loop, src Source, sink Sink, opts ...Option) (*Duplex, error) {
	o, err := buildOptions(opts)
	if err != nil {
		return nil, err
	}
	b, err := newBase(l, KindDuplex, o)
	if err != nil {
		return nil, err
	}
	return &Duplex{
		Readable: newReadable(b, src, o),
		Writable: newWritable(b, sink, o),
	}, nil
}

func (d *Duplex) ID() string { return d.Readable.ID() }
func (d *Duplex) Name() string { return d.Readable.Name() }
func (d *Duplex) Kind() Kind { return d.Readable.Kind() }
func (d *Duplex) Destroyed() bool { return d.Readable.Destroyed() }
func (d *Duplex) Destroy(err error) { d.Readable.Destroy(err) }

func (d *Duplex) On(name event.Name, fn event.Handler) event.ListenerID {
	return d.Readable.On(name, fn)
}

func (d *Duplex) Once(name event.Name, fn event.Handler) event.ListenerID {
	return d.Readable.Once(name, fn)
}

func (d *Duplex) Prepend(name event.Name, fn event.Handler) event.ListenerID {
	return d.Readable.Prepend(name, fn)
}

func (d *Duplex) Off(name event.Name, id event.ListenerID) bool {
	return d.Readable.Off(name, id)
}

func (d *Duplex) Emit(name event.Name, payload any) bool {
	return d.Readable.Emit(name, payload)
}

func (d *Duplex) ListenerCount(name event.Name) int {
	return d.Readable.ListenerCount(name)
}

func (d *Duplex) RemoveAll(name event.Name) { d.Readable.RemoveAll(name) }

func (d *Duplex) OnError(fn func(err error)) event.ListenerID { return d.Readable.OnError(fn) }

func (d *Duplex) OnClose(fn func()) event.ListenerID { return d.Readable.OnClose(fn) }

// passThrough moves every written chunk to the readable half. A write is
// acknowledged once the readable half has room again.
type passThrough struct {
	d       *Duplex
	pending func(error)
}

func (p *passThrough) Write(chunk any, done func(error)) {
	if p.d.Push(chunk) {
		done(nil)
		return
	}
	p.pending = done
}

func (p *passThrough) Read(*Readable, int) {
	if done := p.pending; done != nil {
		p.pending = nil
		done(nil)
	}
}

func (p *passThrough) Final(done func(error)) {
	p.d.Push(nil)
	done(nil)
}

// NewPassThrough returns a Duplex whose output is its input.
func NewPassThrough(l *loop.Loop, opts ...Option) (*Duplex, error) {
	pt := &passThrough{}
	d, err := NewDuplex(l, pt, pt, opts...)
	if err != nil {
		return nil, err
	}
	pt.d = d
	return d, nil
}
