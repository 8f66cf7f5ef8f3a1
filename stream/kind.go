package stream

import "github.com/kbukum/streamkit/event"

// Kind tags what a stream can do.
type Kind uint8

const (
	KindReadable Kind = iota + 1
	KindWritable
	KindDuplex
)

func (k Kind) String() string {
	switch k {
	case KindReadable:
		return "readable"
	case KindWritable:
		return "writable"
	case KindDuplex:
		return "duplex"
	default:
		return "unknown"
	}
}

// CanRead reports whether streams of this kind produce data.
func (k Kind) CanRead() bool { return k == KindReadable || k == KindDuplex }

// CanWrite reports whether streams of this kind accept data.
func (k Kind) CanWrite() bool { return k == KindWritable || k == KindDuplex }

// Stream is the surface shared by every stream kind.
type Stream interface {
	ID() string
	Kind() Kind
	On(name event.Name, fn event.Handler) event.ListenerID
	Once(name event.Name, fn event.Handler) event.ListenerID
	Off(name event.Name, id event.ListenerID) bool
	Destroy(err error)
	Destroyed() bool
}

// Writer is anything a Readable can pipe into.
type Writer interface {
	WritableSide() *Writable
}

type readableSider interface {
	readableSide() *Readable
}

// sidesOf returns the readable and writable halves of s, either may be nil.
func sidesOf(s Stream) (*Readable, *Writable) {
	var (
		r *Readable
		w *Writable
	)
	if rs, ok := s.(readableSider); ok {
		r = rs.readableSide()
	}
	if ws, ok := s.(Writer); ok {
		w = ws.WritableSide()
	}
	return r, w
}
