package event

import (
	"fmt"
)

// Name identifies an event.
type Name string

// Stream event names.
const (
	Data      Name = "data"
	Readable  Name = "readable"
	End       Name = "end"
	Finish    Name = "finish"
	Prefinish Name = "prefinish"
	Drain     Name = "drain"
	Error     Name = "error"
	Close     Name = "close"
	Pipe      Name = "pipe"
	Unpipe    Name = "unpipe"
	Pause     Name = "pause"
	Resume    Name = "resume"
)

// Handler receives an event payload. The payload type depends on the event.
type Handler func(payload any)

// ListenerID identifies a registration for Off.
type ListenerID uint64

type listener struct {
	id      ListenerID
	fn      Handler
	once    bool
	removed bool
}

// Emitter dispatches named events to listeners. The zero value is ready
// to use. Emitter is not safe for concurrent use; it belongs to the loop
// goroutine like the stream that embeds it.
type Emitter struct {
	listeners map[Name][]*listener
	nextID    ListenerID

	// OnListenerAdded, when set, runs after each registration. Streams use
	// it for the side effects of subscribing to data and readable.
	OnListenerAdded func(name Name)
	// OnListenerRemoved, when set, runs after each removal.
	OnListenerRemoved func(name Name)
}

// On registers fn for name.
func (e *Emitter) On(name Name, fn Handler) ListenerID {
	return e.add(name, fn, false, false)
}

// Once registers fn to run at most one time.
func (e *Emitter) Once(name Name, fn Handler) ListenerID {
	return e.add(name, fn, true, false)
}

// Prepend registers fn ahead of every existing listener for name.
func (e *Emitter) Prepend(name Name, fn Handler) ListenerID {
	return e.add(name, fn, false, true)
}

func (e *Emitter) add(name Name, fn Handler, once, front bool) ListenerID {
	if e.listeners == nil {
		e.listeners = make(map[Name][]*listener)
	}
	e.nextID++
	ln := &listener{id: e.nextID, fn: fn, once: once}

	list := e.listeners[name]
	if front {
		next := make([]*listener, 0, len(list)+1)
		next = append(next, ln)
		e.listeners[name] = append(next, list...)
	} else {
		e.listeners[name] = append(list, ln)
	}

	if e.OnListenerAdded != nil {
		e.OnListenerAdded(name)
	}
	return ln.id
}

// Off removes the listener registered under id. It reports whether a
// listener was removed.
func (e *Emitter) Off(name Name, id ListenerID) bool {
	list := e.listeners[name]
	for i, ln := range list {
		if ln.id != id {
			continue
		}
		ln.removed = true
		next := make([]*listener, 0, len(list)-1)
		next = append(next, list[:i]...)
		e.listeners[name] = append(next, list[i+1:]...)
		if e.OnListenerRemoved != nil {
			e.OnListenerRemoved(name)
		}
		return true
	}
	return false
}

// RemoveAll drops every listener for name.
func (e *Emitter) RemoveAll(name Name) {
	list := e.listeners[name]
	if len(list) == 0 {
		return
	}
	for _, ln := range list {
		ln.removed = true
	}
	delete(e.listeners, name)
	if e.OnListenerRemoved != nil {
		e.OnListenerRemoved(name)
	}
}

// ListenerCount returns the number of listeners registered for name.
func (e *Emitter) ListenerCount(name Name) int {
	return len(e.listeners[name])
}

// Emit calls every listener registered for name and reports whether any
// existed. Emitting Error without listeners panics with the payload.
func (e *Emitter) Emit(name Name, payload any) bool {
	list := e.listeners[name]
	if len(list) == 0 {
		if name == Error {
			panic(unhandled(payload))
		}
		return false
	}

	// Registrations replace the slice, so list is a stable snapshot.
	for _, ln := range list {
		if ln.removed {
			continue
		}
		if ln.once {
			e.Off(name, ln.id)
		}
		ln.fn(payload)
	}
	return true
}

func unhandled(payload any) error {
	if err, ok := payload.(error); ok {
		return err
	}
	return fmt.Errorf("unhandled error event: %v", payload)
}
