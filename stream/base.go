package stream

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/kbukum/streamkit/errors"
	"github.com/kbukum/streamkit/event"
	"github.com/kbukum/streamkit/logger"
	"github.com/kbukum/streamkit/loop"
	"github.com/kbukum/streamkit/observability"
)

// base is the identity, emitter and destroy machinery shared by both halves
// of a stream. A Duplex has one base referenced by its two halves.
type base struct {
	event.Emitter

	id   string
	name string
	kind Kind
	loop *loop.Loop

	ctx     context.Context
	log     *logger.Logger
	metrics *observability.StreamMetrics
	tracer  trace.Tracer

	autoDestroy  bool
	destroyed    bool
	errorEmitted bool
	closeEmitted bool

	r *Readable
	w *Writable

	// teardown runs once on destroy; the first non-nil result replaces a nil
	// destroy error.
	teardown []func(err error) error
}

func newBase(l *loop.Loop, kind Kind, o *options) (*base, error) {
	if l == nil {
		return nil, errors.InvalidInput("loop", "a loop is required")
	}
	b := &base{
		id:          uuid.NewString(),
		name:        o.Name,
		kind:        kind,
		loop:        l,
		ctx:         o.ctx,
		metrics:     o.metrics,
		tracer:      o.tracer,
		autoDestroy: o.AutoDestroy,
	}
	if b.name == "" {
		b.name = kind.String()
	}
	log := o.log
	if log == nil {
		log = logger.Get("stream")
	}
	b.log = log.WithFields(logger.Fields(
		logger.FieldStreamID, b.id,
		logger.FieldStreamKind, kind.String(),
		logger.FieldStreamName, b.name,
	))
	return b, nil
}

// ID returns the stream's unique identifier.
func (b *base) ID() string { return b.id }

// Name returns the label given with WithName, or the kind.
func (b *base) Name() string { return b.name }

// Kind returns the stream's kind tag.
func (b *base) Kind() Kind { return b.kind }

// Destroyed reports whether Destroy has been called.
func (b *base) Destroyed() bool { return b.destroyed }

// Destroy tears the stream down. A non-nil err is emitted as an error
// event before close.
func (b *base) Destroy(err error) { b.destroy(err) }

// OnError registers fn for error events.
func (b *base) OnError(fn func(err error)) event.ListenerID {
	return b.On(event.Error, func(p any) { fn(asError(p)) })
}

// OnClose registers fn for the close event.
func (b *base) OnClose(fn func()) event.ListenerID {
	return b.On(event.Close, func(any) { fn() })
}

func (b *base) debug(msg string, kvs ...interface{}) {
	if !b.log.DebugEnabled() {
		return
	}
	b.log.Debug(msg, logger.Fields(kvs...))
}

// destroy tears the stream down. err, when non-nil, is emitted once on the
// next tick, followed by close.
func (b *base) destroy(err error) {
	if b.destroyed {
		if err != nil && !b.errorEmitted {
			b.errorEmitted = true
			b.loop.NextTick(func() { b.emitError(err) })
		}
		return
	}
	b.destroyed = true
	for _, fn := range b.teardown {
		if terr := fn(err); terr != nil && err == nil {
			err = terr
		}
	}
	b.debug("stream destroyed", logger.FieldReason, fmt.Sprint(err))

	if err != nil && !b.errorEmitted {
		b.errorEmitted = true
		b.loop.NextTick(func() {
			b.emitError(err)
			b.emitClose()
		})
		return
	}
	b.loop.NextTick(b.emitClose)
}

// errorOrDestroy reports err by destroying when auto-destroy is on, and by
// emitting it otherwise.
func (b *base) errorOrDestroy(err error) {
	if b.autoDestroy {
		b.destroy(err)
		return
	}
	b.emitError(err)
}

// reportError is errorOrDestroy for failures that must surface once.
func (b *base) reportError(err error) {
	if b.autoDestroy {
		b.destroy(err)
		return
	}
	if b.errorEmitted {
		return
	}
	b.errorEmitted = true
	b.emitError(err)
}

func (b *base) emitError(err error) {
	b.metrics.RecordError(b.ctx, string(errors.CodeOf(err)), b.kind.String())
	b.debug("stream error", logger.FieldError, err.Error())
	b.Emit(event.Error, err)
}

func (b *base) emitClose() {
	if b.closeEmitted {
		return
	}
	b.closeEmitted = true
	b.Emit(event.Close, nil)
}

func asError(p any) error {
	switch v := p.(type) {
	case nil:
		return nil
	case error:
		return v
	default:
		return fmt.Errorf("%v", v)
	}
}

func toBytes(chunk any) ([]byte, error) {
	switch v := chunk.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, errors.InvalidInput("chunk", fmt.Sprintf("expected []byte or string, got %T", chunk))
	}
}
