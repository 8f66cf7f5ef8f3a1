package stream

import (
	"context"

	"go.opentelemetry.io/otel/trace"

	"github.com/kbukum/streamkit/config"
	"github.com/kbukum/streamkit/logger"
	"github.com/kbukum/streamkit/observability"
	"github.com/kbukum/streamkit/validation"
)

// Option configures a stream at construction.
type Option func(*options)

type options struct {
	HighWaterMark int `validate:"gte=0"`
	hwmSet        bool
	ObjectMode    bool
	Name          string `validate:"max=128"`
	AutoDestroy   bool

	ctx     context.Context
	log     *logger.Logger
	metrics *observability.StreamMetrics
	tracer  trace.Tracer
}

// WithHighWaterMark sets the buffering threshold in bytes, or in chunks
// for object-mode streams.
func WithHighWaterMark(n int) Option {
	return func(o *options) {
		o.HighWaterMark = n
		o.hwmSet = true
	}
}

// WithObjectMode makes every chunk count as one unit.
func WithObjectMode() Option {
	return func(o *options) { o.ObjectMode = true }
}

// WithName labels the stream in logs.
func WithName(name string) Option {
	return func(o *options) { o.Name = name }
}

// WithAutoDestroy destroys the stream on error and after it completes.
func WithAutoDestroy() Option {
	return func(o *options) { o.AutoDestroy = true }
}

// WithLogger replaces the stream's logger.
func WithLogger(l *logger.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithMetrics records stream activity into m.
func WithMetrics(m *observability.StreamMetrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithTracer traces pipe couplings started from the stream.
func WithTracer(t trace.Tracer) Option {
	return func(o *options) { o.tracer = t }
}

// WithContext sets the context used for metrics and spans.
func WithContext(ctx context.Context) Option {
	return func(o *options) { o.ctx = ctx }
}

// WithConfig applies loaded stream configuration. Explicit options passed
// after it win.
func WithConfig(cfg config.StreamConfig) Option {
	return func(o *options) {
		o.ObjectMode = cfg.ObjectMode
		o.AutoDestroy = cfg.AutoDestroy
		if mark := cfg.Mark(); mark > 0 {
			o.HighWaterMark = mark
			o.hwmSet = true
		}
	}
}

func buildOptions(opts []Option) (*options, error) {
	o := &options{ctx: context.Background()}
	for _, opt := range opts {
		opt(o)
	}
	if !o.hwmSet {
		o.HighWaterMark = config.DefaultHighWaterMark
		if o.ObjectMode {
			o.HighWaterMark = config.DefaultObjectHighWaterMark
		}
	}
	if err := validation.Validate(o); err != nil {
		return nil, err
	}
	return o, nil
}

// PipeOption configures a single Pipe call.
type PipeOption func(*pipeOptions)

type pipeOptions struct {
	end bool
}

// WithEnd controls whether the destination is ended when the source ends.
// The default is true.
func WithEnd(end bool) PipeOption {
	return func(o *pipeOptions) { o.end = end }
}
