package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/kbukum/streamkit/logger"
)

// MeterConfig configures the OpenTelemetry meter provider.
type MeterConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	// Endpoint is the OTLP HTTP endpoint host:port (e.g., "localhost:4318").
	Endpoint string
	Insecure bool
	// Interval is the metric export interval.
	Interval time.Duration
}

// DefaultMeterConfig returns defaults for a local collector.
func DefaultMeterConfig(serviceName string) MeterConfig {
	return MeterConfig{
		ServiceName:    serviceName,
		ServiceVersion: "1.0.0",
		Environment:    "development",
		Endpoint:       "localhost:4318",
		Insecure:       true,
		Interval:       15 * time.Second,
	}
}

// InitMeter initializes the OpenTelemetry meter provider and installs it
// globally. Shut the returned provider down on exit.
func InitMeter(ctx context.Context, config *MeterConfig) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(config.Endpoint),
	}
	if config.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}

	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}

	res, err := newResource(config.ServiceName, config.ServiceVersion, config.Environment)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	readerOpts := []sdkmetric.PeriodicReaderOption{}
	if config.Interval > 0 {
		readerOpts = append(readerOpts, sdkmetric.WithInterval(config.Interval))
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, readerOpts...)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	logger.WithComponent("observability").Info("meter initialized", logger.Fields(
		"service", config.ServiceName,
		"endpoint", config.Endpoint,
		"interval", config.Interval.String(),
	))
	return mp, nil
}

// Meter returns a named meter from the global provider.
func Meter(name string) metric.Meter {
	return otel.Meter(name)
}

// StreamMetrics holds the instruments streams record into.
type StreamMetrics struct {
	chunksPushed  metric.Int64Counter
	bytesPushed   metric.Int64Counter
	chunksWritten metric.Int64Counter
	bytesWritten  metric.Int64Counter
	drains        metric.Int64Counter
	backpressure  metric.Int64Counter
	activePipes   metric.Int64UpDownCounter
	errorTotal    metric.Int64Counter
}

// NewStreamMetrics creates stream instruments on the given meter.
func NewStreamMetrics(meter metric.Meter) (*StreamMetrics, error) {
	var (
		m   StreamMetrics
		err error
	)
	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
		unit string
	}{
		{&m.chunksPushed, "stream.readable.chunks", "Chunks accepted into readable buffers", "{chunk}"},
		{&m.bytesPushed, "stream.readable.size", "Size accepted into readable buffers", "By"},
		{&m.chunksWritten, "stream.writable.chunks", "Chunks accepted by writables", "{chunk}"},
		{&m.bytesWritten, "stream.writable.size", "Size accepted by writables", "By"},
		{&m.drains, "stream.writable.drains", "Drain events emitted", "{event}"},
		{&m.backpressure, "stream.pipe.backpressure", "Pipe pauses caused by a full destination", "{event}"},
		{&m.errorTotal, "stream.errors", "Stream errors by code and kind", "{error}"},
	}
	for _, c := range counters {
		*c.dst, err = meter.Int64Counter(c.name,
			metric.WithDescription(c.desc),
			metric.WithUnit(c.unit),
		)
		if err != nil {
			return nil, fmt.Errorf("creating %s counter: %w", c.name, err)
		}
	}

	m.activePipes, err = meter.Int64UpDownCounter("stream.pipe.active",
		metric.WithDescription("Pipe couplings currently attached"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating stream.pipe.active gauge: %w", err)
	}
	return &m, nil
}

// RecordPush records a chunk entering a readable buffer.
func (m *StreamMetrics) RecordPush(ctx context.Context, kind string, size int) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String(AttrStreamKind, kind))
	m.chunksPushed.Add(ctx, 1, attrs)
	m.bytesPushed.Add(ctx, int64(size), attrs)
}

// RecordWrite records a chunk accepted by a writable.
func (m *StreamMetrics) RecordWrite(ctx context.Context, kind string, size int) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String(AttrStreamKind, kind))
	m.chunksWritten.Add(ctx, 1, attrs)
	m.bytesWritten.Add(ctx, int64(size), attrs)
}

// RecordDrain records a drain event.
func (m *StreamMetrics) RecordDrain(ctx context.Context) {
	if m == nil {
		return
	}
	m.drains.Add(ctx, 1)
}

// RecordBackpressure records a pipe pausing its source.
func (m *StreamMetrics) RecordBackpressure(ctx context.Context) {
	if m == nil {
		return
	}
	m.backpressure.Add(ctx, 1)
}

// PipeAttached increments the active pipe gauge.
func (m *StreamMetrics) PipeAttached(ctx context.Context) {
	if m == nil {
		return
	}
	m.activePipes.Add(ctx, 1)
}

// PipeDetached decrements the active pipe gauge.
func (m *StreamMetrics) PipeDetached(ctx context.Context) {
	if m == nil {
		return
	}
	m.activePipes.Add(ctx, -1)
}

// RecordError records an emitted stream error.
func (m *StreamMetrics) RecordError(ctx context.Context, code, kind string) {
	if m == nil {
		return
	}
	m.errorTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrErrorCode, code),
		attribute.String(AttrStreamKind, kind),
	))
}
