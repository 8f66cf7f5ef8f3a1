// Package observability wires streams to OpenTelemetry.
//
// Exporters:
//
//	tp, err := observability.InitTracer(ctx, observability.DefaultTracerConfig("ingest"))
//	defer tp.Shutdown(ctx)
//
//	mp, err := observability.InitMeter(ctx, observability.DefaultMeterConfig("ingest"))
//	defer mp.Shutdown(ctx)
//
// Stream instruments:
//
//	m, err := observability.NewStreamMetrics(observability.Meter("ingest"))
//	r, err := stream.NewReadable(l, src, stream.WithMetrics(m))
//
// A nil *StreamMetrics records nothing, so streams call it unconditionally.
// Each pipe coupling is traced as one span from attach to teardown.
package observability
