// Package telemetry provides distributed tracing instrumentation for
// slabhash's HostFacade, adapted from the teacher's
// internal/tracing/tracing.go with the service identity and span surface
// changed from object-storage operations to table operations.
package telemetry

import (
	"context"
	"fmt"
	"log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	serviceName    = "slabhash"
	serviceVersion = "1.0.0"
)

// TracerProvider holds the global tracer provider.
var tracerProvider *tracesdk.TracerProvider

// InitTracing initializes OpenTelemetry tracing with Jaeger. Safe to call
// with an empty endpoint in tests; the resulting spans are simply dropped
// on export (no collector listening), which is also why no Init call is
// required to use a Table — tracing here is strictly additive.
func InitTracing(jaegerEndpoint string) error {
	if jaegerEndpoint == "" {
		jaegerEndpoint = "http://jaeger:14268/api/traces"
	}

	exp, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(jaegerEndpoint)))
	if err != nil {
		return fmt.Errorf("create jaeger exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
	)
	if err != nil {
		return fmt.Errorf("build resource: %w", err)
	}

	tracerProvider = tracesdk.NewTracerProvider(
		tracesdk.WithBatcher(exp),
		tracesdk.WithResource(res),
		tracesdk.WithSampler(tracesdk.AlwaysSample()),
	)

	otel.SetTracerProvider(tracerProvider)

	log.Printf("✓ Jaeger tracing initialized: %s", jaegerEndpoint)
	return nil
}

// Shutdown gracefully shuts down the tracer provider, if one was started.
func Shutdown(ctx context.Context) error {
	if tracerProvider != nil {
		return tracerProvider.Shutdown(ctx)
	}
	return nil
}

// Tracer returns a tracer for the given table component ("table", "diag",
// ...).
func Tracer(component string) trace.Tracer {
	return otel.Tracer(fmt.Sprintf("%s/%s", serviceName, component))
}

// StartSpan starts a span with the given attributes already attached.
func StartSpan(ctx context.Context, tracer trace.Tracer, operationName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, operationName)
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	return ctx, span
}

// WarpSpan carries the device-side coordinates every warp-launching
// operation (Insert/Search/Remove) wants attached to its span: which
// simulated warp ran, on which device, over how many lanes. table.go and
// packedtable.go populate this per warp instead of threading individual
// attribute.KeyValue pairs through each call site.
type WarpSpan struct {
	WarpID      uint32
	DeviceIndex int
	Bucket      uint32
	LaneCount   int
}

// attrs renders a WarpSpan as the attribute set every span it touches
// carries, skipping Bucket when the caller never resolved one (a bucket
// index is only known lane-by-lane, after a hash, so batch-level spans
// leave it at its zero value).
func (w WarpSpan) attrs() []attribute.KeyValue {
	out := []attribute.KeyValue{
		attribute.Int64("warp_id", int64(w.WarpID)),
		attribute.Int("device_index", w.DeviceIndex),
	}
	if w.LaneCount > 0 {
		out = append(out, attribute.Int("lane_count", w.LaneCount))
	}
	if w.Bucket > 0 {
		out = append(out, attribute.Int64("bucket", int64(w.Bucket)))
	}
	return out
}

// StartWarpSpan starts a span for one simulated warp's pass through
// Insert/Search/Remove, tagging it with the warp/device/bucket coordinates
// that identify which slice of device memory this warp touched — the
// attributes a trace of this table actually needs to be useful, rather
// than the generic batch_size/device_index pair a caller would otherwise
// have to remember to attach at every call site.
func StartWarpSpan(ctx context.Context, tracer trace.Tracer, operationName string, w WarpSpan, extra ...attribute.KeyValue) (context.Context, trace.Span) {
	return StartSpan(ctx, tracer, operationName, append(w.attrs(), extra...)...)
}

// RecordError records err on the span active in ctx, if any.
func RecordError(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.RecordError(err)
	}
}

// RecordWarpError is RecordError plus the warp coordinates that failed,
// attached as span attributes rather than left for the caller to log
// separately — so a trace viewer can see which warp/lane produced the
// error without cross-referencing logrus output.
func RecordWarpError(ctx context.Context, err error, w WarpSpan, lane int) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.SetAttributes(append(w.attrs(), attribute.Int("lane", lane))...)
	span.RecordError(err)
}
