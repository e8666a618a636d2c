// Package tracing adapts OpenTelemetry tracers to the core tracing interface.
package tracing

import (
	"context"

	"beaconcore/internal/core"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// DefaultServiceName is the instrumentation name used when none is given.
const DefaultServiceName = "beaconcore"

// Tracer implements core.Tracer on top of an OpenTelemetry tracer.
type Tracer struct {
	tracer trace.Tracer
}

// New returns a tracer from provider. A nil provider uses the global one.
func New(provider trace.TracerProvider, serviceName string) *Tracer {
	if provider == nil {
		provider = otel.GetTracerProvider()
	}
	if serviceName == "" {
		serviceName = DefaultServiceName
	}
	return &Tracer{tracer: provider.Tracer(serviceName)}
}

// NewProvider builds an SDK provider that samples every span. Callers own
// the provider and must Shutdown it.
func NewProvider(opts ...sdktrace.TracerProviderOption) *sdktrace.TracerProvider {
	opts = append([]sdktrace.TracerProviderOption{sdktrace.WithSampler(sdktrace.AlwaysSample())}, opts...)
	return sdktrace.NewTracerProvider(opts...)
}

// Start opens a span named after the operation.
func (t *Tracer) Start(ctx context.Context, operation string) (context.Context, core.TraceSpan) {
	ctx, span := t.tracer.Start(ctx, operation,
		trace.WithAttributes(attribute.String("beacon.operation", operation)))
	return ctx, otelSpan{span: span}
}

type otelSpan struct {
	span trace.Span
}

func (s otelSpan) End(err error) {
	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	} else {
		s.span.SetStatus(codes.Ok, "")
	}
	s.span.End()
}
