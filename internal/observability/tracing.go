// Package observability wires the kernel's Prometheus metrics and
// OpenTelemetry tracing surface. Both are ambient: a kernel with tracing
// disabled gets a no-op tracer with the exact same call shape, so
// instrumented code never branches on whether tracing is configured.
package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// Span is the subset of an OpenTelemetry span the kernel uses.
type Span interface {
	End()
	RecordError(err error)
}

type span struct{ s oteltrace.Span }

func (s span) End()              { s.s.End() }
func (s span) RecordError(err error) {
	if err != nil {
		s.s.RecordError(err)
	}
}

// Tracer starts spans around a named operation.
type Tracer interface {
	Start(ctx context.Context, name string) (context.Context, Span)
	Shutdown(ctx context.Context) error
}

type otelTracer struct {
	tracer   oteltrace.Tracer
	provider *sdktrace.TracerProvider
}

func (t *otelTracer) Start(ctx context.Context, name string) (context.Context, Span) {
	c, s := t.tracer.Start(ctx, name)
	return c, span{s: s}
}

func (t *otelTracer) Shutdown(ctx context.Context) error {
	if t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}

type nopTracer struct{}

func (nopTracer) Start(ctx context.Context, _ string) (context.Context, Span) {
	return ctx, nopSpan{}
}
func (nopTracer) Shutdown(context.Context) error { return nil }

type nopSpan struct{}

func (nopSpan) End()              {}
func (nopSpan) RecordError(error) {}

// NopTracer returns a tracer that performs no instrumentation.
func NopTracer() Tracer { return nopTracer{} }

// NewOTLPTracer builds a tracer exporting spans via OTLP/HTTP to endpoint.
// An empty endpoint returns a no-op tracer instead of failing.
func NewOTLPTracer(ctx context.Context, endpoint, serviceName string) (Tracer, error) {
	if endpoint == "" {
		return NopTracer(), nil
	}

	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpoint(endpoint), otlptracehttp.WithInsecure())
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(serviceName)))
	if err != nil {
		return nil, err
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)

	return &otelTracer{tracer: provider.Tracer(serviceName), provider: provider}, nil
}
