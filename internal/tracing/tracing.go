// Package tracing sets up the OpenTelemetry tracer provider behind the
// scheduler's per-fire admission and assignment spans; the tick loop
// itself is not traced. Diagnostic only: no span data ever crosses the
// wire protocol.
package tracing

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// NewProvider builds a TracerProvider with no exporter attached by
// default (spans are sampled and ended but not shipped anywhere); wire in
// an exporter for local runs where trace output is wanted.
func NewProvider(serviceName string) *sdktrace.TracerProvider {
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(serviceName),
		)),
	)
	otel.SetTracerProvider(tp)
	return tp
}

// Tracer returns the named tracer from the global provider.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}
