// Package tracing wires the engine into OpenTelemetry: a Jaeger-exporting
// TracerProvider plus a StartSpan helper used by the import/export paths
// to trace a change's round trip through the oplog and diff calculator.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// InitTracer builds and registers a Jaeger-backed TracerProvider for
// serviceName, exporting to the given collector endpoint. The provider is
// still returned when the endpoint can't be reached immediately — Jaeger
// exports are async, so connectivity failures only surface once spans are
// actually flushed.
func InitTracer(serviceName, jaegerEndpoint string) (*sdktrace.TracerProvider, error) {
	exp, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(jaegerEndpoint)))
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(serviceName),
		)),
	)
	otel.SetTracerProvider(tp)
	return tp, nil
}

// StartSpan starts a span named name on the engine's global tracer,
// carrying any extra attributes the caller wants attached up front.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.Tracer("loro-go")
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}
