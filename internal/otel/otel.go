// Package otel wires OpenTelemetry tracing for provider operations.
package otel

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.20.0"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "router-providers"

// InitTracer installs an OTLP/HTTP tracer provider when an endpoint is configured.
// The returned function flushes and shuts it down.
func InitTracer(endpoint, serviceName string) func() {
	if endpoint == "" {
		return func() {}
	}

	ctx := context.Background()
	client := otlptracehttp.NewClient(
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
	)

	exporter, err := otlptrace.New(ctx, client)
	if err != nil {
		logrus.Warnf("Tracing disabled, failed to create OTLP exporter: %v", err)
		return func() {}
	}

	if serviceName == "" {
		serviceName = instrumentationName
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
		)),
	)
	otel.SetTracerProvider(tp)
	logrus.WithField("endpoint", endpoint).Info("OpenTelemetry tracing enabled")

	return func() {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logrus.Warnf("Tracer shutdown: %v", err)
		}
	}
}

// Tracer returns the tracer used by every package in this module
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// StartSpan starts a span tagged with the network it works for
func StartSpan(ctx context.Context, name, network string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("network", network))
	return Tracer().Start(ctx, name, trace.WithAttributes(attrs...))
}

// RecordError marks the span in ctx as failed
func RecordError(ctx context.Context, err error) {
	if err == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
