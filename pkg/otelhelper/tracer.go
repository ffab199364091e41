// Package otelhelper provides distributed tracing helpers for automation runs.
package otelhelper

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otlptracehttp "go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Span attribute keys.
const (
	AutomationIDKey   = "stepflow.automation.id"
	AutomationNameKey = "stepflow.automation.name"
	TriggerTypeKey    = "stepflow.trigger.type"
	RunIDKey          = "stepflow.run.id"
	RunStatusKey      = "stepflow.run.status"
	DepthKey          = "stepflow.run.depth"
	StepIDKey         = "stepflow.step.id"
	StepTypeKey       = "stepflow.step.type"
	StepKindKey       = "stepflow.step.kind"
	StepStatusKey     = "stepflow.step.status"
)

const tracerName = "github.com/dukex/stepflow"

// Tracer returns the engine tracer of the global provider, a no-op until
// Setup runs.
//
// nolint:ireturn // trace.Tracer is the OpenTelemetry API
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a span named name carrying attrs.
//
// nolint:ireturn,spancheck // the caller ends the span
func StartSpan(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// Setup installs an OTLP/HTTP exporting provider for serviceName as the global
// provider and returns its shutdown function. The exporter is configured by
// the standard OTEL_EXPORTER_OTLP_* environment variables.
func Setup(ctx context.Context, serviceName string) (func(context.Context) error, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(semconv.SchemaURL, semconv.ServiceName(serviceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build trace resource: %w", err)
	}

	exporter, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
	)

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return provider.Shutdown, nil
}
