// Package otelhelper provides distributed tracing for workflow executions and
// gateway calls.
package otelhelper

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otlptracehttp "go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	// Common attribute keys.
	WorkflowIDKey    = "leadflow.workflow.id"
	WorkflowNameKey  = "leadflow.workflow.name"
	TriggerTypeKey   = "leadflow.trigger.type"
	ActionIDKey      = "leadflow.action.id"
	ActionTypeKey    = "leadflow.action.type"
	ExecutionIDKey   = "leadflow.execution.id"
	LeadIDKey        = "leadflow.lead.id"
	ChannelKey       = "leadflow.channel"
	EndpointKey      = "leadflow.gateway.endpoint"
	MessageTypeKey   = "leadflow.gateway.message_type"
	ErrorCodeKey     = "leadflow.error.code"
	RecoverableKey   = "leadflow.error.recoverable"
	HTTPStatusKey    = "leadflow.http.status"
	DefaultScopeName = "github.com/leadflow/leadflow"
)

// Tracer returns a tracer from the global provider, a no-op until
// NewTracerProvider installs one.
//
// nolint:ireturn // Returning interface is intentional for OpenTelemetry tracing
func Tracer() trace.Tracer {
	return otel.Tracer(DefaultScopeName)
}

// nolint:ireturn // Returning interface is intentional for OpenTelemetry tracing
func NewTracer(ctx context.Context, serviceName string) (trace.Tracer, error) {
	provider, err := NewTracerProvider(ctx, serviceName)
	if err != nil {
		return nil, err
	}

	return provider.Tracer(serviceName), nil
}

// nolint:ireturn,spancheck // Returning interface is intentional for OpenTelemetry tracing
func StartSpan(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// NewTracerProvider exports spans over OTLP/HTTP and installs the provider
// globally. Callers own Shutdown.
func NewTracerProvider(ctx context.Context, serviceName string) (*sdktrace.TracerProvider, error) {
	r, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return nil, err
	}

	exporter, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(r),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}))

	return tp, nil
}
