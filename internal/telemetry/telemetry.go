// Package telemetry initializes OpenTelemetry tracing and metrics exporters
// and bundles the instruments used by the router and the event store.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Shutdown combines multiple shutdown functions.
type Shutdown func(ctx context.Context) error

// Init configures the global OpenTelemetry tracer and meter providers.
// If endpoint is empty, OTEL is disabled and no-op providers are used.
// Returns a shutdown function that must be called during graceful shutdown.
func Init(ctx context.Context, endpoint, serviceName, version string, insecure bool) (Shutdown, error) {
	if endpoint == "" {
		return func(ctx context.Context) error { return nil }, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: create resource: %w", err)
	}

	traceOpts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(endpoint),
	}
	if insecure {
		traceOpts = append(traceOpts, otlptracehttp.WithInsecure())
	}
	traceExp, err := otlptracehttp.New(ctx, traceOpts...)
	if err != nil {
		return nil, fmt.Errorf("telemetry: create trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExp,
			sdktrace.WithBatchTimeout(5*time.Second),
		),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	otel.SetTextMapPropagator(
		propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		),
	)

	metricOpts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(endpoint),
	}
	if insecure {
		metricOpts = append(metricOpts, otlpmetrichttp.WithInsecure())
	}
	metricExp, err := otlpmetrichttp.New(ctx, metricOpts...)
	if err != nil {
		return nil, fmt.Errorf("telemetry: create metric exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(metricExp,
				sdkmetric.WithInterval(15*time.Second),
			),
		),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	shutdown := func(ctx context.Context) error {
		var firstErr error
		if err := tp.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := mp.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
		return firstErr
	}

	return shutdown, nil
}

// Meter returns the global meter for the given instrumentation scope.
func Meter(name string) metric.Meter {
	return otel.GetMeterProvider().Meter(name)
}

// Instruments bundles the counters and histograms recorded by the router
// and the event store. With no exporter configured these are no-ops.
type Instruments struct {
	RunsStarted      metric.Int64Counter
	RunsCompleted    metric.Int64Counter
	RunsFailed       metric.Int64Counter
	EventsAppended   metric.Int64Counter
	ToolCallDuration metric.Float64Histogram
}

// NewInstruments creates the nexus-router instrument set on the global
// meter provider.
func NewInstruments() (*Instruments, error) {
	meter := Meter("nexus-router")

	runsStarted, err := meter.Int64Counter("nexus.runs.started",
		metric.WithDescription("Runs opened by the router"))
	if err != nil {
		return nil, fmt.Errorf("telemetry: runs started counter: %w", err)
	}
	runsCompleted, err := meter.Int64Counter("nexus.runs.completed",
		metric.WithDescription("Runs that reached RUN_COMPLETED"))
	if err != nil {
		return nil, fmt.Errorf("telemetry: runs completed counter: %w", err)
	}
	runsFailed, err := meter.Int64Counter("nexus.runs.failed",
		metric.WithDescription("Runs that reached RUN_FAILED"))
	if err != nil {
		return nil, fmt.Errorf("telemetry: runs failed counter: %w", err)
	}
	eventsAppended, err := meter.Int64Counter("nexus.events.appended",
		metric.WithDescription("Events appended to the store"))
	if err != nil {
		return nil, fmt.Errorf("telemetry: events appended counter: %w", err)
	}
	toolCallDuration, err := meter.Float64Histogram("nexus.tool_call.duration_ms",
		metric.WithDescription("Adapter call duration in milliseconds"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, fmt.Errorf("telemetry: tool call histogram: %w", err)
	}

	return &Instruments{
		RunsStarted:      runsStarted,
		RunsCompleted:    runsCompleted,
		RunsFailed:       runsFailed,
		EventsAppended:   eventsAppended,
		ToolCallDuration: toolCallDuration,
	}, nil
}
