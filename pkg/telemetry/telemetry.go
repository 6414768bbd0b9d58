// Package telemetry bootstraps OpenTelemetry tracing and metrics for the
// board-hub process and exposes the handful of domain gauges/counters the
// hub and pipelines record against.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
)

// InitMeterProvider bootstraps the OpenTelemetry MeterProvider with an
// OTLP/gRPC metric exporter targeting the given endpoint (e.g. "otel-collector:4317").
// Metrics are flushed periodically via a PeriodicReader.
// The caller must defer mp.Shutdown(ctx) to flush pending metrics.
func InitMeterProvider(ctx context.Context, serviceName string, endpoint string) (*sdkmetric.MeterProvider, error) {
	exporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(endpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
		sdkmetric.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
		)),
	)

	otel.SetMeterProvider(mp)
	return mp, nil
}

// InitTracer bootstraps the OpenTelemetry TracerProvider with an OTLP/gRPC
// span exporter targeting the given endpoint. Every board mutation, flush
// tick, and LLM round is expected to open a span under the returned provider.
// The caller must defer tp.Shutdown(ctx) to flush pending spans.
func InitTracer(ctx context.Context, serviceName string, endpoint string) (*sdktrace.TracerProvider, error) {
	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
		)),
	)

	otel.SetTracerProvider(tp)
	return tp, nil
}

// HubMetrics holds the process-wide instruments the hub and pipelines record
// against. Constructed once at startup from the global MeterProvider.
type HubMetrics struct {
	ActiveConnections metric.Int64UpDownCounter
	FramesDispatched  metric.Int64Counter
	FramesDropped     metric.Int64Counter
	ObjectsFlushed    metric.Int64Counter
	AgentRounds       metric.Int64Counter
}

// NewHubMetrics creates the hub's instruments on the given meter name.
func NewHubMetrics(meterName string) (*HubMetrics, error) {
	meter := otel.Meter(meterName)

	activeConnections, err := meter.Int64UpDownCounter("board_hub.connections.active")
	if err != nil {
		return nil, err
	}
	framesDispatched, err := meter.Int64Counter("board_hub.frames.dispatched")
	if err != nil {
		return nil, err
	}
	framesDropped, err := meter.Int64Counter("board_hub.frames.dropped")
	if err != nil {
		return nil, err
	}
	objectsFlushed, err := meter.Int64Counter("board_hub.objects.flushed")
	if err != nil {
		return nil, err
	}
	agentRounds, err := meter.Int64Counter("board_hub.agent.rounds")
	if err != nil {
		return nil, err
	}

	return &HubMetrics{
		ActiveConnections: activeConnections,
		FramesDispatched:  framesDispatched,
		FramesDropped:     framesDropped,
		ObjectsFlushed:    objectsFlushed,
		AgentRounds:       agentRounds,
	}, nil
}

// Tracer is a small convenience so callers don't import go.opentelemetry.io/otel
// directly just to grab a named tracer.
func Tracer(name string) trace.Tracer { return otel.Tracer(name) }
