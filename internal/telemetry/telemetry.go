// Package telemetry wires the optional OpenTelemetry trace pipeline.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

// serviceName identifies the bridge in trace backends.
const serviceName = "labridge"

// noopShutdown is returned when tracing is disabled.
func noopShutdown(context.Context) error { return nil }

// Init sets up the global tracer provider with an OTLP HTTP exporter.
// When disabled it installs nothing and returns a no-op shutdown function.
// The returned function must be called on application exit.
func Init(ctx context.Context, enabled bool, endpoint string, logger *slog.Logger) (func(context.Context) error, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if !enabled {
		logger.Debug("tracing disabled")
		return noopShutdown, nil
	}

	if endpoint == "" {
		endpoint = "localhost:4318"
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: creating OTLP exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(serviceName),
		)),
	)
	otel.SetTracerProvider(tp)

	logger.Info("tracing enabled", "endpoint", endpoint)
	return tp.Shutdown, nil
}
