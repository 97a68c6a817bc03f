// Package telemetry wires up the OpenTelemetry tracer provider the
// server installs before starting its listeners. cmd/server/main.go
// calls telemetry.InitTracer() on startup; this is shaped after
// tombee-conductor's internal/tracing/otel.go resource/provider setup,
// simplified to a stdout exporter since the core has no tracing
// backend of its own to ship a collector integration for.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// ShutdownFunc flushes and releases the tracer provider's resources.
type ShutdownFunc func(context.Context) error

// InitTracer installs a global TracerProvider exporting spans to
// stdout, tagged with serviceName/version. Returns a ShutdownFunc the
// caller must invoke before process exit to flush pending spans.
func InitTracer(serviceName, version string) (ShutdownFunc, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("telemetry: create stdout exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: build resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}
