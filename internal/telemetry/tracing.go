// Package telemetry configures OpenTelemetry tracing for the process.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope used by minuteswatch spans.
const TracerName = "github.com/JakeFAU/minuteswatch"

// Init installs a tracer provider and the W3C propagators globally and
// returns a shutdown func that flushes pending spans.
// No exporter is attached; spans are recorded for propagation and sampling.
func Init(ctx context.Context, serviceName, version string) (func(context.Context) error, error) {
	if serviceName == "" {
		serviceName = "minuteswatch"
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(sdktrace.WithResource(res))
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	return tp.Shutdown, nil
}

// Tracer returns the minuteswatch tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}
