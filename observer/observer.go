// Package observer wires the orchestrator.Tracer interface to a real OTEL
// SDK trace provider, exporting the per-step spans ExecSteps starts over
// OTLP/HTTP.
package observer

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/RichieB2B/orchestrator-core/internal/config"
)

const scopeName = "github.com/RichieB2B/orchestrator-core/observer"

// Init sets up an OTEL trace provider exporting over OTLP/HTTP to
// cfg.OTLPEndpoint and registers it as the global provider. Returns a
// shutdown function the caller must invoke on exit, and a NewTracer-ready
// trace.Tracer scoped to this package.
func Init(ctx context.Context, cfg config.TelemetryConfig) (trace.Tracer, func(context.Context) error, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName(serviceName(cfg))),
		resource.WithFromEnv(),
	)
	if err != nil {
		return nil, nil, err
	}

	opts := []otlptracehttp.Option{}
	if cfg.OTLPEndpoint != "" {
		opts = append(opts, otlptracehttp.WithEndpoint(cfg.OTLPEndpoint))
	}
	exp, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	shutdown := func(ctx context.Context) error {
		return errors.Join(tp.Shutdown(ctx))
	}

	return tp.Tracer(scopeName), shutdown, nil
}

func serviceName(cfg config.TelemetryConfig) string {
	if cfg.ServiceName != "" {
		return cfg.ServiceName
	}
	return "orchestrator-core"
}
