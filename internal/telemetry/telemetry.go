// Package telemetry wires OpenTelemetry tracing for the breaker. Grounded
// on the internal/observability/telemetry.go: a package-level
// Provider guarded behind Init/Shutdown, trimmed to the exporters this
// repo actually wires (otlp-http, and a no-op for tests/stdout mode).
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// meterName is the normative OpenTelemetry instrumentation name: one
// meter/tracer name shared by every engine so spans from cooperating
// processes correlate.
const meterName = "DistributedCircuitBreaker"

// Config holds tracing configuration.
type Config struct {
	Enabled    bool
	Exporter   string // "otlp-http" or "stdout"
	Endpoint   string // e.g. "localhost:4318"
	SampleRate float64
}

type provider struct {
	tp      *sdktrace.TracerProvider
	tracer  trace.Tracer
	enabled bool
}

var global = &provider{enabled: false, tracer: trace.NewNoopTracerProvider().Tracer(meterName)}

// Init initializes the global tracer provider. Calling Init with
// Enabled=false (the default) leaves tracing a no-op.
func Init(ctx context.Context, cfg Config) error {
	if !cfg.Enabled {
		global = &provider{enabled: false, tracer: trace.NewNoopTracerProvider().Tracer(meterName)}
		return nil
	}

	res, err := resource.New(ctx)
	if err != nil {
		return fmt.Errorf("telemetry: build resource: %w", err)
	}

	var exporter sdktrace.SpanExporter
	switch cfg.Exporter {
	case "otlp-http", "otlp", "":
		exp, err := otlptracehttp.New(ctx,
			otlptracehttp.WithEndpoint(cfg.Endpoint),
			otlptracehttp.WithInsecure(),
		)
		if err != nil {
			return fmt.Errorf("telemetry: create OTLP exporter: %w", err)
		}
		exporter = exp
	case "stdout":
		exporter = noopExporter{}
	default:
		return fmt.Errorf("telemetry: unknown exporter %q", cfg.Exporter)
	}

	sampler := sdktrace.AlwaysSample()
	if cfg.SampleRate < 1.0 && cfg.SampleRate >= 0 {
		sampler = sdktrace.TraceIDRatioBased(cfg.SampleRate)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	global = &provider{tp: tp, tracer: tp.Tracer(meterName), enabled: true}
	return nil
}

// Shutdown flushes and tears down the tracer provider, if one was started.
func Shutdown(ctx context.Context) error {
	if global.tp == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return global.tp.Shutdown(ctx)
}

// Tracer returns the shared tracer.
func Tracer() trace.Tracer { return global.tracer }

// Enabled reports whether a real exporter is wired.
func Enabled() bool { return global.enabled }

type noopExporter struct{}

func (noopExporter) ExportSpans(context.Context, []sdktrace.ReadOnlySpan) error { return nil }
func (noopExporter) Shutdown(context.Context) error                            { return nil }
