package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/oriys/distcb/breaker"
	"github.com/oriys/distcb/internal/metrics"
)

// Sink combines the tracer in this package with a *metrics.Metrics to
// satisfy breaker.Sink. Grounded on StartSpan/SetSpanError
// helpers in internal/observability/tracer.go.
type Sink struct {
	metrics *metrics.Metrics
}

// NewSink builds a Sink that reports counters to m and spans to the
// package's global tracer.
func NewSink(m *metrics.Metrics) *Sink {
	return &Sink{metrics: m}
}

func (s *Sink) IncRequests(key string)  { s.metrics.IncRequests(key) }
func (s *Sink) IncSuccesses(key string) { s.metrics.IncSuccesses(key) }
func (s *Sink) IncFailures(key string)  { s.metrics.IncFailures(key) }

// StartSpan opens name as a span attributed with the breaker key and
// returns a closer that records err (if any) before ending the span.
func (s *Sink) StartSpan(ctx context.Context, name, key string) (context.Context, func(error)) {
	ctx, span := Tracer().Start(ctx, name,
		trace.WithAttributes(attribute.String("breaker.key", key)),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}
}

var _ breaker.Sink = (*Sink)(nil)
