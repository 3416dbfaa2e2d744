package breaker

import "context"

// Sink is the narrow, side-effect-free observability contract the engine
// reports through. It exists so the engine never imports a metrics or
// tracing SDK directly — internal/telemetry provides the concrete Sink,
// which composes internal/metrics counters with its spans (see cmd/cbdemo).
type Sink interface {
	// IncRequests records one Decide call for key.
	IncRequests(key string)
	// IncSuccesses records one successful Report for key.
	IncSuccesses(key string)
	// IncFailures records one failed Report for key.
	IncFailures(key string)
	// StartSpan opens a span named name for key and returns a derived
	// context plus a function that ends the span, recording err if any.
	StartSpan(ctx context.Context, name, key string) (context.Context, func(err error))
}

// NoopSink discards everything. It is the default Sink so Engine is usable
// without wiring telemetry.
type NoopSink struct{}

func (NoopSink) IncRequests(string)  {}
func (NoopSink) IncSuccesses(string) {}
func (NoopSink) IncFailures(string)  {}

func (NoopSink) StartSpan(ctx context.Context, _, _ string) (context.Context, func(error)) {
	return ctx, func(error) {}
}
