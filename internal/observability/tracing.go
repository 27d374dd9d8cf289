package observability

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const scopeName = "fish-assistant"

// Tracer returns the runtime's tracer. Spans are no-ops until a TracerProvider
// is installed with otel.SetTracerProvider.
func Tracer() trace.Tracer {
	return otel.Tracer(scopeName)
}
