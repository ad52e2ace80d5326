// Package telemetry wires OpenTelemetry tracing to an OTLP collector.
//
// The crawler always creates spans through the global tracer provider; when
// no collector is configured those spans go to the built-in no-op provider.
package telemetry
