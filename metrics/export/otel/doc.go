// Package otel reports goGate engine metrics as OpenTelemetry observable
// instruments.
//
// Counters map to Int64ObservableCounter. Each latency histogram becomes one
// cumulative gauge per bucket plus _count and _sum gauges. The caller owns the
// MeterProvider.
package otel
