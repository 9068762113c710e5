// Package internaldefs holds the metric names and bucket bounds shared by the
// Prometheus and OpenTelemetry exporters, so both expose identical series.
//
// It performs no I/O.
package internaldefs
