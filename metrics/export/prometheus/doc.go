// Package prometheus exposes goGate engine metrics through
// github.com/prometheus/client_golang.
//
// [Collector] reads [goGate.Engine.MetricsSnapshot] on each scrape and emits
// const counters and histograms named gogate_*. [NewRegistry] builds a private
// registry; nothing is registered globally.
package prometheus
