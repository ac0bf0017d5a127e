// Package otel exports phoneauth counters and latency histograms through an
// OpenTelemetry Meter.
//
// [NewExporter] registers an Int64ObservableCounter per counter and an
// Int64ObservableGauge per histogram bucket. A single callback reads
// MetricsSnapshot on each collection cycle. Callers own the MeterProvider.
package otel
