// Package otel exports engine counters and histograms through an
// OpenTelemetry meter.
//
// [NewExporter] registers an Int64ObservableCounter per counter and
// Int64ObservableGauge per histogram bucket. A single callback reads
// one [credlock.Engine.MetricsSnapshot] per collection cycle.
//
// # What this package must NOT do
//
//   - Own the OTel MeterProvider. Callers supply the Meter.
//   - Mutate engine state.
package otel
