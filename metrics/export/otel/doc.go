// Package otel publishes authkit engine metrics through an OpenTelemetry Meter.
//
// [New] registers one Int64ObservableCounter per engine counter and one
// Int64ObservableGauge per login latency bucket. A single callback reads
// [authkit.Engine.MetricsSnapshot] on each collection cycle.
//
// # What this package must NOT do
//
//   - Own the MeterProvider. Callers supply the Meter.
//   - Mutate engine state.
package otel
