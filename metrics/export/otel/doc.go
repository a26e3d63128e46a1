// Package otel publishes goAccess engine metrics as OpenTelemetry observable
// instruments.
//
// Engine counters are grouped into one Int64ObservableCounter per concern
// (logins, login rejections, sessions, activations, registrations, password
// changes), split by an "outcome", "reason" or "event" attribute. Resolve
// latency is published as cumulative bucket counts on a gauge keyed by "le",
// plus a total count. A single callback reads Engine.MetricsSnapshot on each
// collection. Callers own the MeterProvider.
package otel
