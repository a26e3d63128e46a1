// Package prometheus exposes goAccess engine metrics through
// github.com/prometheus/client_golang.
//
// [Collector] implements prometheus.Collector over Engine.MetricsSnapshot.
// Counters are named goaccess_*_total and the resolve latency histogram is
// goaccess_resolve_latency_seconds. Register the collector with your own
// registry or serve [Collector.Handler], which uses a private one.
package prometheus
