// Package internaldefs holds the metric names shared by the Prometheus and
// OpenTelemetry exporters, so both expose identical names and bucket bounds.
package internaldefs
