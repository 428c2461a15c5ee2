// Package metrics defines the observability events emitted by the panel and
// the sink interfaces recording them. Sinks may implement the optional
// recorder interfaces; NopSink implements all of them.
package metrics
