package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/rcpanel/core/metrics"
)

// New builds the sink selected by cfg. With nothing enabled it returns NopSink.
func New(cfg coremetrics.Config) (coremetrics.Sink, error) {
	return NewWithRegistry(cfg, prometheus.DefaultRegisterer)
}

// NewWithRegistry is New with an explicit Prometheus registerer.
func NewWithRegistry(cfg coremetrics.Config, reg prometheus.Registerer) (coremetrics.Sink, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var sinks []coremetrics.Sink
	if cfg.PrometheusEnabled {
		ps, err := NewPromSinkWithRegistry(reg)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, ps)
	}
	if cfg.InfluxEnabled {
		sinks = append(sinks, NewInfluxSinkWithFallback(cfg))
	}
	switch len(sinks) {
	case 0:
		return coremetrics.NopSink{}, nil
	case 1:
		return sinks[0], nil
	}
	return NewMultiSink(sinks...), nil
}
