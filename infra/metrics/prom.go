package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/rcpanel/core/metrics"
	coremqtt "github.com/kilianp07/rcpanel/core/mqtt"
)

// PromSink records panel events in Prometheus metrics.
type PromSink struct {
	dispatch   *prometheus.CounterVec
	remaining  prometheus.Histogram
	inbound    *prometheus.CounterVec
	status     *prometheus.CounterVec
	connection *prometheus.GaugeVec
}

// NewPromSink registers the panel metrics on the default Prometheus registerer.
// The Prometheus server should be started separately using StartPromServer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	dispatch := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rcpanel_dispatch_total",
		Help: "Total number of dispatch attempts by command and outcome",
	}, []string{"command", "outcome"})
	remaining := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "rcpanel_throttle_remaining_seconds",
		Help:    "Cooldown left when a command was rejected by the throttle",
		Buckets: []float64{0.1, 0.25, 0.5, 0.75, 1, 2, 5},
	})
	inbound := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rcpanel_inbound_messages_total",
		Help: "Status messages received from the vehicle",
	}, []string{"topic"})
	status := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rcpanel_status_updates_total",
		Help: "Status records applied to the store by source",
	}, []string{"source"})
	connection := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "rcpanel_connection_state",
		Help: "Current broker session state (1 for the active state)",
	}, []string{"state"})

	var err error
	if dispatch, err = register(reg, dispatch); err != nil {
		return nil, err
	}
	if remaining, err = register(reg, remaining); err != nil {
		return nil, err
	}
	if inbound, err = register(reg, inbound); err != nil {
		return nil, err
	}
	if status, err = register(reg, status); err != nil {
		return nil, err
	}
	if connection, err = register(reg, connection); err != nil {
		return nil, err
	}
	for _, st := range coremqtt.States() {
		connection.WithLabelValues(st.String())
	}
	connection.WithLabelValues(coremqtt.Disconnected.String()).Set(1)

	return &PromSink{dispatch: dispatch, remaining: remaining, inbound: inbound, status: status, connection: connection}, nil
}

// register adds c to reg, reusing the collector already registered under the
// same descriptor.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordDispatch increments the dispatch counter.
func (s *PromSink) RecordDispatch(ev coremetrics.DispatchEvent) error {
	s.dispatch.WithLabelValues(ev.Command, ev.Outcome).Inc()
	if ev.Remaining > 0 {
		s.remaining.Observe(ev.Remaining.Seconds())
	}
	return nil
}

// RecordInbound counts a received status message.
func (s *PromSink) RecordInbound(ev coremetrics.InboundEvent) error {
	s.inbound.WithLabelValues(ev.Topic).Inc()
	return nil
}

// RecordStatus counts an applied status record.
func (s *PromSink) RecordStatus(ev coremetrics.StatusEvent) error {
	s.status.WithLabelValues(ev.Source).Inc()
	return nil
}

// RecordConnectionState moves the active flag to the new state.
func (s *PromSink) RecordConnectionState(ev coremetrics.ConnectionEvent) error {
	if ev.From != "" {
		s.connection.WithLabelValues(ev.From).Set(0)
	}
	s.connection.WithLabelValues(ev.To).Set(1)
	return nil
}
