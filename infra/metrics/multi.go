package metrics

import coremetrics "github.com/kilianp07/rcpanel/core/metrics"

// MultiSink fanouts panel events to multiple sinks.
type MultiSink struct {
	Sinks []coremetrics.Sink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...coremetrics.Sink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordDispatch forwards the event to all sinks, returning the first error encountered.
func (m *MultiSink) RecordDispatch(ev coremetrics.DispatchEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordDispatch(ev); err != nil {
			return err
		}
	}
	return nil
}

// RecordInbound forwards inbound events.
func (m *MultiSink) RecordInbound(ev coremetrics.InboundEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(coremetrics.InboundRecorder); ok {
			if err := rec.RecordInbound(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordStatus forwards status events.
func (m *MultiSink) RecordStatus(ev coremetrics.StatusEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(coremetrics.StatusRecorder); ok {
			if err := rec.RecordStatus(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordConnectionState forwards connection transitions.
func (m *MultiSink) RecordConnectionState(ev coremetrics.ConnectionEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(coremetrics.ConnectionRecorder); ok {
			if err := rec.RecordConnectionState(ev); err != nil {
				return err
			}
		}
	}
	return nil
}
