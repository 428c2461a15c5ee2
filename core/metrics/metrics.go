package metrics

import "time"

// DispatchEvent records the outcome of a single dispatch call.
type DispatchEvent struct {
	Command   string
	Outcome   string
	Remaining time.Duration
	Time      time.Time
}

// Sink records dispatch outcomes.
type Sink interface {
	RecordDispatch(ev DispatchEvent) error
}

// InboundEvent records a status message received from the vehicle.
type InboundEvent struct {
	Topic string
	Size  int
	Time  time.Time
}

// InboundRecorder records inbound status traffic.
type InboundRecorder interface {
	RecordInbound(ev InboundEvent) error
}

// ConnectionEvent records a broker session state transition.
type ConnectionEvent struct {
	From string
	To   string
	Time time.Time
}

// ConnectionRecorder records connection state transitions.
type ConnectionRecorder interface {
	RecordConnectionState(ev ConnectionEvent) error
}

// NopSink discards every event.
type NopSink struct{}

func (NopSink) RecordDispatch(DispatchEvent) error { return nil }
func (NopSink) RecordInbound(InboundEvent) error { return nil }
func (NopSink) RecordConnectionState(ConnectionEvent) error { return nil }
func (NopSink) RecordStatus(StatusEvent) error { return nil }

// OrNop returns s, or NopSink when s is nil.
func OrNop(s Sink) Sink {
	if s == nil {
		return NopSink{}
	}
	return s
}

// StatusEvent records a status record applied to the store.
type StatusEvent struct {
	Source string
	Time   time.Time
}

// StatusRecorder records applied status updates.
type StatusRecorder interface {
	RecordStatus(ev StatusEvent) error
}
