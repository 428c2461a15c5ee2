package mqtt

// Publisher sends a single message to the broker.
type Publisher interface {
	// Publish issues one send attempt. It fails with ErrNotConnected when no
	// session is established and never retries.
	Publish(topic string, payload []byte) error
}

// ConnectionState is the lifecycle state of the broker session.
type ConnectionState string

const (
	Disconnected ConnectionState = "disconnected"
	Connecting   ConnectionState = "connecting"
	Connected    ConnectionState = "connected"
	Failed       ConnectionState = "failed"
)

func (s ConnectionState) String() string { return string(s) }

// States lists every connection state.
func States() []ConnectionState {
	return []ConnectionState{Disconnected, Connecting, Connected, Failed}
}
