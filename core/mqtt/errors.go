package mqtt

import "errors"

var (
	// ErrNotConnected is returned by Publish when the session is not established.
	ErrNotConnected = errors.New("not connected")
	// ErrConnectionFailure wraps authentication or network errors raised while connecting.
	ErrConnectionFailure = errors.New("connection failure")
	// ErrPublishTimeout is returned when the broker does not accept a publish in time.
	ErrPublishTimeout = errors.New("timeout waiting for publish")
)
