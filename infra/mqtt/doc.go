// Package mqtt implements the broker session of the control panel on top of
// Eclipse Paho. WebSocket (ws://, wss://) and plain MQTT (tcp://, ssl://)
// broker URLs are supported. The Manager keeps exactly one session, never
// reconnects by itself and gates inbound delivery so nothing reaches the
// status sink after the session is closed.
package mqtt
