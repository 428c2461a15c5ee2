// Package mqtt defines the transport contract used by the dispatcher: a
// one-shot publisher, the connection state set and the transport errors.
package mqtt
