package mqtt

import (
	"context"

	"github.com/looplab/fsm"

	coremqtt "github.com/kilianp07/rcpanel/core/mqtt"
)

const (
	eventDial        = "dial"
	eventEstablished = "established"
	eventFail        = "fail"
	eventClose       = "close"
	eventLost        = "lost"
)

// stateMachine tracks the session lifecycle. Callers serialize access.
type stateMachine struct {
	fsm *fsm.FSM
}

func newStateMachine(onChange func(from, to coremqtt.ConnectionState)) *stateMachine {
	events := fsm.Events{
		{Name: eventDial, Src: []string{string(coremqtt.Disconnected), string(coremqtt.Failed)}, Dst: string(coremqtt.Connecting)},
		{Name: eventEstablished, Src: []string{string(coremqtt.Connecting)}, Dst: string(coremqtt.Connected)},
		{Name: eventFail, Src: []string{string(coremqtt.Connecting)}, Dst: string(coremqtt.Failed)},
		{Name: eventClose, Src: []string{string(coremqtt.Connecting), string(coremqtt.Connected), string(coremqtt.Failed)}, Dst: string(coremqtt.Disconnected)},
		{Name: eventLost, Src: []string{string(coremqtt.Connected)}, Dst: string(coremqtt.Disconnected)},
	}
	callbacks := fsm.Callbacks{
		"enter_state": func(_ context.Context, e *fsm.Event) {
			if onChange != nil {
				onChange(coremqtt.ConnectionState(e.Src), coremqtt.ConnectionState(e.Dst))
			}
		},
	}
	return &stateMachine{fsm: fsm.NewFSM(string(coremqtt.Disconnected), events, callbacks)}
}

// fire applies event if the current state allows it and reports whether a
// transition happened.
func (s *stateMachine) fire(event string) bool {
	if !s.fsm.Can(event) {
		return false
	}
	return s.fsm.Event(context.Background(), event) == nil
}

func (s *stateMachine) current() coremqtt.ConnectionState {
	return coremqtt.ConnectionState(s.fsm.Current())
}
