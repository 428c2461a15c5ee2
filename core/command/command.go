// Package command defines the closed set of directional commands accepted by
// the vehicle and their wire tokens.
package command

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownCommand is returned when a token or value is outside the command set.
var ErrUnknownCommand = errors.New("unknown command")

// Command is a single control action sent to the vehicle.
type Command int

const (
	Forward Command = iota + 1
	Backward
	Left
	Right
	Stop
)

var tokens = map[Command]string{
	Forward:  "adelante",
	Backward: "atras",
	Left:     "izquierda",
	Right:    "derecha",
	Stop:     "stop",
}

var names = map[Command]string{
	Forward:  "Forward",
	Backward: "Backward",
	Left:     "Left",
	Right:    "Right",
	Stop:     "Stop",
}

// All returns every command in display order.
func All() []Command { return []Command{Forward, Backward, Left, Right, Stop} }

// Valid reports whether c belongs to the command set.
func (c Command) Valid() bool {
	_, ok := tokens[c]
	return ok
}

// Token returns the lowercase token published on the control topic.
func (c Command) Token() string { return tokens[c] }

// Payload returns the wire payload for the command.
func (c Command) Payload() []byte { return []byte(tokens[c]) }

func (c Command) String() string {
	if n, ok := names[c]; ok {
		return n
	}
	return fmt.Sprintf("Command(%d)", int(c))
}

// Parse returns the command for a wire token or display name, case-insensitively.
func Parse(s string) (Command, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for c, tok := range tokens {
		if s == tok || s == strings.ToLower(names[c]) {
			return c, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownCommand, s)
}
