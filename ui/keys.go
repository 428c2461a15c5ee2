package ui

import "github.com/kilianp07/rcpanel/core/command"

var keyCommands = map[string]command.Command{
	"up":    command.Forward,
	"w":     command.Forward,
	"down":  command.Backward,
	"s":     command.Backward,
	"left":  command.Left,
	"a":     command.Left,
	"right": command.Right,
	"d":     command.Right,
	" ":     command.Stop,
	"x":     command.Stop,
}

const helpLine = "↑/w forward  ↓/s back  ←/a left  →/d right  space/x stop  r reconnect  q quit"
