// Package dispatch turns an operator action into at most one control message.
//
// The throttle is consulted strictly before any transport interaction, so a
// command blocked by the cooldown never touches the network. A failed send
// does not consume the cooldown window.
package dispatch
