package dispatch

import (
	"errors"
	"time"

	"github.com/kilianp07/rcpanel/core/command"
)

// ErrThrottled is carried by Rejected outcomes.
var ErrThrottled = errors.New("command throttled")

// OutcomeKind classifies the result of a dispatch.
type OutcomeKind int

const (
	Sent OutcomeKind = iota + 1
	Rejected
	ConnectionUnavailable
	// Unconfirmed means the publish was issued but not acknowledged in time.
	Unconfirmed
)

func (k OutcomeKind) String() string {
	switch k {
	case Sent:
		return "sent"
	case Rejected:
		return "rejected"
	case ConnectionUnavailable:
		return "connection_unavailable"
	case Unconfirmed:
		return "unconfirmed"
	default:
		return "unknown"
	}
}

// Outcome is the result of a single Dispatch call.
type Outcome struct {
	Kind    OutcomeKind
	Command command.Command
	// Remaining is the cooldown left when Kind is Rejected.
	Remaining time.Duration
	// Err explains every outcome other than Sent.
	Err error
}

// OK reports whether the broker accepted the command.
func (o Outcome) OK() bool { return o.Kind == Sent }
