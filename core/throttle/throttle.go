// Package throttle implements the cooldown window gating command sends.
//
// The window slides from the last successful send: at most one send is
// permitted per cooldown. A clock that moves backwards never grants an extra
// send; negative elapsed time is treated as zero elapsed.
package throttle

import (
	"sync"
	"time"
)

// Throttle is a rate-limiting state machine. It is safe for concurrent use;
// check-then-record atomicity is the caller's responsibility.
type Throttle struct {
	cooldown time.Duration

	mu         sync.RWMutex
	lastSentAt time.Time
	sent       bool
}

// New creates a Throttle with the given cooldown. Negative values are treated as zero.
func New(cooldown time.Duration) *Throttle {
	if cooldown < 0 {
		cooldown = 0
	}
	return &Throttle{cooldown: cooldown}
}

// Cooldown returns the configured window width.
func (t *Throttle) Cooldown() time.Duration { return t.cooldown }

// CanSend reports whether a command may be sent at now.
func (t *Throttle) CanSend(now time.Time) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if !t.sent {
		return true
	}
	return t.elapsed(now) >= t.cooldown
}

// Remaining returns how long until CanSend becomes true. It is zero when a send
// is already permitted and never exceeds the cooldown.
func (t *Throttle) Remaining(now time.Time) time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if !t.sent {
		return 0
	}
	if r := t.cooldown - t.elapsed(now); r > 0 {
		return r
	}
	return 0
}

// RecordSend marks now as the time of the last successful send. Only call it
// after the transport accepted the command.
func (t *Throttle) RecordSend(now time.Time) {
	t.mu.Lock()
	t.lastSentAt = now
	t.sent = true
	t.mu.Unlock()
}

// LastSentAt returns the last recorded send and whether one exists.
func (t *Throttle) LastSentAt() (time.Time, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastSentAt, t.sent
}

// elapsed must be called with mu held.
func (t *Throttle) elapsed(now time.Time) time.Duration {
	d := now.Sub(t.lastSentAt)
	if d < 0 {
		return 0
	}
	return d
}
