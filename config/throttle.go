package config

import (
	"fmt"
	"time"
)

// ThrottleConfig defines the command cooldown and the countdown refresh rate.
type ThrottleConfig struct {
	CooldownMS int `json:"cooldown_ms"`
	TickMS     int `json:"tick_ms"`
}

// SetDefaults applies sane defaults.
func (c *ThrottleConfig) SetDefaults() {
	if c.CooldownMS == 0 {
		c.CooldownMS = 1000
	}
	if c.TickMS <= 0 {
		c.TickMS = 100
	}
}

// Validate checks the durations.
func (c ThrottleConfig) Validate() error {
	if c.CooldownMS < 0 {
		return fmt.Errorf("cooldown_ms must not be negative")
	}
	if c.TickMS <= 0 {
		return fmt.Errorf("tick_ms must be positive")
	}
	return nil
}

func (c ThrottleConfig) Cooldown() time.Duration { return time.Duration(c.CooldownMS) * time.Millisecond }

func (c ThrottleConfig) Tick() time.Duration { return time.Duration(c.TickMS) * time.Millisecond }
