package legacy

import (
	"fmt"
	"net/url"
	"time"
)

// DefaultBaseURL is the address of the vehicle's access-point web server.
const DefaultBaseURL = "http://192.168.4.1"

// Config enables the direct HTTP path to the vehicle.
type Config struct {
	Enabled   bool   `json:"enabled"`
	BaseURL   string `json:"base_url"`
	TimeoutMS int    `json:"timeout_ms"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.TimeoutMS <= 0 {
		c.TimeoutMS = 2000
	}
}

// Validate checks the base URL when the mirror is enabled.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("base_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("base_url must be http or https, got %q", c.BaseURL)
	}
	return nil
}

func (c Config) timeout() time.Duration { return time.Duration(c.TimeoutMS) * time.Millisecond }
