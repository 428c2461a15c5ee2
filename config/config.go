package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/rcpanel/core/metrics"
	"github.com/kilianp07/rcpanel/infra/legacy"
	"github.com/kilianp07/rcpanel/infra/mqtt"
)

type Config struct {
	MQTT     mqtt.Config    `json:"mqtt"`
	Throttle ThrottleConfig `json:"throttle"`
	Legacy   legacy.Config  `json:"legacy"`
	Metrics  metrics.Config `json:"metrics"`
	Logging  LoggingConfig  `json:"logging"`
	Sentry   SentryConfig   `json:"sentry"`
}

// Load reads the YAML or JSON file at path, applies K_ prefixed environment
// overrides (K_MQTT__PASSWORD sets mqtt.password), fills defaults and validates
// every section.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Optional environment overrides
	if err := k.Load(env.Provider("K_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "k_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults fills every section.
func (c *Config) SetDefaults() {
	c.MQTT.SetDefaults()
	c.Throttle.SetDefaults()
	c.Legacy.SetDefaults()
	c.Metrics.SetDefaults()
	c.Logging.SetDefaults()
}

// Validate reports the first invalid section.
func (c Config) Validate() error {
	sections := []struct {
		name string
		v    interface{ Validate() error }
	}{
		{"mqtt", c.MQTT},
		{"throttle", c.Throttle},
		{"legacy", c.Legacy},
		{"metrics", c.Metrics},
		{"logging", c.Logging},
		{"sentry", c.Sentry},
	}
	for _, s := range sections {
		if err := s.v.Validate(); err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
	}
	return nil
}
