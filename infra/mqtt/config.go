package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

// Config defines the broker session parameters.
type Config struct {
	// Broker is the broker URL, e.g. ws://host:15675/ws, wss://…, tcp://… or ssl://….
	Broker     string `json:"broker"`
	ClientID   string `json:"client_id"`
	Username   string `json:"username"`
	Password   string `json:"password"`
	UseTLS     bool   `json:"use_tls"`
	ClientCert string `json:"client_cert"`
	ClientKey  string `json:"client_key"`
	CABundle   string `json:"ca_bundle"`
	// QoS per topic role: "control" and "status".
	QoS              map[string]byte `json:"qos"`
	ControlTopic     string          `json:"control_topic"`
	StatusTopic      string          `json:"status_topic"`
	ConnectTimeoutMS int             `json:"connect_timeout_ms"`
	PublishTimeoutMS int             `json:"publish_timeout_ms"`
	KeepAliveSeconds int             `json:"keep_alive_seconds"`
	TLSConfig        *tls.Config     `json:"-"`
}

const (
	DefaultControlTopic = "carro/control"
	DefaultStatusTopic  = "carro/estado"
)

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.ControlTopic == "" {
		c.ControlTopic = DefaultControlTopic
	}
	if c.StatusTopic == "" {
		c.StatusTopic = DefaultStatusTopic
	}
	if c.ConnectTimeoutMS <= 0 {
		c.ConnectTimeoutMS = 10000
	}
	if c.PublishTimeoutMS <= 0 {
		c.PublishTimeoutMS = 2000
	}
	if c.KeepAliveSeconds <= 0 {
		c.KeepAliveSeconds = 30
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	if c.Broker == "" {
		return fmt.Errorf("mqtt broker is required")
	}
	if c.ControlTopic == "" || c.StatusTopic == "" {
		return fmt.Errorf("mqtt control_topic and status_topic are required")
	}
	for role, q := range c.QoS {
		if q > 2 {
			return fmt.Errorf("mqtt qos %s: %d out of range", role, q)
		}
	}
	return nil
}

// Endpoint identifies the broker and the session identity.
type Endpoint struct {
	Broker   string
	ClientID string
}

// Credentials are passed through to the broker unchanged.
type Credentials struct {
	Username string
	Password string
}

// Endpoint returns the configured endpoint. An empty client id gets a unique
// generated one so that concurrent panels never share a session.
func (c Config) Endpoint() Endpoint {
	id := c.ClientID
	if id == "" {
		id = "rcpanel-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	}
	return Endpoint{Broker: c.Broker, ClientID: id}
}

func (c Config) Credentials() Credentials {
	return Credentials{Username: c.Username, Password: c.Password}
}

func (c Config) qos(role string) byte {
	if q, ok := c.QoS[role]; ok {
		return q
	}
	return 0
}

func (c Config) connectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutMS) * time.Millisecond
}

func (c Config) publishTimeout() time.Duration {
	return time.Duration(c.PublishTimeoutMS) * time.Millisecond
}

// NewClientOptions builds paho client options for a single, non-reconnecting
// session.
func NewClientOptions(cfg Config, ep Endpoint, cred Credentials) (*paho.ClientOptions, error) {
	if ep.Broker == "" {
		return nil, fmt.Errorf("broker is required")
	}
	opts := paho.NewClientOptions().AddBroker(ep.Broker).SetClientID(ep.ClientID)
	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)
	opts.SetCleanSession(true)
	if cred.Username != "" {
		opts.SetUsername(cred.Username)
	}
	if cred.Password != "" {
		opts.SetPassword(cred.Password)
	}
	if d := cfg.connectTimeout(); d > 0 {
		opts.SetConnectTimeout(d)
	}
	if cfg.KeepAliveSeconds > 0 {
		opts.SetKeepAlive(time.Duration(cfg.KeepAliveSeconds) * time.Second)
	}
	if cfg.UseTLS || cfg.TLSConfig != nil {
		tlsCfg, err := cfg.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	return opts, nil
}

// LoadTLSConfig loads the TLS configuration from the file paths in the config.
// A CA bundle alone verifies the broker; a client key pair adds mutual TLS.
func (c Config) LoadTLSConfig() (*tls.Config, error) {
	if c.TLSConfig != nil {
		return c.TLSConfig, nil
	}
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	switch {
	case c.ClientCert != "" && c.ClientKey != "":
		cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
		if err != nil {
			return nil, fmt.Errorf("load cert: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	case c.ClientCert != "" || c.ClientKey != "":
		return nil, fmt.Errorf("tls config requires both client_cert and client_key")
	}
	if c.CABundle != "" {
		caBytes, err := os.ReadFile(c.CABundle)
		if err != nil {
			return nil, fmt.Errorf("read ca: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caBytes) {
			return nil, fmt.Errorf("ca bundle %s: no certificates", c.CABundle)
		}
		cfg.RootCAs = pool
	}
	return cfg, nil
}
