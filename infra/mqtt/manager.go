package mqtt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	corelogger "github.com/kilianp07/rcpanel/core/logger"
	"github.com/kilianp07/rcpanel/core/metrics"
	coremon "github.com/kilianp07/rcpanel/core/monitoring"
	coremqtt "github.com/kilianp07/rcpanel/core/mqtt"
	"github.com/kilianp07/rcpanel/core/status"
	"github.com/kilianp07/rcpanel/infra/logger"
)

// StatusSink receives inbound status records.
type StatusSink interface {
	Update(r status.Record) bool
}

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

const disconnectQuiesceMS = 250

var errClosedDuringConnect = errors.New("session closed while connecting")

// Manager owns the single broker session of a panel. It subscribes to the
// status topic on connect and forwards every status message to the sink until
// the session is closed or lost. It never reconnects on its own.
type Manager struct {
	cfg     Config
	sink    StatusSink
	logger  logger.Logger
	metrics metrics.Sink
	now     func() time.Time

	mu    sync.Mutex // guards cli, gen and state
	cli   pahoClient
	gen   uint64
	state *stateMachine

	// inMu is read-held for the duration of every inbound delivery; teardown
	// takes it exclusively so no delivery survives Close.
	inMu sync.RWMutex
	live uint64
}

// NewManager creates a disconnected Manager. Logger and metrics may be nil.
func NewManager(cfg Config, sink StatusSink, log logger.Logger, ms metrics.Sink) *Manager {
	cfg.SetDefaults()
	m := &Manager{
		cfg:     cfg,
		sink:    sink,
		logger:  corelogger.OrNop(log),
		metrics: metrics.OrNop(ms),
		now:     time.Now,
	}
	m.state = newStateMachine(m.onStateChange)
	return m
}

// SetClock replaces the clock used to stamp inbound records. It must be
// called before Connect.
func (m *Manager) SetClock(now func() time.Time) { m.now = now }

// State returns the current connection state.
func (m *Manager) State() coremqtt.ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.current()
}

// ControlTopic is the topic commands are published on.
func (m *Manager) ControlTopic() string { return m.cfg.ControlTopic }

// Session is the handle of one established broker session.
type Session struct {
	m        *Manager
	gen      uint64
	clientID string
}

// ClientID returns the MQTT client identifier of the session.
func (s *Session) ClientID() string { return s.clientID }

// Live reports whether this session is still the manager's current one.
func (s *Session) Live() bool {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	return s.m.gen == s.gen && s.m.cli != nil
}

// Close tears the session down. Closing a session that was already replaced
// or lost is a no-op.
func (s *Session) Close() error {
	s.m.teardown(s.gen, eventClose)
	return nil
}

// Connect establishes a new session, tearing down any live one first. On
// failure the state becomes Failed and the error wraps ErrConnectionFailure.
func (m *Manager) Connect(ctx context.Context, ep Endpoint, cred Credentials) (*Session, error) {
	m.teardown(0, eventClose)

	opts, err := NewClientOptions(m.cfg, ep, cred)
	if err != nil {
		return nil, m.connectFailed(0, err, ep)
	}

	m.mu.Lock()
	m.gen++
	gen := m.gen
	opts.OnConnectionLost = func(_ paho.Client, err error) { m.lost(gen, err) }
	cli := newMQTTClient(opts)
	m.cli = cli
	m.state.fire(eventDial)
	m.mu.Unlock()

	m.logger.Infof("connecting to %s as %s", ep.Broker, ep.ClientID)
	if err := waitToken(ctx, cli.Connect(), m.cfg.connectTimeout()); err != nil {
		return nil, m.connectFailed(gen, err, ep)
	}

	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		cli.Disconnect(0)
		return nil, fmt.Errorf("%w: %w", coremqtt.ErrConnectionFailure, errClosedDuringConnect)
	}
	m.inMu.Lock()
	m.live = gen
	m.inMu.Unlock()
	m.mu.Unlock()

	topic := m.cfg.StatusTopic
	if err := waitToken(ctx, cli.Subscribe(topic, m.cfg.qos("status"), m.inbound(gen, topic)), m.cfg.connectTimeout()); err != nil {
		return nil, m.connectFailed(gen, fmt.Errorf("subscribe %s: %w", topic, err), ep)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen != gen {
		return nil, fmt.Errorf("%w: %w", coremqtt.ErrConnectionFailure, errClosedDuringConnect)
	}
	m.state.fire(eventEstablished)
	m.logger.Infof("connected, subscribed to %s", topic)
	return &Session{m: m, gen: gen, clientID: ep.ClientID}, nil
}

// Publish sends payload once. It fails with ErrNotConnected unless the
// session is established.
func (m *Manager) Publish(topic string, payload []byte) error {
	m.mu.Lock()
	cli := m.cli
	connected := m.state.current() == coremqtt.Connected
	m.mu.Unlock()
	if !connected || cli == nil {
		return coremqtt.ErrNotConnected
	}

	token := cli.Publish(topic, m.cfg.qos("control"), false, payload)
	if !token.WaitTimeout(m.cfg.publishTimeout()) {
		return fmt.Errorf("publish %s: %w", topic, coremqtt.ErrPublishTimeout)
	}
	if err := token.Error(); err != nil {
		if errors.Is(err, paho.ErrNotConnected) {
			return fmt.Errorf("publish %s: %w", topic, coremqtt.ErrNotConnected)
		}
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	m.logger.Debugf("published %q on %s", payload, topic)
	return nil
}

// Close tears down the current session, including one still connecting.
// After Close returns no inbound record reaches the sink.
func (m *Manager) Close() error {
	m.teardown(0, eventClose)
	return nil
}

func (m *Manager) inbound(gen uint64, topic string) paho.MessageHandler {
	return func(_ paho.Client, msg paho.Message) {
		if msg.Topic() != topic {
			return
		}
		m.inMu.RLock()
		defer m.inMu.RUnlock()
		if m.live != gen {
			return
		}
		now := m.now()
		payload := msg.Payload()
		m.sink.Update(status.Inbound(string(payload), now))
		if rec, ok := m.metrics.(metrics.InboundRecorder); ok {
			if err := rec.RecordInbound(metrics.InboundEvent{Topic: topic, Size: len(payload), Time: now}); err != nil {
				m.logger.Errorf("record inbound: %v", err)
			}
		}
	}
}

// teardown closes the session identified by gen, or whichever session is
// current when gen is zero.
func (m *Manager) teardown(gen uint64, event string) {
	m.mu.Lock()
	if gen != 0 && gen != m.gen {
		m.mu.Unlock()
		return
	}
	cli := m.cli
	m.cli = nil
	m.gen++
	m.inMu.Lock()
	m.live = 0
	m.inMu.Unlock()
	changed := m.state.fire(event) || m.state.fire(eventClose)
	m.mu.Unlock()

	if cli != nil {
		cli.Disconnect(disconnectQuiesceMS)
	}
	if changed {
		m.logger.Infof("session closed")
	}
}

func (m *Manager) lost(gen uint64, err error) {
	m.mu.Lock()
	current := gen == m.gen
	m.mu.Unlock()
	if !current {
		return
	}
	m.logger.Errorf("connection lost: %v", err)
	m.teardown(gen, eventLost)
}

func (m *Manager) connectFailed(gen uint64, err error, ep Endpoint) error {
	m.mu.Lock()
	var cli pahoClient
	stale := gen != 0 && gen != m.gen
	if !stale {
		cli = m.cli
		m.cli = nil
		if gen != 0 {
			m.gen++
		}
		m.inMu.Lock()
		m.live = 0
		m.inMu.Unlock()
		if !m.state.fire(eventFail) {
			m.state.fire(eventDial)
			m.state.fire(eventFail)
		}
	}
	m.mu.Unlock()
	if cli != nil {
		cli.Disconnect(0)
	}

	wrapped := fmt.Errorf("%w: %v", coremqtt.ErrConnectionFailure, err)
	if stale {
		// the session was closed while connecting
		m.logger.Debugf("connect %s abandoned: %v", ep.Broker, err)
		return wrapped
	}
	m.logger.Errorf("connect %s: %v", ep.Broker, err)
	coremon.CaptureException(wrapped, map[string]string{"module": "mqtt", "broker": ep.Broker})
	return wrapped
}

func (m *Manager) onStateChange(from, to coremqtt.ConnectionState) {
	m.logger.Debugf("connection state %s -> %s", from, to)
	if rec, ok := m.metrics.(metrics.ConnectionRecorder); ok {
		if err := rec.RecordConnectionState(metrics.ConnectionEvent{From: from.String(), To: to.String(), Time: time.Now()}); err != nil {
			m.logger.Errorf("record connection state: %v", err)
		}
	}
}

func waitToken(ctx context.Context, token paho.Token, timeout time.Duration) error {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-expired:
		return fmt.Errorf("no response after %s", timeout)
	}
}
