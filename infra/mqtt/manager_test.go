package mqtt

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/rcpanel/core/metrics"
	coremon "github.com/kilianp07/rcpanel/core/monitoring"
	coremqtt "github.com/kilianp07/rcpanel/core/mqtt"
	"github.com/kilianp07/rcpanel/core/status"
)

// mockClient implements pahoClient for tests
type mockClient struct {
	mu          sync.Mutex
	opts        *paho.ClientOptions
	connectErr  error
	connectGate chan struct{}
	subErr      error
	handlers    map[string]paho.MessageHandler
	subscribed  []subscription
	published   []publication
	publishErrs []error
	publishHang bool
	disconnects int
}

type subscription struct {
	topic string
	qos   byte
}

type publication struct {
	topic   string
	qos     byte
	payload []byte
}

func (m *mockClient) IsConnected() bool { return true }
func (m *mockClient) Connect() paho.Token {
	if m.connectGate != nil {
		tok := &gateToken{done: make(chan struct{})}
		go func() {
			<-m.connectGate
			tok.err = m.connectErr
			close(tok.done)
		}()
		return tok
	}
	return &dummyToken{err: m.connectErr}
}
func (m *mockClient) Disconnect(uint) {
	m.mu.Lock()
	m.disconnects++
	m.mu.Unlock()
}
func (m *mockClient) Publish(topic string, qos byte, _ bool, payload interface{}) paho.Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, publication{topic, qos, payload.([]byte)})
	if len(m.publishErrs) > 0 {
		err := m.publishErrs[0]
		m.publishErrs = m.publishErrs[1:]
		return &dummyToken{err: err}
	}
	if m.publishHang {
		return &gateToken{done: make(chan struct{})}
	}
	return &dummyToken{}
}
func (m *mockClient) Subscribe(topic string, qos byte, cb paho.MessageHandler) paho.Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribed = append(m.subscribed, subscription{topic, qos})
	if m.handlers == nil {
		m.handlers = map[string]paho.MessageHandler{}
	}
	m.handlers[topic] = cb
	return &dummyToken{err: m.subErr}
}

func (m *mockClient) deliver(topic, payload string) {
	m.mu.Lock()
	h := m.handlers[topic]
	m.mu.Unlock()
	if h != nil {
		h(nil, mockMessage{topic: topic, p: []byte(payload)})
	}
}

func (m *mockClient) disconnectCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.disconnects
}

type dummyToken struct{ err error }

func (d dummyToken) Wait() bool                     { return true }
func (d dummyToken) WaitTimeout(time.Duration) bool { return true }
func (d dummyToken) Done() <-chan struct{}          { ch := make(chan struct{}); close(ch); return ch }
func (d dummyToken) Error() error                   { return d.err }

type gateToken struct {
	done chan struct{}
	err  error
}

func (g *gateToken) Wait() bool { <-g.done; return true }
func (g *gateToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-g.done:
		return true
	case <-time.After(d):
		return false
	}
}
func (g *gateToken) Done() <-chan struct{} { return g.done }
func (g *gateToken) Error() error          { return g.err }

type mockMessage struct {
	topic string
	p     []byte
}

func (m mockMessage) Duplicate() bool   { return false }
func (m mockMessage) Qos() byte         { return 0 }
func (m mockMessage) Retained() bool    { return false }
func (m mockMessage) Topic() string     { return m.topic }
func (m mockMessage) MessageID() uint16 { return 0 }
func (m mockMessage) Payload() []byte   { return m.p }
func (m mockMessage) Ack()              {}

type stateSink struct {
	metrics.NopSink
	mu          sync.Mutex
	transitions []string
	inbound     int
}

func (s *stateSink) RecordConnectionState(ev metrics.ConnectionEvent) error {
	s.mu.Lock()
	s.transitions = append(s.transitions, ev.From+">"+ev.To)
	s.mu.Unlock()
	return nil
}

func (s *stateSink) RecordInbound(metrics.InboundEvent) error {
	s.mu.Lock()
	s.inbound++
	s.mu.Unlock()
	return nil
}

type captureMonitor struct {
	coremon.NopMonitor
	mu       sync.Mutex
	captured []error
}

func (c *captureMonitor) CaptureException(err error, _ map[string]string) {
	c.mu.Lock()
	c.captured = append(c.captured, err)
	c.mu.Unlock()
}

func (c *captureMonitor) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.captured)
}

func useCaptureMonitor(t *testing.T) *captureMonitor {
	t.Helper()
	mon := &captureMonitor{}
	coremon.Init(mon)
	t.Cleanup(func() { coremon.Init(nil) })
	return mon
}

var testEpoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func useMockClients(t *testing.T, clients ...*mockClient) {
	t.Helper()
	i := 0
	newMQTTClient = func(o *paho.ClientOptions) pahoClient {
		mc := clients[i]
		if i < len(clients)-1 {
			i++
		}
		mc.opts = o
		return mc
	}
	t.Cleanup(func() { newMQTTClient = func(opts *paho.ClientOptions) pahoClient { return paho.NewClient(opts) } })
}

func testConfig() Config {
	return Config{Broker: "ws://localhost:15675/ws", QoS: map[string]byte{"control": 1, "status": 2}}
}

func newTestManager(t *testing.T, ms metrics.Sink) (*Manager, *status.MemoryStore) {
	t.Helper()
	store := status.NewMemoryStore()
	m := NewManager(testConfig(), store, nil, ms)
	m.SetClock(func() time.Time { return testEpoch })
	return m, store
}

func connect(t *testing.T, m *Manager) *Session {
	t.Helper()
	s, err := m.Connect(context.Background(), Endpoint{Broker: "ws://localhost:15675/ws", ClientID: "panel"}, Credentials{Username: "admin", Password: "secret"})
	require.NoError(t, err)
	return s
}

func TestConnectSubscribesStatusTopic(t *testing.T) {
	mc := &mockClient{}
	useMockClients(t, mc)
	sink := &stateSink{}
	m, _ := newTestManager(t, sink)
	assert.Equal(t, coremqtt.Disconnected, m.State())

	s := connect(t, m)
	assert.Equal(t, coremqtt.Connected, m.State())
	assert.Equal(t, "panel", s.ClientID())
	assert.True(t, s.Live())
	require.Len(t, mc.subscribed, 1)
	assert.Equal(t, subscription{DefaultStatusTopic, 2}, mc.subscribed[0])
	assert.Equal(t, "admin", mc.opts.Username)
	assert.Equal(t, "secret", mc.opts.Password)
	assert.False(t, mc.opts.AutoReconnect)
	assert.Equal(t, []string{"disconnected>connecting", "connecting>connected"}, sink.transitions)
}

func TestConnectFailure(t *testing.T) {
	mc := &mockClient{connectErr: errors.New("not authorized")}
	useMockClients(t, mc)
	mon := useCaptureMonitor(t)
	m, _ := newTestManager(t, nil)

	_, err := m.Connect(context.Background(), Endpoint{Broker: "ws://x/ws", ClientID: "p"}, Credentials{})
	require.Error(t, err)
	assert.ErrorIs(t, err, coremqtt.ErrConnectionFailure)
	assert.Contains(t, err.Error(), "not authorized")
	assert.Equal(t, coremqtt.Failed, m.State())
	assert.ErrorIs(t, m.Publish(DefaultControlTopic, []byte("stop")), coremqtt.ErrNotConnected)
	assert.Equal(t, 1, mon.count())
}

func TestConnectSubscribeFailure(t *testing.T) {
	mc := &mockClient{subErr: errors.New("acl denied")}
	useMockClients(t, mc)
	m, _ := newTestManager(t, nil)

	_, err := m.Connect(context.Background(), Endpoint{Broker: "ws://x/ws", ClientID: "p"}, Credentials{})
	assert.ErrorIs(t, err, coremqtt.ErrConnectionFailure)
	assert.Equal(t, coremqtt.Failed, m.State())
	assert.Equal(t, 1, mc.disconnectCount())
}

func TestConnectMissingBrokerFails(t *testing.T) {
	m, _ := newTestManager(t, nil)
	_, err := m.Connect(context.Background(), Endpoint{}, Credentials{})
	assert.ErrorIs(t, err, coremqtt.ErrConnectionFailure)
	assert.Equal(t, coremqtt.Failed, m.State())
}

func TestPublish(t *testing.T) {
	mc := &mockClient{}
	useMockClients(t, mc)
	m, _ := newTestManager(t, nil)

	assert.ErrorIs(t, m.Publish(DefaultControlTopic, []byte("adelante")), coremqtt.ErrNotConnected)
	assert.Empty(t, mc.published, "publish while disconnected must not reach the client")

	connect(t, m)
	require.NoError(t, m.Publish(DefaultControlTopic, []byte("adelante")))
	require.Len(t, mc.published, 1)
	assert.Equal(t, publication{DefaultControlTopic, 1, []byte("adelante")}, mc.published[0])
}

func TestPublishDoesNotRetry(t *testing.T) {
	mc := &mockClient{publishErrs: []error{errors.New("net fail")}}
	useMockClients(t, mc)
	m, _ := newTestManager(t, nil)
	connect(t, m)

	err := m.Publish(DefaultControlTopic, []byte("stop"))
	assert.ErrorContains(t, err, "net fail")
	assert.Len(t, mc.published, 1)
}

func TestPublishTimeout(t *testing.T) {
	mc := &mockClient{publishHang: true}
	useMockClients(t, mc)
	store := status.NewMemoryStore()
	cfg := testConfig()
	cfg.PublishTimeoutMS = 50
	m := NewManager(cfg, store, nil, nil)
	connect(t, m)

	err := m.Publish(DefaultControlTopic, []byte("adelante"))
	assert.ErrorIs(t, err, coremqtt.ErrPublishTimeout)
	assert.NotErrorIs(t, err, coremqtt.ErrNotConnected)
	assert.Len(t, mc.published, 1, "timed out publish was handed to the client")
	assert.Equal(t, coremqtt.Connected, m.State())
}

func TestPublishMapsPahoNotConnected(t *testing.T) {
	mc := &mockClient{publishErrs: []error{paho.ErrNotConnected}}
	useMockClients(t, mc)
	m, _ := newTestManager(t, nil)
	connect(t, m)
	assert.ErrorIs(t, m.Publish(DefaultControlTopic, []byte("stop")), coremqtt.ErrNotConnected)
}

func TestInboundForwardedToSink(t *testing.T) {
	mc := &mockClient{}
	useMockClients(t, mc)
	sink := &stateSink{}
	m, store := newTestManager(t, sink)
	connect(t, m)

	store.Update(status.Optimistic("command sent: Forward", testEpoch.Add(time.Hour)))
	mc.deliver(DefaultStatusTopic, "moving")
	assert.Equal(t, status.Inbound("moving", testEpoch), store.Current())
	assert.Equal(t, 1, sink.inbound)

	mc.handlers["other"] = mc.handlers[DefaultStatusTopic]
	mc.deliver("other", "ignored")
	assert.Equal(t, "moving", store.Current().Text)
}

func TestCloseStopsInbound(t *testing.T) {
	mc := &mockClient{}
	useMockClients(t, mc)
	m, store := newTestManager(t, nil)
	s := connect(t, m)

	require.NoError(t, m.Close())
	assert.Equal(t, coremqtt.Disconnected, m.State())
	assert.False(t, s.Live())
	assert.Equal(t, 1, mc.disconnectCount())

	mc.deliver(DefaultStatusTopic, "late")
	assert.True(t, store.Current().IsZero())
	assert.ErrorIs(t, m.Publish(DefaultControlTopic, []byte("stop")), coremqtt.ErrNotConnected)

	// closing again is harmless
	require.NoError(t, s.Close())
	assert.Equal(t, 1, mc.disconnectCount())
}

func TestReconnectTearsDownPrevious(t *testing.T) {
	first, second := &mockClient{}, &mockClient{}
	useMockClients(t, first, second)
	m, store := newTestManager(t, nil)

	old := connect(t, m)
	cur := connect(t, m)
	assert.Equal(t, 1, first.disconnectCount(), "previous session torn down")
	assert.False(t, old.Live())
	assert.True(t, cur.Live())

	first.deliver(DefaultStatusTopic, "from old session")
	assert.True(t, store.Current().IsZero())
	second.deliver(DefaultStatusTopic, "from new session")
	assert.Equal(t, "from new session", store.Current().Text)

	// a stale handle must not close the new session
	require.NoError(t, old.Close())
	assert.True(t, cur.Live())
	assert.Equal(t, coremqtt.Connected, m.State())
}

func TestConnectionLost(t *testing.T) {
	mc := &mockClient{}
	useMockClients(t, mc)
	sink := &stateSink{}
	m, store := newTestManager(t, sink)
	connect(t, m)

	mc.opts.OnConnectionLost(nil, errors.New("EOF"))
	assert.Equal(t, coremqtt.Disconnected, m.State())
	assert.ErrorIs(t, m.Publish(DefaultControlTopic, []byte("stop")), coremqtt.ErrNotConnected)
	mc.deliver(DefaultStatusTopic, "late")
	assert.True(t, store.Current().IsZero())
	assert.Contains(t, sink.transitions, "connected>disconnected")
}

func TestCloseDuringConnect(t *testing.T) {
	mc := &mockClient{connectGate: make(chan struct{})}
	useMockClients(t, mc)
	m, store := newTestManager(t, nil)

	errc := make(chan error, 1)
	go func() {
		_, err := m.Connect(context.Background(), Endpoint{Broker: "ws://x/ws", ClientID: "p"}, Credentials{})
		errc <- err
	}()
	require.Eventually(t, func() bool { return m.State() == coremqtt.Connecting }, time.Second, time.Millisecond)

	require.NoError(t, m.Close())
	close(mc.connectGate)

	err := <-errc
	assert.ErrorIs(t, err, coremqtt.ErrConnectionFailure)
	assert.NotEqual(t, coremqtt.Connected, m.State())
	assert.Empty(t, mc.subscribed)
	mc.deliver(DefaultStatusTopic, "late")
	assert.True(t, store.Current().IsZero())
}

func TestCloseDuringFailingConnectNotReported(t *testing.T) {
	mc := &mockClient{connectGate: make(chan struct{}), connectErr: errors.New("connection refused")}
	useMockClients(t, mc)
	mon := useCaptureMonitor(t)
	sink := &stateSink{}
	m, _ := newTestManager(t, sink)

	errc := make(chan error, 1)
	go func() {
		_, err := m.Connect(context.Background(), Endpoint{Broker: "ws://x/ws", ClientID: "p"}, Credentials{})
		errc <- err
	}()
	require.Eventually(t, func() bool { return m.State() == coremqtt.Connecting }, time.Second, time.Millisecond)

	require.NoError(t, m.Close())
	close(mc.connectGate)

	assert.ErrorIs(t, <-errc, coremqtt.ErrConnectionFailure)
	assert.Equal(t, coremqtt.Disconnected, m.State())
	assert.Zero(t, mon.count())
	sink.mu.Lock()
	assert.NotContains(t, sink.transitions, "connecting>failed")
	sink.mu.Unlock()
}

func TestConnectHonoursContext(t *testing.T) {
	mc := &mockClient{connectGate: make(chan struct{})}
	useMockClients(t, mc)
	m, _ := newTestManager(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := m.Connect(ctx, Endpoint{Broker: "ws://x/ws", ClientID: "p"}, Credentials{})
	assert.ErrorIs(t, err, coremqtt.ErrConnectionFailure)
	assert.Equal(t, coremqtt.Failed, m.State())
	close(mc.connectGate)
}
