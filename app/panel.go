// Package app wires the control panel: one broker session, the command
// throttle, the dispatcher, the status store and the countdown ticker.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kilianp07/rcpanel/config"
	"github.com/kilianp07/rcpanel/core/command"
	"github.com/kilianp07/rcpanel/core/dispatch"
	coremetrics "github.com/kilianp07/rcpanel/core/metrics"
	coremon "github.com/kilianp07/rcpanel/core/monitoring"
	coremqtt "github.com/kilianp07/rcpanel/core/mqtt"
	"github.com/kilianp07/rcpanel/core/status"
	"github.com/kilianp07/rcpanel/core/throttle"
	"github.com/kilianp07/rcpanel/infra/legacy"
	"github.com/kilianp07/rcpanel/infra/logger"
	"github.com/kilianp07/rcpanel/infra/metrics"
	"github.com/kilianp07/rcpanel/infra/mqtt"
	"github.com/kilianp07/rcpanel/internal/eventbus"
)

// ErrClosed is returned by Mount and Reset after Close.
var ErrClosed = errors.New("panel closed")

// Connection is the broker session owner used by the panel.
type Connection interface {
	Connect(ctx context.Context, ep mqtt.Endpoint, cred mqtt.Credentials) (*mqtt.Session, error)
	Publish(topic string, payload []byte) error
	State() coremqtt.ConnectionState
	Close() error
}

// Tick is a countdown snapshot for display.
type Tick struct {
	Remaining time.Duration
	State     coremqtt.ConnectionState
	At        time.Time
}

// Panel is one mounted control surface.
type Panel struct {
	cfg        *config.Config
	conn       Connection
	store      *status.MemoryStore
	throttle   *throttle.Throttle
	dispatcher *dispatch.Dispatcher
	legacy     *legacy.Client
	sink       coremetrics.Sink
	ticks      *eventbus.Bus[Tick]
	endpoint   mqtt.Endpoint
	log        logger.Logger
	now        func() time.Time

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mounted bool
	closed  bool
}

// New creates a Panel backed by its own MQTT session manager.
func New(cfg *config.Config, sink coremetrics.Sink) (*Panel, error) {
	store := status.NewMemoryStore()
	mgr := mqtt.NewManager(cfg.MQTT, store, logger.New("mqtt"), sink)
	return newPanel(cfg, mgr, store, sink)
}

func newPanel(cfg *config.Config, conn Connection, store *status.MemoryStore, sink coremetrics.Sink) (*Panel, error) {
	sink = coremetrics.OrNop(sink)
	th := throttle.New(cfg.Throttle.Cooldown())
	d, err := dispatch.NewDispatcher(th, conn, store, cfg.MQTT.ControlTopic, logger.New("dispatch"), sink)
	if err != nil {
		return nil, fmt.Errorf("dispatcher: %w", err)
	}
	p := &Panel{
		cfg:        cfg,
		conn:       conn,
		store:      store,
		throttle:   th,
		dispatcher: d,
		sink:       sink,
		ticks:      eventbus.New[Tick](1),
		endpoint:   cfg.MQTT.Endpoint(),
		log:        logger.New("panel"),
		now:        time.Now,
	}
	if cfg.Legacy.Enabled {
		p.legacy = legacy.NewClient(cfg.Legacy)
		d.SetMirror(p.legacy)
	}
	return p, nil
}

// Mount starts the countdown ticker and opens the broker session. A failed
// connect is reported in the status store and returned; the panel stays
// mounted so Reset can retry.
func (p *Panel) Mount(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	if !p.mounted {
		p.mounted = true
		runCtx, cancel := context.WithCancel(context.Background())
		p.cancel = cancel
		metrics.StartStatusCollector(runCtx, p.store, p.sink)
		p.wg.Add(1)
		go p.tick(runCtx)
	}
	p.mu.Unlock()
	return p.connect(ctx)
}

// Reset tears the session down and connects again.
func (p *Panel) Reset(ctx context.Context) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if err := p.conn.Close(); err != nil {
		p.log.Warnf("close session: %v", err)
	}
	return p.connect(ctx)
}

func (p *Panel) connect(ctx context.Context) error {
	cred := p.cfg.MQTT.Credentials()
	if _, err := p.conn.Connect(ctx, p.endpoint, cred); err != nil {
		p.store.Update(status.Rejected("connection failed: "+err.Error(), p.now()))
		return err
	}
	p.log.Infof("panel connected as %s", p.endpoint.ClientID)
	return nil
}

// Dispatch sends cmd through the throttle.
func (p *Panel) Dispatch(cmd command.Command) dispatch.Outcome {
	return p.dispatcher.Dispatch(cmd, p.now())
}

// Status returns the current status record.
func (p *Panel) Status() status.Record { return p.store.Current() }

// CooldownRemaining returns the time left before the next command is accepted.
func (p *Panel) CooldownRemaining() time.Duration { return p.dispatcher.Remaining(p.now()) }

// ConnectionState returns the broker session state.
func (p *Panel) ConnectionState() coremqtt.ConnectionState { return p.conn.State() }

// Ticks returns a channel of countdown snapshots. It is closed by Close.
func (p *Panel) Ticks() <-chan Tick { return p.ticks.Subscribe() }

// StatusUpdates returns a channel of applied status records. It is closed by Close.
func (p *Panel) StatusUpdates() <-chan status.Record { return p.store.Subscribe() }

// Close stops the ticker, then releases the session and the legacy client.
// Nothing is delivered on Ticks or StatusUpdates once Close returns.
func (p *Panel) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	cancel := p.cancel
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	p.wg.Wait()
	p.ticks.Close()
	err := p.conn.Close()
	if p.legacy != nil {
		p.legacy.Close()
	}
	p.store.Close()
	return err
}

func (p *Panel) tick(ctx context.Context) {
	defer p.wg.Done()
	defer coremon.Recover()
	t := time.NewTicker(p.cfg.Throttle.Tick())
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			now := p.now()
			p.ticks.Publish(Tick{Remaining: p.dispatcher.Remaining(now), State: p.conn.State(), At: now})
		}
	}
}
