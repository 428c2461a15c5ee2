package dispatch

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/kilianp07/rcpanel/core/command"
	"github.com/kilianp07/rcpanel/core/logger"
	"github.com/kilianp07/rcpanel/core/metrics"
	"github.com/kilianp07/rcpanel/core/monitoring"
	"github.com/kilianp07/rcpanel/core/mqtt"
	"github.com/kilianp07/rcpanel/core/status"
	"github.com/kilianp07/rcpanel/core/throttle"
)

// Mirror receives every command that was sent successfully. It must not block.
type Mirror interface {
	Mirror(cmd command.Command)
}

// Dispatcher gates commands through the throttle and publishes them.
type Dispatcher struct {
	throttle  *throttle.Throttle
	publisher mqtt.Publisher
	store     status.Store
	topic     string
	logger    logger.Logger
	metrics   metrics.Sink

	mu     sync.Mutex
	mirror Mirror
}

// NewDispatcher wires a Dispatcher publishing on topic. Logger and metrics may be nil.
func NewDispatcher(th *throttle.Throttle, pub mqtt.Publisher, store status.Store, topic string, log logger.Logger, sink metrics.Sink) (*Dispatcher, error) {
	if th == nil || pub == nil || store == nil {
		return nil, fmt.Errorf("throttle, publisher and store are required")
	}
	if topic == "" {
		return nil, fmt.Errorf("control topic is required")
	}
	return &Dispatcher{
		throttle:  th,
		publisher: pub,
		store:     store,
		topic:     topic,
		logger:    logger.OrNop(log),
		metrics:   metrics.OrNop(sink),
	}, nil
}

// SetMirror configures a collaborator notified of every sent command.
func (d *Dispatcher) SetMirror(m Mirror) {
	d.mu.Lock()
	d.mirror = m
	d.mu.Unlock()
}

// Dispatch sends cmd if the cooldown allows it. Calls are serialized so the
// check and the record of a send are atomic with respect to each other.
func (d *Dispatcher) Dispatch(cmd command.Command, now time.Time) Outcome {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !cmd.Valid() {
		err := fmt.Errorf("%w: %v", command.ErrUnknownCommand, cmd)
		d.store.Update(status.Rejected(err.Error(), now))
		return d.done(Outcome{Kind: Rejected, Command: cmd, Err: err}, now)
	}

	if !d.throttle.CanSend(now) {
		rem := d.throttle.Remaining(now)
		d.store.Update(status.Rejected(RejectedText(rem), now))
		d.logger.Debugf("%s throttled, %s remaining", cmd, rem)
		return d.done(Outcome{Kind: Rejected, Command: cmd, Remaining: rem, Err: ErrThrottled}, now)
	}

	err := d.publisher.Publish(d.topic, cmd.Payload())
	if errors.Is(err, mqtt.ErrPublishTimeout) {
		// issued but not acknowledged; the transport may still deliver it
		d.throttle.RecordSend(now)
		d.store.Update(status.Optimistic(UnconfirmedText(cmd), now))
		d.logger.Warnf("send %s unconfirmed: %v", cmd, err)
		monitoring.CaptureException(err, map[string]string{"module": "dispatch", "command": cmd.Token()})
		return d.done(Outcome{Kind: Unconfirmed, Command: cmd, Err: err}, now)
	}
	if err != nil {
		text := "no connection"
		if !errors.Is(err, mqtt.ErrNotConnected) {
			text = "no connection: " + err.Error()
			monitoring.CaptureException(err, map[string]string{"module": "dispatch", "command": cmd.Token()})
		}
		d.store.Update(status.Rejected(text, now))
		d.logger.Warnf("send %s failed: %v", cmd, err)
		return d.done(Outcome{Kind: ConnectionUnavailable, Command: cmd, Err: err}, now)
	}

	d.throttle.RecordSend(now)
	d.store.Update(status.Optimistic(SentText(cmd), now))
	d.logger.Infof("sent %s on %s", cmd.Token(), d.topic)
	if d.mirror != nil {
		d.mirror.Mirror(cmd)
	}
	return d.done(Outcome{Kind: Sent, Command: cmd}, now)
}

// Remaining reports the cooldown left at now without changing it.
func (d *Dispatcher) Remaining(now time.Time) time.Duration { return d.throttle.Remaining(now) }

func (d *Dispatcher) done(o Outcome, now time.Time) Outcome {
	ev := metrics.DispatchEvent{Command: o.Command.Token(), Outcome: o.Kind.String(), Remaining: o.Remaining, Time: now}
	if err := d.metrics.RecordDispatch(ev); err != nil {
		d.logger.Errorf("record dispatch: %v", err)
	}
	return o
}

// SentText is the optimistic status shown after a successful send.
func SentText(cmd command.Command) string { return "command sent: " + cmd.String() }

// UnconfirmedText is the status shown when a publish was issued but its
// acknowledgement timed out.
func UnconfirmedText(cmd command.Command) string {
	return "command sent: " + cmd.String() + " (delivery unconfirmed)"
}

// RejectedText is the status shown when the cooldown blocks a command. The
// wait is rounded up to whole seconds.
func RejectedText(remaining time.Duration) string {
	secs := int(math.Ceil(remaining.Seconds()))
	return fmt.Sprintf("command rejected: wait %ds", secs)
}
