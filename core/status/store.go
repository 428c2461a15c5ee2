// Package status holds the single current vehicle status shown to the
// operator together with its provenance.
package status

import (
	"sync"
	"time"

	"github.com/kilianp07/rcpanel/internal/eventbus"
)

// Source identifies where a status record came from.
type Source int

const (
	// SourceNone marks the empty sentinel record.
	SourceNone Source = iota
	// SourceInbound is a report received from the vehicle. It is authoritative.
	SourceInbound
	// SourceOptimistic is written locally right after a command was sent.
	SourceOptimistic
	// SourceRejected is written locally when a command could not be sent.
	SourceRejected
)

func (s Source) String() string {
	switch s {
	case SourceInbound:
		return "inbound"
	case SourceOptimistic:
		return "optimistic"
	case SourceRejected:
		return "rejected"
	default:
		return "none"
	}
}

// Record is the visible current status.
type Record struct {
	Text       string    `json:"text"`
	Source     Source    `json:"source"`
	ObservedAt time.Time `json:"observed_at"`
}

// NoData is returned by Current before any record was applied.
var NoData = Record{Text: "waiting for data...", Source: SourceNone}

// IsZero reports whether r is the empty sentinel.
func (r Record) IsZero() bool { return r.Source == SourceNone }

func Inbound(text string, at time.Time) Record {
	return Record{Text: text, Source: SourceInbound, ObservedAt: at}
}

func Optimistic(text string, at time.Time) Record {
	return Record{Text: text, Source: SourceOptimistic, ObservedAt: at}
}

func Rejected(text string, at time.Time) Record {
	return Record{Text: text, Source: SourceRejected, ObservedAt: at}
}

// Store keeps the current status record.
type Store interface {
	// Update applies r if it takes precedence over the current record and
	// reports whether it did.
	Update(r Record) bool
	Current() Record
}

// MemoryStore is an in-memory Store that notifies subscribers of every
// applied record.
type MemoryStore struct {
	mu      sync.RWMutex
	current Record
	bus     *eventbus.Bus[Record]
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{current: NoData, bus: eventbus.New[Record](eventbus.DefaultBuffer)}
}

// Update applies the precedence rule: inbound records always win, local
// records win only when they are not older than the current record.
func (s *MemoryStore) Update(r Record) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !supersedes(r, s.current) {
		return false
	}
	s.current = r
	s.bus.Publish(r)
	return true
}

func (s *MemoryStore) Current() Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Subscribe returns a channel receiving every applied record.
func (s *MemoryStore) Subscribe() <-chan Record { return s.bus.Subscribe() }

// Unsubscribe releases a channel obtained from Subscribe.
func (s *MemoryStore) Unsubscribe(ch <-chan Record) { s.bus.Unsubscribe(ch) }

// Close stops notifications. The current record stays readable.
func (s *MemoryStore) Close() { s.bus.Close() }

func supersedes(next, cur Record) bool {
	switch {
	case next.Source == SourceNone:
		return false
	case next.Source == SourceInbound, cur.Source == SourceNone:
		return true
	default:
		return !next.ObservedAt.Before(cur.ObservedAt)
	}
}
