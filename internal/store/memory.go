// Package store holds the in-memory current state served to API clients.
package store

import (
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/disaster-intel/internal/domain"
)

// Caps keep an unbounded feed from growing memory without limit. Oldest
// entries fall off first.
const (
	maxSignalsPerEvent = 100
	maxRecentSignals   = 1000
)

// EventFilter narrows an Events query. Zero values mean "any".
type EventFilter struct {
	Source    string
	Category  string
	Severity  string
	RiskLevel string
	MinThreat float64
	Limit     int
}

// SignalFilter narrows a Signals query. Zero values mean "any".
type SignalFilter struct {
	Source   string
	Category string
	Limit    int
}

// Summary is the aggregate view served by the summary endpoint.
type Summary struct {
	EventCount  int            `json:"event_count"`
	SignalCount int            `json:"signal_count"`
	ByCategory  map[string]int `json:"by_category"`
	BySource    map[string]int `json:"by_source"`
	ByRiskLevel map[string]int `json:"by_risk_level"`
	TopThreats  []domain.Event `json:"top_threats"`
}

// Memory is a mutex-guarded in-memory event store with TTL expiry.
type Memory struct {
	mu      sync.RWMutex
	events  map[string]domain.Event
	signals map[string][]domain.Signal // per event, capped
	recent  []domain.Signal            // newest last, capped
	ttl     time.Duration
	clock   clockwork.Clock
}

// New creates a Memory store. Events a signal has not touched within ttl are
// removed by Sweep.
func New(ttl time.Duration, clock clockwork.Clock) *Memory {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Memory{
		events:  make(map[string]domain.Event),
		signals: make(map[string][]domain.Signal),
		ttl:     ttl,
		clock:   clock,
	}
}

// UpsertEvent inserts or replaces an event by ID.
func (m *Memory) UpsertEvent(event domain.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[event.ID] = event
}

// AppendSignal records a processed signal, attaching it to its event when
// linked.
func (m *Memory) AppendSignal(signal domain.Signal) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if signal.EventID != "" {
		list := append(m.signals[signal.EventID], signal)
		if len(list) > maxSignalsPerEvent {
			list = list[len(list)-maxSignalsPerEvent:]
		}
		m.signals[signal.EventID] = list
	}

	m.recent = append(m.recent, signal)
	if len(m.recent) > maxRecentSignals {
		m.recent = m.recent[len(m.recent)-maxRecentSignals:]
	}
}

// Get returns an event and its recorded signals.
func (m *Memory) Get(id string) (domain.Event, []domain.Signal, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	event, ok := m.events[id]
	if !ok {
		return domain.Event{}, nil, false
	}
	signals := make([]domain.Signal, len(m.signals[id]))
	copy(signals, m.signals[id])
	return event, signals, true
}

// Candidates returns all stored events in the given category, for the
// correlation engine to match against.
func (m *Memory) Candidates(category string) []domain.Event {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []domain.Event
	for _, event := range m.events {
		if event.Category == category {
			out = append(out, event)
		}
	}
	return out
}

// Events returns events matching the filter, ordered by threat score
// descending, then recency.
func (m *Memory) Events(filter EventFilter) []domain.Event {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []domain.Event
	for _, event := range m.events {
		if !matchEvent(event, filter) {
			continue
		}
		out = append(out, event)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].ThreatScore != out[j].ThreatScore {
			return out[i].ThreatScore > out[j].ThreatScore
		}
		return out[i].LastSeen.After(out[j].LastSeen)
	})

	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out
}

// Signals returns recently processed signals matching the filter, newest
// first.
func (m *Memory) Signals(filter SignalFilter) []domain.Signal {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []domain.Signal
	for i := len(m.recent) - 1; i >= 0; i-- {
		sig := m.recent[i]
		if filter.Source != "" && sig.Source != filter.Source {
			continue
		}
		if filter.Category != "" && sig.Category != filter.Category {
			continue
		}
		out = append(out, sig)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out
}

// Summarize aggregates the store for the summary endpoint. topN bounds the
// top-threats list.
func (m *Memory) Summarize(topN int) Summary {
	m.mu.RLock()
	byCategory := make(map[string]int)
	bySource := make(map[string]int)
	byRisk := make(map[string]int)
	events := make([]domain.Event, 0, len(m.events))
	for _, event := range m.events {
		byCategory[event.Category]++
		byRisk[event.RiskLevel]++
		for _, src := range event.Sources {
			bySource[src]++
		}
		events = append(events, event)
	}
	signalCount := len(m.recent)
	eventCount := len(m.events)
	m.mu.RUnlock()

	sort.Slice(events, func(i, j int) bool {
		if events[i].ThreatScore != events[j].ThreatScore {
			return events[i].ThreatScore > events[j].ThreatScore
		}
		return events[i].LastSeen.After(events[j].LastSeen)
	})
	if topN > 0 && len(events) > topN {
		events = events[:topN]
	}

	return Summary{
		EventCount:  eventCount,
		SignalCount: signalCount,
		ByCategory:  byCategory,
		BySource:    bySource,
		ByRiskLevel: byRisk,
		TopThreats:  events,
	}
}

// Sweep removes events whose LastSeen is older than the TTL, along with
// their signals. Returns how many events were removed.
func (m *Memory) Sweep() int {
	cutoff := m.clock.Now().Add(-m.ttl)

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, event := range m.events {
		if event.LastSeen.Before(cutoff) {
			delete(m.events, id)
			delete(m.signals, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored events.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.events)
}

func matchEvent(event domain.Event, filter EventFilter) bool {
	if filter.Source != "" && !event.HasSource(filter.Source) {
		return false
	}
	if filter.Category != "" && event.Category != filter.Category {
		return false
	}
	if filter.Severity != "" && event.Severity != filter.Severity {
		return false
	}
	if filter.RiskLevel != "" && event.RiskLevel != filter.RiskLevel {
		return false
	}
	if event.ThreatScore < filter.MinThreat {
		return false
	}
	return true
}
