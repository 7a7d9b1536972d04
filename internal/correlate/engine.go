// Package correlate matches independent signals to the real-world events
// they report on.
package correlate

import (
	"time"

	"github.com/couchcryptid/disaster-intel/internal/domain"
)

// categoryRadiusKm is the maximum distance at which two reports are
// considered the same occurrence. Scaled to how far each phenomenon's
// reports plausibly spread: quake epicenter estimates differ by tens of km
// between networks, fire detections cluster tightly, hurricanes are huge.
var categoryRadiusKm = map[string]float64{
	domain.CategoryEarthquake: 100,
	domain.CategoryWildfire:   20,
	domain.CategoryFlood:      50,
	domain.CategoryTornado:    30,
	domain.CategoryHurricane:  300,
	domain.CategoryStorm:      50,
	domain.CategoryWinter:     100,
	domain.CategoryOther:      50,
}

const defaultRadiusKm = 50

// Engine decides whether a signal joins an existing event or opens a new one.
type Engine struct {
	window time.Duration
}

// New creates an Engine. window is the maximum observation-time gap between
// a signal and an event it may join.
func New(window time.Duration) *Engine {
	return &Engine{window: window}
}

// Match returns the best candidate event for the signal, or false when none
// qualifies. Candidates must share the category; the closest one within the
// category radius and the time window wins. Signals without coordinates
// never match — there is nothing to correlate on.
func (e *Engine) Match(signal domain.Signal, candidates []domain.Event) (domain.Event, bool) {
	if !signal.HasGeo {
		return domain.Event{}, false
	}

	radius := categoryRadiusKm[signal.Category]
	if radius == 0 {
		radius = defaultRadiusKm
	}

	var best domain.Event
	bestDist := radius + 1
	for _, candidate := range candidates {
		if candidate.Category != signal.Category {
			continue
		}
		if !e.withinWindow(signal.ObservedAt, candidate) {
			continue
		}
		dist := domain.HaversineKm(signal.Geo, candidate.Geo)
		if dist <= radius && dist < bestDist {
			best = candidate
			bestDist = dist
		}
	}
	if bestDist > radius {
		return domain.Event{}, false
	}
	return best, true
}

func (e *Engine) withinWindow(observed time.Time, event domain.Event) bool {
	if observed.IsZero() {
		return true
	}
	gapStart := event.FirstSeen.Add(-e.window)
	gapEnd := event.LastSeen.Add(e.window)
	return !observed.Before(gapStart) && !observed.After(gapEnd)
}

// Open creates a new event from its first signal.
func Open(signal domain.Signal, now time.Time) domain.Event {
	observed := signal.ObservedAt
	if observed.IsZero() {
		observed = now
	}

	return domain.Event{
		ID:          domain.EventKey(signal.Category, signal.Geo, observed),
		Category:    signal.Category,
		Headline:    signal.Title,
		Area:        signal.Area,
		Geo:         signal.Geo,
		Severity:    signal.Severity,
		Magnitude:   signal.Magnitude,
		Unit:        signal.Unit,
		Confidence:  signal.Confidence,
		Sources:     []string{signal.Source},
		SignalCount: 1,
		FirstSeen:   observed,
		LastSeen:    observed,
		TimeBucket:  domain.TimeBucketOf(observed),
		UpdatedAt:   now,
	}
}

// Merge folds a corroborating signal into an existing event. Severity takes
// the higher rank, magnitude the larger value, and confidence rises when a
// new distinct source confirms the event.
func Merge(event domain.Event, signal domain.Signal, now time.Time) domain.Event {
	newSource := !event.HasSource(signal.Source)
	if newSource {
		event.Sources = append(event.Sources, signal.Source)
		event.Confidence = corroborate(event.Confidence, signal.Confidence)
	} else if signal.Confidence > event.Confidence {
		event.Confidence = signal.Confidence
	}

	event.Severity = domain.MaxSeverity(event.Severity, signal.Severity)
	if signal.Magnitude > event.Magnitude {
		event.Magnitude = signal.Magnitude
		event.Unit = signal.Unit
	}
	if event.Headline == "" {
		event.Headline = signal.Title
	}
	if event.Area == "" {
		event.Area = signal.Area
	}

	event.SignalCount++
	if !signal.ObservedAt.IsZero() {
		if signal.ObservedAt.After(event.LastSeen) {
			event.LastSeen = signal.ObservedAt
		}
		if signal.ObservedAt.Before(event.FirstSeen) {
			event.FirstSeen = signal.ObservedAt
		}
	}
	event.UpdatedAt = now
	return event
}

// corroborate combines confidences from independent sources. Each new source
// shrinks the residual doubt by its own confidence, capped below certainty.
func corroborate(existing, incoming float64) float64 {
	combined := 1 - (1-existing)*(1-incoming)
	if combined > 0.99 {
		return 0.99
	}
	return combined
}
