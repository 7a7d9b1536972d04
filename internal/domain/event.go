package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"time"
)

// geocellDegrees is the side of the spatial grid used for event identity.
// 0.25 degrees is roughly 25km of latitude, coarse enough that independent
// reports of one occurrence land in the same cell.
const geocellDegrees = 0.25

// Event is a correlated real-world occurrence assembled from one or more
// signals across sources.
type Event struct {
	ID       string `json:"id"`
	Category string `json:"category"`
	Headline string `json:"headline,omitempty"`
	Area     string `json:"area,omitempty"`
	Geo      Geo    `json:"geo,omitempty"`

	Severity       string  `json:"severity,omitempty"`
	RiskLevel      string  `json:"risk_level"`
	Urgency        string  `json:"urgency"`
	ImpactRadiusKm float64 `json:"impact_radius_km"`
	ThreatScore    float64 `json:"threat_score"`

	Magnitude float64 `json:"magnitude,omitempty"`
	Unit      string  `json:"unit,omitempty"`

	// Confidence aggregates per-source confidence; it rises as independent
	// sources corroborate the event. 0.0-1.0.
	Confidence float64 `json:"confidence"`

	Sources     []string `json:"sources"`
	SignalCount int      `json:"signal_count"`

	FirstSeen  time.Time `json:"first_seen"`
	LastSeen   time.Time `json:"last_seen"`
	TimeBucket time.Time `json:"time_bucket"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// HasSource reports whether the event already carries a signal from source.
func (e Event) HasSource(source string) bool {
	for _, s := range e.Sources {
		if s == source {
			return true
		}
	}
	return false
}

// EventKey produces the deterministic event ID for a category, location, and
// observation time. Reprocessing the same signal, or processing an independent
// report of the same occurrence, yields the same key.
func EventKey(category string, geo Geo, observedAt time.Time) string {
	cellLat := math.Floor(geo.Lat/geocellDegrees) * geocellDegrees
	cellLon := math.Floor(geo.Lon/geocellDegrees) * geocellDegrees
	bucket := observedAt.UTC().Truncate(time.Hour).Format(time.RFC3339)

	input := fmt.Sprintf("%s|%.2f|%.2f|%s", category, cellLat, cellLon, bucket)
	hash := sha256.Sum256([]byte(input))
	short := hex.EncodeToString(hash[:8])
	if category == "" {
		return short
	}
	return category + "-" + short
}

// TimeBucketOf truncates a timestamp to the hour in UTC. Returns zero time
// for zero input.
func TimeBucketOf(t time.Time) time.Time {
	if t.IsZero() {
		return time.Time{}
	}
	return t.UTC().Truncate(time.Hour)
}
