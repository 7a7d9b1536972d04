package domain

import "time"

// Source identifiers for normalized signals.
const (
	SourceNOAA  = "noaa"
	SourceUSGS  = "usgs"
	SourceFIRMS = "firms"
	SourceRSS   = "rss"
	SourceKafka = "kafka"
)

// Event categories assigned by normalization or the keyword classifier.
const (
	CategoryEarthquake = "earthquake"
	CategoryWildfire   = "wildfire"
	CategoryFlood      = "flood"
	CategoryTornado    = "tornado"
	CategoryHurricane  = "hurricane"
	CategoryStorm      = "storm"
	CategoryWinter     = "winter"
	CategoryOther      = "other"
)

// Geo represents a WGS-84 latitude/longitude coordinate pair.
type Geo struct {
	Lat float64 `json:"lat,omitempty"`
	Lon float64 `json:"lon,omitempty"`
}

// Signal is a single normalized item ingested from one source. It links to at
// most one correlated Event; EventID is empty until correlation runs, and
// stays empty for signals the ranking layer drops.
type Signal struct {
	ID       string `json:"id"`
	Source   string `json:"source"`
	Category string `json:"category,omitempty"`

	Title   string `json:"title,omitempty"`
	Summary string `json:"summary,omitempty"`
	URL     string `json:"url,omitempty"`
	Area    string `json:"area,omitempty"`

	Geo    Geo  `json:"geo,omitempty"`
	HasGeo bool `json:"has_geo"`

	Magnitude float64 `json:"magnitude,omitempty"`
	Unit      string  `json:"unit,omitempty"`
	Severity  string  `json:"severity,omitempty"`

	// Confidence is the source's own confidence in the observation, 0.0-1.0.
	// Structured feeds default to 1.0; FIRMS maps its percent confidence.
	Confidence float64 `json:"confidence"`

	ObservedAt time.Time `json:"observed_at"`
	IngestedAt time.Time `json:"ingested_at"`

	Keywords  []string `json:"keywords,omitempty"`
	Relevance float64  `json:"relevance"`

	EventID string `json:"event_id,omitempty"`

	RawPayload []byte `json:"-"`
}

// Fingerprint returns the stable identity used by the duplicate prefilter.
// Feeds re-serve the same items across poll cycles; the fingerprint must not
// change between reads of the same item.
func (s Signal) Fingerprint() string {
	if s.ID != "" {
		return s.Source + "|" + s.ID
	}
	return s.Source + "|" + s.Title + "|" + s.ObservedAt.UTC().Truncate(time.Hour).Format(time.RFC3339)
}

// severityRank orders the four-level severity scale for max-merging.
// Unknown or empty severities rank lowest.
func severityRank(severity string) int {
	switch severity {
	case "minor":
		return 1
	case "moderate":
		return 2
	case "severe":
		return 3
	case "extreme":
		return 4
	default:
		return 0
	}
}

// MaxSeverity returns whichever of the two severity labels ranks higher.
func MaxSeverity(a, b string) string {
	if severityRank(b) > severityRank(a) {
		return b
	}
	return a
}

// NormalizeSeverity lowercases and validates a severity label, returning ""
// for anything outside the four-level scale (e.g. the NWS "Unknown").
func NormalizeSeverity(value string) string {
	switch value {
	case "Minor", "minor":
		return "minor"
	case "Moderate", "moderate":
		return "moderate"
	case "Severe", "severe":
		return "severe"
	case "Extreme", "extreme":
		return "extreme"
	default:
		return ""
	}
}

// QuakeSeverity maps earthquake magnitude onto the severity scale.
func QuakeSeverity(magnitude float64) string {
	switch {
	case magnitude <= 0:
		return ""
	case magnitude < 3.0:
		return "minor"
	case magnitude < 5.0:
		return "moderate"
	case magnitude < 6.5:
		return "severe"
	default:
		return "extreme"
	}
}

// FireSeverity maps a FIRMS detection confidence percentage onto the severity scale.
func FireSeverity(confidencePct float64) string {
	switch {
	case confidencePct <= 0:
		return ""
	case confidencePct < 40:
		return "minor"
	case confidencePct < 60:
		return "moderate"
	case confidencePct < 80:
		return "severe"
	default:
		return "extreme"
	}
}
