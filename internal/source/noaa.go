package source

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/disaster-intel/internal/domain"
)

// NOAA fetches active alerts from the National Weather Service API and
// normalizes them into signals.
type NOAA struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

// NewNOAA creates the NWS active-alerts adapter. url is the full feed URL,
// overridable for tests.
func NewNOAA(url string, timeout time.Duration, logger *slog.Logger) *NOAA {
	return &NOAA{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

func (n *NOAA) Name() string { return domain.SourceNOAA }

// Fetch returns the currently active alerts. Alerts without usable geometry
// or zone-only alerts still come through with HasGeo false; correlation
// requires coordinates, so those surface as signals only.
func (n *NOAA) Fetch(ctx context.Context) ([]domain.Signal, error) {
	body, err := get(ctx, n.client, n.url, domain.SourceNOAA)
	if err != nil {
		return nil, err
	}

	var feed nwsAlertFeed
	if err := json.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("noaa: decode feed: %w", err)
	}

	signals := make([]domain.Signal, 0, len(feed.Features))
	for _, feat := range feed.Features {
		// The active-alerts endpoint can serve alerts moments past their
		// expiry; nothing downstream should open or extend an event on one.
		if alertExpired(feat.Properties.Expires) {
			continue
		}

		sig := domain.Signal{
			ID:         feat.Properties.ID,
			Source:     domain.SourceNOAA,
			Title:      feat.Properties.Event,
			Summary:    feat.Properties.Headline,
			Area:       feat.Properties.AreaDesc,
			Severity:   domain.NormalizeSeverity(feat.Properties.Severity),
			Confidence: 1,
			ObservedAt: parseNWSTime(feat.Properties.Onset, feat.Properties.Effective, feat.Properties.Sent),
		}
		if sig.ID == "" {
			sig.ID = feat.ID
		}

		if geo, ok := alertGeometry(feat.Geometry); ok {
			sig.Geo = geo
			sig.HasGeo = true
		}

		signals = append(signals, sig)
	}
	return signals, nil
}

// alertExpired reports whether the alert's expiry is already past. Alerts
// without a parseable expiry are kept.
func alertExpired(expires string) bool {
	if expires == "" {
		return false
	}
	t, err := time.Parse(time.RFC3339, expires)
	if err != nil {
		return false
	}
	return t.Before(time.Now())
}

// parseNWSTime picks the first parseable timestamp among onset, effective,
// and sent. NWS uses RFC 3339 with offsets.
func parseNWSTime(candidates ...string) time.Time {
	for _, c := range candidates {
		if c == "" {
			continue
		}
		if t, err := time.Parse(time.RFC3339, c); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// alertGeometry extracts a representative point from an alert. Points pass
// through; polygons are centroided.
func alertGeometry(geom *nwsGeometry) (domain.Geo, bool) {
	if geom == nil {
		return domain.Geo{}, false
	}
	switch geom.Type {
	case "Point":
		var coords []float64
		if err := json.Unmarshal(geom.Coordinates, &coords); err != nil || len(coords) < 2 {
			return domain.Geo{}, false
		}
		return domain.Geo{Lat: coords[1], Lon: coords[0]}, true
	case "Polygon":
		var rings [][][]float64
		if err := json.Unmarshal(geom.Coordinates, &rings); err != nil || len(rings) == 0 || len(rings[0]) == 0 {
			return domain.Geo{}, false
		}
		ring := make([]domain.Geo, 0, len(rings[0]))
		for _, pt := range rings[0] {
			if len(pt) < 2 {
				continue
			}
			ring = append(ring, domain.Geo{Lat: pt[1], Lon: pt[0]})
		}
		if len(ring) == 0 {
			return domain.Geo{}, false
		}
		return domain.Centroid(ring), true
	default:
		return domain.Geo{}, false
	}
}

// NWS API response types.

type nwsAlertFeed struct {
	Features []nwsFeature `json:"features"`
}

type nwsFeature struct {
	ID         string        `json:"id"`
	Geometry   *nwsGeometry  `json:"geometry"`
	Properties nwsProperties `json:"properties"`
}

type nwsGeometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

type nwsProperties struct {
	ID        string `json:"id"`
	Event     string `json:"event"`
	Severity  string `json:"severity"`
	AreaDesc  string `json:"areaDesc"`
	Headline  string `json:"headline"`
	Onset     string `json:"onset"`
	Effective string `json:"effective"`
	Sent      string `json:"sent"`
	Expires   string `json:"expires"`
}
