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

// USGS fetches recent earthquakes from the USGS GeoJSON summary feed.
type USGS struct {
	url          string
	minMagnitude float64
	client       *http.Client
	logger       *slog.Logger
}

// NewUSGS creates the earthquake feed adapter. Quakes below minMagnitude are
// dropped at the source; ranking handles everything above it.
func NewUSGS(url string, minMagnitude float64, timeout time.Duration, logger *slog.Logger) *USGS {
	return &USGS{
		url:          url,
		minMagnitude: minMagnitude,
		client:       &http.Client{Timeout: timeout},
		logger:       logger,
	}
}

func (u *USGS) Name() string { return domain.SourceUSGS }

func (u *USGS) Fetch(ctx context.Context) ([]domain.Signal, error) {
	body, err := get(ctx, u.client, u.url, domain.SourceUSGS)
	if err != nil {
		return nil, err
	}

	var feed usgsFeed
	if err := json.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("usgs: decode feed: %w", err)
	}

	signals := make([]domain.Signal, 0, len(feed.Features))
	for _, feat := range feed.Features {
		if feat.Properties.Mag < u.minMagnitude {
			continue
		}
		if feat.Geometry == nil || len(feat.Geometry.Coordinates) < 2 {
			continue
		}

		signals = append(signals, domain.Signal{
			ID:         feat.ID,
			Source:     domain.SourceUSGS,
			Title:      feat.Properties.Title,
			Summary:    feat.Properties.Place,
			URL:        feat.Properties.URL,
			Area:       feat.Properties.Place,
			Geo:        domain.Geo{Lat: feat.Geometry.Coordinates[1], Lon: feat.Geometry.Coordinates[0]},
			HasGeo:     true,
			Magnitude:  feat.Properties.Mag,
			Unit:       "richter",
			Severity:   domain.QuakeSeverity(feat.Properties.Mag),
			Confidence: 1,
			ObservedAt: time.UnixMilli(feat.Properties.Time).UTC(),
		})
	}
	return signals, nil
}

// USGS feed response types. Geometry coordinates are [lon, lat, depth_km].

type usgsFeed struct {
	Features []usgsFeature `json:"features"`
}

type usgsFeature struct {
	ID         string         `json:"id"`
	Properties usgsProperties `json:"properties"`
	Geometry   *usgsGeometry  `json:"geometry"`
}

type usgsProperties struct {
	Mag   float64 `json:"mag"`
	Place string  `json:"place"`
	Time  int64   `json:"time"`
	URL   string  `json:"url"`
	Title string  `json:"title"`
}

type usgsGeometry struct {
	Coordinates []float64 `json:"coordinates"`
}
