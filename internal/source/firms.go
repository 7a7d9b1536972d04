package source

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/couchcryptid/disaster-intel/internal/domain"
)

// Continental US bounding box plus water boxes that produce satellite false
// positives (offshore flares, sun glint). Detections there are discarded.
var (
	conusBounds = boundingBox{minLat: 24.0, maxLat: 49.0, minLon: -125.0, maxLon: -66.0}
	waterBoxes  = []boundingBox{
		{minLat: 24.0, maxLat: 30.5, minLon: -98.0, maxLon: -80.5}, // Gulf of Mexico
		{minLat: 25.0, maxLat: 35.0, minLon: -81.0, maxLon: -75.0}, // Atlantic coast
	}
)

type boundingBox struct {
	minLat, maxLat, minLon, maxLon float64
}

func (b boundingBox) contains(g domain.Geo) bool {
	return g.Lat >= b.minLat && g.Lat <= b.maxLat && g.Lon >= b.minLon && g.Lon <= b.maxLon
}

// FIRMS fetches NASA FIRMS active-fire detections (CSV) and normalizes them
// into wildfire signals.
type FIRMS struct {
	url           string
	minConfidence float64
	client        *http.Client
	logger        *slog.Logger
}

// NewFIRMS creates the active-fire adapter. Detections below minConfidence
// percent are dropped at the source.
func NewFIRMS(url string, minConfidence float64, timeout time.Duration, logger *slog.Logger) *FIRMS {
	return &FIRMS{
		url:           url,
		minConfidence: minConfidence,
		client:        &http.Client{Timeout: timeout},
		logger:        logger,
	}
}

func (f *FIRMS) Name() string { return domain.SourceFIRMS }

func (f *FIRMS) Fetch(ctx context.Context) ([]domain.Signal, error) {
	body, err := get(ctx, f.client, f.url, domain.SourceFIRMS)
	if err != nil {
		return nil, err
	}

	reader := csv.NewReader(bytes.NewReader(body))
	reader.FieldsPerRecord = -1 // FIRMS products vary in column count

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("firms: parse csv: %w", err)
	}
	if len(rows) < 2 {
		return nil, nil
	}

	cols := indexColumns(rows[0])
	signals := make([]domain.Signal, 0, len(rows)-1)

	for _, row := range rows[1:] {
		sig, ok := f.parseDetection(cols, row)
		if !ok {
			continue
		}
		signals = append(signals, sig)
	}
	return signals, nil
}

// parseDetection converts one CSV row into a signal, returning false for
// rows that are malformed, offshore, or below the confidence floor.
func (f *FIRMS) parseDetection(cols map[string]int, row []string) (domain.Signal, bool) {
	lat, ok1 := cell(cols, row, "latitude")
	lon, ok2 := cell(cols, row, "longitude")
	if !ok1 || !ok2 {
		return domain.Signal{}, false
	}

	geo := domain.Geo{Lat: parseFloatOrZero(lat), Lon: parseFloatOrZero(lon)}
	if !conusBounds.contains(geo) {
		return domain.Signal{}, false
	}
	for _, box := range waterBoxes {
		if box.contains(geo) {
			return domain.Signal{}, false
		}
	}

	confidence := 0.0
	if v, ok := cell(cols, row, "confidence"); ok {
		confidence = parseFloatOrZero(v)
	}
	if confidence < f.minConfidence {
		return domain.Signal{}, false
	}

	brightness := 0.0
	if v, ok := cell(cols, row, "brightness"); ok {
		brightness = parseFloatOrZero(v)
	}
	frp := 0.0
	if v, ok := cell(cols, row, "frp"); ok {
		frp = parseFloatOrZero(v)
	}

	observed := parseAcqTime(cols, row)

	// FIRMS has no native detection ID; lat/lon/acquisition-time is stable
	// across re-reads of the same product.
	id := fmt.Sprintf("%s,%s,%s", lat, lon, observed.Format("200601021504"))

	return domain.Signal{
		ID:         id,
		Source:     domain.SourceFIRMS,
		Title:      "Active fire detection",
		Summary:    fmt.Sprintf("brightness %.1fK, FRP %.1fMW", brightness, frp),
		Geo:        geo,
		HasGeo:     true,
		Magnitude:  frp,
		Unit:       "mw",
		Severity:   domain.FireSeverity(confidence),
		Confidence: confidence / 100,
		ObservedAt: observed,
	}, true
}

// parseAcqTime combines the acq_date (2006-01-02) and acq_time (HHMM, may be
// shorter) columns into a UTC timestamp. Zero time when unparseable.
func parseAcqTime(cols map[string]int, row []string) time.Time {
	date, ok := cell(cols, row, "acq_date")
	if !ok {
		return time.Time{}
	}
	hhmm, _ := cell(cols, row, "acq_time")
	for len(hhmm) < 4 {
		hhmm = "0" + hhmm
	}

	t, err := time.Parse("2006-01-02 1504", date+" "+hhmm)
	if err != nil {
		t, err = time.Parse("2006-01-02", date)
		if err != nil {
			return time.Time{}
		}
	}
	return t.UTC()
}

func indexColumns(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[name] = i
	}
	return cols
}

func cell(cols map[string]int, row []string, name string) (string, bool) {
	i, ok := cols[name]
	if !ok || i >= len(row) {
		return "", false
	}
	return row[i], true
}

// parseFloatOrZero parses a string as float64, returning 0 on failure.
func parseFloatOrZero(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
