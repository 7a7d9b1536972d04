package pipeline_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/disaster-intel/internal/classify"
	"github.com/couchcryptid/disaster-intel/internal/correlate"
	"github.com/couchcryptid/disaster-intel/internal/domain"
	"github.com/couchcryptid/disaster-intel/internal/ingest"
	"github.com/couchcryptid/disaster-intel/internal/observability"
	"github.com/couchcryptid/disaster-intel/internal/pipeline"
	"github.com/couchcryptid/disaster-intel/internal/store"
)

// mockFetcher serves its batches one per Fetch call, then empty batches.
type mockFetcher struct {
	mu      sync.Mutex
	name    string
	batches [][]domain.Signal
	calls   int
	err     error
}

func (m *mockFetcher) Name() string { return m.name }

func (m *mockFetcher) Fetch(_ context.Context) ([]domain.Signal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	if m.calls >= len(m.batches) {
		return nil, nil
	}
	batch := m.batches[m.calls]
	m.calls++
	return batch, nil
}

type mockPublisher struct {
	mu     sync.Mutex
	events []domain.Event
}

func (m *mockPublisher) PublishBatch(_ context.Context, events []domain.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, events...)
	return nil
}

func (m *mockPublisher) published() []domain.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Event, len(m.events))
	copy(out, m.events)
	return out
}

func newManager(t *testing.T, st *store.Memory, publisher pipeline.EventPublisher) *pipeline.Manager {
	t.Helper()
	return pipeline.New(
		classify.New(0.3),
		ingest.NewDeduper(1000),
		correlate.New(2*time.Hour),
		domain.RiskScorer{},
		st,
		publisher,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		observability.NewMetricsForTesting(),
		nil,
	)
}

func runManager(t *testing.T, m *pipeline.Manager) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("pipeline did not stop")
		}
	})
	return cancel
}

func quakeSignal(id string, lat, lon float64, observed time.Time) domain.Signal {
	return domain.Signal{
		ID:         id,
		Source:     domain.SourceUSGS,
		Title:      "M 4.5 - near Ridgecrest, CA",
		Geo:        domain.Geo{Lat: lat, Lon: lon},
		HasGeo:     true,
		Magnitude:  4.5,
		Unit:       "richter",
		Severity:   "moderate",
		Confidence: 1.0,
		ObservedAt: observed,
	}
}

func TestRun_NoSourcesIsAnError(t *testing.T) {
	m := newManager(t, store.New(time.Hour, nil), nil)
	err := m.Run(context.Background())
	require.Error(t, err)
}

func TestRun_ProcessesSignalsIntoEvents(t *testing.T) {
	observed := time.Now().UTC().Add(-10 * time.Minute)
	fetcher := &mockFetcher{
		name:    domain.SourceUSGS,
		batches: [][]domain.Signal{{quakeSignal("us1", 35.7, -117.5, observed)}},
	}

	st := store.New(time.Hour, nil)
	publisher := &mockPublisher{}
	m := newManager(t, st, publisher)
	m.AddSource(fetcher, 10*time.Millisecond)

	require.Error(t, m.CheckReadiness(context.Background()), "not ready before first poll")

	runManager(t, m)

	assert.Eventually(t, func() bool { return st.Len() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.NoError(t, m.CheckReadiness(context.Background()))

	events := st.Events(store.EventFilter{})
	require.Len(t, events, 1)
	event := events[0]
	assert.Equal(t, domain.CategoryEarthquake, event.Category)
	assert.Equal(t, []string{domain.SourceUSGS}, event.Sources)
	assert.NotEmpty(t, event.RiskLevel)
	assert.Greater(t, event.ThreatScore, 0.0)

	assert.Eventually(t, func() bool { return len(publisher.published()) == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestRun_DuplicateSignalsIngestedOnce(t *testing.T) {
	observed := time.Now().UTC().Add(-10 * time.Minute)
	sig := quakeSignal("us1", 35.7, -117.5, observed)
	fetcher := &mockFetcher{
		name:    domain.SourceUSGS,
		batches: [][]domain.Signal{{sig}, {sig}, {sig}},
	}

	st := store.New(time.Hour, nil)
	m := newManager(t, st, nil)
	m.AddSource(fetcher, time.Millisecond)

	runManager(t, m)

	assert.Eventually(t, func() bool {
		fetcher.mu.Lock()
		defer fetcher.mu.Unlock()
		return fetcher.calls == 3
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, 1, st.Len())
	events := st.Events(store.EventFilter{})
	require.Len(t, events, 1)
	assert.Equal(t, 1, events[0].SignalCount)
}

func TestRun_IrrelevantSignalsDropped(t *testing.T) {
	observed := time.Now().UTC().Add(-10 * time.Minute)
	fetcher := &mockFetcher{
		name: domain.SourceRSS,
		batches: [][]domain.Signal{{
			{
				ID:         "item-1",
				Source:     domain.SourceRSS,
				Title:      "Local baseball team wins the pennant",
				HasGeo:     true,
				Geo:        domain.Geo{Lat: 40.0, Lon: -95.0},
				ObservedAt: observed,
			},
			{
				ID:         "item-2",
				Source:     domain.SourceRSS,
				Title:      "Wildfire forces evacuations in Plumas County",
				HasGeo:     true,
				Geo:        domain.Geo{Lat: 40.0, Lon: -121.0},
				ObservedAt: observed,
			},
		}},
	}

	st := store.New(time.Hour, nil)
	m := newManager(t, st, nil)
	m.AddSource(fetcher, 10*time.Millisecond)

	runManager(t, m)

	assert.Eventually(t, func() bool { return st.Len() == 1 }, 2*time.Second, 10*time.Millisecond)
	events := st.Events(store.EventFilter{})
	require.Len(t, events, 1)
	assert.Equal(t, domain.CategoryWildfire, events[0].Category)
}

func TestRun_SignalWithoutGeoOpensNoEvent(t *testing.T) {
	observed := time.Now().UTC().Add(-10 * time.Minute)
	fetcher := &mockFetcher{
		name: domain.SourceRSS,
		batches: [][]domain.Signal{{
			{
				ID:         "item-1",
				Source:     domain.SourceRSS,
				Title:      "Severe flooding reported across the region",
				ObservedAt: observed,
			},
		}},
	}

	st := store.New(time.Hour, nil)
	m := newManager(t, st, nil)
	m.AddSource(fetcher, 10*time.Millisecond)

	runManager(t, m)

	assert.Eventually(t, func() bool {
		return len(st.Signals(store.SignalFilter{})) == 1
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 0, st.Len())
	signals := st.Signals(store.SignalFilter{})
	require.Len(t, signals, 1)
	assert.Empty(t, signals[0].EventID)
}

func TestRun_CrossSourceSignalsCorrelate(t *testing.T) {
	observed := time.Now().UTC().Add(-10 * time.Minute)
	usgs := &mockFetcher{
		name:    domain.SourceUSGS,
		batches: [][]domain.Signal{{quakeSignal("us1", 35.70, -117.50, observed)}},
	}
	rss := &mockFetcher{
		name: domain.SourceRSS,
		batches: [][]domain.Signal{{
			{
				ID:         "item-1",
				Source:     domain.SourceRSS,
				Title:      "Strong earthquake shakes Ridgecrest area",
				HasGeo:     true,
				Geo:        domain.Geo{Lat: 35.72, Lon: -117.48},
				Confidence: 0.5,
				ObservedAt: observed.Add(time.Minute),
			},
		}},
	}

	st := store.New(time.Hour, nil)
	m := newManager(t, st, nil)
	m.AddSource(usgs, 10*time.Millisecond)
	m.AddSource(rss, 10*time.Millisecond)

	runManager(t, m)

	assert.Eventually(t, func() bool {
		events := st.Events(store.EventFilter{})
		return len(events) == 1 && events[0].SignalCount == 2
	}, 2*time.Second, 10*time.Millisecond)

	events := st.Events(store.EventFilter{})
	require.Len(t, events, 1)
	assert.ElementsMatch(t, []string{domain.SourceUSGS, domain.SourceRSS}, events[0].Sources)
}

// committingFetcher records the store size observed when the poll loop
// acknowledges a processed batch.
type committingFetcher struct {
	mockFetcher
	store          *store.Memory
	mu             sync.Mutex
	storedAtCommit []int
}

func (c *committingFetcher) CommitProcessed(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.storedAtCommit = append(c.storedAtCommit, c.store.Len())
	return nil
}

func (c *committingFetcher) commits() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]int, len(c.storedAtCommit))
	copy(out, c.storedAtCommit)
	return out
}

func TestRun_BatchAcknowledgedAfterStore(t *testing.T) {
	observed := time.Now().UTC().Add(-10 * time.Minute)
	st := store.New(time.Hour, nil)
	fetcher := &committingFetcher{
		mockFetcher: mockFetcher{
			name:    domain.SourceKafka,
			batches: [][]domain.Signal{{quakeSignal("us1", 35.7, -117.5, observed)}},
		},
		store: st,
	}

	m := newManager(t, st, nil)
	m.AddSource(fetcher, 10*time.Millisecond)

	runManager(t, m)

	assert.Eventually(t, func() bool { return len(fetcher.commits()) >= 1 }, 2*time.Second, 10*time.Millisecond)

	// The first acknowledgement must see the batch's event already stored:
	// a crash before that point replays the batch rather than losing it.
	assert.Equal(t, 1, fetcher.commits()[0])
}

func TestRun_FetchErrorKeepsPolling(t *testing.T) {
	fetcher := &mockFetcher{name: domain.SourceNOAA, err: errors.New("feed unavailable")}

	st := store.New(time.Hour, nil)
	m := newManager(t, st, nil)
	m.AddSource(fetcher, time.Millisecond)

	cancel := runManager(t, m)

	// Never becomes ready because no poll cycle completes.
	time.Sleep(50 * time.Millisecond)
	assert.Error(t, m.CheckReadiness(context.Background()))
	cancel()
}
