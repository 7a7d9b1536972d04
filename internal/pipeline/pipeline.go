// Package pipeline runs the poll loops that carry signals from the source
// adapters through dedupe, classification, correlation, and into the store.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/disaster-intel/internal/classify"
	"github.com/couchcryptid/disaster-intel/internal/correlate"
	"github.com/couchcryptid/disaster-intel/internal/domain"
	"github.com/couchcryptid/disaster-intel/internal/ingest"
	"github.com/couchcryptid/disaster-intel/internal/observability"
	"github.com/couchcryptid/disaster-intel/internal/source"
	"github.com/couchcryptid/disaster-intel/internal/store"
)

// sweepInterval is how often expired events are purged from the store.
const sweepInterval = time.Minute

// EventPublisher forwards upserted events downstream. Implemented by the
// Kafka writer adapter; nil disables publishing.
type EventPublisher interface {
	PublishBatch(ctx context.Context, events []domain.Event) error
}

// sourceLoop pairs a fetcher with its poll interval. The Kafka source runs
// on a tight interval because its extractor blocks until messages arrive;
// HTTP feeds poll on the configured cadence.
type sourceLoop struct {
	fetcher  source.Fetcher
	interval time.Duration
}

// Manager owns the per-source poll loops and the shared processing path.
type Manager struct {
	loops      []sourceLoop
	classifier *classify.Classifier
	deduper    *ingest.Deduper
	engine     *correlate.Engine
	scorer     domain.Scorer
	store      *store.Memory
	publisher  EventPublisher
	logger     *slog.Logger
	metrics    *observability.Metrics
	clock      clockwork.Clock

	mu    sync.Mutex // serializes match-merge-upsert across source loops
	ready atomic.Bool
}

// New creates a Manager. publisher and clock may be nil (publishing off,
// real clock).
func New(
	classifier *classify.Classifier,
	deduper *ingest.Deduper,
	engine *correlate.Engine,
	scorer domain.Scorer,
	st *store.Memory,
	publisher EventPublisher,
	logger *slog.Logger,
	metrics *observability.Metrics,
	clock clockwork.Clock,
) *Manager {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Manager{
		classifier: classifier,
		deduper:    deduper,
		engine:     engine,
		scorer:     scorer,
		store:      st,
		publisher:  publisher,
		logger:     logger,
		metrics:    metrics,
		clock:      clock,
	}
}

// AddSource registers a fetcher to poll at the given interval.
func (m *Manager) AddSource(f source.Fetcher, interval time.Duration) {
	m.loops = append(m.loops, sourceLoop{fetcher: f, interval: interval})
}

// SetPublisher attaches an event publisher. Must be called before Run.
func (m *Manager) SetPublisher(p EventPublisher) {
	m.publisher = p
}

// CheckReadiness returns nil once at least one poll cycle has completed.
func (m *Manager) CheckReadiness(_ context.Context) error {
	if !m.ready.Load() {
		return errors.New("no source has completed a poll cycle yet")
	}
	return nil
}

// Run starts one goroutine per source plus the expiry sweeper, and blocks
// until the context is cancelled.
func (m *Manager) Run(ctx context.Context) error {
	if len(m.loops) == 0 {
		return errors.New("no sources registered")
	}

	m.logger.Info("pipeline started", "sources", len(m.loops))
	m.metrics.PipelineRunning.Set(1)
	defer m.metrics.PipelineRunning.Set(0)

	var wg sync.WaitGroup
	for _, loop := range m.loops {
		wg.Add(1)
		go func(loop sourceLoop) {
			defer wg.Done()
			m.pollSource(ctx, loop)
		}(loop)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		m.sweepLoop(ctx)
	}()

	wg.Wait()
	m.logger.Info("pipeline stopped", "reason", ctx.Err())
	return nil
}

// pollSource runs one source's fetch cycle on its interval. Errors back off
// exponentially from 200ms up to the poll interval, resetting on success.
func (m *Manager) pollSource(ctx context.Context, loop sourceLoop) {
	name := loop.fetcher.Name()
	backoff := 200 * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		start := m.clock.Now()
		signals, err := loop.fetcher.Fetch(ctx)
		m.metrics.FetchDuration.WithLabelValues(name).Observe(m.clock.Since(start).Seconds())

		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.metrics.FetchErrors.WithLabelValues(name).Inc()
			m.logger.Error("fetch failed", "source", name, "error", err)
			if !m.sleep(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff, loop.interval)
			continue
		}
		backoff = 200 * time.Millisecond

		m.metrics.SignalsFetched.WithLabelValues(name).Add(float64(len(signals)))
		m.processBatch(ctx, name, signals)

		// Acknowledge the batch only after it has been stored, so a crash
		// mid-batch replays signals instead of losing them.
		if committer, ok := loop.fetcher.(source.Committer); ok {
			if err := committer.CommitProcessed(ctx); err != nil {
				m.logger.Error("commit processed batch failed", "source", name, "error", err)
			}
		}
		m.ready.Store(true)

		if !m.sleep(ctx, loop.interval) {
			return
		}
	}
}

// processBatch runs the shared path for one fetch cycle's signals:
// dedupe, classify, correlate, score, store, publish.
func (m *Manager) processBatch(ctx context.Context, sourceName string, signals []domain.Signal) {
	var upserted []domain.Event

	for _, sig := range signals {
		event, ok := m.processSignal(sig)
		if !ok {
			continue
		}
		m.metrics.SignalsIngested.WithLabelValues(sourceName).Inc()
		upserted = append(upserted, event)
	}

	m.metrics.EventsActive.Set(float64(m.store.Len()))

	if m.publisher != nil && len(upserted) > 0 {
		if err := m.publisher.PublishBatch(ctx, upserted); err != nil {
			m.logger.Error("publish events failed", "source", sourceName, "count", len(upserted), "error", err)
		} else {
			m.metrics.EventsPublished.Add(float64(len(upserted)))
		}
	}
}

// processSignal takes one signal through the pipeline. It returns the
// upserted event and false when the signal was dropped or unmatched.
func (m *Manager) processSignal(sig domain.Signal) (domain.Event, bool) {
	if m.deduper.Seen(sig.Fingerprint()) {
		m.metrics.SignalsDuplicate.Inc()
		return domain.Event{}, false
	}

	sig, relevant := m.classifier.Classify(sig)
	if !relevant {
		m.metrics.SignalsIrrelevant.Inc()
		m.logger.Debug("signal dropped as irrelevant",
			"source", sig.Source, "title", sig.Title, "relevance", sig.Relevance)
		return domain.Event{}, false
	}

	sig.IngestedAt = m.clock.Now()

	// Candidate lookup and upsert must be atomic across source loops, or two
	// reports of the same occurrence could race into separate events.
	m.mu.Lock()
	defer m.mu.Unlock()

	var event domain.Event
	if matched, ok := m.engine.Match(sig, m.store.Candidates(sig.Category)); ok {
		event = correlate.Merge(matched, sig, sig.IngestedAt)
		m.metrics.EventsUpdated.Inc()
	} else if sig.HasGeo {
		event = correlate.Open(sig, sig.IngestedAt)
		m.metrics.EventsCreated.Inc()
	} else {
		// No coordinates: keep the signal visible but open no event.
		m.store.AppendSignal(sig)
		return domain.Event{}, false
	}

	event = m.scorer.Score(event)
	sig.EventID = event.ID

	m.store.UpsertEvent(event)
	m.store.AppendSignal(sig)
	return event, true
}

// sweepLoop expires events past their TTL and re-scores urgency decay on the
// survivors' threat ordering.
func (m *Manager) sweepLoop(ctx context.Context) {
	ticker := m.clock.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if removed := m.store.Sweep(); removed > 0 {
				m.metrics.EventsExpired.Add(float64(removed))
				m.logger.Info("expired events removed", "count", removed)
			}
			m.metrics.EventsActive.Set(float64(m.store.Len()))
		}
	}
}

func (m *Manager) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := m.clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}
