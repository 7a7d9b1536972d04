package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/mmcdole/gofeed"

	"github.com/couchcryptid/disaster-intel/internal/domain"
)

// maxItemsPerFeed bounds how many entries one feed contributes per cycle.
const maxItemsPerFeed = 10

// RSS fetches news syndication feeds and normalizes their entries into
// signals. Relevance is decided downstream by the classifier; this adapter
// just hauls headlines in.
type RSS struct {
	feeds   []string
	timeout time.Duration
	parser  *gofeed.Parser
	logger  *slog.Logger
}

// NewRSS creates the syndication adapter for the given feed URLs.
func NewRSS(feeds []string, timeout time.Duration, logger *slog.Logger) *RSS {
	parser := gofeed.NewParser()
	parser.UserAgent = "disaster-intel/1.0"
	return &RSS{
		feeds:   feeds,
		timeout: timeout,
		parser:  parser,
		logger:  logger,
	}
}

func (r *RSS) Name() string { return domain.SourceRSS }

// Fetch pulls every configured feed. A feed failing is logged and skipped;
// the cycle errors only when every feed failed.
func (r *RSS) Fetch(ctx context.Context) ([]domain.Signal, error) {
	var signals []domain.Signal
	failures := 0

	for _, feedURL := range r.feeds {
		items, err := r.fetchFeed(ctx, feedURL)
		if err != nil {
			r.logger.Warn("rss feed fetch failed", "feed", feedURL, "error", err)
			failures++
			continue
		}
		signals = append(signals, items...)
	}

	if failures == len(r.feeds) && len(r.feeds) > 0 {
		return nil, errors.New("rss: all feeds failed")
	}
	return signals, nil
}

func (r *RSS) fetchFeed(ctx context.Context, feedURL string) ([]domain.Signal, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	feed, err := r.parser.ParseURLWithContext(feedURL, fetchCtx)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	items := feed.Items
	if len(items) > maxItemsPerFeed {
		items = items[:maxItemsPerFeed]
	}

	signals := make([]domain.Signal, 0, len(items))
	for _, item := range items {
		signals = append(signals, r.itemToSignal(feed, item))
	}
	return signals, nil
}

// truncateSummary caps a description at max bytes without splitting a UTF-8
// sequence, appending an ellipsis when cut.
func truncateSummary(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

func (r *RSS) itemToSignal(feed *gofeed.Feed, item *gofeed.Item) domain.Signal {
	id := item.GUID
	if id == "" {
		id = item.Link
	}
	if id == "" {
		// No stable identity in the feed; a random one at least keys this read.
		id = uuid.NewString()
	}

	var observed time.Time
	if item.PublishedParsed != nil {
		observed = item.PublishedParsed.UTC()
	} else if item.UpdatedParsed != nil {
		observed = item.UpdatedParsed.UTC()
	}

	summary := truncateSummary(item.Description, 200)

	return domain.Signal{
		ID:         id,
		Source:     domain.SourceRSS,
		Title:      item.Title,
		Summary:    summary,
		URL:        item.Link,
		Area:       feed.Title,
		Confidence: 0.5, // unverified press reporting
		ObservedAt: observed,
	}
}
