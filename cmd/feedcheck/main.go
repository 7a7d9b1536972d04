// Command feedcheck fetches each selected source once, runs classification
// and risk scoring, and prints the normalized signals. It is an operator
// tool for verifying feed connectivity and normalization before deploying.
//
// Usage:
//
//	go run ./cmd/feedcheck -sources noaa,usgs
//	go run ./cmd/feedcheck -sources rss -rss-feeds https://example.com/feed.xml
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/couchcryptid/disaster-intel/internal/classify"
	"github.com/couchcryptid/disaster-intel/internal/config"
	"github.com/couchcryptid/disaster-intel/internal/correlate"
	"github.com/couchcryptid/disaster-intel/internal/domain"
	"github.com/couchcryptid/disaster-intel/internal/source"
)

func main() {
	sources := flag.String("sources", "noaa,usgs,firms", "comma-separated sources to check (noaa, usgs, firms, rss)")
	rssFeeds := flag.String("rss-feeds", "", "comma-separated RSS feed URLs (required for rss)")
	timeout := flag.Duration("timeout", 30*time.Second, "per-source fetch timeout")
	limit := flag.Int("limit", 10, "max signals to print per source")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load config: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	classifier := classify.New(cfg.RelevanceThreshold)

	fetchers, err := buildFetchers(*sources, *rssFeeds, *timeout, cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(len(fetchers))*(*timeout))
	defer cancel()

	failed := false
	for _, f := range fetchers {
		if !checkSource(ctx, f, classifier, *limit) {
			failed = true
		}
	}
	if failed {
		os.Exit(1)
	}
}

func buildFetchers(sources, rssFeeds string, timeout time.Duration, cfg *config.Config, logger *slog.Logger) ([]source.Fetcher, error) {
	var fetchers []source.Fetcher
	for _, name := range strings.Split(sources, ",") {
		switch strings.TrimSpace(name) {
		case domain.SourceNOAA:
			fetchers = append(fetchers, source.NewNOAA(cfg.NOAAURL, timeout, logger))
		case domain.SourceUSGS:
			fetchers = append(fetchers, source.NewUSGS(cfg.USGSURL, cfg.USGSMinMagnitude, timeout, logger))
		case domain.SourceFIRMS:
			fetchers = append(fetchers, source.NewFIRMS(cfg.FIRMSURL, cfg.FIRMSMinConfidence, timeout, logger))
		case domain.SourceRSS:
			feeds := cfg.RSSFeeds
			if rssFeeds != "" {
				feeds = strings.Split(rssFeeds, ",")
			}
			if len(feeds) == 0 {
				return nil, fmt.Errorf("rss selected but no feeds given")
			}
			fetchers = append(fetchers, source.NewRSS(feeds, timeout, logger))
		case "":
		default:
			return nil, fmt.Errorf("unknown source %q", name)
		}
	}
	if len(fetchers) == 0 {
		return nil, fmt.Errorf("no sources selected")
	}
	return fetchers, nil
}

func checkSource(ctx context.Context, f source.Fetcher, classifier *classify.Classifier, limit int) bool {
	fmt.Printf("=== %s ===\n", f.Name())

	start := time.Now()
	signals, err := f.Fetch(ctx)
	if err != nil {
		fmt.Printf("FAIL: %v\n\n", err)
		return false
	}

	relevant := 0
	printed := 0
	for _, sig := range signals {
		sig, ok := classifier.Classify(sig)
		if !ok {
			continue
		}
		relevant++
		if printed >= limit {
			continue
		}
		printed++

		geo := "-"
		if sig.HasGeo {
			geo = fmt.Sprintf("%.3f,%.3f", sig.Geo.Lat, sig.Geo.Lon)
		}

		// Score the signal as if it opened an event, to preview the risk
		// fields the pipeline would assign.
		event := domain.RiskScorer{}.Score(correlate.Open(sig, time.Now().UTC()))
		fmt.Printf("  [%-10s] %-20s %-9s %-8s %5.1f  %s\n",
			sig.Category, geo, sig.Severity, event.RiskLevel, event.ThreatScore, sig.Title)
	}

	fmt.Printf("OK: %d signals, %d relevant, %.1fs\n\n", len(signals), relevant, time.Since(start).Seconds())
	return true
}
