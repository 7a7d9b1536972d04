package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/couchcryptid/disaster-intel/internal/adapter/httpapi"
	kafkaadapter "github.com/couchcryptid/disaster-intel/internal/adapter/kafka"
	"github.com/couchcryptid/disaster-intel/internal/classify"
	"github.com/couchcryptid/disaster-intel/internal/config"
	"github.com/couchcryptid/disaster-intel/internal/correlate"
	"github.com/couchcryptid/disaster-intel/internal/domain"
	"github.com/couchcryptid/disaster-intel/internal/ingest"
	"github.com/couchcryptid/disaster-intel/internal/observability"
	"github.com/couchcryptid/disaster-intel/internal/pipeline"
	"github.com/couchcryptid/disaster-intel/internal/source"
	"github.com/couchcryptid/disaster-intel/internal/store"
)

// kafkaPollInterval keeps the Kafka loop tight; its extractor blocks until
// messages arrive, so this is a pause between batches, not a poll cadence.
const kafkaPollInterval = time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	st := store.New(cfg.EventTTL, nil)
	manager := pipeline.New(
		classify.New(cfg.RelevanceThreshold),
		ingest.NewDeduper(cfg.DedupeCapacity),
		correlate.New(cfg.CorrelationWindow),
		domain.RiskScorer{},
		st,
		nil, // publisher attached below when Kafka is enabled
		logger,
		metrics,
		nil,
	)

	if cfg.NOAAEnabled {
		manager.AddSource(source.NewNOAA(cfg.NOAAURL, cfg.FetchTimeout, logger), cfg.PollInterval)
	}
	if cfg.USGSEnabled {
		manager.AddSource(source.NewUSGS(cfg.USGSURL, cfg.USGSMinMagnitude, cfg.FetchTimeout, logger), cfg.PollInterval)
	}
	if cfg.FIRMSEnabled {
		manager.AddSource(source.NewFIRMS(cfg.FIRMSURL, cfg.FIRMSMinConfidence, cfg.FetchTimeout, logger), cfg.PollInterval)
	}
	if cfg.RSSEnabled {
		manager.AddSource(source.NewRSS(cfg.RSSFeeds, cfg.FetchTimeout, logger), cfg.PollInterval)
	}

	var (
		reader *kafkaadapter.Reader
		writer *kafkaadapter.Writer
	)
	if cfg.KafkaEnabled {
		reader = kafkaadapter.NewReader(cfg, logger)
		writer = kafkaadapter.NewWriter(cfg, logger)
		manager.AddSource(source.NewKafka(reader, cfg.BatchSize, logger), kafkaPollInterval)
		manager.SetPublisher(writer)
		logger.Info("kafka enabled",
			"brokers", cfg.KafkaBrokers,
			"source_topic", cfg.KafkaSourceTopic,
			"sink_topic", cfg.KafkaSinkTopic,
		)
	} else {
		logger.Info("kafka disabled")
	}

	srv := httpapi.NewServer(cfg.HTTPAddr, st, manager, metrics, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start poll loops.
	go func() {
		if err := manager.Run(ctx); err != nil {
			logger.Error("pipeline error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if reader != nil {
		if err := reader.Close(); err != nil {
			logger.Error("kafka reader close error", "error", err)
		}
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
