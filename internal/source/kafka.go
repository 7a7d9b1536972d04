package source

import (
	"context"
	"errors"
	"log/slog"

	"github.com/couchcryptid/disaster-intel/internal/domain"
)

// BatchExtractor reads up to batchSize raw signals from a message source.
// Implemented by the Kafka reader adapter.
type BatchExtractor interface {
	ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawSignal, error)
}

// Kafka adapts a BatchExtractor into a Fetcher, decoding externally
// collected signals published to the raw-signals topic. This is how social
// or third-party signals enter the system without this service scraping
// anything itself.
type Kafka struct {
	extractor BatchExtractor
	batchSize int
	logger    *slog.Logger

	// pending holds the current batch's uncommitted offsets until
	// CommitProcessed acknowledges them.
	pending []domain.RawSignal
}

// NewKafka wraps a batch extractor as a source adapter.
func NewKafka(extractor BatchExtractor, batchSize int, logger *slog.Logger) *Kafka {
	return &Kafka{
		extractor: extractor,
		batchSize: batchSize,
		logger:    logger,
	}
}

func (k *Kafka) Name() string { return domain.SourceKafka }

// Fetch extracts one batch and decodes it. Offsets are NOT committed here:
// the poll loop calls CommitProcessed once the batch has gone through the
// pipeline, so a crash between fetch and store replays the batch instead of
// losing it. Undecodable messages are skipped but still held for commit so a
// poison message cannot wedge the partition.
func (k *Kafka) Fetch(ctx context.Context) ([]domain.Signal, error) {
	batch, err := k.extractor.ExtractBatch(ctx, k.batchSize)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, nil
		}
		return nil, err
	}

	signals := make([]domain.Signal, 0, len(batch))
	for _, raw := range batch {
		sig, err := domain.DecodeSignal(raw)
		if err != nil {
			k.logger.Warn("skipping undecodable signal",
				"error", err,
				"topic", raw.Topic,
				"partition", raw.Partition,
				"offset", raw.Offset,
			)
			k.pending = append(k.pending, raw)
			continue
		}
		signals = append(signals, sig)
		k.pending = append(k.pending, raw)
	}
	return signals, nil
}

// CommitProcessed acknowledges the offsets of the last fetched batch. Called
// by the poll loop after the batch has been processed and stored; duplicate
// deliveries from an uncommitted replay are absorbed by the dedupe prefilter
// and deterministic event keys.
func (k *Kafka) CommitProcessed(ctx context.Context) error {
	for _, raw := range k.pending {
		k.commit(ctx, raw)
	}
	k.pending = nil
	return nil
}

func (k *Kafka) commit(ctx context.Context, raw domain.RawSignal) {
	if raw.Commit == nil {
		return
	}
	if err := raw.Commit(ctx); err != nil {
		k.logger.Warn("commit offset failed", "error", err,
			"topic", raw.Topic, "partition", raw.Partition, "offset", raw.Offset)
	}
}
