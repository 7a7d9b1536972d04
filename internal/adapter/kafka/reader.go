package kafka

import (
	"context"
	"errors"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/disaster-intel/internal/config"
	"github.com/couchcryptid/disaster-intel/internal/domain"
)

// batchDrainWait bounds how long ExtractBatch waits for followup messages
// once the first one has arrived.
const batchDrainWait = 500 * time.Millisecond

// Reader consumes raw signals from the Kafka source topic.
type Reader struct {
	reader *kafkago.Reader
	logger *slog.Logger
}

// NewReader creates a consumer-group reader for the configured source topic.
func NewReader(cfg *config.Config, logger *slog.Logger) *Reader {
	r := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     cfg.KafkaBrokers,
		Topic:       cfg.KafkaSourceTopic,
		GroupID:     cfg.KafkaGroupID,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     time.Second,
		StartOffset: kafkago.FirstOffset,
	})
	return &Reader{reader: r, logger: logger}
}

// ExtractBatch reads up to batchSize messages. It blocks on the caller's
// context for the first message, then drains whatever arrives within
// batchDrainWait. Each returned message carries a Commit callback; offsets
// are only committed after the caller has processed the message.
func (r *Reader) ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawSignal, error) {
	if batchSize <= 0 {
		batchSize = 1
	}

	first, err := r.reader.FetchMessage(ctx)
	if err != nil {
		return nil, err
	}
	batch := []domain.RawSignal{r.mapMessage(first)}

	drainCtx, cancel := context.WithTimeout(ctx, batchDrainWait)
	defer cancel()

	for len(batch) < batchSize {
		msg, err := r.reader.FetchMessage(drainCtx)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				break
			}
			return batch, nil
		}
		batch = append(batch, r.mapMessage(msg))
	}
	return batch, nil
}

func (r *Reader) Close() error {
	return r.reader.Close()
}

func (r *Reader) mapMessage(msg kafkago.Message) domain.RawSignal {
	raw := mapMessageToRawSignal(msg)
	raw.Commit = func(ctx context.Context) error {
		return r.reader.CommitMessages(ctx, msg)
	}
	return raw
}

// mapMessageToRawSignal copies a Kafka message into the domain representation.
func mapMessageToRawSignal(msg kafkago.Message) domain.RawSignal {
	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	return domain.RawSignal{
		Key:       msg.Key,
		Value:     msg.Value,
		Headers:   headers,
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Timestamp: msg.Time,
	}
}
