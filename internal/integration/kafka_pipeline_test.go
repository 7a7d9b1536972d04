//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/disaster-intel/internal/adapter/kafka"
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

const (
	testSourceTopic = "test-raw-signals"
	testSinkTopic   = "test-events"
)

// sinkMessage holds a deserialized event read from the sink topic.
type sinkMessage struct {
	Event   domain.Event
	Key     string
	Headers map[string]string
}

// readSink reads a single message from the sink consumer and deserializes it.
func readSink(ctx context.Context, t *testing.T, consumer *kafkago.Reader) sinkMessage {
	t.Helper()
	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err, "read from sink topic")

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	var event domain.Event
	require.NoError(t, json.Unmarshal(msg.Value, &event), "unmarshal sink message")

	return sinkMessage{
		Event:   event,
		Key:     string(msg.Key),
		Headers: headers,
	}
}

func testConfig(broker, groupSuffix string) *config.Config {
	return &config.Config{
		KafkaBrokers:     []string{broker},
		KafkaSourceTopic: testSourceTopic,
		KafkaSinkTopic:   testSinkTopic,
		KafkaGroupID:     fmt.Sprintf("test-%s-%d", groupSuffix, time.Now().UnixNano()),
	}
}

func newSinkConsumer(t *testing.T, broker string) *kafkago.Reader {
	t.Helper()
	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testSinkTopic,
		GroupID:     fmt.Sprintf("test-sink-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })
	return consumer
}

func publishSignals(ctx context.Context, t *testing.T, broker string, signals ...domain.Signal) {
	t.Helper()
	producer := &kafkago.Writer{
		Addr:  kafkago.TCP(broker),
		Topic: testSourceTopic,
	}
	t.Cleanup(func() { _ = producer.Close() })

	msgs := make([]kafkago.Message, 0, len(signals))
	for _, sig := range signals {
		payload, err := json.Marshal(sig)
		require.NoError(t, err)
		msgs = append(msgs, kafkago.Message{
			Key:   []byte(sig.ID),
			Value: payload,
			Time:  sig.ObservedAt,
		})
	}
	require.NoError(t, producer.WriteMessages(ctx, msgs...))
}

func newTestManager(st *store.Memory, publisher pipeline.EventPublisher) *pipeline.Manager {
	return pipeline.New(
		classify.New(0.3),
		ingest.NewDeduper(1000),
		correlate.New(2*time.Hour),
		domain.RiskScorer{},
		st,
		publisher,
		discardLogger(),
		observability.NewMetricsForTesting(),
		nil,
	)
}

// TestKafkaReaderWriter verifies the adapter layer: kafka.Reader and
// kafka.Writer correctly round-trip messages through Kafka.
func TestKafkaReaderWriter(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSourceTopic)
	createTopic(t, broker, testSinkTopic)

	cfg := testConfig(broker, "reader")

	observed := time.Now().UTC().Truncate(time.Second).Add(-10 * time.Minute)
	sig := domain.Signal{
		ID:         "post-42",
		Source:     "social",
		Title:      "Major flooding on the riverfront downtown",
		Geo:        domain.Geo{Lat: 30.27, Lon: -97.74},
		HasGeo:     true,
		Confidence: 0.6,
		ObservedAt: observed,
	}
	publishSignals(ctx, t, broker, sig)

	// Extract via kafka.Reader.
	// Retry because the consumer group may need time to rebalance before
	// partitions are assigned and messages become available.
	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })

	var batch []domain.RawSignal
	for {
		var err error
		batch, err = reader.ExtractBatch(ctx, 1)
		require.NoError(t, err)
		if len(batch) > 0 {
			break
		}
		if ctx.Err() != nil {
			t.Fatal("timed out waiting for message from source topic")
		}
	}
	require.Len(t, batch, 1)
	raw := batch[0]
	assert.Equal(t, []byte("post-42"), raw.Key)
	assert.Equal(t, testSourceTopic, raw.Topic)
	require.NotNil(t, raw.Commit, "commit callback should be set")
	require.NoError(t, raw.Commit(ctx))

	decoded, err := domain.DecodeSignal(raw)
	require.NoError(t, err)
	assert.Equal(t, "post-42", decoded.ID)
	assert.Equal(t, "social", decoded.Source)

	// Open an event from the signal and publish it via kafka.Writer.
	decoded, relevant := classify.New(0.3).Classify(decoded)
	require.True(t, relevant)
	event := domain.RiskScorer{}.Score(correlate.Open(decoded, time.Now().UTC()))

	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })
	require.NoError(t, writer.PublishBatch(ctx, []domain.Event{event}))

	// Read from the sink topic and verify key + headers + value.
	consumer := newSinkConsumer(t, broker)
	sm := readSink(ctx, t, consumer)

	assert.Equal(t, event.ID, sm.Key)
	assert.Equal(t, domain.CategoryFlood, sm.Headers["category"])
	_, err = time.Parse(time.RFC3339, sm.Headers["updated_at"])
	assert.NoError(t, err, "updated_at should be valid RFC3339")

	assert.Equal(t, domain.CategoryFlood, sm.Event.Category)
	assert.Equal(t, []string{"social"}, sm.Event.Sources)
	assert.Equal(t, 1, sm.Event.SignalCount)
	assert.NotEmpty(t, sm.Event.RiskLevel)
}

// TestPipelineEndToEnd wires the full path (Reader → source adapter →
// pipeline → Writer) with real Kafka and verifies that corroborating signals
// correlate into one event on the sink topic.
func TestPipelineEndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSourceTopic)
	createTopic(t, broker, testSinkTopic)

	cfg := testConfig(broker, "pipeline")

	observed := time.Now().UTC().Truncate(time.Second).Add(-10 * time.Minute)
	publishSignals(ctx, t, broker,
		domain.Signal{
			ID:         "post-1",
			Source:     "social",
			Title:      "Earthquake shakes Ridgecrest, items off shelves",
			Geo:        domain.Geo{Lat: 35.70, Lon: -117.50},
			HasGeo:     true,
			Confidence: 0.5,
			ObservedAt: observed,
		},
		domain.Signal{
			ID:         "report-7",
			Source:     "field-report",
			Title:      "Quake damage assessment underway near Ridgecrest",
			Geo:        domain.Geo{Lat: 35.72, Lon: -117.48},
			HasGeo:     true,
			Confidence: 0.7,
			ObservedAt: observed.Add(time.Minute),
		},
	)

	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })
	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	st := store.New(time.Hour, nil)
	manager := newTestManager(st, writer)
	manager.AddSource(source.NewKafka(reader, 50, discardLogger()), 100*time.Millisecond)

	pipelineCtx, pipelineCancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- manager.Run(pipelineCtx) }()

	// Each upsert publishes a sink message keyed by event ID; keep reading
	// until the event has absorbed both signals.
	consumer := newSinkConsumer(t, broker)
	var final sinkMessage
	for {
		sm := readSink(ctx, t, consumer)
		if sm.Event.SignalCount >= 2 {
			final = sm
			break
		}
	}

	pipelineCancel()
	require.NoError(t, <-errCh)

	assert.Equal(t, domain.CategoryEarthquake, final.Event.Category)
	assert.Equal(t, 2, final.Event.SignalCount)
	assert.ElementsMatch(t, []string{"social", "field-report"}, final.Event.Sources)
	assert.Greater(t, final.Event.Confidence, 0.7, "corroboration should raise confidence")

	assert.Equal(t, 1, st.Len())
}

// TestPipelinePoisonMessage verifies that an undecodable message is skipped
// and the pipeline continues processing valid signals.
func TestPipelinePoisonMessage(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSourceTopic)
	createTopic(t, broker, testSinkTopic)

	cfg := testConfig(broker, "poison")

	observed := time.Now().UTC().Truncate(time.Second).Add(-10 * time.Minute)
	validSig := domain.Signal{
		ID:         "post-ok",
		Source:     "social",
		Title:      "Wildfire spreading fast, evacuation ordered",
		Geo:        domain.Geo{Lat: 40.0, Lon: -121.0},
		HasGeo:     true,
		Confidence: 0.6,
		ObservedAt: observed,
	}
	validPayload, err := json.Marshal(validSig)
	require.NoError(t, err)

	producer := &kafkago.Writer{
		Addr:  kafkago.TCP(broker),
		Topic: testSourceTopic,
	}
	t.Cleanup(func() { _ = producer.Close() })

	require.NoError(t, producer.WriteMessages(ctx,
		kafkago.Message{Key: []byte("bad"), Value: []byte("not-json{{{"), Time: observed},
		kafkago.Message{Key: []byte("good"), Value: validPayload, Time: observed},
	))

	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })
	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	st := store.New(time.Hour, nil)
	manager := newTestManager(st, writer)
	manager.AddSource(source.NewKafka(reader, 50, discardLogger()), 100*time.Millisecond)

	pipelineCtx, pipelineCancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- manager.Run(pipelineCtx) }()

	// Only the valid signal should produce a sink event.
	consumer := newSinkConsumer(t, broker)
	sm := readSink(ctx, t, consumer)
	assert.Equal(t, domain.CategoryWildfire, sm.Event.Category)
	assert.Equal(t, []string{"social"}, sm.Event.Sources)

	// Verify no second message arrives (the poison message was skipped).
	readCtx, readCancel := context.WithTimeout(ctx, 5*time.Second)
	_, err = consumer.ReadMessage(readCtx)
	readCancel()
	assert.Error(t, err, "expected no second message on sink topic")

	pipelineCancel()
	require.NoError(t, <-errCh)
}
