package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// RawSignal is an unprocessed message from the Kafka signal topic.
type RawSignal struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// DecodeSignal deserializes a raw Kafka message into a Signal. External
// collectors publish Signal JSON; the source field must be present so
// downstream attribution works.
func DecodeSignal(raw RawSignal) (Signal, error) {
	var sig Signal
	if err := json.Unmarshal(raw.Value, &sig); err != nil {
		return Signal{}, fmt.Errorf("decode signal: %w", err)
	}
	if sig.Source == "" {
		sig.Source = SourceKafka
	}
	if sig.ObservedAt.IsZero() {
		sig.ObservedAt = raw.Timestamp
	}
	sig.RawPayload = raw.Value
	return sig, nil
}
