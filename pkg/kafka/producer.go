// Package kafka emits building lifecycle and audit events.
package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"

	"github.com/Ramsey-B/sedum/pkg/tracing"
)

// Producer handles Kafka event emission.
type Producer struct {
	writer *kafka.Writer
	logger ectologger.Logger
	topic  string
}

// ProducerConfig holds Kafka producer configuration.
type ProducerConfig struct {
	Brokers      []string
	Topic        string
	BatchSize    int
	BatchTimeout time.Duration
	RequiredAcks int
	Compression  string
}

// NewProducer creates a new Kafka producer.
func NewProducer(cfg ProducerConfig, logger ectologger.Logger) *Producer {
	compression := kafka.Snappy
	switch cfg.Compression {
	case "gzip":
		compression = kafka.Gzip
	case "lz4":
		compression = kafka.Lz4
	case "zstd":
		compression = kafka.Zstd
	case "none":
		compression = 0
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.LeastBytes{},
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           cfg.BatchTimeout,
		RequiredAcks:           kafka.RequiredAcks(cfg.RequiredAcks),
		Compression:            compression,
		AllowAutoTopicCreation: true,
	}

	return &Producer{
		writer: writer,
		logger: logger,
		topic:  cfg.Topic,
	}
}

// Close closes the producer.
func (p *Producer) Close() error {
	return p.writer.Close()
}

// BuildingEvent describes a change to a canonical building.
type BuildingEvent struct {
	EventType   string    `json:"event_type"` // promoted, merged, deleted
	OrgID       string    `json:"org_id"`
	CanonicalID string    `json:"canonical_id"`
	SnapshotID  string    `json:"snapshot_id,omitempty"`
	Confidence  *float64  `json:"confidence,omitempty"`
	MatchType   string    `json:"match_type,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// PublishBuildingEvent publishes a building lifecycle event.
func (p *Producer) PublishBuildingEvent(ctx context.Context, event *BuildingEvent) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.PublishBuildingEvent")
	defer span.End()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Topic: p.topic,
		Key:   []byte(event.CanonicalID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "org_id", Value: []byte(event.OrgID)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"canonical_id": event.CanonicalID,
			"event_type":   event.EventType,
		}).Error("Failed to publish building event")
		return err
	}
	return nil
}

// Publish writes an arbitrary JSON payload to a topic with the given
// key and headers. The audit sink uses this for its own topic.
func (p *Producer) Publish(ctx context.Context, topic, key string, payload any, headers map[string]string) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.Publish")
	defer span.End()

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: data,
	}
	for k, v := range headers {
		msg.Headers = append(msg.Headers, kafka.Header{Key: k, Value: []byte(v)})
	}

	return p.writer.WriteMessages(ctx, msg)
}
