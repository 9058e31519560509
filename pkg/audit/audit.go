// Package audit records who did what to which building data. Entries
// are fire and forget; an audit failure never fails the operation that
// produced it.
package audit

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/sedum/pkg/kafka"
)

// Audit actions.
const (
	ActionRawSaveCompleted  = "raw_save_completed"
	ActionMappingCompleted  = "mapping_completed"
	ActionMatchCompleted    = "match_completed"
	ActionSnapshotMerged    = "snapshot_merged"
	ActionBuildingPromoted  = "building_promoted"
	ActionBuildingsDeleted  = "buildings_deleted"
	ActionMappingReset      = "mapping_reset"
	ActionBuildingsExported = "buildings_exported"
	ActionUserInvited       = "user_invited"
)

// Entry is one audit record.
type Entry struct {
	OrgID     string    `json:"org_id"`
	ActorID   string    `json:"actor_id"`
	Subject   string    `json:"subject"`
	Action    string    `json:"action"`
	Note      string    `json:"note,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Sink receives audit entries.
type Sink interface {
	Record(ctx context.Context, entry Entry)
}

// KafkaSink publishes audit entries to a Kafka topic.
type KafkaSink struct {
	producer *kafka.Producer
	topic    string
	logger   ectologger.Logger
}

// NewKafkaSink creates a Kafka backed audit sink.
func NewKafkaSink(producer *kafka.Producer, topic string, logger ectologger.Logger) *KafkaSink {
	return &KafkaSink{
		producer: producer,
		topic:    topic,
		logger:   logger,
	}
}

func (s *KafkaSink) Record(ctx context.Context, entry Entry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	headers := map[string]string{
		"action": entry.Action,
		"org_id": entry.OrgID,
	}
	if err := s.producer.Publish(ctx, s.topic, entry.Subject, entry, headers); err != nil {
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"action":  entry.Action,
			"subject": entry.Subject,
		}).Error("Failed to record audit entry")
	}
}

// NoopSink drops all entries.
type NoopSink struct{}

func (NoopSink) Record(_ context.Context, _ Entry) {}
