// Package events publishes score notifications for downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/neexbeast/greenscore/internal/scoring"
	"github.com/neexbeast/greenscore/internal/storage"
)

// EventTypeScoreRecorded tags messages emitted after a score is persisted.
const EventTypeScoreRecorded = "score.recorded"

// ScoreEvent is the payload of a score.recorded message.
type ScoreEvent struct {
	RecordID     uuid.UUID        `json:"record_id"`
	Country      string           `json:"country"`
	City         string           `json:"city"`
	Score        int              `json:"score"`
	RiskCategory scoring.Category `json:"risk_category"`
	Degraded     bool             `json:"degraded"`
	RecordedAt   time.Time        `json:"recorded_at"`
}

// NewScoreEvent builds the event for a saved record.
func NewScoreEvent(rec *storage.Record) ScoreEvent {
	return ScoreEvent{
		RecordID:     rec.ID,
		Country:      rec.Country,
		City:         rec.City,
		Score:        rec.Score,
		RiskCategory: rec.Data.Risk.Category,
		Degraded:     rec.Data.Degraded,
		RecordedAt:   rec.CreatedAt,
	}
}

// Publisher emits score events.
type Publisher interface {
	PublishScore(ctx context.Context, ev ScoreEvent) error
	Close() error
}

// NopPublisher drops every event. Used when no brokers are configured.
type NopPublisher struct{}

// PublishScore discards ev.
func (NopPublisher) PublishScore(context.Context, ScoreEvent) error { return nil }

// Close does nothing.
func (NopPublisher) Close() error { return nil }

// WriterInterface abstracts kafka.Writer for testing.
type WriterInterface interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes score events to one topic, keyed by country so a
// country's events stay ordered within a partition.
type KafkaPublisher struct {
	writer WriterInterface
	topic  string
	log    *slog.Logger
}

// NewKafkaPublisher constructs a KafkaPublisher for brokers and topic.
func NewKafkaPublisher(brokers []string, topic string, log *slog.Logger) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka: at least one broker is required")
	}
	if strings.TrimSpace(topic) == "" {
		return nil, errors.New("kafka: topic is required")
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           10 * time.Millisecond,
		WriteTimeout:           5 * time.Second,
		AllowAutoTopicCreation: true,
	}

	return NewKafkaPublisherWithWriter(writer, topic, log), nil
}

// NewKafkaPublisherWithWriter constructs a KafkaPublisher with a custom writer (for tests).
func NewKafkaPublisherWithWriter(w WriterInterface, topic string, log *slog.Logger) *KafkaPublisher {
	return &KafkaPublisher{writer: w, topic: topic, log: log}
}

// PublishScore writes ev as a single JSON message.
func (p *KafkaPublisher) PublishScore(ctx context.Context, ev ScoreEvent) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshaling score event %s: %w", ev.RecordID, err)
	}

	msg := kafka.Message{
		Key:   []byte(strings.ToLower(ev.Country)),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(EventTypeScoreRecorded)},
		},
		Time: ev.RecordedAt,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publishing score event %s to %s: %w", ev.RecordID, p.topic, err)
	}

	p.log.Debug("score event published", "record_id", ev.RecordID, "topic", p.topic)
	return nil
}

// Close flushes pending messages and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
