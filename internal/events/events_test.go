package events_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neexbeast/greenscore/internal/aggregate"
	"github.com/neexbeast/greenscore/internal/events"
	"github.com/neexbeast/greenscore/internal/scoring"
	"github.com/neexbeast/greenscore/internal/storage"
)

type mockKafkaWriter struct {
	writeFunc func(ctx context.Context, msgs ...kafka.Message) error
	closed    bool
}

func (m *mockKafkaWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if m.writeFunc != nil {
		return m.writeFunc(ctx, msgs...)
	}
	return nil
}

func (m *mockKafkaWriter) Close() error {
	m.closed = true
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleRecord() *storage.Record {
	return &storage.Record{
		ID:      uuid.MustParse("6f1c1a8e-9d0b-4c1e-8a57-0d3a2b8f4e11"),
		Country: "Brazil",
		City:    "Recife",
		Score:   65,
		Data: aggregate.ScoreResult{
			Risk:     scoring.RiskAssessment{Score: 59, Category: scoring.CategoryMedium},
			Degraded: true,
		},
		CreatedAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestNewScoreEvent(t *testing.T) {
	ev := events.NewScoreEvent(sampleRecord())
	assert.Equal(t, "Brazil", ev.Country)
	assert.Equal(t, 65, ev.Score)
	assert.Equal(t, scoring.CategoryMedium, ev.RiskCategory)
	assert.True(t, ev.Degraded)
}

func TestKafkaPublisher_PublishScore(t *testing.T) {
	var captured []kafka.Message
	w := &mockKafkaWriter{writeFunc: func(_ context.Context, msgs ...kafka.Message) error {
		captured = append(captured, msgs...)
		return nil
	}}
	p := events.NewKafkaPublisherWithWriter(w, "scores", quietLogger())

	require.NoError(t, p.PublishScore(context.Background(), events.NewScoreEvent(sampleRecord())))
	require.Len(t, captured, 1)

	msg := captured[0]
	assert.Equal(t, []byte("brazil"), msg.Key)
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "event-type", msg.Headers[0].Key)
	assert.Equal(t, events.EventTypeScoreRecorded, string(msg.Headers[0].Value))

	var decoded events.ScoreEvent
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "6f1c1a8e-9d0b-4c1e-8a57-0d3a2b8f4e11", decoded.RecordID.String())
	assert.Equal(t, "Recife", decoded.City)
}

func TestKafkaPublisher_WriteError(t *testing.T) {
	w := &mockKafkaWriter{writeFunc: func(context.Context, ...kafka.Message) error {
		return errors.New("broker unavailable")
	}}
	p := events.NewKafkaPublisherWithWriter(w, "scores", quietLogger())

	err := p.PublishScore(context.Background(), events.NewScoreEvent(sampleRecord()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scores")
	assert.Contains(t, err.Error(), "broker unavailable")
}

func TestKafkaPublisher_Close(t *testing.T) {
	w := &mockKafkaWriter{}
	p := events.NewKafkaPublisherWithWriter(w, "scores", quietLogger())
	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestNewKafkaPublisher_Validation(t *testing.T) {
	_, err := events.NewKafkaPublisher(nil, "scores", quietLogger())
	require.Error(t, err)

	_, err = events.NewKafkaPublisher([]string{"localhost:9092"}, " ", quietLogger())
	require.Error(t, err)

	p, err := events.NewKafkaPublisher([]string{"localhost:9092"}, "scores", quietLogger())
	require.NoError(t, err)
	require.NoError(t, p.Close())
}

func TestNopPublisher(t *testing.T) {
	var p events.Publisher = events.NopPublisher{}
	require.NoError(t, p.PublishScore(context.Background(), events.ScoreEvent{}))
	require.NoError(t, p.Close())
}
