package api

import (
	"context"

	"github.com/google/uuid"

	"github.com/neexbeast/greenscore/internal/aggregate"
	"github.com/neexbeast/greenscore/internal/events"
	"github.com/neexbeast/greenscore/internal/presence"
	"github.com/neexbeast/greenscore/internal/scoring"
	"github.com/neexbeast/greenscore/internal/storage"
)

// Scorer runs an aggregation.
type Scorer interface {
	Score(ctx context.Context, q aggregate.Query) (*aggregate.ScoreResult, error)
}

// RecordStore defines the storage operations needed by handlers.
type RecordStore interface {
	SaveRecord(ctx context.Context, res *aggregate.ScoreResult) (*storage.Record, error)
	GetRecord(ctx context.Context, id uuid.UUID) (*storage.Record, error)
	ListRecords(ctx context.Context, country string, limit int) ([]*storage.Record, error)
	ListRecordsByCategory(ctx context.Context, category scoring.Category, limit int) ([]*storage.Record, error)
}

// PresenceService defines the diplomatic-presence lookups exposed over HTTP.
type PresenceService interface {
	Lookup(ctx context.Context, source, destination string) (presence.Result, error)
	Total(ctx context.Context, destination string) (presence.Result, error)
}

// ScorePublisher announces persisted scores.
type ScorePublisher interface {
	PublishScore(ctx context.Context, ev events.ScoreEvent) error
}
