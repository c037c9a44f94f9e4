package storage

import (
	"time"

	"github.com/google/uuid"

	"github.com/neexbeast/greenscore/internal/aggregate"
)

const (
	// DefaultListLimit applies when a list call passes no limit.
	DefaultListLimit = 50
	// MaxListLimit caps list calls.
	MaxListLimit = 500
)

// Record is a persisted score.
type Record struct {
	ID        uuid.UUID             `json:"id"`
	Country   string                `json:"country"`
	City      string                `json:"city"`
	Score     int                   `json:"score"`
	Data      aggregate.ScoreResult `json:"data"`
	CreatedAt time.Time             `json:"created_at"`
}

// NewRecord builds an unsaved record for res with a fresh ID.
func NewRecord(res *aggregate.ScoreResult) *Record {
	return &Record{
		ID:      uuid.New(),
		Country: res.Country,
		City:    res.City,
		Score:   res.Score,
		Data:    *res,
	}
}

// ClampLimit maps a requested page size into [1, MaxListLimit].
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultListLimit
	case limit > MaxListLimit:
		return MaxListLimit
	default:
		return limit
	}
}
