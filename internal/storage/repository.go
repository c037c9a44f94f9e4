package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/neexbeast/greenscore/internal/aggregate"
	"github.com/neexbeast/greenscore/internal/scoring"
)

// Querier abstracts the subset of pgxpool.Pool used by Repository.
// This allows injection of a mock in tests.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Repository provides Postgres access for score records.
type Repository struct {
	q Querier
}

// NewRepository constructs a Repository backed by the given pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{q: pool}
}

// NewRepositoryWithQuerier constructs a Repository with a custom Querier (for tests).
func NewRepositoryWithQuerier(q Querier) *Repository {
	return &Repository{q: q}
}

// SaveRecord inserts a new record for res and returns it with its ID and
// creation time.
func (r *Repository) SaveRecord(ctx context.Context, res *aggregate.ScoreResult) (*Record, error) {
	rec := NewRecord(res)

	dataJSON, err := json.Marshal(rec.Data)
	if err != nil {
		return nil, fmt.Errorf("marshaling score data for %s: %w", rec.Country, err)
	}

	const q = `
		INSERT INTO score_records (id, country, city, score, data)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`

	if err := r.q.QueryRow(ctx, q, rec.ID, rec.Country, rec.City, rec.Score, dataJSON).Scan(&rec.CreatedAt); err != nil {
		return nil, fmt.Errorf("inserting score record for %s: %w", rec.Country, err)
	}

	return rec, nil
}

// GetRecord retrieves a record by ID.
// Returns nil, nil when no record has that ID.
func (r *Repository) GetRecord(ctx context.Context, id uuid.UUID) (*Record, error) {
	const q = `
		SELECT id, country, city, score, data, created_at
		FROM score_records
		WHERE id = $1
	`

	var rec Record
	var dataJSON []byte

	err := r.q.QueryRow(ctx, q, id).Scan(
		&rec.ID,
		&rec.Country,
		&rec.City,
		&rec.Score,
		&dataJSON,
		&rec.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying score record %s: %w", id, err)
	}

	if err := json.Unmarshal(dataJSON, &rec.Data); err != nil {
		return nil, fmt.Errorf("unmarshaling score data for record %s: %w", id, err)
	}

	return &rec, nil
}

// ListRecords returns the newest records, optionally only for country
// (case-insensitive).
func (r *Repository) ListRecords(ctx context.Context, country string, limit int) ([]*Record, error) {
	const q = `
		SELECT id, country, city, score, data, created_at
		FROM score_records
		WHERE ($1 = '' OR lower(country) = lower($1))
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.q.Query(ctx, q, country, ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("querying score records: %w", err)
	}
	return scanRecords(rows)
}

// ListRecordsByCategory returns the newest records whose risk fell into category.
// Uses the JSONB @> containment operator so the GIN index on data applies.
func (r *Repository) ListRecordsByCategory(ctx context.Context, category scoring.Category, limit int) ([]*Record, error) {
	filter, err := json.Marshal(map[string]any{"risk": map[string]string{"category": string(category)}})
	if err != nil {
		return nil, fmt.Errorf("marshaling category filter: %w", err)
	}

	const q = `
		SELECT id, country, city, score, data, created_at
		FROM score_records
		WHERE data @> $1::jsonb
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.q.Query(ctx, q, string(filter), ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("querying records for category %s: %w", category, err)
	}
	return scanRecords(rows)
}

func scanRecords(rows pgx.Rows) ([]*Record, error) {
	defer rows.Close()

	var results []*Record
	for rows.Next() {
		var rec Record
		var dataJSON []byte

		if err := rows.Scan(
			&rec.ID,
			&rec.Country,
			&rec.City,
			&rec.Score,
			&dataJSON,
			&rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning score record row: %w", err)
		}

		if err := json.Unmarshal(dataJSON, &rec.Data); err != nil {
			return nil, fmt.Errorf("unmarshaling score data: %w", err)
		}

		results = append(results, &rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating score record rows: %w", err)
	}

	return results, nil
}
