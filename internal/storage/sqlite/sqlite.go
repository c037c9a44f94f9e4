// Package sqlite stores score records in a single SQLite file, for
// deployments without Postgres.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/neexbeast/greenscore/internal/aggregate"
	"github.com/neexbeast/greenscore/internal/scoring"
	"github.com/neexbeast/greenscore/internal/storage"
)

// timeLayout is fixed-width so created_at sorts correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store keeps score records in a single SQLite file.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// New opens (creating if needed) the database at path and applies the schema.
func New(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite: path is required")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db, now: time.Now}
	if err := store.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrating sqlite %s: %w", path, err)
	}

	return store, nil
}

// Close closes the database. It is safe on a nil Store.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// SaveRecord inserts a new record for res.
func (s *Store) SaveRecord(ctx context.Context, res *aggregate.ScoreResult) (*storage.Record, error) {
	rec := storage.NewRecord(res)
	rec.CreatedAt = s.now().UTC()

	dataJSON, err := json.Marshal(rec.Data)
	if err != nil {
		return nil, fmt.Errorf("marshaling score data for %s: %w", rec.Country, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO score_records (id, country, city, score, risk_category, data, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		rec.ID.String(),
		rec.Country,
		rec.City,
		rec.Score,
		string(res.Risk.Category),
		string(dataJSON),
		rec.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("inserting score record for %s: %w", rec.Country, err)
	}

	return rec, nil
}

// GetRecord returns nil, nil when no record has id.
func (s *Store) GetRecord(ctx context.Context, id uuid.UUID) (*storage.Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, country, city, score, data, created_at
		FROM score_records
		WHERE id = ?
	`, id.String())

	rec, err := scan(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying score record %s: %w", id, err)
	}
	return rec, nil
}

// ListRecords returns the newest records, optionally only for country
// (case-insensitive).
func (s *Store) ListRecords(ctx context.Context, country string, limit int) ([]*storage.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, country, city, score, data, created_at
		FROM score_records
		WHERE (? = '' OR country = ? COLLATE NOCASE)
		ORDER BY created_at DESC
		LIMIT ?
	`, country, country, storage.ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("querying score records: %w", err)
	}
	return scanAll(rows)
}

// ListRecordsByCategory returns the newest records whose risk fell into category.
func (s *Store) ListRecordsByCategory(ctx context.Context, category scoring.Category, limit int) ([]*storage.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, country, city, score, data, created_at
		FROM score_records
		WHERE risk_category = ?
		ORDER BY created_at DESC
		LIMIT ?
	`, string(category), storage.ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("querying records for category %s: %w", category, err)
	}
	return scanAll(rows)
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(row scanner) (*storage.Record, error) {
	var (
		rec       storage.Record
		id        string
		dataJSON  string
		createdAt string
	)
	if err := row.Scan(&id, &rec.Country, &rec.City, &rec.Score, &dataJSON, &createdAt); err != nil {
		return nil, err
	}

	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parsing record id %q: %w", id, err)
	}
	rec.ID = parsed

	if rec.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at for record %s: %w", id, err)
	}

	if err := json.Unmarshal([]byte(dataJSON), &rec.Data); err != nil {
		return nil, fmt.Errorf("unmarshaling score data for record %s: %w", id, err)
	}
	return &rec, nil
}

func scanAll(rows *sql.Rows) ([]*storage.Record, error) {
	defer rows.Close()

	var results []*storage.Record
	for rows.Next() {
		rec, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning score record row: %w", err)
		}
		results = append(results, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating score record rows: %w", err)
	}
	return results, nil
}

func (s *Store) migrate() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS score_records (
			id TEXT PRIMARY KEY,
			country TEXT NOT NULL,
			city TEXT NOT NULL,
			score INTEGER NOT NULL,
			risk_category TEXT NOT NULL,
			data TEXT NOT NULL,
			created_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_score_records_country
			ON score_records (country COLLATE NOCASE, created_at DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_score_records_category
			ON score_records (risk_category, created_at DESC);`,
	}

	for _, statement := range statements {
		if _, err := s.db.Exec(statement); err != nil {
			return err
		}
	}

	return nil
}
