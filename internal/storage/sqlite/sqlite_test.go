package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neexbeast/greenscore/internal/aggregate"
	"github.com/neexbeast/greenscore/internal/scoring"
)

func setupTestStore(t *testing.T) (*Store, *time.Time) {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "records.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	return store, &now
}

func result(country, city string, score int, category scoring.Category) *aggregate.ScoreResult {
	return &aggregate.ScoreResult{
		Country: country,
		City:    city,
		Score:   score,
		Risk:    scoring.RiskAssessment{Score: 40, Category: category},
		Weights: scoring.Balanced,
	}
}

func TestNew_RequiresPath(t *testing.T) {
	_, err := New("")
	require.Error(t, err)
}

func TestSaveAndGetRecord(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	saved, err := store.SaveRecord(ctx, result("Brazil", "Recife", 65, scoring.CategoryMedium))
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, saved.ID)

	got, err := store.GetRecord(ctx, saved.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, saved.ID, got.ID)
	assert.Equal(t, "Recife", got.City)
	assert.Equal(t, 65, got.Score)
	assert.Equal(t, scoring.CategoryMedium, got.Data.Risk.Category)
	assert.Equal(t, scoring.Balanced, got.Data.Weights)
	assert.True(t, saved.CreatedAt.Equal(got.CreatedAt))
}

func TestGetRecord_NotFound(t *testing.T) {
	store, _ := setupTestStore(t)

	got, err := store.GetRecord(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestListRecords_NewestFirstAndCountryFilter(t *testing.T) {
	store, now := setupTestStore(t)
	ctx := context.Background()

	_, err := store.SaveRecord(ctx, result("Brazil", "Recife", 65, scoring.CategoryMedium))
	require.NoError(t, err)
	*now = now.Add(time.Minute)
	_, err = store.SaveRecord(ctx, result("Germany", "Berlin", 48, scoring.CategoryLow))
	require.NoError(t, err)
	*now = now.Add(1500 * time.Millisecond)
	_, err = store.SaveRecord(ctx, result("Brazil", "Brasilia", 61, scoring.CategoryMedium))
	require.NoError(t, err)

	all, err := store.ListRecords(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "Brasilia", all[0].City)
	assert.Equal(t, "Berlin", all[1].City)
	assert.Equal(t, "Recife", all[2].City)

	brazil, err := store.ListRecords(ctx, "BRAZIL", 0)
	require.NoError(t, err)
	require.Len(t, brazil, 2)

	limited, err := store.ListRecords(ctx, "", 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
}

func TestListRecordsByCategory(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	_, err := store.SaveRecord(ctx, result("Brazil", "Recife", 65, scoring.CategoryMedium))
	require.NoError(t, err)
	_, err = store.SaveRecord(ctx, result("Germany", "Berlin", 48, scoring.CategoryLow))
	require.NoError(t, err)

	low, err := store.ListRecordsByCategory(ctx, scoring.CategoryLow, 0)
	require.NoError(t, err)
	require.Len(t, low, 1)
	assert.Equal(t, "Germany", low[0].Country)

	extreme, err := store.ListRecordsByCategory(ctx, scoring.CategoryExtreme, 0)
	require.NoError(t, err)
	assert.Empty(t, extreme)
}

func TestReopenKeepsRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.db")
	store, err := New(path)
	require.NoError(t, err)

	saved, err := store.SaveRecord(context.Background(), result("Chile", "Santiago", 70, scoring.CategoryLow))
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := New(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	got, err := reopened.GetRecord(context.Background(), saved.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Santiago", got.City)
}

func TestPing(t *testing.T) {
	store, _ := setupTestStore(t)
	require.NoError(t, store.Ping(context.Background()))
}
