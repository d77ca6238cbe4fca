package repository

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jmehdipour/place-discovery/internal/db"
	"github.com/jmehdipour/place-discovery/internal/model"
	"github.com/jmehdipour/place-discovery/internal/moderation"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	dbx, err := db.NewSQLiteConnection(filepath.Join(t.TempDir(), "discovery.db"), db.PoolOpts{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = dbx.Close() })
	require.NoError(t, db.Migrate(context.Background(), dbx))
	return dbx
}

// tickingClock returns strictly increasing times, one second apart.
func tickingClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	cur := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		cur = cur.Add(time.Second)
		return cur
	}
}

type fixture struct {
	db      *sqlx.DB
	places  *PlacesRepositoryImpl
	ratings *RatingsRepositoryImpl
	reports *ReportsRepositoryImpl
}

func newFixture(t *testing.T) fixture {
	dbx := newTestDB(t)
	clock := tickingClock(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	f := fixture{
		db:      dbx,
		places:  NewPlacesRepository(dbx, db.DefaultRetryPolicy()),
		ratings: NewRatingsRepository(dbx, moderation.New(), db.DefaultRetryPolicy()),
		reports: NewReportsRepository(dbx),
	}
	f.places.now = clock
	f.ratings.now = clock
	f.reports.now = clock
	return f
}

func (f fixture) mustPlace(t *testing.T, name, location string) model.PlaceRecord {
	t.Helper()
	rec, _, err := f.places.Upsert(context.Background(), model.PlaceCandidate{Name: name, Location: location})
	require.NoError(t, err)
	return rec
}
