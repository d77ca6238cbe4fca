package quota

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jmehdipour/place-discovery/internal/db"
	"github.com/jmehdipour/place-discovery/internal/model"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

type fakeClock struct{ now atomic.Int64 }

func newClock(t time.Time) *fakeClock {
	c := &fakeClock{}
	c.now.Store(t.UnixNano())
	return c
}

func (c *fakeClock) Now() time.Time          { return time.Unix(0, c.now.Load()).UTC() }
func (c *fakeClock) Advance(d time.Duration) { c.now.Add(int64(d)) }

type ledgerFactory func(t *testing.T, opts Options) Ledger

func backends() map[string]ledgerFactory {
	return map[string]ledgerFactory{
		"file": func(t *testing.T, opts Options) Ledger {
			l, err := NewFileLedger(filepath.Join(t.TempDir(), "quota.json"), opts)
			require.NoError(t, err)
			return l
		},
		"sql": func(t *testing.T, opts Options) Ledger {
			dbx, err := db.NewSQLiteConnection(filepath.Join(t.TempDir(), "quota.db"), db.PoolOpts{})
			require.NoError(t, err)
			t.Cleanup(func() { _ = dbx.Close() })
			require.NoError(t, db.Migrate(context.Background(), dbx))
			return NewSQLLedger(dbx, opts, db.DefaultRetryPolicy())
		},
		"redis": func(t *testing.T, opts Options) Ledger {
			mr := miniredis.RunT(t)
			rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { _ = rdb.Close() })
			return NewRedisLedger(rdb, "", opts)
		},
	}
}

func TestLedger_ConcurrentReservationsNeverExceedCeiling(t *testing.T) {
	for name, mk := range backends() {
		t.Run(name, func(t *testing.T) {
			l := mk(t, Options{Ceiling: 500})

			var granted atomic.Int64
			var g errgroup.Group
			for i := 0; i < 1000; i++ {
				g.Go(func() error {
					ok, err := l.TryReserve(context.Background(), 1)
					if ok {
						granted.Add(1)
					}
					return err
				})
			}
			require.NoError(t, g.Wait())

			assert.EqualValues(t, 500, granted.Load())
			snap, err := l.Snapshot(context.Background())
			require.NoError(t, err)
			assert.EqualValues(t, 500, snap.Total)
			assert.EqualValues(t, 0, snap.Remaining)
			assert.Equal(t, model.QuotaStatusExceeded, snap.Status)
		})
	}
}

func TestLedger_ReserveAndRecord(t *testing.T) {
	for name, mk := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			clock := newClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
			l := mk(t, Options{Ceiling: 10, Window: time.Hour, Now: clock.Now})

			ok, err := l.TryReserve(ctx, 4)
			require.NoError(t, err)
			assert.True(t, ok)

			ok, err = l.TryReserve(ctx, 7)
			require.NoError(t, err)
			assert.False(t, ok, "4+7 exceeds the ceiling")

			require.NoError(t, l.RecordUsage(ctx, 2))

			snap, err := l.Snapshot(ctx)
			require.NoError(t, err)
			assert.EqualValues(t, 6, snap.Total)
			assert.EqualValues(t, 4, snap.Remaining)
			assert.EqualValues(t, 6, snap.WindowCalls)
			assert.InDelta(t, 60.0, snap.PercentUsed, 0.001)
			require.NotNil(t, snap.LastCallAt)
			assert.True(t, snap.LastCallAt.Equal(clock.Now()))

			clock.Advance(2 * time.Hour)
			snap, err = l.Snapshot(ctx)
			require.NoError(t, err)
			assert.EqualValues(t, 0, snap.WindowCalls, "expired window reads as empty")

			ok, err = l.TryReserve(ctx, 1)
			require.NoError(t, err)
			assert.True(t, ok)
			snap, err = l.Snapshot(ctx)
			require.NoError(t, err)
			assert.EqualValues(t, 7, snap.Total)
			assert.EqualValues(t, 1, snap.WindowCalls)

			_, err = l.TryReserve(ctx, 0)
			assert.ErrorIs(t, err, ErrNonPositive)
		})
	}
}

func TestFileLedger_SurvivesRestart(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state", "quota.json")

	l, err := NewFileLedger(path, Options{Ceiling: 3})
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		ok, err := l.TryReserve(ctx, 1)
		require.NoError(t, err)
		require.True(t, ok)
	}

	reloaded, err := NewFileLedger(path, Options{Ceiling: 3})
	require.NoError(t, err)
	ok, err := reloaded.TryReserve(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	snap, err := reloaded.Snapshot(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, snap.Total)
}
