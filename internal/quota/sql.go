package quota

import (
	"context"
	"fmt"

	"github.com/jmehdipour/place-discovery/internal/db"
	"github.com/jmehdipour/place-discovery/internal/model"
	"github.com/jmoiron/sqlx"
)

// SQLLedger stores the ledger as the single row id=1 of quota_ledger. A
// reservation is one conditional UPDATE, so concurrent processes sharing
// the database cannot overshoot the ceiling.
type SQLLedger struct {
	db    *sqlx.DB
	opts  Options
	retry db.RetryPolicy
}

var _ Ledger = (*SQLLedger)(nil)

func NewSQLLedger(dbx *sqlx.DB, opts Options, retry db.RetryPolicy) *SQLLedger {
	return &SQLLedger{db: dbx, opts: opts.normalized(), retry: retry}
}

const reserveSQL = `
UPDATE quota_ledger
   SET total_calls       = total_calls + ?,
       window_calls      = CASE WHEN window_started_at <= ? THEN ? ELSE window_calls + ? END,
       window_started_at = CASE WHEN window_started_at <= ? THEN ? ELSE window_started_at END,
       last_call_at      = ?
 WHERE id = 1`

func (l *SQLLedger) TryReserve(ctx context.Context, n int64) (bool, error) {
	if n <= 0 {
		return false, ErrNonPositive
	}
	var granted bool
	err := db.Retry(ctx, l.retry, func(ctx context.Context) error {
		q, args := l.update(n)
		res, err := l.db.ExecContext(ctx, q+" AND total_calls + ? <= ?", append(args, n, l.opts.Ceiling)...)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		granted = affected == 1
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("reserve quota: %w", err)
	}
	return granted, nil
}

func (l *SQLLedger) RecordUsage(ctx context.Context, n int64) error {
	if n <= 0 {
		return ErrNonPositive
	}
	err := db.Retry(ctx, l.retry, func(ctx context.Context) error {
		q, args := l.update(n)
		res, err := l.db.ExecContext(ctx, q, args...)
		if err != nil {
			return err
		}
		if affected, err := res.RowsAffected(); err == nil && affected == 0 {
			return fmt.Errorf("quota_ledger row missing; run migrate")
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("record quota usage: %w", err)
	}
	return nil
}

func (l *SQLLedger) Snapshot(ctx context.Context) (model.QuotaSnapshot, error) {
	var row struct {
		Total       int64 `db:"total_calls"`
		WindowCalls int64 `db:"window_calls"`
		WindowStart int64 `db:"window_started_at"`
		LastCall    int64 `db:"last_call_at"`
	}
	err := db.Retry(ctx, l.retry, func(ctx context.Context) error {
		return l.db.GetContext(ctx, &row, `
			SELECT total_calls, window_calls, window_started_at, last_call_at
			  FROM quota_ledger
			 WHERE id = 1`)
	})
	if err != nil {
		return model.QuotaSnapshot{}, fmt.Errorf("read quota ledger: %w", err)
	}
	st := model.QuotaState{
		Total:           row.Total,
		WindowCalls:     row.WindowCalls,
		WindowStartedAt: fromMillis(row.WindowStart),
		LastCallAt:      fromMillis(row.LastCall),
	}
	return model.SnapshotOf(st, l.opts.Ceiling, l.opts.Window, l.opts.Now()), nil
}

func (l *SQLLedger) update(n int64) (string, []any) {
	now := l.opts.Now().UnixMilli()
	cutoff := now - l.opts.Window.Milliseconds()
	return reserveSQL, []any{n, cutoff, n, n, cutoff, now, now}
}
