package repository

import (
	"context"
	"fmt"

	"github.com/jmehdipour/place-discovery/internal/model"
	"github.com/jmoiron/sqlx"
)

// SearchEventsRepository stores search outcomes in ClickHouse for reporting.
type SearchEventsRepository interface {
	InsertBatch(ctx context.Context, events []model.SearchEvent) error
	List(ctx context.Context, source string, limit, offset int) ([]model.SearchEvent, error)
}

type chSearchEventsRepository struct {
	ch *sqlx.DB // ClickHouse connection
}

func NewCHSearchEventsRepository(ch *sqlx.DB) SearchEventsRepository {
	return &chSearchEventsRepository{ch: ch}
}

// InsertBatch sends all events as a single ClickHouse block.
func (r *chSearchEventsRepository) InsertBatch(ctx context.Context, events []model.SearchEvent) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := r.ch.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO search_events
		    (id, query, location, source, outcome, result_count, saved_count, requester_id, created_at)
	`)
	if err != nil {
		return fmt.Errorf("prepare search_events batch: %w", err)
	}
	defer stmt.Close()

	for _, e := range events {
		if _, err := stmt.ExecContext(ctx,
			e.ID, e.Query, e.Location, e.Source, e.Outcome,
			e.ResultCount, e.SavedCount, e.RequesterID, e.CreatedAt.UTC(),
		); err != nil {
			return fmt.Errorf("append search event %s: %w", e.ID, err)
		}
	}
	return tx.Commit()
}

func (r *chSearchEventsRepository) List(ctx context.Context, source string, limit, offset int) ([]model.SearchEvent, error) {
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	q := `
		SELECT id, query, location, source, outcome, result_count, saved_count, requester_id, created_at
		FROM search_events
		WHERE 1 = 1
	`
	var args []any
	if source != "" {
		q += " AND source = ?"
		args = append(args, source)
	}

	q += " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	var rows []model.SearchEvent
	if err := r.ch.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, err
	}
	return rows, nil
}
