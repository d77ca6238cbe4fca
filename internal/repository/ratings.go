package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmehdipour/place-discovery/internal/db"
	"github.com/jmehdipour/place-discovery/internal/model"
	"github.com/jmehdipour/place-discovery/internal/util"
	"github.com/jmoiron/sqlx"
)

// ContentChecker screens review text before it is stored.
type ContentChecker interface {
	IsDisallowed(text string) bool
}

// RatingsRepository persists user ratings and derives rating aggregates.
type RatingsRepository interface {
	Upsert(ctx context.Context, placeID, userID int64, rating float64, review string) (model.RatingResult, error)
	AggregateFor(ctx context.Context, placeID int64) (model.RatingAggregate, error)
	AggregatesFor(ctx context.Context, placeIDs []int64) (map[int64]model.RatingAggregate, error)
	UserRatingsFor(ctx context.Context, userID int64, placeIDs []int64) (map[int64]model.UserRating, error)
	ListByPlace(ctx context.Context, placeID int64) ([]model.UserRating, error)
	GetForUser(ctx context.Context, placeID, userID int64) (*model.UserRating, error)
	Get(ctx context.Context, ratingID int64) (*model.UserRating, error)
	DeleteForUser(ctx context.Context, placeID, userID int64) (bool, error)
	DeleteByID(ctx context.Context, placeID, ratingID int64) (bool, error)
}

type RatingsRepositoryImpl struct {
	db     *sqlx.DB
	filter ContentChecker
	retry  db.RetryPolicy
	now    func() time.Time
}

func NewRatingsRepository(dbx *sqlx.DB, filter ContentChecker, retry db.RetryPolicy) *RatingsRepositoryImpl {
	return &RatingsRepositoryImpl{db: dbx, filter: filter, retry: retry, now: time.Now}
}

var _ RatingsRepository = (*RatingsRepositoryImpl)(nil)

const ratingColumns = `id, restaurant_id, user_id, rating, review_text, created_at, updated_at`

type ratingRow struct {
	ID         int64   `db:"id"`
	PlaceID    int64   `db:"restaurant_id"`
	UserID     int64   `db:"user_id"`
	Rating     float64 `db:"rating"`
	ReviewText string  `db:"review_text"`
	CreatedAt  int64   `db:"created_at"`
	UpdatedAt  int64   `db:"updated_at"`
}

func (r ratingRow) toRating() model.UserRating {
	return model.UserRating{
		ID:         r.ID,
		PlaceID:    r.PlaceID,
		UserID:     r.UserID,
		Rating:     r.Rating,
		ReviewText: r.ReviewText,
		CreatedAt:  time.UnixMilli(r.CreatedAt).UTC(),
		UpdatedAt:  time.UnixMilli(r.UpdatedAt).UTC(),
	}
}

func (r *RatingsRepositoryImpl) withTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	t, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = t.Rollback() }()
	if err := fn(t); err != nil {
		return err
	}
	return t.Commit()
}

// errInsertRace marks a lost insert race; the next attempt sees the winner's row.
var errInsertRace = errors.New("rating insert race")

// Upsert creates or updates the (place, user) rating. The place must be active.
func (r *RatingsRepositoryImpl) Upsert(ctx context.Context, placeID, userID int64, rating float64, review string) (model.RatingResult, error) {
	if placeID <= 0 || userID <= 0 {
		return model.RatingResult{}, fmt.Errorf("%w: place and user are required", model.ErrInvalid)
	}
	if !model.ValidRating(rating) {
		return model.RatingResult{}, fmt.Errorf("%w: rating must be between %.0f and %.0f", model.ErrInvalid, model.MinRating, model.MaxRating)
	}
	review = util.SanitizeText(review, model.MaxReviewRunes)
	if r.filter != nil && r.filter.IsDisallowed(review) {
		return model.RatingResult{}, model.ErrDisallowed
	}

	var res model.RatingResult
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		err = db.Retry(ctx, r.retry, func(ctx context.Context) error {
			var e error
			res, e = r.upsertOnce(ctx, placeID, userID, rating, review)
			return e
		})
		if !errors.Is(err, errInsertRace) {
			break
		}
	}
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return model.RatingResult{}, err
		}
		return model.RatingResult{}, fmt.Errorf("upsert rating: %w", err)
	}
	return res, nil
}

func (r *RatingsRepositoryImpl) upsertOnce(ctx context.Context, placeID, userID int64, rating float64, review string) (model.RatingResult, error) {
	var res model.RatingResult
	err := r.withTx(ctx, func(tx *sqlx.Tx) error {
		var active int64
		err := tx.GetContext(ctx, &active, `SELECT is_active FROM restaurants WHERE id = ?`, placeID)
		if errors.Is(err, sql.ErrNoRows) || (err == nil && active == 0) {
			return fmt.Errorf("%w: place %d", model.ErrNotFound, placeID)
		}
		if err != nil {
			return err
		}

		now := r.now().UnixMilli()
		var id int64
		err = tx.GetContext(ctx, &id, `SELECT id FROM restaurant_ratings WHERE restaurant_id = ? AND user_id = ?`, placeID, userID)
		switch {
		case err == nil:
			if _, err := tx.ExecContext(ctx, `
				UPDATE restaurant_ratings
				   SET rating = ?, review_text = ?, updated_at = ?
				 WHERE id = ?`, rating, review, now, id); err != nil {
				return err
			}
			res = model.RatingResult{Action: model.RatingUpdated, RatingID: id}
			return nil

		case errors.Is(err, sql.ErrNoRows):
			out, err := tx.ExecContext(ctx, `
				INSERT INTO restaurant_ratings (restaurant_id, user_id, rating, review_text, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?)`, placeID, userID, rating, review, now, now)
			if db.IsUniqueViolation(err) {
				return errInsertRace
			}
			if err != nil {
				return err
			}
			id, err = out.LastInsertId()
			if err != nil {
				return err
			}
			res = model.RatingResult{Action: model.RatingCreated, RatingID: id}
			return nil

		default:
			return err
		}
	})
	return res, err
}

func (r *RatingsRepositoryImpl) AggregateFor(ctx context.Context, placeID int64) (model.RatingAggregate, error) {
	aggs, err := r.AggregatesFor(ctx, []int64{placeID})
	if err != nil {
		return model.RatingAggregate{}, err
	}
	return aggs[placeID], nil
}

// AggregatesFor computes aggregates for many places in one query. Every
// requested id is present in the result, unrated places with count 0.
func (r *RatingsRepositoryImpl) AggregatesFor(ctx context.Context, placeIDs []int64) (map[int64]model.RatingAggregate, error) {
	out := make(map[int64]model.RatingAggregate, len(placeIDs))
	for _, id := range placeIDs {
		out[id] = model.NewRatingAggregate(0, 0)
	}
	ids := positiveIDs(placeIDs)
	if len(ids) == 0 {
		return out, nil
	}

	query, args, err := sqlx.In(`
		SELECT restaurant_id, COUNT(*) AS cnt, AVG(rating) AS mean
		  FROM restaurant_ratings
		 WHERE restaurant_id IN (?)
		 GROUP BY restaurant_id`, ids)
	if err != nil {
		return nil, err
	}
	query = r.db.Rebind(query)

	var rows []struct {
		PlaceID int64   `db:"restaurant_id"`
		Count   int64   `db:"cnt"`
		Mean    float64 `db:"mean"`
	}
	err = db.Retry(ctx, r.retry, func(ctx context.Context) error {
		rows = rows[:0]
		return r.db.SelectContext(ctx, &rows, query, args...)
	})
	if err != nil {
		return nil, fmt.Errorf("rating aggregates: %w", err)
	}
	for _, row := range rows {
		out[row.PlaceID] = model.NewRatingAggregate(row.Count, row.Mean)
	}
	return out, nil
}

// UserRatingsFor returns the user's ratings keyed by place id.
func (r *RatingsRepositoryImpl) UserRatingsFor(ctx context.Context, userID int64, placeIDs []int64) (map[int64]model.UserRating, error) {
	out := make(map[int64]model.UserRating)
	ids := positiveIDs(placeIDs)
	if userID <= 0 || len(ids) == 0 {
		return out, nil
	}

	query, args, err := sqlx.In(`SELECT `+ratingColumns+` FROM restaurant_ratings WHERE user_id = ? AND restaurant_id IN (?)`, userID, ids)
	if err != nil {
		return nil, err
	}
	query = r.db.Rebind(query)

	var rows []ratingRow
	err = db.Retry(ctx, r.retry, func(ctx context.Context) error {
		rows = rows[:0]
		return r.db.SelectContext(ctx, &rows, query, args...)
	})
	if err != nil {
		return nil, fmt.Errorf("user ratings: %w", err)
	}
	for _, row := range rows {
		out[row.PlaceID] = row.toRating()
	}
	return out, nil
}

func (r *RatingsRepositoryImpl) ListByPlace(ctx context.Context, placeID int64) ([]model.UserRating, error) {
	var rows []ratingRow
	err := db.Retry(ctx, r.retry, func(ctx context.Context) error {
		rows = rows[:0]
		return r.db.SelectContext(ctx, &rows, `
			SELECT `+ratingColumns+`
			  FROM restaurant_ratings
			 WHERE restaurant_id = ?
			 ORDER BY created_at DESC, id DESC`, placeID)
	})
	if err != nil {
		return nil, fmt.Errorf("list ratings: %w", err)
	}
	out := make([]model.UserRating, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toRating())
	}
	return out, nil
}

func (r *RatingsRepositoryImpl) GetForUser(ctx context.Context, placeID, userID int64) (*model.UserRating, error) {
	return r.getOne(ctx, `restaurant_id = ? AND user_id = ?`, placeID, userID)
}

func (r *RatingsRepositoryImpl) Get(ctx context.Context, ratingID int64) (*model.UserRating, error) {
	return r.getOne(ctx, `id = ?`, ratingID)
}

func (r *RatingsRepositoryImpl) getOne(ctx context.Context, where string, args ...any) (*model.UserRating, error) {
	var row ratingRow
	err := r.db.GetContext(ctx, &row, `SELECT `+ratingColumns+` FROM restaurant_ratings WHERE `+where+` LIMIT 1`, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	ur := row.toRating()
	return &ur, nil
}

func (r *RatingsRepositoryImpl) DeleteForUser(ctx context.Context, placeID, userID int64) (bool, error) {
	return r.delete(ctx, `DELETE FROM restaurant_ratings WHERE restaurant_id = ? AND user_id = ?`, placeID, userID)
}

func (r *RatingsRepositoryImpl) DeleteByID(ctx context.Context, placeID, ratingID int64) (bool, error) {
	return r.delete(ctx, `DELETE FROM restaurant_ratings WHERE restaurant_id = ? AND id = ?`, placeID, ratingID)
}

func (r *RatingsRepositoryImpl) delete(ctx context.Context, q string, args ...any) (bool, error) {
	var n int64
	err := db.Retry(ctx, r.retry, func(ctx context.Context) error {
		res, err := r.db.ExecContext(ctx, q, args...)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return false, fmt.Errorf("delete rating: %w", err)
	}
	return n > 0, nil
}

func positiveIDs(ids []int64) []int64 {
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id > 0 {
			out = append(out, id)
		}
	}
	return out
}
