package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmehdipour/place-discovery/internal/db"
	"github.com/jmehdipour/place-discovery/internal/model"
	"github.com/jmoiron/sqlx"
)

// PlacesRepository is the durable collection of restaurant records.
type PlacesRepository interface {
	FindByText(ctx context.Context, query, location string, limit int) ([]model.PlaceRecord, error)
	Upsert(ctx context.Context, c model.PlaceCandidate) (model.PlaceRecord, bool, error)
	Get(ctx context.Context, id int64) (*model.PlaceRecord, error)
	GetByProviderID(ctx context.Context, providerID string) (*model.PlaceRecord, error)
	List(ctx context.Context, limit, offset int) ([]model.PlaceRecord, error)
	Deactivate(ctx context.Context, id int64) (bool, error)
}

type PlacesRepositoryImpl struct {
	db    *sqlx.DB
	retry db.RetryPolicy
	now   func() time.Time
}

func NewPlacesRepository(dbx *sqlx.DB, retry db.RetryPolicy) *PlacesRepositoryImpl {
	return &PlacesRepositoryImpl{db: dbx, retry: retry, now: time.Now}
}

var _ PlacesRepository = (*PlacesRepositoryImpl)(nil)

const placeColumns = `id, provider_id, name, cuisine, location, rating, price_level, types_json,
	photo_reference, maps_link, website, phone, is_active, created_at`

type placeRow struct {
	ID             int64           `db:"id"`
	ProviderID     sql.NullString  `db:"provider_id"`
	Name           string          `db:"name"`
	Cuisine        string          `db:"cuisine"`
	Location       string          `db:"location"`
	Rating         sql.NullFloat64 `db:"rating"`
	PriceLevel     sql.NullInt64   `db:"price_level"`
	TypesJSON      string          `db:"types_json"`
	PhotoReference string          `db:"photo_reference"`
	MapsLink       string          `db:"maps_link"`
	Website        string          `db:"website"`
	Phone          string          `db:"phone"`
	IsActive       int64           `db:"is_active"`
	CreatedAt      int64           `db:"created_at"`
}

func (r placeRow) toRecord() model.PlaceRecord {
	rec := model.PlaceRecord{
		ID:             r.ID,
		ProviderID:     r.ProviderID.String,
		Name:           r.Name,
		Cuisine:        r.Cuisine,
		Location:       r.Location,
		PhotoReference: r.PhotoReference,
		MapsLink:       r.MapsLink,
		Website:        r.Website,
		Phone:          r.Phone,
		Active:         r.IsActive != 0,
		CreatedAt:      time.UnixMilli(r.CreatedAt).UTC(),
	}
	if r.Rating.Valid {
		v := r.Rating.Float64
		rec.Rating = &v
	}
	if r.PriceLevel.Valid {
		v := int(r.PriceLevel.Int64)
		rec.PriceLevel = &v
	}
	if r.TypesJSON != "" {
		_ = json.Unmarshal([]byte(r.TypesJSON), &rec.Types)
	}
	return rec
}

func toRecords(rows []placeRow) []model.PlaceRecord {
	out := make([]model.PlaceRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toRecord())
	}
	return out
}

// FindByText returns active places whose name or location contains query,
// or whose location contains location, newest first.
func (r *PlacesRepositoryImpl) FindByText(ctx context.Context, query, location string, limit int) ([]model.PlaceRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	query = strings.ToLower(strings.TrimSpace(query))
	location = strings.ToLower(strings.TrimSpace(location))
	if query == "" && location == "" {
		return nil, nil
	}

	var conds []string
	var args []any
	if query != "" {
		conds = append(conds, "LOWER(name) LIKE ? ESCAPE '!'", "LOWER(location) LIKE ? ESCAPE '!'")
		args = append(args, likePattern(query), likePattern(query))
	}
	if location != "" {
		conds = append(conds, "LOWER(location) LIKE ? ESCAPE '!'")
		args = append(args, likePattern(location))
	}
	q := `SELECT ` + placeColumns + `
		FROM restaurants
		WHERE is_active = 1 AND (` + strings.Join(conds, " OR ") + `)
		ORDER BY created_at DESC, id DESC
		LIMIT ?`
	args = append(args, limit)

	var rows []placeRow
	err := db.Retry(ctx, r.retry, func(ctx context.Context) error {
		rows = rows[:0]
		return r.db.SelectContext(ctx, &rows, q, args...)
	})
	if err != nil {
		return nil, fmt.Errorf("find places: %w", err)
	}
	return toRecords(rows), nil
}

// Upsert returns the active record matching the candidate's provider id or
// natural key, inserting one when neither is known. Concurrent upserts of the
// same place resolve through the unique indexes: the loser re-reads the row.
func (r *PlacesRepositoryImpl) Upsert(ctx context.Context, c model.PlaceCandidate) (model.PlaceRecord, bool, error) {
	c.Name = strings.TrimSpace(c.Name)
	c.Location = strings.TrimSpace(c.Location)
	if c.Name == "" {
		return model.PlaceRecord{}, false, fmt.Errorf("%w: place name is required", model.ErrInvalid)
	}
	if c.Cuisine == "" {
		c.Cuisine = "Other"
	}

	var (
		rec      model.PlaceRecord
		inserted bool
	)
	err := db.Retry(ctx, r.retry, func(ctx context.Context) error {
		existing, err := r.findExisting(ctx, c)
		if err != nil {
			return err
		}
		if existing != nil {
			rec, inserted = *existing, false
			return nil
		}

		id, err := r.insert(ctx, c)
		if db.IsUniqueViolation(err) {
			existing, err = r.findExisting(ctx, c)
			if err != nil {
				return err
			}
			if existing == nil {
				return fmt.Errorf("%w: %q lost an insert race but no row is visible", model.ErrConflict, c.Name)
			}
			rec, inserted = *existing, false
			return nil
		}
		if err != nil {
			return err
		}

		got, err := r.Get(ctx, id)
		if err != nil {
			return err
		}
		if got == nil {
			return fmt.Errorf("place %d vanished after insert", id)
		}
		rec, inserted = *got, true
		return nil
	})
	if err != nil {
		return model.PlaceRecord{}, false, fmt.Errorf("upsert place: %w", err)
	}
	return rec, inserted, nil
}

func (r *PlacesRepositoryImpl) findExisting(ctx context.Context, c model.PlaceCandidate) (*model.PlaceRecord, error) {
	if c.ProviderID != "" {
		rec, err := r.getOne(ctx, `provider_id = ? AND is_active = 1`, c.ProviderID)
		if err != nil || rec != nil {
			return rec, err
		}
	}
	return r.getOne(ctx, `natural_key = ? AND is_active = 1`, c.NaturalKey())
}

func (r *PlacesRepositoryImpl) insert(ctx context.Context, c model.PlaceCandidate) (int64, error) {
	types := c.Types
	if types == nil {
		types = []string{}
	}
	typesJSON, err := json.Marshal(types)
	if err != nil {
		return 0, fmt.Errorf("marshal types: %w", err)
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO restaurants
		    (provider_id, natural_key, name, cuisine, location, rating, price_level, types_json,
		     photo_reference, maps_link, website, phone, is_active, created_at)
		VALUES
		    (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?)
	`,
		nullString(c.ProviderID), c.NaturalKey(), c.Name, c.Cuisine, c.Location, c.Rating, c.PriceLevel,
		string(typesJSON), c.PhotoReference, c.MapsLink, c.Website, c.Phone, r.now().UnixMilli(),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// Get returns the place by id whether active or not; nil when absent.
func (r *PlacesRepositoryImpl) Get(ctx context.Context, id int64) (*model.PlaceRecord, error) {
	return r.getOne(ctx, `id = ?`, id)
}

// GetByProviderID returns the active place with that provider id; nil when absent.
func (r *PlacesRepositoryImpl) GetByProviderID(ctx context.Context, providerID string) (*model.PlaceRecord, error) {
	if providerID == "" {
		return nil, nil
	}
	return r.getOne(ctx, `provider_id = ? AND is_active = 1`, providerID)
}

func (r *PlacesRepositoryImpl) getOne(ctx context.Context, where string, args ...any) (*model.PlaceRecord, error) {
	var row placeRow
	err := r.db.GetContext(ctx, &row, `SELECT `+placeColumns+` FROM restaurants WHERE `+where+` LIMIT 1`, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rec := row.toRecord()
	return &rec, nil
}

// List pages through active places, newest first.
func (r *PlacesRepositoryImpl) List(ctx context.Context, limit, offset int) ([]model.PlaceRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	var rows []placeRow
	err := db.Retry(ctx, r.retry, func(ctx context.Context) error {
		rows = rows[:0]
		return r.db.SelectContext(ctx, &rows, `
			SELECT `+placeColumns+`
			  FROM restaurants
			 WHERE is_active = 1
			 ORDER BY created_at DESC, id DESC
			 LIMIT ? OFFSET ?`, limit, offset)
	})
	if err != nil {
		return nil, fmt.Errorf("list places: %w", err)
	}
	return toRecords(rows), nil
}

// Deactivate soft-deletes a place. Reports false when it was not active.
func (r *PlacesRepositoryImpl) Deactivate(ctx context.Context, id int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE restaurants SET is_active = 0 WHERE id = ? AND is_active = 1`, id)
	if err != nil {
		return false, fmt.Errorf("deactivate place: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

func likePattern(s string) string { return "%" + likeEscaper.Replace(s) + "%" }

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
