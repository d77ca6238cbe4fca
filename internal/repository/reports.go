package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmehdipour/place-discovery/internal/db"
	"github.com/jmehdipour/place-discovery/internal/model"
	"github.com/jmoiron/sqlx"
)

// ReportsRepository stores review reports for moderators.
type ReportsRepository interface {
	Insert(ctx context.Context, rep model.ReviewReport) (model.ReviewReport, error)
}

type ReportsRepositoryImpl struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewReportsRepository(dbx *sqlx.DB) *ReportsRepositoryImpl {
	return &ReportsRepositoryImpl{db: dbx, now: time.Now}
}

var _ ReportsRepository = (*ReportsRepositoryImpl)(nil)

// Insert stores a pending report. A second report of the same review by the
// same user fails with model.ErrAlreadyReported.
func (r *ReportsRepositoryImpl) Insert(ctx context.Context, rep model.ReviewReport) (model.ReviewReport, error) {
	now := r.now()
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO review_reports (rating_id, reported_by, reason, description, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rep.RatingID, rep.ReportedBy, rep.Reason, rep.Description, model.ReportStatusPending, now.UnixMilli(),
	)
	if db.IsUniqueViolation(err) {
		return model.ReviewReport{}, model.ErrAlreadyReported
	}
	if err != nil {
		return model.ReviewReport{}, fmt.Errorf("insert report: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.ReviewReport{}, err
	}
	rep.ID = id
	rep.Status = model.ReportStatusPending
	rep.CreatedAt = time.UnixMilli(now.UnixMilli()).UTC()
	return rep, nil
}
