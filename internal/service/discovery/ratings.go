package discovery

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/jmehdipour/place-discovery/internal/metrics"
	"github.com/jmehdipour/place-discovery/internal/model"
	"github.com/jmehdipour/place-discovery/internal/util"
)

// SubmitRating creates or replaces the user's rating of a place.
func (e *Engine) SubmitRating(ctx context.Context, placeID, userID int64, rating float64, review string) (model.RatingResult, error) {
	if userID <= 0 {
		metrics.RatingsTotal.WithLabelValues("rejected").Inc()
		return model.RatingResult{}, fmt.Errorf("%w: user is required", model.ErrInvalid)
	}
	res, err := e.ratings.Upsert(context.WithoutCancel(ctx), placeID, userID, rating, review)
	if err != nil {
		metrics.RatingsTotal.WithLabelValues("rejected").Inc()
		return model.RatingResult{}, err
	}
	metrics.RatingsTotal.WithLabelValues(res.Action.String()).Inc()
	return res, nil
}

// ListRatings returns a place's ratings, newest first, with the aggregate.
func (e *Engine) ListRatings(ctx context.Context, placeID int64) ([]model.UserRating, model.RatingAggregate, error) {
	if _, err := e.activePlace(ctx, placeID); err != nil {
		return nil, model.RatingAggregate{}, err
	}
	list, err := e.ratings.ListByPlace(ctx, placeID)
	if err != nil {
		return nil, model.RatingAggregate{}, err
	}
	agg, err := e.ratings.AggregateFor(ctx, placeID)
	if err != nil {
		return nil, model.RatingAggregate{}, err
	}
	return list, agg, nil
}

// MyRating returns the user's own rating of a place.
func (e *Engine) MyRating(ctx context.Context, placeID, userID int64) (model.UserRating, error) {
	if userID <= 0 {
		return model.UserRating{}, fmt.Errorf("%w: user is required", model.ErrInvalid)
	}
	ur, err := e.ratings.GetForUser(ctx, placeID, userID)
	if err != nil {
		return model.UserRating{}, err
	}
	if ur == nil {
		return model.UserRating{}, fmt.Errorf("%w: no rating by user %d on place %d", model.ErrNotFound, userID, placeID)
	}
	return *ur, nil
}

// DeleteRating removes a rating. Admins may name any rating of the place by
// id; everyone else removes their own.
func (e *Engine) DeleteRating(ctx context.Context, placeID int64, req model.Requester, ratingID int64) error {
	if req.Anonymous() {
		return fmt.Errorf("%w: user is required", model.ErrInvalid)
	}
	var (
		ok  bool
		err error
	)
	if req.Admin && ratingID > 0 {
		ok, err = e.ratings.DeleteByID(context.WithoutCancel(ctx), placeID, ratingID)
	} else {
		ok, err = e.ratings.DeleteForUser(context.WithoutCancel(ctx), placeID, req.UserID)
	}
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: rating on place %d", model.ErrNotFound, placeID)
	}
	return nil
}

// ReportReview flags another user's review on a place for moderation.
func (e *Engine) ReportReview(ctx context.Context, placeID, ratingID, reporterID int64, reason, description string) (model.ReviewReport, error) {
	if reporterID <= 0 {
		return model.ReviewReport{}, fmt.Errorf("%w: user is required", model.ErrInvalid)
	}
	reason = util.SanitizeText(reason, 0)
	description = util.SanitizeText(description, 0)
	switch {
	case reason == "":
		return model.ReviewReport{}, fmt.Errorf("%w: reason is required", model.ErrInvalid)
	case utf8.RuneCountInString(reason) > model.MaxReportReasonRunes:
		return model.ReviewReport{}, fmt.Errorf("%w: reason exceeds %d characters", model.ErrInvalid, model.MaxReportReasonRunes)
	case utf8.RuneCountInString(description) > model.MaxReportDescriptionRunes:
		return model.ReviewReport{}, fmt.Errorf("%w: description exceeds %d characters", model.ErrInvalid, model.MaxReportDescriptionRunes)
	}

	ur, err := e.ratings.Get(ctx, ratingID)
	if err != nil {
		return model.ReviewReport{}, err
	}
	if ur == nil || ur.PlaceID != placeID {
		return model.ReviewReport{}, fmt.Errorf("%w: rating %d on place %d", model.ErrNotFound, ratingID, placeID)
	}
	if ur.UserID == reporterID {
		return model.ReviewReport{}, model.ErrSelfReport
	}
	return e.reports.Insert(context.WithoutCancel(ctx), model.ReviewReport{
		RatingID:    ratingID,
		ReportedBy:  reporterID,
		Reason:      reason,
		Description: description,
	})
}
