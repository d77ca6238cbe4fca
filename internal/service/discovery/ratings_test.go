package discovery

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/jmehdipour/place-discovery/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitRating(t *testing.T) {
	h := newHarness(t, 10)
	ctx := context.Background()
	rec, _, err := h.engine.CreatePlace(ctx, model.PlaceInput{Name: "Noodle Nook", Location: "3 Pier"})
	require.NoError(t, err)

	cases := []struct {
		name   string
		place  int64
		user   int64
		rating float64
		review string
		want   error
	}{
		{"above range", rec.ID, 1, 6, "", model.ErrInvalid},
		{"below range", rec.ID, 1, 0, "", model.ErrInvalid},
		{"not a number", rec.ID, 1, math.NaN(), "", model.ErrInvalid},
		{"anonymous", rec.ID, 0, 4, "", model.ErrInvalid},
		{"shouting spam", rec.ID, 1, 3, "SPAM SPAM SPAM BUY NOW", model.ErrDisallowed},
		{"unknown place", 9999, 1, 4, "", model.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.engine.SubmitRating(ctx, tc.place, tc.user, tc.rating, tc.review)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	res, err := h.engine.SubmitRating(ctx, rec.ID, 1, 4, "solid broth")
	require.NoError(t, err)
	assert.Equal(t, model.RatingCreated, res.Action)

	res2, err := h.engine.SubmitRating(ctx, rec.ID, 1, 5, "even better")
	require.NoError(t, err)
	assert.Equal(t, model.RatingUpdated, res2.Action)
	assert.Equal(t, res.RatingID, res2.RatingID)

	mine, err := h.engine.MyRating(ctx, rec.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, "even better", mine.ReviewText)

	_, err = h.engine.MyRating(ctx, rec.ID, 2)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestListRatings(t *testing.T) {
	h := newHarness(t, 10)
	ctx := context.Background()
	rec, _, err := h.engine.CreatePlace(ctx, model.PlaceInput{Name: "Grill Spot", Location: "4 Dock"})
	require.NoError(t, err)

	for uid, v := range []float64{5, 3, 4} {
		_, err := h.engine.SubmitRating(ctx, rec.ID, int64(uid+1), v, "")
		require.NoError(t, err)
	}
	list, agg, err := h.engine.ListRatings(ctx, rec.ID)
	require.NoError(t, err)
	assert.Len(t, list, 3)
	assert.EqualValues(t, 3, agg.Count)
	assert.InDelta(t, 4.0, agg.Mean, 1e-9)

	_, _, err = h.engine.ListRatings(ctx, 12345)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestDeleteRating(t *testing.T) {
	h := newHarness(t, 10)
	ctx := context.Background()
	rec, _, err := h.engine.CreatePlace(ctx, model.PlaceInput{Name: "Deli Corner", Location: "5 Ave"})
	require.NoError(t, err)

	own, err := h.engine.SubmitRating(ctx, rec.ID, 1, 4, "")
	require.NoError(t, err)
	other, err := h.engine.SubmitRating(ctx, rec.ID, 2, 2, "")
	require.NoError(t, err)

	// a non-admin's rating id is ignored; only their own rating goes
	require.NoError(t, h.engine.DeleteRating(ctx, rec.ID, model.Requester{UserID: 1}, other.RatingID))
	_, err = h.engine.MyRating(ctx, rec.ID, 2)
	require.NoError(t, err)
	_, err = h.engine.MyRating(ctx, rec.ID, 1)
	assert.ErrorIs(t, err, model.ErrNotFound)

	err = h.engine.DeleteRating(ctx, rec.ID, model.Requester{UserID: 1}, 0)
	assert.ErrorIs(t, err, model.ErrNotFound)

	require.NoError(t, h.engine.DeleteRating(ctx, rec.ID, model.Requester{UserID: 99, Admin: true}, other.RatingID))
	_, agg, err := h.engine.ListRatings(ctx, rec.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 0, agg.Count)
	assert.NotZero(t, own.RatingID)

	err = h.engine.DeleteRating(ctx, rec.ID, model.Requester{}, 0)
	assert.ErrorIs(t, err, model.ErrInvalid)
}

func TestReportReview(t *testing.T) {
	h := newHarness(t, 10)
	ctx := context.Background()
	rec, _, err := h.engine.CreatePlace(ctx, model.PlaceInput{Name: "Fish Shack", Location: "6 Bay"})
	require.NoError(t, err)
	elsewhere, _, err := h.engine.CreatePlace(ctx, model.PlaceInput{Name: "Crab Hut", Location: "7 Bay"})
	require.NoError(t, err)
	r, err := h.engine.SubmitRating(ctx, rec.ID, 1, 2, "cold fries")
	require.NoError(t, err)

	_, err = h.engine.ReportReview(ctx, rec.ID, r.RatingID, 2, "  ", "")
	assert.ErrorIs(t, err, model.ErrInvalid)
	_, err = h.engine.ReportReview(ctx, rec.ID, r.RatingID, 2, strings.Repeat("x", model.MaxReportReasonRunes+1), "")
	assert.ErrorIs(t, err, model.ErrInvalid)
	_, err = h.engine.ReportReview(ctx, elsewhere.ID, r.RatingID, 2, "spam", "")
	assert.ErrorIs(t, err, model.ErrNotFound)
	_, err = h.engine.ReportReview(ctx, rec.ID, r.RatingID, 1, "spam", "")
	assert.ErrorIs(t, err, model.ErrSelfReport)

	rep, err := h.engine.ReportReview(ctx, rec.ID, r.RatingID, 2, "spam", "posted by a bot")
	require.NoError(t, err)
	assert.Equal(t, model.ReportStatusPending, rep.Status)
	assert.Equal(t, "posted by a bot", rep.Description)

	_, err = h.engine.ReportReview(ctx, rec.ID, r.RatingID, 2, "spam", "")
	assert.ErrorIs(t, err, model.ErrAlreadyReported)
}
