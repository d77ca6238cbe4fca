package repository

import (
	"context"
	"strings"
	"testing"

	"github.com/jmehdipour/place-discovery/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRatings_Aggregate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.mustPlace(t, "Rated Place", "Here")
	unrated := f.mustPlace(t, "Quiet Place", "There")

	for i, v := range []float64{5, 3, 4} {
		_, err := f.ratings.Upsert(ctx, p.ID, int64(i+1), v, "")
		require.NoError(t, err)
	}

	agg, err := f.ratings.AggregateFor(ctx, p.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 3, agg.Count)
	assert.InDelta(t, 4.0, agg.Mean, 1e-9)
	assert.Equal(t, "Rated by 3 users (Avg: 4.0/5)", agg.Summary)

	aggs, err := f.ratings.AggregatesFor(ctx, []int64{p.ID, unrated.ID})
	require.NoError(t, err)
	assert.EqualValues(t, 3, aggs[p.ID].Count)
	assert.EqualValues(t, 0, aggs[unrated.ID].Count)
	assert.Equal(t, "Have not been rated by users", aggs[unrated.ID].Summary)
}

func TestRatings_UpsertCreatesThenUpdates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.mustPlace(t, "Twice Rated", "Here")

	res, err := f.ratings.Upsert(ctx, p.ID, 7, 3, "fine")
	require.NoError(t, err)
	assert.Equal(t, model.RatingCreated, res.Action)

	again, err := f.ratings.Upsert(ctx, p.ID, 7, 5, "  much better now \n")
	require.NoError(t, err)
	assert.Equal(t, model.RatingUpdated, again.Action)
	assert.Equal(t, res.RatingID, again.RatingID)

	mine, err := f.ratings.GetForUser(ctx, p.ID, 7)
	require.NoError(t, err)
	require.NotNil(t, mine)
	assert.InDelta(t, 5.0, mine.Rating, 1e-9)
	assert.Equal(t, "much better now", mine.ReviewText)
	assert.True(t, mine.UpdatedAt.After(mine.CreatedAt))

	agg, err := f.ratings.AggregateFor(ctx, p.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, agg.Count)
}

func TestRatings_UpsertRejects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.mustPlace(t, "Strict Place", "Here")

	_, err := f.ratings.Upsert(ctx, p.ID, 1, 6, "")
	assert.ErrorIs(t, err, model.ErrInvalid)

	_, err = f.ratings.Upsert(ctx, p.ID, 1, 0.5, "")
	assert.ErrorIs(t, err, model.ErrInvalid)

	_, err = f.ratings.Upsert(ctx, p.ID, 1, 4, "SPAM SPAM SPAM BUY NOW")
	assert.ErrorIs(t, err, model.ErrDisallowed)

	_, err = f.ratings.Upsert(ctx, 424242, 1, 4, "")
	assert.ErrorIs(t, err, model.ErrNotFound)

	ok, err := f.places.Deactivate(ctx, p.ID)
	require.NoError(t, err)
	require.True(t, ok)
	_, err = f.ratings.Upsert(ctx, p.ID, 1, 4, "")
	assert.ErrorIs(t, err, model.ErrNotFound)

	agg, err := f.ratings.AggregateFor(ctx, p.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 0, agg.Count)
}

func TestRatings_ReviewIsTruncated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.mustPlace(t, "Wordy Place", "Here")

	long := strings.Repeat("good food and nice staff ", 100)
	_, err := f.ratings.Upsert(ctx, p.ID, 3, 4, long)
	require.NoError(t, err)

	mine, err := f.ratings.GetForUser(ctx, p.ID, 3)
	require.NoError(t, err)
	require.NotNil(t, mine)
	assert.LessOrEqual(t, len([]rune(mine.ReviewText)), model.MaxReviewRunes)
}

func TestRatings_ListUserRatingsAndDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.mustPlace(t, "Place A", "Here")
	b := f.mustPlace(t, "Place B", "Here")

	first, err := f.ratings.Upsert(ctx, a.ID, 1, 4, "first")
	require.NoError(t, err)
	second, err := f.ratings.Upsert(ctx, a.ID, 2, 2, "second")
	require.NoError(t, err)
	_, err = f.ratings.Upsert(ctx, b.ID, 1, 5, "")
	require.NoError(t, err)

	list, err := f.ratings.ListByPlace(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.RatingID, list[0].ID)
	assert.Equal(t, first.RatingID, list[1].ID)

	mine, err := f.ratings.UserRatingsFor(ctx, 1, []int64{a.ID, b.ID})
	require.NoError(t, err)
	assert.Len(t, mine, 2)
	assert.InDelta(t, 5.0, mine[b.ID].Rating, 1e-9)

	ok, err := f.ratings.DeleteForUser(ctx, a.ID, 1)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = f.ratings.DeleteForUser(ctx, a.ID, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = f.ratings.DeleteByID(ctx, b.ID, second.RatingID)
	require.NoError(t, err)
	assert.False(t, ok, "rating belongs to another place")
	ok, err = f.ratings.DeleteByID(ctx, a.ID, second.RatingID)
	require.NoError(t, err)
	assert.True(t, ok)

	gone, err := f.ratings.Get(ctx, second.RatingID)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestReports_InsertRejectsDuplicates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.mustPlace(t, "Reported Place", "Here")
	res, err := f.ratings.Upsert(ctx, p.ID, 1, 1, "meh")
	require.NoError(t, err)

	rep, err := f.reports.Insert(ctx, model.ReviewReport{RatingID: res.RatingID, ReportedBy: 2, Reason: "offensive"})
	require.NoError(t, err)
	assert.NotZero(t, rep.ID)
	assert.Equal(t, model.ReportStatusPending, rep.Status)

	_, err = f.reports.Insert(ctx, model.ReviewReport{RatingID: res.RatingID, ReportedBy: 2, Reason: "again"})
	assert.ErrorIs(t, err, model.ErrAlreadyReported)

	_, err = f.reports.Insert(ctx, model.ReviewReport{RatingID: res.RatingID, ReportedBy: 3, Reason: "spam"})
	assert.NoError(t, err)
}
