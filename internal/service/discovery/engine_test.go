package discovery

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/jmehdipour/place-discovery/internal/cuisine"
	"github.com/jmehdipour/place-discovery/internal/db"
	"github.com/jmehdipour/place-discovery/internal/model"
	"github.com/jmehdipour/place-discovery/internal/moderation"
	"github.com/jmehdipour/place-discovery/internal/provider"
	"github.com/jmehdipour/place-discovery/internal/quota"
	"github.com/jmehdipour/place-discovery/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider counts calls and serves canned answers.
type fakeProvider struct {
	mu          sync.Mutex
	textCalls   int
	detailCalls int
	lastQuery   string
	results     []model.ProviderPlace
	details     map[string]model.ProviderPlace
	err         error
	down        bool
}

func (f *fakeProvider) TextSearch(_ context.Context, query, _ string) ([]model.ProviderPlace, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.textCalls++
	f.lastQuery = query
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

func (f *fakeProvider) Details(_ context.Context, id string) (model.ProviderPlace, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detailCalls++
	p, ok := f.details[id]
	if !ok {
		return model.ProviderPlace{}, fmt.Errorf("%w: %s", provider.ErrNotFound, id)
	}
	return p, nil
}

func (f *fakeProvider) Available() bool { return !f.down }

func (f *fakeProvider) PhotoURL(ref string) string {
	if ref == "" {
		return ""
	}
	return "https://photos.test/" + ref
}

func (f *fakeProvider) calls() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.textCalls, f.detailCalls
}

type recordingSink struct {
	mu     sync.Mutex
	events []model.SearchEvent
}

func (s *recordingSink) Publish(ev model.SearchEvent) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
}

type harness struct {
	engine  *Engine
	prov    *fakeProvider
	ledger  quota.Ledger
	places  repository.PlacesRepository
	ratings repository.RatingsRepository
	sink    *recordingSink
}

func newHarness(t *testing.T, ceiling int64) *harness {
	t.Helper()
	dbx, err := db.NewSQLiteConnection(filepath.Join(t.TempDir(), "engine.db"), db.PoolOpts{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = dbx.Close() })
	require.NoError(t, db.Migrate(context.Background(), dbx))

	ledger, err := quota.NewFileLedger(filepath.Join(t.TempDir(), "quota.json"), quota.Options{Ceiling: ceiling})
	require.NoError(t, err)

	h := &harness{
		prov:    &fakeProvider{details: map[string]model.ProviderPlace{}},
		ledger:  ledger,
		places:  repository.NewPlacesRepository(dbx, db.DefaultRetryPolicy()),
		ratings: repository.NewRatingsRepository(dbx, moderation.New(), db.DefaultRetryPolicy()),
		sink:    &recordingSink{},
	}
	h.engine = New(h.places, h.ratings, repository.NewReportsRepository(dbx), ledger, h.prov, cuisine.New(), h.sink, nil, Config{})
	return h
}

func (h *harness) quotaTotal(t *testing.T) int64 {
	t.Helper()
	snap, err := h.ledger.Snapshot(context.Background())
	require.NoError(t, err)
	return snap.Total
}

func fptr(v float64) *float64 { return &v }

func sushiResults() []model.ProviderPlace {
	lat, lng := 43.64, -79.38
	return []model.ProviderPlace{
		{PlaceID: "ChIJ-a", Name: "Sushi Place A", FormattedAddress: "10 King St W, Toronto, ON", Rating: fptr(4.6),
			Types: []string{"restaurant"}, Lat: &lat, Lng: &lng, PhotoReferences: []string{"photo-a"}},
		{PlaceID: "ChIJ-b", Name: "Sushi Place B", FormattedAddress: "20 Queen St E, Toronto, ON", Rating: fptr(4.1),
			Types: []string{"restaurant"}},
	}
}

func TestSearch_RejectsShortQueriesWithoutConsumingQuota(t *testing.T) {
	h := newHarness(t, 10)
	for _, q := range []string{"", " ", "a", "  b  ", "12", "!!", "42 99", "bad\x00input"} {
		t.Run(fmt.Sprintf("%q", q), func(t *testing.T) {
			_, err := h.engine.Search(context.Background(), q, "", model.Requester{})
			assert.ErrorIs(t, err, model.ErrInvalidQuery)
		})
	}
	text, _ := h.prov.calls()
	assert.Zero(t, text)
	assert.Zero(t, h.quotaTotal(t))
}

func TestSearch_ProviderThenLocal(t *testing.T) {
	h := newHarness(t, 10)
	h.prov.results = sushiResults()
	ctx := context.Background()

	first, err := h.engine.Search(ctx, "sushi", "toronto", model.Requester{})
	require.NoError(t, err)
	assert.Equal(t, model.SourceProvider, first.Source)
	require.NotNil(t, first.SavedCount)
	assert.Equal(t, 2, *first.SavedCount)
	require.Len(t, first.Places, 2)
	assert.Equal(t, "Sushi Place A", first.Places[0].Name, "provider order is kept")
	assert.Equal(t, "Japanese", first.Places[0].Cuisine)
	assert.Equal(t, "https://photos.test/photo-a", first.Places[0].PhotoURL)
	assert.Equal(t, "https://www.google.com/maps/place/?q=place_id:ChIJ-a", first.Places[0].MapsLink)
	assert.Empty(t, first.Places[1].MapsLink, "no geometry, no maps link")
	require.NotNil(t, first.Quota)
	assert.EqualValues(t, 1, first.Quota.Total)
	assert.Equal(t, "sushi toronto", h.prov.lastQuery)

	second, err := h.engine.Search(ctx, "sushi", "toronto", model.Requester{})
	require.NoError(t, err)
	assert.Equal(t, model.SourceLocal, second.Source)
	assert.Nil(t, second.SavedCount)
	assert.Nil(t, second.Quota)
	require.Len(t, second.Places, 2)
	assert.ElementsMatch(t,
		[]int64{first.Places[0].ID, first.Places[1].ID},
		[]int64{second.Places[0].ID, second.Places[1].ID})
	for _, p := range second.Places {
		assert.True(t, p.FromStore)
		assert.EqualValues(t, 0, p.Aggregate.Count)
		assert.Equal(t, "Have not been rated by users", p.Aggregate.Summary)
	}

	text, _ := h.prov.calls()
	assert.Equal(t, 1, text)
	assert.EqualValues(t, 1, h.quotaTotal(t))
}

func TestSearch_LocalMatchNeverCallsProvider(t *testing.T) {
	h := newHarness(t, 10)
	ctx := context.Background()
	_, _, err := h.engine.CreatePlace(ctx, model.PlaceInput{Name: "Ramen Bar", Location: "Main St"})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		res, err := h.engine.Search(ctx, "ramen", "", model.Requester{})
		require.NoError(t, err)
		assert.Equal(t, model.SourceLocal, res.Source)
	}
	text, _ := h.prov.calls()
	assert.Zero(t, text)
	assert.Zero(t, h.quotaTotal(t))
}

func TestSearch_ProviderQueryKeepsLocationOnce(t *testing.T) {
	h := newHarness(t, 10)
	h.prov.err = provider.ErrZeroResults

	_, err := h.engine.Search(context.Background(), "sushi in Toronto", "toronto", model.Requester{})
	require.ErrorIs(t, err, model.ErrNoResultsFound)
	assert.Equal(t, "sushi in Toronto", h.prov.lastQuery)
}

func TestSearch_QuotaConsumedOnFailureAndEnforced(t *testing.T) {
	h := newHarness(t, 1)
	h.prov.err = fmt.Errorf("%w: connection refused", provider.ErrUnreachable)
	ctx := context.Background()

	_, err := h.engine.Search(ctx, "dumplings", "", model.Requester{})
	assert.ErrorIs(t, err, model.ErrProviderUnreachable)
	assert.EqualValues(t, 1, h.quotaTotal(t), "a failed call still counts")

	h.prov.err = nil
	h.prov.results = sushiResults()
	_, err = h.engine.Search(ctx, "noodles", "", model.Requester{})
	assert.ErrorIs(t, err, model.ErrQuotaExceeded)

	text, _ := h.prov.calls()
	assert.Equal(t, 1, text)
}

func TestSearch_ProviderErrorMapping(t *testing.T) {
	cases := []struct {
		perr error
		want error
	}{
		{provider.ErrZeroResults, model.ErrNoResultsFound},
		{provider.ErrInvalidRequest, model.ErrProviderRejected},
		{provider.ErrDenied, model.ErrProviderRejected},
		{provider.ErrOverQuota, model.ErrProviderOverQuota},
		{provider.ErrUnknown, model.ErrProviderFailed},
		{provider.ErrUnreachable, model.ErrProviderUnreachable},
		{context.DeadlineExceeded, model.ErrProviderUnreachable},
	}
	for _, tc := range cases {
		t.Run(tc.perr.Error(), func(t *testing.T) {
			h := newHarness(t, 10)
			h.prov.err = tc.perr
			_, err := h.engine.Search(context.Background(), "tapas", "", model.Requester{})
			assert.ErrorIs(t, err, tc.want)
			assert.ErrorIs(t, err, tc.perr)
		})
	}
}

func TestSearch_EmptyProviderAnswerIsNoResults(t *testing.T) {
	h := newHarness(t, 10)
	_, err := h.engine.Search(context.Background(), "tapas", "", model.Requester{})
	assert.ErrorIs(t, err, model.ErrNoResultsFound)
}

func TestSearch_OpenBreakerSkipsQuota(t *testing.T) {
	h := newHarness(t, 10)
	h.prov.down = true

	_, err := h.engine.Search(context.Background(), "tapas", "", model.Requester{})
	assert.ErrorIs(t, err, model.ErrProviderUnreachable)
	assert.Zero(t, h.quotaTotal(t))
	text, _ := h.prov.calls()
	assert.Zero(t, text)
}

func TestSearch_ItemFailureDoesNotAbortMerge(t *testing.T) {
	h := newHarness(t, 10)
	h.prov.results = []model.ProviderPlace{
		{PlaceID: "ChIJ-ok", Name: "Good Tacos", FormattedAddress: "1 Elm"},
		{PlaceID: "ChIJ-bad", Name: "   ", FormattedAddress: "2 Elm"},
	}

	res, err := h.engine.Search(context.Background(), "tacos", "", model.Requester{})
	require.NoError(t, err)
	require.Len(t, res.Places, 2)
	assert.Equal(t, 1, *res.SavedCount)
	assert.NotZero(t, res.Places[0].ID)
	assert.Zero(t, res.Places[1].ID)
	assert.Equal(t, "ChIJ-bad", res.Places[1].ProviderID)
}

func TestSearch_KnownProviderPlacesAreNotResaved(t *testing.T) {
	h := newHarness(t, 10)
	h.prov.results = sushiResults()
	ctx := context.Background()

	first, err := h.engine.Search(ctx, "omakase", "", model.Requester{})
	require.NoError(t, err)
	assert.Equal(t, 2, *first.SavedCount)

	again, err := h.engine.Search(ctx, "omakase", "", model.Requester{})
	require.NoError(t, err)
	assert.Equal(t, model.SourceProvider, again.Source, "provider names do not contain the query")
	assert.Equal(t, 0, *again.SavedCount)
	assert.Equal(t, first.Places[0].ID, again.Places[0].ID)
}

func TestSearch_AttachesRatings(t *testing.T) {
	h := newHarness(t, 10)
	ctx := context.Background()
	rec, _, err := h.engine.CreatePlace(ctx, model.PlaceInput{Name: "Curry House", Location: "Brick Lane"})
	require.NoError(t, err)

	for uid, v := range map[int64]float64{1: 5, 2: 3, 3: 4} {
		_, err := h.engine.SubmitRating(ctx, rec.ID, uid, v, "")
		require.NoError(t, err)
	}

	res, err := h.engine.Search(ctx, "curry", "", model.Requester{UserID: 2})
	require.NoError(t, err)
	require.Len(t, res.Places, 1)
	p := res.Places[0]
	assert.EqualValues(t, 3, p.Aggregate.Count)
	assert.InDelta(t, 4.0, p.Aggregate.Mean, 1e-9)
	require.NotNil(t, p.UserRating)
	assert.InDelta(t, 3.0, p.UserRating.Rating, 1e-9)

	anon, err := h.engine.Search(ctx, "curry", "", model.Requester{})
	require.NoError(t, err)
	assert.Nil(t, anon.Places[0].UserRating)
}

func TestSearch_PublishesEvents(t *testing.T) {
	h := newHarness(t, 10)
	h.prov.results = sushiResults()
	ctx := context.Background()

	_, _ = h.engine.Search(ctx, "x", "", model.Requester{})
	_, _ = h.engine.Search(ctx, "sushi", "", model.Requester{UserID: 9})
	_, _ = h.engine.Search(ctx, "sushi", "", model.Requester{})

	require.Len(t, h.sink.events, 3)
	assert.Equal(t, "none", h.sink.events[0].Source)
	assert.Equal(t, "invalid", h.sink.events[0].Outcome)
	assert.Equal(t, "provider", h.sink.events[1].Source)
	assert.EqualValues(t, 2, h.sink.events[1].SavedCount)
	assert.EqualValues(t, 9, h.sink.events[1].RequesterID)
	assert.Equal(t, "local", h.sink.events[2].Source)
	assert.EqualValues(t, 2, h.sink.events[2].ResultCount)
	assert.NotEmpty(t, h.sink.events[2].ID)
}

func TestQuotaSnapshot(t *testing.T) {
	h := newHarness(t, 4)
	h.prov.err = provider.ErrZeroResults
	_, _ = h.engine.Search(context.Background(), "sushi", "", model.Requester{})

	snap, err := h.engine.QuotaSnapshot(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, snap.Total)
	assert.EqualValues(t, 3, snap.Remaining)
	assert.InDelta(t, 25.0, snap.PercentUsed, 1e-9)
	assert.Equal(t, model.QuotaStatusOK, snap.Status)
}
