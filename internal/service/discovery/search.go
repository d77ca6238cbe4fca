package discovery

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmehdipour/place-discovery/internal/metrics"
	"github.com/jmehdipour/place-discovery/internal/model"
	"github.com/jmehdipour/place-discovery/internal/util"
	"go.uber.org/zap"
)

// Search answers a free-text restaurant query.
//
// Local matches always win: when the store has any candidate the provider is
// not consulted, even if it would know better places. Otherwise one provider
// call is reserved from the quota ledger, and that call counts whether or not
// it succeeds.
func (e *Engine) Search(ctx context.Context, query, location string, req model.Requester) (model.SearchResult, error) {
	source := "none"
	var res model.SearchResult
	q, loc, err := e.normalizeSearch(query, location)
	if err == nil {
		res, err = e.search(ctx, q, loc, req)
		if res.Source != "" {
			source = res.Source.String()
		}
	}

	outcome := outcomeOf(err)
	metrics.SearchesTotal.WithLabelValues(source, outcome).Inc()
	ev := model.SearchEvent{
		ID:          util.NewID(e.now()),
		Query:       q,
		Location:    loc,
		Source:      source,
		Outcome:     outcome,
		ResultCount: uint32(len(res.Places)),
		RequesterID: req.UserID,
		CreatedAt:   e.now().UTC(),
	}
	if res.SavedCount != nil {
		ev.SavedCount = uint32(*res.SavedCount)
	}
	e.events.Publish(ev)

	if err != nil {
		return model.SearchResult{}, err
	}
	return res, nil
}

func (e *Engine) normalizeSearch(query, location string) (string, string, error) {
	q, err := util.NormalizeInput(query, e.cfg.MaxInputRunes)
	if err != nil {
		return "", "", fmt.Errorf("%w: %w", model.ErrInvalidQuery, err)
	}
	loc, err := util.NormalizeInput(location, e.cfg.MaxInputRunes)
	if err != nil {
		return "", "", fmt.Errorf("%w: location: %w", model.ErrInvalidQuery, err)
	}
	if util.VisibleRunes(q) < 2 {
		return "", "", fmt.Errorf("%w: query is too short", model.ErrInvalidQuery)
	}
	if !util.HasLetter(q) {
		return "", "", fmt.Errorf("%w: query has no letters", model.ErrInvalidQuery)
	}
	return q, loc, nil
}

func (e *Engine) search(ctx context.Context, q, loc string, req model.Requester) (model.SearchResult, error) {
	local, err := e.places.FindByText(ctx, q, loc, e.cfg.LocalLimit)
	if err != nil {
		return model.SearchResult{}, fmt.Errorf("local lookup: %w", err)
	}
	if len(local) > 0 {
		places, err := e.enrich(ctx, local, req, true)
		if err != nil {
			return model.SearchResult{}, err
		}
		return model.SearchResult{Places: places, Source: model.SourceLocal}, nil
	}
	return e.searchProvider(ctx, q, loc, req)
}

func (e *Engine) searchProvider(ctx context.Context, q, loc string, req model.Requester) (model.SearchResult, error) {
	if !e.provider.Available() {
		return model.SearchResult{}, fmt.Errorf("%w: circuit open", model.ErrProviderUnreachable)
	}
	if err := e.reserve(ctx, 1); err != nil {
		return model.SearchResult{}, err
	}

	found, err := e.provider.TextSearch(ctx, providerQuery(q, loc), e.cfg.PlaceType)
	if err != nil {
		e.log.Warn("provider text search failed", zap.String("query", q), zap.Error(err))
		return model.SearchResult{}, providerError(err)
	}
	if len(found) == 0 {
		return model.SearchResult{}, model.ErrNoResultsFound
	}

	// Provider order is kept. Each item is merged on its own; a failed item
	// is still returned, just without a store id.
	store := context.WithoutCancel(ctx)
	recs := make([]model.PlaceRecord, 0, len(found))
	saved := 0
	for _, p := range found {
		cand := model.CandidateFromProvider(p, e.classifier.Classify(p.Name, p.FormattedAddress, p.Types))
		rec, inserted, err := e.places.Upsert(store, cand)
		switch {
		case err != nil:
			metrics.PlaceUpsertsTotal.WithLabelValues("failed").Inc()
			e.log.Error("merge provider place",
				zap.String("provider_id", cand.ProviderID),
				zap.String("name", cand.Name),
				zap.Error(err))
			recs = append(recs, unsavedRecord(cand))
			continue
		case inserted:
			saved++
			metrics.PlaceUpsertsTotal.WithLabelValues("inserted").Inc()
		default:
			metrics.PlaceUpsertsTotal.WithLabelValues("existing").Inc()
		}
		recs = append(recs, rec)
	}

	places, err := e.enrich(ctx, recs, req, false)
	if err != nil {
		// The provider call is already paid for; answer without rating context.
		e.log.Warn("enrich provider results", zap.Error(err))
		places = e.bare(recs, false)
	}

	out := model.SearchResult{Places: places, Source: model.SourceProvider, SavedCount: &saved}
	if snap, err := e.QuotaSnapshot(ctx); err == nil {
		out.Quota = &snap
	} else {
		e.log.Warn("quota snapshot", zap.Error(err))
	}
	return out, nil
}

// providerQuery appends the location unless the query already mentions it.
func providerQuery(q, loc string) string {
	if loc == "" || strings.Contains(strings.ToLower(q), strings.ToLower(loc)) {
		return q
	}
	return q + " " + loc
}

func unsavedRecord(c model.PlaceCandidate) model.PlaceRecord {
	return model.PlaceRecord{
		ProviderID:     c.ProviderID,
		Name:           c.Name,
		Cuisine:        c.Cuisine,
		Location:       c.Location,
		Rating:         c.Rating,
		PriceLevel:     c.PriceLevel,
		Types:          c.Types,
		PhotoReference: c.PhotoReference,
		MapsLink:       c.MapsLink,
		Website:        c.Website,
		Phone:          c.Phone,
	}
}

// enrich attaches rating aggregates and the requester's own ratings, using
// one batch query for each.
func (e *Engine) enrich(ctx context.Context, recs []model.PlaceRecord, req model.Requester, fromStore bool) ([]model.EnrichedPlace, error) {
	ids := make([]int64, 0, len(recs))
	for _, r := range recs {
		if r.ID > 0 {
			ids = append(ids, r.ID)
		}
	}
	aggs, err := e.ratings.AggregatesFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	mine := map[int64]model.UserRating{}
	if !req.Anonymous() {
		if mine, err = e.ratings.UserRatingsFor(ctx, req.UserID, ids); err != nil {
			return nil, err
		}
	}

	out := e.bare(recs, fromStore)
	for i := range out {
		id := out[i].ID
		if id == 0 {
			continue
		}
		if agg, ok := aggs[id]; ok {
			out[i].Aggregate = agg
		}
		if ur, ok := mine[id]; ok {
			out[i].UserRating = &ur
		}
	}
	return out, nil
}

func (e *Engine) bare(recs []model.PlaceRecord, fromStore bool) []model.EnrichedPlace {
	out := make([]model.EnrichedPlace, 0, len(recs))
	for _, r := range recs {
		out = append(out, model.EnrichedPlace{
			PlaceRecord: r,
			PhotoURL:    e.provider.PhotoURL(r.PhotoReference),
			Aggregate:   model.NewRatingAggregate(0, 0),
			FromStore:   fromStore,
		})
	}
	return out
}
