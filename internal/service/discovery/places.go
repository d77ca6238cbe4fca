package discovery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/jmehdipour/place-discovery/internal/metrics"
	"github.com/jmehdipour/place-discovery/internal/model"
	"github.com/jmehdipour/place-discovery/internal/util"
	"go.uber.org/zap"
)

// activePlace loads an active place or fails with model.ErrNotFound.
func (e *Engine) activePlace(ctx context.Context, id int64) (model.PlaceRecord, error) {
	if id <= 0 {
		return model.PlaceRecord{}, fmt.Errorf("%w: place %d", model.ErrNotFound, id)
	}
	rec, err := e.places.Get(ctx, id)
	if err != nil {
		return model.PlaceRecord{}, err
	}
	if rec == nil || !rec.Active {
		return model.PlaceRecord{}, fmt.Errorf("%w: place %d", model.ErrNotFound, id)
	}
	return *rec, nil
}

// GetPlace returns one active place with its rating context.
func (e *Engine) GetPlace(ctx context.Context, id int64, req model.Requester) (model.EnrichedPlace, error) {
	rec, err := e.activePlace(ctx, id)
	if err != nil {
		return model.EnrichedPlace{}, err
	}
	out, err := e.enrich(ctx, []model.PlaceRecord{rec}, req, true)
	if err != nil {
		return model.EnrichedPlace{}, err
	}
	return out[0], nil
}

// ListPlaces pages through active places, newest first.
func (e *Engine) ListPlaces(ctx context.Context, limit, offset int) ([]model.PlaceRecord, error) {
	return e.places.List(ctx, limit, offset)
}

// CreatePlace adds a place by hand. An existing place with the same name and
// address is returned with inserted=false.
func (e *Engine) CreatePlace(ctx context.Context, in model.PlaceInput) (model.PlaceRecord, bool, error) {
	name := util.SanitizeText(strings.Join(strings.Fields(in.Name), " "), 0)
	location := util.SanitizeText(strings.Join(strings.Fields(in.Location), " "), 0)
	switch {
	case name == "":
		return model.PlaceRecord{}, false, fmt.Errorf("%w: name is required", model.ErrInvalid)
	case location == "":
		return model.PlaceRecord{}, false, fmt.Errorf("%w: location is required", model.ErrInvalid)
	case utf8.RuneCountInString(name) > MaxPlaceNameRunes:
		return model.PlaceRecord{}, false, fmt.Errorf("%w: name exceeds %d characters", model.ErrInvalid, MaxPlaceNameRunes)
	case utf8.RuneCountInString(location) > MaxPlaceAddressRunes:
		return model.PlaceRecord{}, false, fmt.Errorf("%w: location exceeds %d characters", model.ErrInvalid, MaxPlaceAddressRunes)
	}
	if in.Rating != nil && (*in.Rating < 0 || *in.Rating > model.MaxRating) {
		return model.PlaceRecord{}, false, fmt.Errorf("%w: rating must be between 0 and 5", model.ErrInvalid)
	}
	if in.PriceLevel != nil && (*in.PriceLevel < 0 || *in.PriceLevel > 4) {
		return model.PlaceRecord{}, false, fmt.Errorf("%w: price level must be between 0 and 4", model.ErrInvalid)
	}

	cuisine := util.SanitizeText(in.Cuisine, MaxCuisineRunes)
	if cuisine == "" {
		cuisine = e.classifier.Classify(name, location, nil)
	}

	rec, inserted, err := e.places.Upsert(context.WithoutCancel(ctx), model.PlaceCandidate{
		Name:       name,
		Cuisine:    cuisine,
		Location:   location,
		Rating:     in.Rating,
		PriceLevel: in.PriceLevel,
	})
	if err != nil {
		metrics.PlaceUpsertsTotal.WithLabelValues("failed").Inc()
		return model.PlaceRecord{}, false, err
	}
	if inserted {
		metrics.PlaceUpsertsTotal.WithLabelValues("inserted").Inc()
	} else {
		metrics.PlaceUpsertsTotal.WithLabelValues("existing").Inc()
	}
	return rec, inserted, nil
}

// ImportPlaces adds places by provider id. The whole batch is reserved from
// the quota up front; ids already stored still consume their reservation.
func (e *Engine) ImportPlaces(ctx context.Context, providerIDs []string) (model.ImportResult, error) {
	ids, err := importIDs(providerIDs)
	if err != nil {
		return model.ImportResult{}, err
	}
	if !e.provider.Available() {
		return model.ImportResult{}, fmt.Errorf("%w: circuit open", model.ErrProviderUnreachable)
	}
	if err := e.reserve(ctx, int64(len(ids))); err != nil {
		return model.ImportResult{}, err
	}

	store := context.WithoutCancel(ctx)
	res := model.ImportResult{Items: make([]model.ImportItem, 0, len(ids))}
	for _, id := range ids {
		item := e.importOne(ctx, store, id)
		if item.Status == model.ImportAdded {
			res.Added++
		}
		res.Items = append(res.Items, item)
	}
	if _, err := e.QuotaSnapshot(ctx); err != nil {
		e.log.Warn("quota snapshot", zap.Error(err))
	}
	return res, nil
}

func (e *Engine) importOne(ctx, store context.Context, id string) model.ImportItem {
	item := model.ImportItem{ProviderID: id}
	failed := func(err error) model.ImportItem {
		e.log.Warn("import place", zap.String("provider_id", id), zap.Error(err))
		item.Status = model.ImportFailed
		item.Error = outcomeOf(err)
		return item
	}

	existing, err := e.places.GetByProviderID(store, id)
	if err != nil {
		return failed(err)
	}
	if existing != nil {
		item.Status, item.Place = model.ImportExists, existing
		return item
	}

	p, err := e.provider.Details(ctx, id)
	if err != nil {
		return failed(providerError(err))
	}
	if strings.TrimSpace(p.Name) == "" {
		return failed(fmt.Errorf("%w: provider returned no name for %s", model.ErrProviderFailed, id))
	}

	cand := model.CandidateFromProvider(p, e.classifier.Classify(p.Name, p.FormattedAddress, p.Types))
	rec, inserted, err := e.places.Upsert(store, cand)
	if err != nil {
		metrics.PlaceUpsertsTotal.WithLabelValues("failed").Inc()
		return failed(err)
	}
	item.Place = &rec
	if inserted {
		metrics.PlaceUpsertsTotal.WithLabelValues("inserted").Inc()
		item.Status = model.ImportAdded
	} else {
		metrics.PlaceUpsertsTotal.WithLabelValues("existing").Inc()
		item.Status = model.ImportExists
	}
	return item
}

var errEmptyImport = errors.New("no place ids given")

// importIDs trims and de-duplicates ids, keeping first-seen order.
func importIDs(raw []string) ([]string, error) {
	seen := make(map[string]struct{}, len(raw))
	ids := make([]string, 0, len(raw))
	for _, id := range raw {
		id = strings.TrimSpace(id)
		if id == "" {
			return nil, fmt.Errorf("%w: empty place id", model.ErrInvalid)
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	switch {
	case len(ids) == 0:
		return nil, fmt.Errorf("%w: %w", model.ErrInvalid, errEmptyImport)
	case len(ids) > MaxImportBatch:
		return nil, fmt.Errorf("%w: at most %d place ids per import", model.ErrInvalid, MaxImportBatch)
	}
	return ids, nil
}
