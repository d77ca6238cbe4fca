// Package discovery answers restaurant searches from the local store when it
// can, and otherwise from the metered place provider, merging provider
// results back into the store.
package discovery

import (
	"context"
	"time"

	"github.com/jmehdipour/place-discovery/internal/metrics"
	"github.com/jmehdipour/place-discovery/internal/model"
	"github.com/jmehdipour/place-discovery/internal/provider"
	"github.com/jmehdipour/place-discovery/internal/quota"
	"github.com/jmehdipour/place-discovery/internal/repository"
	"go.uber.org/zap"
)

const (
	DefaultMaxInputRunes = 200
	DefaultLocalLimit    = 20
	DefaultPlaceType     = "restaurant"
	MaxImportBatch       = 20
	MaxPlaceNameRunes    = 255
	MaxPlaceAddressRunes = 500
	MaxCuisineRunes      = 100
)

// Classifier derives a cuisine category for a place.
type Classifier interface {
	Classify(name, address string, typeTags []string) string
}

// EventSink receives search outcomes. Publish must not block.
type EventSink interface {
	Publish(ev model.SearchEvent)
}

type nopSink struct{}

func (nopSink) Publish(model.SearchEvent) {}

type Config struct {
	MaxInputRunes int
	LocalLimit    int
	PlaceType     string
}

func (c Config) withDefaults() Config {
	if c.MaxInputRunes <= 0 {
		c.MaxInputRunes = DefaultMaxInputRunes
	}
	if c.LocalLimit <= 0 {
		c.LocalLimit = DefaultLocalLimit
	}
	if c.PlaceType == "" {
		c.PlaceType = DefaultPlaceType
	}
	return c
}

// Engine is safe for concurrent use.
type Engine struct {
	places     repository.PlacesRepository
	ratings    repository.RatingsRepository
	reports    repository.ReportsRepository
	ledger     quota.Ledger
	provider   provider.Client
	classifier Classifier
	events     EventSink
	log        *zap.Logger
	cfg        Config
	now        func() time.Time
}

// New constructs the engine. events and log may be nil.
func New(
	places repository.PlacesRepository,
	ratings repository.RatingsRepository,
	reports repository.ReportsRepository,
	ledger quota.Ledger,
	prov provider.Client,
	classifier Classifier,
	events EventSink,
	log *zap.Logger,
	cfg Config,
) *Engine {
	if events == nil {
		events = nopSink{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		places:     places,
		ratings:    ratings,
		reports:    reports,
		ledger:     ledger,
		provider:   prov,
		classifier: classifier,
		events:     events,
		log:        log,
		cfg:        cfg.withDefaults(),
		now:        time.Now,
	}
}

// QuotaSnapshot reports provider usage against the ceiling.
func (e *Engine) QuotaSnapshot(ctx context.Context) (model.QuotaSnapshot, error) {
	snap, err := e.ledger.Snapshot(ctx)
	if err != nil {
		return model.QuotaSnapshot{}, err
	}
	metrics.QuotaUsed.Set(float64(snap.Total))
	return snap, nil
}

// reserve takes n provider calls from the ledger. It runs detached from ctx
// so an abandoned request still records what it took.
func (e *Engine) reserve(ctx context.Context, n int64) error {
	ok, err := e.ledger.TryReserve(context.WithoutCancel(ctx), n)
	if err != nil {
		return err
	}
	if !ok {
		return model.ErrQuotaExceeded
	}
	return nil
}
