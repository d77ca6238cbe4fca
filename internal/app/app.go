// Package app assembles the runtime dependencies shared by the CLI commands.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmehdipour/place-discovery/internal/config"
	"github.com/jmehdipour/place-discovery/internal/cuisine"
	"github.com/jmehdipour/place-discovery/internal/db"
	"github.com/jmehdipour/place-discovery/internal/moderation"
	"github.com/jmehdipour/place-discovery/internal/provider"
	"github.com/jmehdipour/place-discovery/internal/quota"
	"github.com/jmehdipour/place-discovery/internal/repository"
	"github.com/jmehdipour/place-discovery/internal/service/discovery"
	"github.com/jmehdipour/place-discovery/internal/worker"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Deps is everything a command needs to run the engine.
type Deps struct {
	Store        *sqlx.DB
	Redis        *redis.Client // nil unless redis.addr is set
	ClickHouse   *sqlx.DB      // nil unless events are enabled with a DSN
	SearchEvents repository.SearchEventsRepository
	Events       *worker.SearchEventWriter // nil when SearchEvents is nil
	Places       repository.PlacesRepository
	Ledger       quota.Ledger
	Engine       *discovery.Engine

	closers []func() error
}

// Options narrows what Build opens.
type Options struct {
	Migrate bool // apply the embedded schema to the store (and ClickHouse)
	Events  bool // open ClickHouse and the search event writer when configured
}

// OpenStore connects the relational store selected by cfg.Store.Driver.
func OpenStore(cfg config.Config) (*sqlx.DB, error) {
	dbx, err := db.NewStoreConnection(cfg.Store.Driver, cfg.Store.DSN, db.PoolOpts{
		MaxOpenConns:    cfg.Store.MaxOpenConns,
		MaxIdleConns:    cfg.Store.MaxIdleConns,
		ConnMaxLifetime: cfg.Store.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Store.ConnMaxIdleTime,
		PingTimeout:     cfg.Store.PingTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("%s connect: %w", cfg.Store.Driver, err)
	}
	return dbx, nil
}

// OpenClickHouse connects the analytics database.
func OpenClickHouse(cfg config.Config) (*sqlx.DB, error) {
	ch, err := db.NewClickHouseConnection(db.ClickHouseOpts{
		DSN:             cfg.ClickHouse.DSN,
		MaxOpenConns:    cfg.ClickHouse.MaxOpenConns,
		MaxIdleConns:    cfg.ClickHouse.MaxIdleConns,
		ConnMaxLifetime: cfg.ClickHouse.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ClickHouse.ConnMaxIdleTime,
		PingTimeout:     cfg.ClickHouse.PingTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("clickhouse connect: %w", err)
	}
	return ch, nil
}

func RetryPolicy(cfg config.Config) db.RetryPolicy {
	p := db.DefaultRetryPolicy()
	if cfg.Retry.MaxAttempts > 0 {
		p.MaxAttempts = cfg.Retry.MaxAttempts
	}
	if cfg.Retry.InitialBackoff > 0 {
		p.InitialBackoff = cfg.Retry.InitialBackoff
	}
	if cfg.Retry.MaxBackoff > 0 {
		p.MaxBackoff = cfg.Retry.MaxBackoff
	}
	if cfg.Retry.Multiplier >= 1 {
		p.Multiplier = cfg.Retry.Multiplier
	}
	return p
}

// NewLedger builds the quota backend named by cfg.Quota.Backend.
func NewLedger(cfg config.Config, store *sqlx.DB, rdb redis.UniversalClient) (quota.Ledger, error) {
	opts := quota.Options{Ceiling: cfg.Quota.Ceiling, Window: cfg.Quota.Window}
	switch cfg.Quota.Backend {
	case "sql":
		return quota.NewSQLLedger(store, opts, RetryPolicy(cfg)), nil
	case "redis":
		if rdb == nil {
			return nil, errors.New("quota backend redis needs redis.addr")
		}
		return quota.NewRedisLedger(rdb, cfg.Quota.RedisKey, opts), nil
	case "file":
		return quota.NewFileLedger(cfg.Quota.FilePath, opts)
	default:
		return nil, fmt.Errorf("unknown quota backend %q", cfg.Quota.Backend)
	}
}

func NewProvider(cfg config.Config) *provider.GooglePlaces {
	p := cfg.Provider
	return provider.NewGooglePlaces(provider.Options{
		BaseURL:       p.BaseURL,
		APIKey:        p.APIKey,
		TimeoutMs:     p.TimeoutMs,
		QPS:           p.QPS,
		Burst:         p.Burst,
		MaxConcurrent: p.MaxConcurrent,
		FailThreshold: p.Breaker.FailThreshold,
		OpenForMs:     p.Breaker.OpenForMs,
		PhotoMaxWidth: p.PhotoMaxWidth,
	})
}

// Build opens the configured backends and assembles the engine. Call Close
// when done, even after an error.
func Build(ctx context.Context, cfg config.Config, log *zap.Logger, o Options) (*Deps, error) {
	d := &Deps{}

	store, err := OpenStore(cfg)
	if err != nil {
		return d, err
	}
	d.Store = store
	d.closers = append(d.closers, store.Close)

	if o.Migrate {
		if err := db.Migrate(ctx, store); err != nil {
			return d, fmt.Errorf("migrate store: %w", err)
		}
	}

	if cfg.Redis.Addr != "" {
		rdb, err := db.NewRedisClient(db.RedisOpts{
			Addr:        cfg.Redis.Addr,
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			DialTimeout: cfg.Redis.DialTimeout,
			PoolSize:    cfg.Redis.PoolSize,
		})
		if err != nil {
			return d, fmt.Errorf("redis connect: %w", err)
		}
		d.Redis = rdb
		d.closers = append(d.closers, rdb.Close)
	}

	if o.Events && cfg.Events.Enabled && cfg.ClickHouse.DSN != "" {
		ch, err := OpenClickHouse(cfg)
		if err != nil {
			return d, err
		}
		d.ClickHouse = ch
		d.closers = append(d.closers, ch.Close)
		if o.Migrate {
			if err := db.Migrate(ctx, ch); err != nil {
				return d, fmt.Errorf("migrate clickhouse: %w", err)
			}
		}
		d.SearchEvents = repository.NewCHSearchEventsRepository(ch)
		d.Events = worker.NewSearchEventWriter(d.SearchEvents, cfg.Events.Buffer, cfg.Events.BatchSize, cfg.Events.BatchWait, log)
	}

	var rdb redis.UniversalClient
	if d.Redis != nil {
		rdb = d.Redis
	}
	d.Ledger, err = NewLedger(cfg, store, rdb)
	if err != nil {
		return d, err
	}

	retry := RetryPolicy(cfg)
	places := repository.NewPlacesRepository(store, retry)
	d.Places = places

	var sink discovery.EventSink
	if d.Events != nil {
		sink = d.Events
	}
	d.Engine = discovery.New(
		places,
		repository.NewRatingsRepository(store, moderation.New(), retry),
		repository.NewReportsRepository(store),
		d.Ledger,
		NewProvider(cfg),
		cuisine.New(),
		sink,
		log,
		discovery.Config{
			MaxInputRunes: cfg.Search.MaxInputRunes,
			LocalLimit:    cfg.Search.LocalLimit,
		},
	)
	return d, nil
}

// Close releases every opened backend in reverse order.
func (d *Deps) Close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}
