package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jmehdipour/place-discovery/internal/kafka"
	"github.com/jmehdipour/place-discovery/internal/model"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ImportRequest is the payload of the places.import topic.
type ImportRequest struct {
	PlaceIDs    []string `json:"place_ids"`
	RequestedBy int64    `json:"requested_by"`
}

// PlaceImporter is the engine operation the importer drives.
type PlaceImporter interface {
	ImportPlaces(ctx context.Context, providerIDs []string) (model.ImportResult, error)
}

// Importer consumes import requests and feeds them to the engine.
// Messages are committed once handled, including ones that failed for good.
type Importer struct {
	Source   kafka.Source
	Engine   PlaceImporter
	Workers  int
	Attempts int           // tries per message for retryable failures
	Backoff  time.Duration // pause between tries
	Log      *zap.Logger
}

func NewImporter(src kafka.Source, eng PlaceImporter, workers int, log *zap.Logger) *Importer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Importer{
		Source:   src,
		Engine:   eng,
		Workers:  workers,
		Attempts: 3,
		Backoff:  time.Second,
		Log:      log,
	}
}

// Run blocks until ctx is cancelled.
func (w *Importer) Run(ctx context.Context) error {
	if w.Workers <= 0 {
		w.Workers = 4
	}
	if w.Attempts <= 0 {
		w.Attempts = 1
	}

	msgCh := make(chan kafka.Message, w.Workers*2)
	g, ctx := errgroup.WithContext(ctx)

	// Fetcher
	g.Go(func() error {
		defer close(msgCh)
		for {
			m, err := w.Source.Fetch(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				w.Log.Warn("kafka fetch", zap.Error(err))
				if !sleep(ctx, 200*time.Millisecond) {
					return nil
				}
				continue
			}
			select {
			case msgCh <- m:
			case <-ctx.Done():
				return nil
			}
		}
	})

	for i := 0; i < w.Workers; i++ {
		g.Go(func() error {
			for m := range msgCh {
				w.handle(ctx, m)
			}
			return nil
		})
	}
	return g.Wait()
}

// handle leaves messages dequeued after shutdown uncommitted. A message
// already being imported runs to completion detached from ctx.
func (w *Importer) handle(ctx context.Context, m kafka.Message) {
	if ctx.Err() != nil {
		return
	}
	var req ImportRequest
	if err := json.Unmarshal(m.Value, &req); err != nil || len(req.PlaceIDs) == 0 {
		// poison: commit and skip
		w.Log.Warn("bad import request", zap.Int64("offset", m.Offset), zap.Error(err))
		w.commit(ctx, m)
		return
	}

	for attempt := 1; ; attempt++ {
		res, err := w.Engine.ImportPlaces(context.WithoutCancel(ctx), req.PlaceIDs)
		if err == nil {
			w.Log.Info("places imported",
				zap.Int64("requested_by", req.RequestedBy),
				zap.Int("requested", len(req.PlaceIDs)),
				zap.Int("added", res.Added))
			break
		}
		if !retryable(err) || attempt >= w.Attempts {
			w.Log.Error("import request failed",
				zap.Int64("requested_by", req.RequestedBy),
				zap.Strings("place_ids", req.PlaceIDs),
				zap.Int("attempts", attempt),
				zap.Error(err))
			break
		}
		if !sleep(ctx, w.Backoff*time.Duration(attempt)) {
			// shutting down; leave the message uncommitted for redelivery
			return
		}
	}
	w.commit(ctx, m)
}

func (w *Importer) commit(ctx context.Context, m kafka.Message) {
	if err := w.Source.Commit(context.WithoutCancel(ctx), m); err != nil {
		w.Log.Warn("kafka commit", zap.Int64("offset", m.Offset), zap.Error(err))
	}
}

func retryable(err error) bool {
	return errors.Is(err, model.ErrProviderUnreachable) || errors.Is(err, model.ErrProviderOverQuota)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
