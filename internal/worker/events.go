package worker

import (
	"context"
	"time"

	"github.com/jmehdipour/place-discovery/internal/metrics"
	"github.com/jmehdipour/place-discovery/internal/model"
	"github.com/jmehdipour/place-discovery/internal/repository"
	"go.uber.org/zap"
)

// SearchEventWriter buffers search events in memory and writes them to the
// analytics store in size/time bounded batches. Publish never blocks: when
// the buffer is full the event is dropped and counted.
type SearchEventWriter struct {
	Repo      repository.SearchEventsRepository
	BatchSize int           // max events per insert
	BatchWait time.Duration // max time an event waits for its batch
	Log       *zap.Logger

	in chan model.SearchEvent
}

func NewSearchEventWriter(repo repository.SearchEventsRepository, buffer, batchSize int, batchWait time.Duration, log *zap.Logger) *SearchEventWriter {
	if buffer <= 0 {
		buffer = 1024
	}
	if batchSize <= 0 {
		batchSize = 200
	}
	if batchWait <= 0 {
		batchWait = 2 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &SearchEventWriter{
		Repo:      repo,
		BatchSize: batchSize,
		BatchWait: batchWait,
		Log:       log,
		in:        make(chan model.SearchEvent, buffer),
	}
}

func (w *SearchEventWriter) Publish(ev model.SearchEvent) {
	select {
	case w.in <- ev:
	default:
		metrics.SearchEventsDropped.Inc()
	}
}

// Run flushes batches until ctx is cancelled, then drains what is buffered.
func (w *SearchEventWriter) Run(ctx context.Context) error {
	tick := time.NewTicker(w.BatchWait)
	defer tick.Stop()

	batch := make([]model.SearchEvent, 0, w.BatchSize)

	flush := func(ctx context.Context) {
		if len(batch) == 0 {
			return
		}
		if err := w.Repo.InsertBatch(ctx, batch); err != nil {
			metrics.SearchEventsDropped.Add(float64(len(batch)))
			w.Log.Warn("search events flush failed", zap.Int("events", len(batch)), zap.Error(err))
		} else {
			w.Log.Debug("search events flushed", zap.Int("events", len(batch)))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			for {
				select {
				case ev := <-w.in:
					batch = append(batch, ev)
					if len(batch) >= w.BatchSize {
						flush(drainCtx)
					}
				default:
					flush(drainCtx)
					return nil
				}
			}

		case ev := <-w.in:
			batch = append(batch, ev)
			if len(batch) >= w.BatchSize {
				flush(ctx)
			}

		case <-tick.C:
			flush(ctx)
		}
	}
}
