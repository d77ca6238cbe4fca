// Package quota tracks calls made to the external place provider against a
// fixed, never-reset ceiling.
package quota

import (
	"context"
	"errors"
	"time"

	"github.com/jmehdipour/place-discovery/internal/model"
)

// Ledger is the persisted provider-call counter. Every mutation is durable
// before the call returns.
type Ledger interface {
	// TryReserve increments the total by n iff total+n <= ceiling.
	TryReserve(ctx context.Context, n int64) (bool, error)
	// RecordUsage increments the total unconditionally. It books calls made
	// outside the engine, which always goes through TryReserve.
	RecordUsage(ctx context.Context, n int64) error
	Snapshot(ctx context.Context) (model.QuotaSnapshot, error)
}

var ErrNonPositive = errors.New("quota: amount must be positive")

const DefaultWindow = 24 * time.Hour

// Options are shared by all backends.
type Options struct {
	Ceiling int64
	Window  time.Duration    // accounting window for the windowed counter
	Now     func() time.Time // clock, overridable in tests
}

func (o Options) normalized() Options {
	if o.Window <= 0 {
		o.Window = DefaultWindow
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// apply adds n calls to st at now, restarting the window when it has expired.
func apply(st *model.QuotaState, n int64, now time.Time, window time.Duration) {
	if st.WindowStartedAt.IsZero() || !now.Before(st.WindowStartedAt.Add(window)) {
		st.WindowStartedAt = now
		st.WindowCalls = 0
	}
	st.Total += n
	st.WindowCalls += n
	st.LastCallAt = now
}

func fromMillis(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
