package discovery

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmehdipour/place-discovery/internal/model"
	"github.com/jmehdipour/place-discovery/internal/provider"
)

// providerError maps a provider failure onto the engine taxonomy, keeping
// the provider sentinel in the chain.
func providerError(err error) error {
	var kind error
	switch {
	case errors.Is(err, provider.ErrZeroResults):
		kind = model.ErrNoResultsFound
	case errors.Is(err, provider.ErrInvalidRequest), errors.Is(err, provider.ErrDenied):
		kind = model.ErrProviderRejected
	case errors.Is(err, provider.ErrOverQuota):
		kind = model.ErrProviderOverQuota
	case errors.Is(err, provider.ErrUnreachable),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		kind = model.ErrProviderUnreachable
	case errors.Is(err, provider.ErrNotFound):
		kind = model.ErrNotFound
	default:
		kind = model.ErrProviderFailed
	}
	return fmt.Errorf("%w: %w", kind, err)
}

// outcomeOf is the short label used in metrics and search events.
func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, model.ErrInvalidQuery), errors.Is(err, model.ErrInvalid):
		return "invalid"
	case errors.Is(err, model.ErrQuotaExceeded):
		return "quota_exceeded"
	case errors.Is(err, model.ErrNoResultsFound):
		return "no_results"
	case errors.Is(err, model.ErrProviderRejected):
		return "rejected"
	case errors.Is(err, model.ErrProviderOverQuota):
		return "over_quota"
	case errors.Is(err, model.ErrProviderUnreachable):
		return "unreachable"
	case errors.Is(err, model.ErrNotFound):
		return "not_found"
	case errors.Is(err, model.ErrProviderFailed):
		return "provider_failed"
	default:
		return "error"
	}
}
