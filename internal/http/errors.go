package http

import (
	"errors"
	"net/http"

	"github.com/jmehdipour/place-discovery/internal/model"
	echo "github.com/labstack/echo/v4"
)

// errorStatus maps engine errors to an HTTP status and a client-safe message.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, model.ErrInvalidQuery):
		return http.StatusBadRequest, "invalid query"
	case errors.Is(err, model.ErrInvalid):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, model.ErrProviderRejected):
		return http.StatusBadRequest, "search request rejected by provider"
	case errors.Is(err, model.ErrQuotaExceeded):
		return http.StatusTooManyRequests, "provider quota exhausted"
	case errors.Is(err, model.ErrProviderOverQuota):
		return http.StatusTooManyRequests, "provider is over its query limit, retry later"
	case errors.Is(err, model.ErrProviderUnreachable):
		return http.StatusServiceUnavailable, "provider unavailable, retry later"
	case errors.Is(err, model.ErrNoResultsFound):
		return http.StatusNotFound, "no results found"
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, model.ErrDisallowed):
		return http.StatusUnprocessableEntity, "content not allowed"
	case errors.Is(err, model.ErrSelfReport):
		return http.StatusBadRequest, "cannot report your own review"
	case errors.Is(err, model.ErrAlreadyReported):
		return http.StatusConflict, "review already reported"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func writeError(c echo.Context, err error) error {
	code, msg := errorStatus(err)
	if code == http.StatusInternalServerError {
		c.Logger().Errorf("%s %s: %v", c.Request().Method, c.Path(), err)
	}
	return c.JSON(code, map[string]string{"error": msg})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, map[string]string{"error": msg})
}
