package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/jmehdipour/place-discovery/internal/model"
	echo "github.com/labstack/echo/v4"
)

const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"

	ctxRequester = "requester"
)

// RequesterFromCtx returns the caller identity stored by RequesterMiddleware.
// Unauthenticated callers get the zero Requester.
func RequesterFromCtx(c echo.Context) model.Requester {
	r, _ := c.Get(ctxRequester).(model.Requester)
	return r
}

// RequesterMiddleware reads the identity forwarded by the upstream auth layer.
// A malformed user id is rejected; a missing one means anonymous.
func RequesterMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			var req model.Requester
			if raw := strings.TrimSpace(c.Request().Header.Get(HeaderUserID)); raw != "" {
				id, err := strconv.ParseInt(raw, 10, 64)
				if err != nil || id <= 0 {
					return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid user id"})
				}
				req.UserID = id
				req.Admin = strings.EqualFold(strings.TrimSpace(c.Request().Header.Get(HeaderUserRole)), "admin")
			}
			c.Set(ctxRequester, req)
			return next(c)
		}
	}
}

// RequireRequester rejects anonymous callers.
func RequireRequester(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if RequesterFromCtx(c).Anonymous() {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "authentication required"})
		}
		return next(c)
	}
}
