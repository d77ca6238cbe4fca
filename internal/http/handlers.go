package http

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/jmehdipour/place-discovery/internal/http/middleware"
	"github.com/jmehdipour/place-discovery/internal/model"
	"github.com/jmehdipour/place-discovery/internal/repository"
	echo "github.com/labstack/echo/v4"
)

// Discovery is the engine surface served over HTTP.
type Discovery interface {
	Search(ctx context.Context, query, location string, req model.Requester) (model.SearchResult, error)
	QuotaSnapshot(ctx context.Context) (model.QuotaSnapshot, error)
	GetPlace(ctx context.Context, id int64, req model.Requester) (model.EnrichedPlace, error)
	ListPlaces(ctx context.Context, limit, offset int) ([]model.PlaceRecord, error)
	CreatePlace(ctx context.Context, in model.PlaceInput) (model.PlaceRecord, bool, error)
	ImportPlaces(ctx context.Context, providerIDs []string) (model.ImportResult, error)
	SubmitRating(ctx context.Context, placeID, userID int64, rating float64, review string) (model.RatingResult, error)
	ListRatings(ctx context.Context, placeID int64) ([]model.UserRating, model.RatingAggregate, error)
	MyRating(ctx context.Context, placeID, userID int64) (model.UserRating, error)
	DeleteRating(ctx context.Context, placeID int64, req model.Requester, ratingID int64) error
	ReportReview(ctx context.Context, placeID, ratingID, reporterID int64, reason, description string) (model.ReviewReport, error)
}

type searchReq struct {
	Query    string `json:"query"`
	Location string `json:"location"`
}

func searchHandler(eng Discovery) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req searchReq
		if err := c.Bind(&req); err != nil {
			return badRequest(c, "bad request")
		}
		res, err := eng.Search(c.Request().Context(), req.Query, req.Location, middleware.RequesterFromCtx(c))
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, res)
	}
}

func quotaHandler(eng Discovery) echo.HandlerFunc {
	return func(c echo.Context) error {
		snap, err := eng.QuotaSnapshot(c.Request().Context())
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, snap)
	}
}

func listPlacesHandler(eng Discovery) echo.HandlerFunc {
	return func(c echo.Context) error {
		limit, offset := paging(c, 50, 100)
		places, err := eng.ListPlaces(c.Request().Context(), limit, offset)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, map[string]any{
			"limit":   limit,
			"offset":  offset,
			"count":   len(places),
			"results": places,
		})
	}
}

func getPlaceHandler(eng Discovery) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, ok := pathID(c, "id")
		if !ok {
			return badRequest(c, "invalid place id")
		}
		p, err := eng.GetPlace(c.Request().Context(), id, middleware.RequesterFromCtx(c))
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, p)
	}
}

func createPlaceHandler(eng Discovery) echo.HandlerFunc {
	return func(c echo.Context) error {
		var in model.PlaceInput
		if err := c.Bind(&in); err != nil {
			return badRequest(c, "bad request")
		}
		rec, inserted, err := eng.CreatePlace(c.Request().Context(), in)
		if err != nil {
			return writeError(c, err)
		}
		code := http.StatusOK
		if inserted {
			code = http.StatusCreated
		}
		return c.JSON(code, map[string]any{"restaurant": rec, "created": inserted})
	}
}

type importReq struct {
	PlaceIDs []string `json:"place_ids"`
}

func importPlacesHandler(eng Discovery) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req importReq
		if err := c.Bind(&req); err != nil {
			return badRequest(c, "bad request")
		}
		res, err := eng.ImportPlaces(c.Request().Context(), req.PlaceIDs)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, res)
	}
}

type rateReq struct {
	Rating *float64 `json:"rating"`
	Review string   `json:"review"`
}

func submitRatingHandler(eng Discovery) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, ok := pathID(c, "id")
		if !ok {
			return badRequest(c, "invalid place id")
		}
		var req rateReq
		if err := c.Bind(&req); err != nil || req.Rating == nil {
			return badRequest(c, "rating is required")
		}
		who := middleware.RequesterFromCtx(c)
		res, err := eng.SubmitRating(c.Request().Context(), id, who.UserID, *req.Rating, req.Review)
		if err != nil {
			return writeError(c, err)
		}
		code := http.StatusOK
		if res.Action == model.RatingCreated {
			code = http.StatusCreated
		}
		return c.JSON(code, res)
	}
}

func listRatingsHandler(eng Discovery) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, ok := pathID(c, "id")
		if !ok {
			return badRequest(c, "invalid place id")
		}
		list, agg, err := eng.ListRatings(c.Request().Context(), id)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, map[string]any{
			"restaurant_id": id,
			"ratings":       list,
			"user_ratings":  agg,
		})
	}
}

func myRatingHandler(eng Discovery) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, ok := pathID(c, "id")
		if !ok {
			return badRequest(c, "invalid place id")
		}
		ur, err := eng.MyRating(c.Request().Context(), id, middleware.RequesterFromCtx(c).UserID)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, ur)
	}
}

type deleteRatingReq struct {
	RatingID int64 `json:"rating_id"`
}

func deleteRatingHandler(eng Discovery) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, ok := pathID(c, "id")
		if !ok {
			return badRequest(c, "invalid place id")
		}
		var req deleteRatingReq
		if c.Request().ContentLength > 0 {
			if err := c.Bind(&req); err != nil {
				return badRequest(c, "bad request")
			}
		}
		if err := eng.DeleteRating(c.Request().Context(), id, middleware.RequesterFromCtx(c), req.RatingID); err != nil {
			return writeError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

type reportReq struct {
	Reason      string `json:"reason"`
	Description string `json:"description"`
}

func reportReviewHandler(eng Discovery) echo.HandlerFunc {
	return func(c echo.Context) error {
		placeID, ok := pathID(c, "id")
		if !ok {
			return badRequest(c, "invalid place id")
		}
		ratingID, ok := pathID(c, "ratingID")
		if !ok {
			return badRequest(c, "invalid rating id")
		}
		var req reportReq
		if err := c.Bind(&req); err != nil {
			return badRequest(c, "bad request")
		}
		rep, err := eng.ReportReview(c.Request().Context(), placeID, ratingID,
			middleware.RequesterFromCtx(c).UserID, req.Reason, req.Description)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusCreated, rep)
	}
}

func listSearchEventsHandler(repo repository.SearchEventsRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		limit, offset := paging(c, 50, 1000)
		source := strings.TrimSpace(c.QueryParam("source"))

		events, err := repo.List(c.Request().Context(), source, limit, offset)
		if err != nil {
			c.Logger().Errorf("clickhouse list failed: %v", err)

			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "query failed"})
		}

		return c.JSON(http.StatusOK, map[string]any{
			"limit":   limit,
			"offset":  offset,
			"count":   len(events),
			"results": events,
		})
	}
}

func pathID(c echo.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	return id, err == nil && id > 0
}

func paging(c echo.Context, def, limitMax int) (int, int) {
	limit, offset := def, 0
	if v := c.QueryParam("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= limitMax {
			limit = n
		}
	}
	if v := c.QueryParam("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}
