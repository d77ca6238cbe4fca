package http

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jmehdipour/place-discovery/internal/config"
	"github.com/jmehdipour/place-discovery/internal/http/middleware"
	"github.com/jmehdipour/place-discovery/internal/metrics"
	"github.com/jmehdipour/place-discovery/internal/repository"
	"github.com/labstack/echo/v4"
	echoMid "github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

type Server struct{ e *echo.Echo }

// NewServer wires the API. searchEvents and rds may be nil; the search report
// route and the rate limiter are then left out.
func NewServer(cfg config.Config, eng Discovery, searchEvents repository.SearchEventsRepository, rds redis.UniversalClient) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Logger.SetLevel(logLevel(cfg.Log.Level))
	e.Use(
		echoMid.Recover(),
		echoMid.RequestIDWithConfig(echoMid.RequestIDConfig{Generator: func() string { return uuid.NewString() }}),
		echoMid.Logger(),
	)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// health
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	// middlewares
	who := middleware.RequesterMiddleware()
	mws := []echo.MiddlewareFunc{who}
	if rds != nil {
		mws = append(mws, middleware.RateLimitMiddleware(middleware.RateLimitConfig{
			Redis:          rds,
			RPS:            cfg.RateLimit.RPS,
			Burst:          cfg.RateLimit.Burst,
			KeyPrefix:      "rl:discovery:",
			Window:         time.Second,
			RetryAfterHint: true,
		}))
	}
	auth := middleware.RequireRequester

	// routes
	v1 := e.Group("/v1", mws...)
	v1.POST("/search", searchHandler(eng))
	v1.GET("/quota", quotaHandler(eng))

	v1.GET("/places", listPlacesHandler(eng))
	v1.POST("/places", createPlaceHandler(eng), auth)
	v1.POST("/places/import", importPlacesHandler(eng), auth)
	v1.GET("/places/:id", getPlaceHandler(eng))

	v1.POST("/places/:id/ratings", submitRatingHandler(eng), auth)
	v1.GET("/places/:id/ratings", listRatingsHandler(eng))
	v1.GET("/places/:id/ratings/me", myRatingHandler(eng), auth)
	v1.DELETE("/places/:id/ratings", deleteRatingHandler(eng), auth)
	v1.POST("/places/:id/ratings/:ratingID/report", reportReviewHandler(eng), auth)

	if searchEvents != nil {
		v1.GET("/reports/searches", listSearchEventsHandler(searchEvents))
	}

	return &Server{e: e}
}

func logLevel(level string) log.Lvl {
	switch level {
	case "debug":
		return log.DEBUG
	case "warn":
		return log.WARN
	case "error":
		return log.ERROR
	default:
		return log.INFO
	}
}

func (s *Server) Start(addr string) error {
	s.e.Logger.Infof("http: listening on %s", addr)
	return s.e.Start(addr)
}

func (s *Server) Handler() http.Handler { return s.e }

func (s *Server) Shutdown(ctx context.Context) error { return s.e.Shutdown(ctx) }
