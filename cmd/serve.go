package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmehdipour/place-discovery/internal/app"
	httpSrv "github.com/jmehdipour/place-discovery/internal/http"
	"github.com/jmehdipour/place-discovery/internal/logger"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var serveMigrate bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log := logger.Log
		defer func() { _ = log.Sync() }()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		deps, err := app.Build(ctx, cfg, log, app.Options{Migrate: serveMigrate, Events: true})
		defer func() { _ = deps.Close() }()
		if err != nil {
			return err
		}

		var rds redis.UniversalClient
		if deps.Redis != nil {
			rds = deps.Redis
		}
		server := httpSrv.NewServer(cfg, deps.Engine, deps.SearchEvents, rds)

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			log.Info("http: starting", zap.String("addr", cfg.HTTP.Addr), zap.String("store", cfg.Store.Driver),
				zap.String("quota_backend", cfg.Quota.Backend), zap.Bool("search_events", deps.Events != nil))
			if err := server.Start(cfg.HTTP.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		if deps.Events != nil {
			g.Go(func() error { return deps.Events.Run(gctx) })
		}
		g.Go(func() error {
			<-gctx.Done()
			log.Info("shutting down")
			shCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.HTTP.ShutdownTimeout)
			defer cancel()
			return server.Shutdown(shCtx)
		})

		return g.Wait()
	},
}

func init() {
	serveCmd.Flags().BoolVar(&serveMigrate, "migrate", true, "apply the embedded schema before serving")
}
