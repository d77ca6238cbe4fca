package worker

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmehdipour/place-discovery/internal/app"
	"github.com/jmehdipour/place-discovery/internal/config"
	"github.com/jmehdipour/place-discovery/internal/kafka"
	"github.com/jmehdipour/place-discovery/internal/logger"
	"github.com/jmehdipour/place-discovery/internal/worker"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var importerCmd = &cobra.Command{
	Use:   "importer",
	Short: "Consume place import requests from Kafka",
	RunE:  runImporter,
}

func runImporter(cmd *cobra.Command, args []string) error {
	// 1) load config
	cfgPath, _ := cmd.Root().PersistentFlags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger.Init(cfg.Log.Level)
	log := logger.Log
	defer func() { _ = log.Sync() }()

	// 2) graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3) engine and its backends
	deps, err := app.Build(ctx, cfg, log, app.Options{Migrate: true})
	defer func() { _ = deps.Close() }()
	if err != nil {
		return err
	}

	// 4) kafka consumer
	groupID := cfg.Kafka.GroupID
	if groupID == "" {
		groupID = "discovery-importer"
	}
	consumer, err := kafka.NewConsumer(kafka.Config{
		Brokers:        cfg.Kafka.Brokers,
		Topic:          cfg.Kafka.ImportTopic,
		GroupID:        groupID,
		MinBytes:       cfg.Kafka.MinBytes,
		MaxBytes:       cfg.Kafka.MaxBytes,
		CommitInterval: time.Duration(cfg.Kafka.CommitInterval) * time.Millisecond,
	})
	if err != nil {
		return fmt.Errorf("kafka consumer: %w", err)
	}
	defer consumer.Close()

	w := worker.NewImporter(consumer, deps.Engine, cfg.Importer.Workers, log)

	log.Info("importer started",
		zap.String("topic", cfg.Kafka.ImportTopic),
		zap.String("group", groupID),
		zap.Int("workers", w.Workers))

	err = w.Run(ctx)
	log.Info("importer stopped", zap.Int64("lag", consumer.Lag()))
	return err
}
