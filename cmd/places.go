package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/jmehdipour/place-discovery/internal/app"
	"github.com/jmehdipour/place-discovery/internal/kafka"
	"github.com/jmehdipour/place-discovery/internal/logger"
	"github.com/jmehdipour/place-discovery/internal/worker"
	"github.com/spf13/cobra"
)

var placesCmd = &cobra.Command{
	Use:   "places",
	Short: "Administer stored restaurants",
}

var importQueue bool

var placesImportCmd = &cobra.Command{
	Use:   "import PLACE_ID...",
	Short: "Import restaurants by provider place id",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		if importQueue {
			return enqueueImport(ctx, cfg.Kafka.Brokers, cfg.Kafka.ImportTopic, args)
		}

		deps, err := app.Build(ctx, cfg, logger.Log, app.Options{Migrate: true})
		defer func() { _ = deps.Close() }()
		if err != nil {
			return err
		}
		res, err := deps.Engine.ImportPlaces(ctx, args)
		if err != nil {
			return err
		}
		return printJSON(res)
	},
}

func enqueueImport(ctx context.Context, brokers []string, topic string, ids []string) error {
	p, err := kafka.NewProducer(brokers, topic)
	if err != nil {
		return err
	}
	defer p.Close()

	body, err := json.Marshal(worker.ImportRequest{PlaceIDs: ids})
	if err != nil {
		return err
	}
	if err := p.Publish(ctx, []byte(strings.Join(ids, ",")), body); err != nil {
		return fmt.Errorf("publish import request: %w", err)
	}
	fmt.Printf(">> queued %d place ids on %s\n", len(ids), topic)
	return nil
}

var placesDeactivateCmd = &cobra.Command{
	Use:   "deactivate ID",
	Short: "Hide a restaurant from search and free its natural key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || id <= 0 {
			return fmt.Errorf("invalid restaurant id %q", args[0])
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		deps, err := app.Build(ctx, cfg, logger.Log, app.Options{})
		defer func() { _ = deps.Close() }()
		if err != nil {
			return err
		}
		ok, err := deps.Places.Deactivate(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("restaurant %d not found or already inactive", id)
		}
		fmt.Printf(">> restaurant %d deactivated\n", id)
		return nil
	},
}

func init() {
	placesImportCmd.Flags().BoolVar(&importQueue, "queue", false, "publish to the import topic instead of importing inline")
	placesCmd.AddCommand(placesImportCmd)
	placesCmd.AddCommand(placesDeactivateCmd)
}
