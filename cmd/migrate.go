package cmd

import (
	"context"
	"fmt"

	"github.com/jmehdipour/place-discovery/internal/app"
	"github.com/jmehdipour/place-discovery/internal/db"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the embedded schema to the store and, when configured, ClickHouse",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := context.Background()

		store, err := app.OpenStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()
		if err := db.Migrate(ctx, store); err != nil {
			return fmt.Errorf("migrate %s: %w", cfg.Store.Driver, err)
		}
		fmt.Printf(">> %s schema ready\n", cfg.Store.Driver)

		if cfg.ClickHouse.DSN == "" {
			return nil
		}
		ch, err := app.OpenClickHouse(cfg)
		if err != nil {
			return err
		}
		defer ch.Close()
		if err := db.Migrate(ctx, ch); err != nil {
			return fmt.Errorf("migrate clickhouse: %w", err)
		}
		fmt.Println(">> clickhouse schema ready")
		return nil
	},
}
