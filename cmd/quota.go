package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/jmehdipour/place-discovery/internal/app"
	"github.com/spf13/cobra"
)

var quotaCmd = &cobra.Command{
	Use:   "quota",
	Short: "Print provider usage against the configured ceiling",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := context.Background()

		deps, err := app.Build(ctx, cfg, nil, app.Options{})
		defer func() { _ = deps.Close() }()
		if err != nil {
			return err
		}
		snap, err := deps.Engine.QuotaSnapshot(ctx)
		if err != nil {
			return err
		}
		return printJSON(snap)
	},
}

var quotaRecordCmd = &cobra.Command{
	Use:   "record N",
	Short: "Book N provider calls made outside the service (e.g. from another client sharing the key)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid call count %q", args[0])
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := context.Background()

		deps, err := app.Build(ctx, cfg, nil, app.Options{})
		defer func() { _ = deps.Close() }()
		if err != nil {
			return err
		}
		if err := deps.Ledger.RecordUsage(ctx, n); err != nil {
			return fmt.Errorf("record usage: %w", err)
		}
		snap, err := deps.Ledger.Snapshot(ctx)
		if err != nil {
			return err
		}
		return printJSON(snap)
	},
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	quotaCmd.AddCommand(quotaRecordCmd)
}
