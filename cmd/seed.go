package cmd

import (
	"context"
	"fmt"

	"github.com/jmehdipour/place-discovery/internal/app"
	"github.com/jmehdipour/place-discovery/internal/logger"
	"github.com/jmehdipour/place-discovery/internal/model"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the store with demo restaurants",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := context.Background()

		deps, err := app.Build(ctx, cfg, logger.Log, app.Options{Migrate: true})
		defer func() { _ = deps.Close() }()
		if err != nil {
			return err
		}

		added := 0
		for _, in := range demoPlaces() {
			rec, inserted, err := deps.Engine.CreatePlace(ctx, in)
			if err != nil {
				return fmt.Errorf("seed %q: %w", in.Name, err)
			}
			if inserted {
				added++
			}
			logger.Log.Debug("seeded", zap.Int64("id", rec.ID), zap.String("name", rec.Name), zap.Bool("inserted", inserted))
		}

		fmt.Printf(">> seeded %d new restaurants (%d already present)\n", added, len(demoPlaces())-added)
		return nil
	},
}

// demoPlaces is idempotent: re-seeding matches on the natural key.
func demoPlaces() []model.PlaceInput {
	return []model.PlaceInput{
		{Name: "Canoe", Location: "66 Wellington St W, Toronto, ON", Rating: f64(4.6), PriceLevel: intptr(4)},
		{Name: "Pai Northern Thai Kitchen", Location: "18 Duncan St, Toronto, ON", Rating: f64(4.5), PriceLevel: intptr(2)},
		{Name: "Sushi Masaki Saito", Location: "88 Avenue Rd, Toronto, ON", Rating: f64(4.7), PriceLevel: intptr(4)},
		{Name: "Pizzeria Libretto", Location: "221 Ossington Ave, Toronto, ON", Rating: f64(4.4), PriceLevel: intptr(2)},
		{Name: "Chop Steakhouse & Bar", Location: "801 Dixon Rd, Toronto, ON", Rating: f64(4.3), PriceLevel: intptr(3)},
		{Name: "Gujarati Thali House", Location: "Relief Rd, Ahmedabad, Gujarat, India", Rating: f64(4.2), PriceLevel: intptr(1)},
	}
}

func f64(v float64) *float64 { return &v }

func intptr(i int) *int { return &i }
